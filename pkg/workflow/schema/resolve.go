// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package schema

import "strings"

const (
	definitionsPrefix = "#/definitions/"
	defsPrefix        = "#/$defs/"
)

// Resolved is a schema with $ref and nullable wrappers removed.
type Resolved struct {
	Schema   *Schema
	Nullable bool
}

// resolution carries the definition a resolved schema came from, so callers
// that descend into properties can detect recursive types.
type resolution struct {
	Resolved
	origin *Schema
	ref    string
}

// Resolve returns the concrete schema behind s, following $ref pointers into
// root's definitions and collapsing anyOf/oneOf nullable wrappers.
// A nil root means s is its own root.
func Resolve(s, root *Schema) (*Schema, error) {
	r, err := ResolveNullable(s, root)
	if err != nil {
		return nil, err
	}
	return r.Schema, nil
}

// ResolveNullable is Resolve that also reports whether the wrapper admitted null.
func ResolveNullable(s, root *Schema) (Resolved, error) {
	if root == nil {
		root = s
	}
	r, err := resolve(s, root, nil, nil)
	if err != nil {
		return Resolved{}, err
	}
	return r.Resolved, nil
}

func resolve(s, root *Schema, visited []*Schema, chain []string) (resolution, error) {
	if s == nil {
		return resolution{}, nil
	}

	if s.Ref != "" {
		target := lookupRef(root, s.Ref)
		if target == nil {
			return resolution{}, &UnresolvedReferenceError{Ref: s.Ref}
		}
		chain = append(chain, s.Ref)
		for _, v := range visited {
			if v == target {
				return resolution{}, &CyclicReferenceError{Chain: append([]string(nil), chain...)}
			}
		}
		r, err := resolve(target, root, append(visited, target), chain)
		if err != nil {
			return resolution{}, err
		}
		if r.origin == nil || r.origin == target {
			r.origin = target
			r.ref = s.Ref
		}
		r.Schema = withWrapperAnnotations(r.Schema, s)
		return r, nil
	}

	variants := s.AnyOf
	if len(variants) == 0 {
		variants = s.OneOf
	}
	if len(variants) > 0 {
		var pick *Schema
		nullable := false
		for _, v := range variants {
			if v == nil {
				continue
			}
			if isNullOnly(v) {
				nullable = true
				continue
			}
			if v.HasType("null") {
				nullable = true
			}
			if pick == nil {
				pick = v
			}
		}
		if pick == nil {
			return resolution{
				Resolved: Resolved{Schema: &Schema{Type: TypeSet{"null"}, Description: s.Description}, Nullable: true},
				origin:   s,
			}, nil
		}
		r, err := resolve(pick, root, visited, chain)
		if err != nil {
			return resolution{}, err
		}
		r.Schema = withWrapperAnnotations(r.Schema, s)
		r.Nullable = r.Nullable || nullable
		return r, nil
	}

	return resolution{
		Resolved: Resolved{Schema: s, Nullable: len(s.Type) > 1 && s.HasType("null")},
		origin:   s,
	}, nil
}

// withWrapperAnnotations copies title, description and default from a wrapper
// onto the resolved schema without mutating the shared definition.
func withWrapperAnnotations(resolved, wrapper *Schema) *Schema {
	if resolved == nil || resolved == wrapper {
		return resolved
	}
	if wrapper.Title == "" && wrapper.Description == "" && wrapper.Default == nil {
		return resolved
	}
	out := resolved.shallowCopy()
	if wrapper.Title != "" {
		out.Title = wrapper.Title
	}
	if wrapper.Description != "" {
		out.Description = wrapper.Description
	}
	if wrapper.Default != nil {
		out.Default = wrapper.Default
	}
	return out
}

func isNullOnly(s *Schema) bool {
	return len(s.Type) == 1 && s.Type[0] == "null"
}

// lookupRef finds a definition by "#/definitions/X", "#/$defs/X" or bare "X".
func lookupRef(root *Schema, ref string) *Schema {
	if root == nil {
		return nil
	}
	switch {
	case strings.HasPrefix(ref, definitionsPrefix):
		return root.Definitions[strings.TrimPrefix(ref, definitionsPrefix)]
	case strings.HasPrefix(ref, defsPrefix):
		return root.Defs[strings.TrimPrefix(ref, defsPrefix)]
	case strings.HasPrefix(ref, "#"):
		return nil
	}
	if s, ok := root.Definitions[ref]; ok {
		return s
	}
	return root.Defs[ref]
}

// NormalizeType returns the primary type of a schema: the first non-"null"
// entry of its type list, the first entry if all are "null", or "" when unset.
func NormalizeType(s *Schema) string {
	if s == nil || len(s.Type) == 0 {
		return ""
	}
	for _, t := range s.Type {
		if t != "null" {
			return t
		}
	}
	return s.Type[0]
}

// isObject reports whether a resolved schema describes an object with properties.
func isObject(s *Schema) bool {
	if s == nil || s.Properties == nil {
		return false
	}
	t := NormalizeType(s)
	return t == "object" || t == ""
}
