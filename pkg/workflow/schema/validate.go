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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateInstance validates value against s. The ref names the compiled
// resource in error messages; it does not have to be resolvable.
//
// Returns ValidationErrors when the value does not conform and a plain error
// when the schema itself cannot be compiled.
func ValidateInstance(ref string, s *Schema, value any) error {
	if s == nil {
		return fmt.Errorf("schema is empty")
	}
	doc, err := canonicalDocument(s)
	if err != nil {
		return err
	}
	return ValidateDocument(ref, doc, value)
}

// ValidateDocument validates value against a raw JSON Schema document. It
// accepts every keyword the compiler supports, not only those modelled by
// Schema.
func ValidateDocument(ref string, doc []byte, value any) error {
	if len(doc) == 0 {
		return fmt.Errorf("schema is empty")
	}
	resourceID := resourceID(ref)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, bytes.NewReader(doc)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	payload, err := normalizeValue(value)
	if err != nil {
		return fmt.Errorf("normalize payload: %w", err)
	}
	if err := compiled.Validate(payload); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return flatten(ve)
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// canonicalDocument encodes s, rewriting bare definition refs into JSON
// pointers so the compiler can follow them.
func canonicalDocument(s *Schema) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	rewriteRefs(doc, s)
	return json.Marshal(doc)
}

func rewriteRefs(node any, root *Schema) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if ref, ok := child.(string); ok && key == "$ref" {
				v[key] = canonicalRef(ref, root)
				continue
			}
			rewriteRefs(child, root)
		}
	case []any:
		for _, child := range v {
			rewriteRefs(child, root)
		}
	}
}

func canonicalRef(ref string, root *Schema) string {
	if strings.HasPrefix(ref, "#") || strings.Contains(ref, "://") {
		return ref
	}
	if _, ok := root.Definitions[ref]; ok {
		return definitionsPrefix + ref
	}
	if _, ok := root.Defs[ref]; ok {
		return defsPrefix + ref
	}
	return ref
}

// flatten converts the compiler's cause tree into leaf validation errors.
func flatten(ve *jsonschema.ValidationError) ValidationErrors {
	var out ValidationErrors
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, NewValidationError(instancePath(e.InstanceLocation), keyword(e.KeywordLocation), e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

// instancePath turns a JSON pointer ("/items/0/name") into "$.items[0].name".
func instancePath(pointer string) string {
	if pointer == "" || pointer == "/" {
		return "$"
	}
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString("." + seg)
	}
	return b.String()
}

func keyword(location string) string {
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// normalizeValue round-trips value through JSON so Go structs and typed maps
// reach the validator in their decoded form.
func normalizeValue(value any) (any, error) {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = encoded
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

func resourceID(ref string) string {
	if ref == "" {
		ref = "schema"
	}
	return "inmemory://" + ref
}
