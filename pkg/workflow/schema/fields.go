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

// Field is a flattened projection of one object property.
type Field struct {
	Name         string       `json:"name"`
	Type         string       `json:"type,omitempty"`
	ItemType     string       `json:"itemType,omitempty"`
	Required     bool         `json:"required"`
	Nullable     bool         `json:"nullable"`
	Description  string       `json:"description,omitempty"`
	DefaultValue any          `json:"defaultValue,omitempty"`
	Children     []Field      `json:"children,omitempty"`
	Constraints  *Constraints `json:"constraints,omitempty"`

	// Recursive marks a property whose type is already being expanded by an
	// ancestor; its children are not repeated.
	Recursive bool `json:"recursive,omitempty"`
}

// Constraints holds the validation keywords worth showing next to a field.
type Constraints struct {
	Enum      []any    `json:"enum,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Format    string   `json:"format,omitempty"`
	Examples  []any    `json:"examples,omitempty"`
}

// Find returns the field with the given name.
func Find(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ExtractFields resolves s and returns one Field per property, in document
// order. Non-object schemas yield no fields.
func ExtractFields(s, root *Schema) ([]Field, error) {
	if root == nil {
		root = s
	}
	r, err := resolve(s, root, nil, nil)
	if err != nil {
		return nil, err
	}
	if !isObject(r.Schema) {
		return []Field{}, nil
	}
	return extractProperties(r.Schema, root, []*Schema{r.origin})
}

func extractProperties(obj, root *Schema, expanding []*Schema) ([]Field, error) {
	fields := make([]Field, 0, obj.Properties.Len())
	for _, name := range obj.Properties.Keys() {
		prop, _ := obj.Properties.Get(name)
		f, err := extractField(name, prop, obj.IsRequired(name), root, expanding)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func extractField(name string, prop *Schema, required bool, root *Schema, expanding []*Schema) (Field, error) {
	f := Field{Name: name, Required: required}
	if prop == nil {
		return f, nil
	}
	r, err := resolve(prop, root, nil, nil)
	if err != nil {
		return Field{}, err
	}
	s := r.Schema
	f.Nullable = r.Nullable
	f.Type = NormalizeType(s)
	if f.Type == "" && s.Properties != nil {
		f.Type = "object"
	}
	f.Description = s.Description
	f.DefaultValue = s.Default
	f.Constraints = constraintsOf(s)

	switch f.Type {
	case "object":
		if !isObject(s) {
			break
		}
		if contains(expanding, r.origin) {
			f.Recursive = true
			break
		}
		f.Children, err = extractProperties(s, root, append(expanding, r.origin))
		if err != nil {
			return Field{}, err
		}
	case "array":
		if s.Items == nil {
			break
		}
		items, err := resolve(s.Items, root, nil, nil)
		if err != nil {
			return Field{}, err
		}
		f.ItemType = NormalizeType(items.Schema)
		if !isObject(items.Schema) {
			break
		}
		if f.ItemType == "" {
			f.ItemType = "object"
		}
		if contains(expanding, items.origin) {
			f.Recursive = true
			break
		}
		f.Children, err = extractProperties(items.Schema, root, append(expanding, items.origin))
		if err != nil {
			return Field{}, err
		}
	}
	return f, nil
}

func constraintsOf(s *Schema) *Constraints {
	c := Constraints{
		Enum:      s.Enum,
		Minimum:   s.Minimum,
		Maximum:   s.Maximum,
		MinLength: s.MinLength,
		MaxLength: s.MaxLength,
		Pattern:   s.Pattern,
		Format:    s.Format,
		Examples:  s.Examples,
	}
	if len(c.Enum) == 0 && c.Minimum == nil && c.Maximum == nil && c.MinLength == nil &&
		c.MaxLength == nil && c.Pattern == "" && c.Format == "" && len(c.Examples) == 0 {
		return nil
	}
	return &c
}

func contains(list []*Schema, s *Schema) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
