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

// Package schema resolves and projects the JSON Schema fragments used by
// workflow payloads and action inputs/outputs.
//
// Schemas come from an external registry and routinely use two patterns the
// resolver has to understand:
//
//   - $ref pointers into a shared definitions map ("#/definitions/Ticket",
//     "#/$defs/Ticket" or a bare "Ticket")
//   - nullable wrappers expressed as anyOf/oneOf with a {"type": "null"}
//     variant instead of a nullable keyword
//
// Resolve collapses both into a concrete schema plus a nullability flag,
// ExtractFields flattens an object schema into display/validation fields and
// BuildDefaultValue materializes a minimal instance.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Schema is a JSON Schema fragment.
type Schema struct {
	Type                 TypeSet               `json:"type,omitempty" yaml:"type,omitempty"`
	Title                string                `json:"title,omitempty" yaml:"title,omitempty"`
	Description          string                `json:"description,omitempty" yaml:"description,omitempty"`
	Properties           *Properties           `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required             []string              `json:"required,omitempty" yaml:"required,omitempty"`
	Enum                 []any                 `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items                *Schema               `json:"items,omitempty" yaml:"items,omitempty"`
	AdditionalProperties *AdditionalProperties `json:"additionalProperties,omitempty" yaml:"additionalProperties,omitempty"`
	AnyOf                []*Schema             `json:"anyOf,omitempty" yaml:"anyOf,omitempty"`
	OneOf                []*Schema             `json:"oneOf,omitempty" yaml:"oneOf,omitempty"`
	Ref                  string                `json:"$ref,omitempty" yaml:"$ref,omitempty"`
	Definitions          map[string]*Schema    `json:"definitions,omitempty" yaml:"definitions,omitempty"`
	Defs                 map[string]*Schema    `json:"$defs,omitempty" yaml:"$defs,omitempty"`
	Default              any                   `json:"default,omitempty" yaml:"default,omitempty"`
	Minimum              *float64              `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum              *float64              `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	MinLength            *int                  `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength            *int                  `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern              string                `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Format               string                `json:"format,omitempty" yaml:"format,omitempty"`
	Examples             []any                 `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// Parse decodes a JSON schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return &s, nil
}

// HasType reports whether t appears in the schema's type list.
func (s *Schema) HasType(t string) bool {
	if s == nil {
		return false
	}
	for _, v := range s.Type {
		if v == t {
			return true
		}
	}
	return false
}

// IsRequired reports whether name is listed in the schema's required set.
func (s *Schema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// shallowCopy returns a copy of s that shares nested schemas.
func (s *Schema) shallowCopy() *Schema {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// TypeSet holds the "type" keyword, which may be a single type or a list.
type TypeSet []string

// MarshalJSON encodes single-element sets as a plain string.
func (t TypeSet) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// UnmarshalJSON accepts either a string or a list of strings.
func (t *TypeSet) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = TypeSet{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("type must be a string or list of strings: %w", err)
	}
	*t = TypeSet(list)
	return nil
}

// MarshalYAML encodes single-element sets as a plain string.
func (t TypeSet) MarshalYAML() (interface{}, error) {
	if len(t) == 1 {
		return t[0], nil
	}
	return []string(t), nil
}

// UnmarshalYAML accepts either a scalar or a sequence.
func (t *TypeSet) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = TypeSet{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = TypeSet(list)
		return nil
	default:
		return fmt.Errorf("type must be a string or list of strings (line %d)", node.Line)
	}
}

// Properties is an insertion-ordered map of property name to schema.
// Field order matters for display, so plain Go maps are not used.
type Properties struct {
	keys   []string
	values map[string]*Schema
}

// NewProperties creates an ordered property map from alternating name/schema pairs.
func NewProperties(pairs ...any) *Properties {
	p := &Properties{values: make(map[string]*Schema)}
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		s, _ := pairs[i+1].(*Schema)
		p.Set(name, s)
	}
	return p
}

// Set adds or replaces a property, keeping the original position on replace.
func (p *Properties) Set(name string, s *Schema) {
	if p.values == nil {
		p.values = make(map[string]*Schema)
	}
	if _, exists := p.values[name]; !exists {
		p.keys = append(p.keys, name)
	}
	p.values[name] = s
}

// Get returns the schema for a property.
func (p *Properties) Get(name string) (*Schema, bool) {
	if p == nil {
		return nil, false
	}
	s, ok := p.values[name]
	return s, ok
}

// Keys returns property names in document order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// MarshalJSON writes properties in insertion order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads properties preserving document order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties must be an object")
	}
	p.keys = nil
	p.values = make(map[string]*Schema)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("properties key must be a string")
		}
		var s Schema
		if err := dec.Decode(&s); err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		p.Set(name, &s)
	}
	_, err = dec.Token()
	return err
}

// MarshalYAML writes properties in insertion order.
func (p *Properties) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range p.keys {
		var val yaml.Node
		if err := val.Encode(p.values[k]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &val)
	}
	return node, nil
}

// UnmarshalYAML reads properties preserving document order.
func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("properties must be a mapping (line %d)", node.Line)
	}
	p.keys = nil
	p.values = make(map[string]*Schema)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var s Schema
		if err := node.Content[i+1].Decode(&s); err != nil {
			return fmt.Errorf("property %q: %w", node.Content[i].Value, err)
		}
		p.Set(node.Content[i].Value, &s)
	}
	return nil
}

// AdditionalProperties is either a boolean or a schema.
type AdditionalProperties struct {
	Allowed bool
	Schema  *Schema
}

// MarshalJSON encodes the schema form when present, otherwise the boolean.
func (a *AdditionalProperties) MarshalJSON() ([]byte, error) {
	if a.Schema != nil {
		return json.Marshal(a.Schema)
	}
	return json.Marshal(a.Allowed)
}

// UnmarshalJSON accepts a boolean or a schema object.
func (a *AdditionalProperties) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		a.Allowed = b
		a.Schema = nil
		return nil
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("additionalProperties must be a boolean or schema: %w", err)
	}
	a.Allowed = true
	a.Schema = &s
	return nil
}

// MarshalYAML encodes the schema form when present, otherwise the boolean.
func (a *AdditionalProperties) MarshalYAML() (interface{}, error) {
	if a.Schema != nil {
		return a.Schema, nil
	}
	return a.Allowed, nil
}

// UnmarshalYAML accepts a boolean or a schema mapping.
func (a *AdditionalProperties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		a.Allowed = b
		a.Schema = nil
		return nil
	}
	var s Schema
	if err := node.Decode(&s); err != nil {
		return err
	}
	a.Allowed = true
	a.Schema = &s
	return nil
}
