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

// Package workflow defines the workflow definition model: a payload
// contract, an optional trigger and a tree of steps built from plain node
// steps and five control-flow blocks.
//
// Definitions are plain value trees. Every tree operation in this package
// returns a new tree and leaves its input untouched, so hosts can keep the
// previous version for undo or diffing. Steps are addressed either by their
// stable id or by a branch path such as "root.steps[2].then.steps[0]".
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Definition is a workflow definition.
type Definition struct {
	// ID is generated on creation and never changes.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// Version is the definition format version.
	Version int `yaml:"version,omitempty" json:"version,omitempty"`

	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// PayloadSchemaRef names the schema the workflow payload must satisfy.
	PayloadSchemaRef string `yaml:"payloadSchemaRef,omitempty" json:"payloadSchemaRef,omitempty"`

	// Trigger starts the workflow automatically. Nil means manual runs only.
	Trigger *Trigger `yaml:"trigger,omitempty" json:"trigger,omitempty"`

	Steps Steps `yaml:"steps" json:"steps"`
}

// DefinitionVersion is the current definition format version.
const DefinitionVersion = 1

// NewDefinition creates an empty definition with a generated id.
func NewDefinition(name string) *Definition {
	return &Definition{
		ID:      uuid.NewString(),
		Version: DefinitionVersion,
		Name:    name,
		Steps:   Steps{},
	}
}

// ParseDefinition parses a YAML or JSON definition document.
// The document is only decoded; use ValidateStructure to check it.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	if def.Steps == nil {
		def.Steps = Steps{}
	}
	if def.Version == 0 {
		def.Version = DefinitionVersion
	}
	return &def, nil
}

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	c.Trigger = d.Trigger.Clone()
	c.Steps = cloneSteps(d.Steps)
	return &c
}

// TriggerType identifies the kind of trigger.
type TriggerType string

const (
	// TriggerTypeEvent starts the workflow when a catalog event is emitted.
	TriggerTypeEvent TriggerType = "event"
)

// Trigger starts a workflow. Only the event variant exists today.
type Trigger struct {
	Type TriggerType `yaml:"type" json:"type"`

	// EventName selects the event catalog entry.
	EventName string `yaml:"eventName,omitempty" json:"eventName,omitempty"`

	// SourcePayloadSchemaRef overrides the schema ref inferred from the catalog.
	SourcePayloadSchemaRef string `yaml:"sourcePayloadSchemaRef,omitempty" json:"sourcePayloadSchemaRef,omitempty"`

	// PayloadMapping maps workflow payload fields to expressions over the
	// event payload. Required when the event schema differs from the
	// workflow payload schema.
	PayloadMapping map[string]Expr `yaml:"payloadMapping,omitempty" json:"payloadMapping,omitempty"`
}

// HasMapping reports whether at least one payload mapping entry is set.
func (t *Trigger) HasMapping() bool {
	if t == nil {
		return false
	}
	for _, e := range t.PayloadMapping {
		if !e.IsEmpty() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the trigger.
func (t *Trigger) Clone() *Trigger {
	if t == nil {
		return nil
	}
	c := *t
	c.PayloadMapping = cloneExprMap(t.PayloadMapping)
	return &c
}

// Expr is an expression value. The empty string means unset.
//
// It encodes as {"$expr": "..."}; decoding also accepts {"expr": "..."} and
// a bare string.
type Expr struct {
	Expr string
}

// E is shorthand for constructing an Expr.
func E(s string) Expr { return Expr{Expr: s} }

// IsEmpty reports whether the expression is unset.
func (e Expr) IsEmpty() bool {
	return strings.TrimSpace(e.Expr) == ""
}

func (e Expr) String() string { return e.Expr }

// MarshalJSON implements json.Marshaler.
func (e Expr) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{ExprKey: e.Expr})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Expr = s
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("expression must be a string or an object with %q: %w", ExprKey, err)
	}
	parsed, ok := AsExpr(m)
	if !ok {
		return fmt.Errorf("expression object must contain a string %q", ExprKey)
	}
	*e = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (e Expr) MarshalYAML() (interface{}, error) {
	return map[string]string{ExprKey: e.Expr}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Expr) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Expr = node.Value
		return nil
	}
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	parsed, ok := AsExpr(m)
	if !ok {
		return fmt.Errorf("expression object must contain a string %q (line %d)", ExprKey, node.Line)
	}
	*e = parsed
	return nil
}

// ExprKey is the object key that marks an expression value.
const ExprKey = "$expr"

// legacyExprKey is accepted on input for documents written before ExprKey.
const legacyExprKey = "expr"

// AsExpr recognizes an expression inside an untyped config value: an Expr,
// a *Expr, or a single-key map holding "$expr" or "expr".
func AsExpr(v any) (Expr, bool) {
	switch x := v.(type) {
	case Expr:
		return x, true
	case *Expr:
		if x == nil {
			return Expr{}, false
		}
		return *x, true
	case map[string]any:
		if len(x) != 1 {
			return Expr{}, false
		}
		for _, key := range []string{ExprKey, legacyExprKey} {
			if raw, ok := x[key]; ok {
				s, ok := raw.(string)
				return Expr{Expr: s}, ok
			}
		}
	case map[string]string:
		if len(x) != 1 {
			return Expr{}, false
		}
		for _, key := range []string{ExprKey, legacyExprKey} {
			if s, ok := x[key]; ok {
				return Expr{Expr: s}, true
			}
		}
	}
	return Expr{}, false
}

func cloneExprMap(m map[string]Expr) map[string]Expr {
	if m == nil {
		return nil
	}
	out := make(map[string]Expr, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// cloneValue deep-copies untyped config values.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
