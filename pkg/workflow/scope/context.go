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

// Package scope builds the data context visible to a step: the payload
// fields, the outputs of earlier steps bound with saveAs, the global
// namespaces and the bindings introduced by enclosing blocks.
//
// The builder is pure. Registries and the payload schema are passed in by
// the caller; nothing here performs I/O.
package scope

import (
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// ForEachContext describes the loop variables of an enclosing forEach block.
type ForEachContext struct {
	StepID   string `json:"stepId"`
	ItemVar  string `json:"itemVar"`
	IndexVar string `json:"indexVar"`

	// ItemType is the element type when the items expression is a plain
	// path to a known array field.
	ItemType string `json:"itemType,omitempty"`

	// ItemFields are the element fields for arrays of objects.
	ItemFields []schema.Field `json:"itemFields,omitempty"`
}

// StepOutput is one saveAs binding visible in the context.
type StepOutput struct {
	StepID       string         `json:"stepId"`
	StepName     string         `json:"stepName,omitempty"`
	SaveAs       string         `json:"saveAs"`
	OutputSchema *schema.Schema `json:"outputSchema,omitempty"`
	Fields       []schema.Field `json:"fields"`

	// Degraded is set when the output schema could not be resolved. The
	// binding stays known but its fields are empty.
	Degraded bool `json:"degraded,omitempty"`
}

// Globals holds the fixed global namespaces.
type Globals struct {
	Meta    []schema.Field `json:"meta"`
	Error   []schema.Field `json:"error"`
	Env     []schema.Field `json:"env"`
	Secrets []schema.Field `json:"secrets"`
}

// DataContext is everything an expression in one step can reference.
type DataContext struct {
	Payload       []schema.Field `json:"payload"`
	PayloadSchema *schema.Schema `json:"payloadSchema,omitempty"`

	// PayloadError is set when the payload schema is malformed.
	PayloadError error `json:"-"`

	Steps   []StepOutput `json:"steps"`
	Globals Globals      `json:"globals"`

	// ForEach is the innermost enclosing loop; Loops lists all of them,
	// outermost first.
	ForEach *ForEachContext  `json:"forEach,omitempty"`
	Loops   []ForEachContext `json:"loops,omitempty"`

	InCatchBlock bool `json:"inCatchBlock"`

	// CaptureErrorAs is the error binding of the enclosing catch branch.
	CaptureErrorAs string `json:"captureErrorAs,omitempty"`

	// TargetFound reports whether the walk stopped at the requested step.
	TargetFound bool `json:"targetFound"`
}

// KnownVars returns the saveAs names in binding order without duplicates.
func (c *DataContext) KnownVars() []string {
	seen := make(map[string]bool, len(c.Steps))
	names := make([]string, 0, len(c.Steps))
	for _, s := range c.Steps {
		if seen[s.SaveAs] {
			continue
		}
		seen[s.SaveAs] = true
		names = append(names, s.SaveAs)
	}
	return names
}

// Lookup returns the binding for saveAs. A later binding shadows an
// earlier one with the same name.
func (c *DataContext) Lookup(saveAs string) (StepOutput, bool) {
	for i := len(c.Steps) - 1; i >= 0; i-- {
		if c.Steps[i].SaveAs == saveAs {
			return c.Steps[i], true
		}
	}
	return StepOutput{}, false
}

// LocalVars returns the bare identifiers introduced by enclosing blocks:
// loop item and index variables and the captured error name.
func (c *DataContext) LocalVars() []string {
	var names []string
	for _, l := range c.Loops {
		names = append(names, l.ItemVar, l.IndexVar)
	}
	if c.CaptureErrorAs != "" {
		names = append(names, c.CaptureErrorAs)
	}
	return names
}

// IsLocalVar reports whether name is a block-local binding in this context.
func (c *DataContext) IsLocalVar(name string) bool {
	for _, v := range c.LocalVars() {
		if v == name {
			return true
		}
	}
	return false
}

// Global returns the fields of a global namespace.
func (c *DataContext) Global(root string) ([]schema.Field, bool) {
	switch root {
	case RootMeta:
		return c.Globals.Meta, true
	case RootError:
		return c.Globals.Error, true
	case RootEnv:
		return c.Globals.Env, true
	case RootSecrets:
		return c.Globals.Secrets, true
	}
	return nil, false
}
