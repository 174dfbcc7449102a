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

package expression

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/scope"
)

// MsgNoPayloadSchema is the warning for payload paths with no schema.
const MsgNoPayloadSchema = "No payload schema defined"

// PathValidation is the verdict for one path. A valid path may still carry
// a warning.
type PathValidation struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`

	// Code is the diagnostic code for an error or warning.
	Code string `json:"code,omitempty"`
}

// HasFinding reports whether the verdict carries an error or a warning.
func (v PathValidation) HasFinding() bool {
	return !v.Valid || v.Warning != ""
}

// FieldValidation is a finding attached to a dotted field.
type FieldValidation struct {
	Field      string         `json:"field"`
	Path       string         `json:"path,omitempty"`
	Validation PathValidation `json:"validation"`
}

// ValidatePath checks a dotted path against the data context.
func ValidatePath(path string, ctx *scope.DataContext) PathValidation {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return PathValidation{Error: "Empty path", Code: workflow.CodeUnknownRoot}
	}
	root := segs[0]

	switch root {
	case scope.RootPayload:
		if len(ctx.Payload) == 0 {
			return PathValidation{Valid: true, Warning: MsgNoPayloadSchema, Code: workflow.CodeExpressionWarning}
		}
		return PathValidation{Valid: true}

	case scope.RootVars:
		known := ctx.KnownVars()
		if len(segs) < 2 {
			return PathValidation{
				Error: fmt.Sprintf("Missing variable name after vars. Available variables: %s", listOrNone(known)),
				Code:  workflow.CodeUnknownVariable,
			}
		}
		if _, ok := ctx.Lookup(segs[1]); !ok {
			return PathValidation{
				Error: fmt.Sprintf("Unknown variable: %s. Available variables: %s", segs[1], listOrNone(known)),
				Code:  workflow.CodeUnknownVariable,
			}
		}
		return PathValidation{Valid: true}

	case scope.RootError, scope.RootMeta, scope.RootEnv, scope.RootSecrets:
		return PathValidation{Valid: true}
	}

	if ctx.IsLocalVar(root) {
		return PathValidation{Valid: true}
	}
	return PathValidation{Error: fmt.Sprintf("Unknown root: %s", root), Code: workflow.CodeUnknownRoot}
}

// ValidateString checks every plain path in a template string. Only
// findings are returned.
func ValidateString(field, s string, ctx *scope.DataContext) []FieldValidation {
	var out []FieldValidation
	for _, p := range ExtractPaths(s) {
		if v := ValidatePath(p, ctx); v.HasFinding() {
			out = append(out, FieldValidation{Field: field, Path: p, Validation: v})
		}
	}
	return out
}

// ValidateStepConfig walks a step config and validates the paths of every
// template string and wrapped expression. Nested maps are walked with a
// dotted field prefix; arrays are opaque. Keys are visited in sorted order.
func ValidateStepConfig(config map[string]any, ctx *scope.DataContext) []FieldValidation {
	return validateMap("", config, ctx)
}

func validateMap(prefix string, m map[string]any, ctx *scope.DataContext) []FieldValidation {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []FieldValidation
	for _, k := range keys {
		field := prefix + k
		switch v := m[k].(type) {
		case string:
			if HasPlaceholders(v) {
				out = append(out, ValidateString(field, v, ctx)...)
			}
		case workflow.Expr:
			out = append(out, ValidateString(field, v.Expr, ctx)...)
		case map[string]any:
			if e, ok := workflow.AsExpr(v); ok {
				out = append(out, ValidateString(field, e.Expr, ctx)...)
				continue
			}
			out = append(out, validateMap(field+".", v, ctx)...)
		}
	}
	return out
}

// ValidateExpr validates the paths of a wrapped expression.
func ValidateExpr(field string, e workflow.Expr, ctx *scope.DataContext) []FieldValidation {
	if e.IsEmpty() {
		return nil
	}
	return ValidateString(field, e.Expr, ctx)
}

func listOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
