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

package workflow

import "fmt"

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes. The prefix names the validation stage that produced it.
const (
	CodeDuplicateID        = "STRUCTURE_DUPLICATE_ID"
	CodeMissingID          = "STRUCTURE_MISSING_ID"
	CodeNilStep            = "STRUCTURE_NIL_STEP"
	CodeNilBranch          = "STRUCTURE_NIL_BRANCH"
	CodeInvalidStep        = "STRUCTURE_INVALID_STEP"
	CodeInvalidTrigger     = "STRUCTURE_INVALID_TRIGGER"
	CodeSchemaMalformed    = "STRUCTURE_SCHEMA_MALFORMED"
	CodeUnreachable        = "STRUCTURE_UNREACHABLE_STEP"
	CodeDuplicateSaveAs    = "STRUCTURE_DUPLICATE_SAVE_AS"
	CodeTriggerSchema      = "CONTRACT_TRIGGER_SCHEMA"
	CodePayloadSchema      = "CONTRACT_PAYLOAD_SCHEMA"
	CodeMappingRequired    = "CONTRACT_MAPPING_REQUIRED"
	CodeUnknownRoot        = "EXPRESSION_UNKNOWN_ROOT"
	CodeUnknownVariable    = "EXPRESSION_UNKNOWN_VARIABLE"
	CodeExpressionWarning  = "EXPRESSION_WARNING"
	CodeExpressionSyntax   = "EXPRESSION_SYNTAX"
	CodeUnavailableCatalog = "UNAVAILABLE_EVENT_CATALOG"
	CodeUnavailableSchemas = "UNAVAILABLE_SCHEMA_REGISTRY"
)

// PublishError is one validation finding. StepPath is a structural address
// such as "root.steps[2].then.steps[0]" or "root.trigger.payloadMapping".
type PublishError struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Code     string   `json:"code" yaml:"code"`
	Message  string   `json:"message" yaml:"message"`
	StepPath string   `json:"stepPath" yaml:"stepPath"`
	StepID   string   `json:"stepId,omitempty" yaml:"stepId,omitempty"`

	// Field is the dotted config field for expression findings.
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
}

func (e PublishError) String() string {
	loc := e.StepPath
	if e.Field != "" {
		loc += " " + e.Field
	}
	return fmt.Sprintf("%s %s at %s: %s", e.Severity, e.Code, loc, e.Message)
}

// IsUnavailable reports whether the finding means "cannot currently verify"
// rather than "invalid".
func (e PublishError) IsUnavailable() bool {
	return e.Code == CodeUnavailableCatalog || e.Code == CodeUnavailableSchemas
}

// Diagnostics is an ordered list of findings.
type Diagnostics []PublishError

// HasErrors reports whether any finding has error severity.
func (d Diagnostics) HasErrors() bool {
	for _, e := range d {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error-severity findings.
func (d Diagnostics) Errors() Diagnostics {
	return d.filter(SeverityError)
}

// Warnings returns the warning-severity findings.
func (d Diagnostics) Warnings() Diagnostics {
	return d.filter(SeverityWarning)
}

func (d Diagnostics) filter(sev Severity) Diagnostics {
	out := Diagnostics{}
	for _, e := range d {
		if e.Severity == sev {
			out = append(out, e)
		}
	}
	return out
}

// diag builds an error-severity finding.
func diag(code, path, stepID, format string, args ...any) PublishError {
	return PublishError{
		Severity: SeverityError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		StepPath: path,
		StepID:   stepID,
	}
}

func warn(code, path, stepID, format string, args ...any) PublishError {
	e := diag(code, path, stepID, format, args...)
	e.Severity = SeverityWarning
	return e
}
