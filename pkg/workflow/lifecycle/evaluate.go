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

package lifecycle

import (
	"fmt"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
	"github.com/tombee/stepflow/pkg/workflow/contract"
	"github.com/tombee/stepflow/pkg/workflow/expression"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// Inputs is a definition together with the lookups validation depends on.
// Service gathers them; tests and UIs may build them directly.
type Inputs struct {
	Definition *workflow.Definition
	Mode       contract.Mode
	PinnedRef  string

	Catalog   catalog.Lookup[*catalog.EventEntry]
	KnownRefs catalog.Lookup[[]string]

	// PayloadSchema is the schema of the effective payload schema ref.
	PayloadSchema catalog.Lookup[*schema.Schema]

	// EventSchema is the schema of the trigger's source payload schema ref.
	EventSchema catalog.Lookup[*schema.Schema]

	Registry catalog.ActionRegistry
}

func (in Inputs) contractInput() contract.Input {
	return contract.Input{
		Definition: in.Definition,
		Mode:       in.Mode,
		PinnedRef:  in.PinnedRef,
		Catalog:    in.Catalog,
		KnownRefs:  in.KnownRefs,
	}
}

// Result is the outcome of a full validation run.
type Result struct {
	Status   ValidationStatus     `json:"status"`
	Errors   workflow.Diagnostics `json:"errors"`
	Warnings workflow.Diagnostics `json:"warnings"`
	Policy   contract.Policy      `json:"policy"`
}

// CanPublish reports whether the result permits publishing.
func (r Result) CanPublish() bool {
	return !r.Errors.HasErrors() && !r.Policy.Pending()
}

// Diagnostics returns errors followed by warnings.
func (r Result) Diagnostics() workflow.Diagnostics {
	out := make(workflow.Diagnostics, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

// Evaluate runs structural validation, the contract policy and expression
// validation over in. It performs no I/O.
func Evaluate(in Inputs, v *expression.Validator) Result {
	if v == nil {
		v = expression.NewValidator()
	}

	policy := contract.ComputePolicy(in.contractInput())

	var all workflow.Diagnostics
	all = append(all, workflow.ValidateStructure(in.Definition)...)
	all = append(all, policy.Diagnostics()...)

	payload := checkSchema(in.PayloadSchema, workflow.PayloadSchemaPath, "payload schema")
	all = append(all, payload.diags...)
	event := checkSchema(in.EventSchema, workflow.TriggerPath, "trigger event schema")
	all = append(all, event.diags...)
	// A registry outage is reported once even when several lookups failed.
	all = dropDuplicateUnavailable(all)

	all = append(all, v.ValidateDefinition(in.Definition, expression.Env{
		Registry:      in.Registry,
		PayloadSchema: payload.schema,
		EventSchema:   event.schema,
	})...)

	r := Result{
		Errors:   all.Errors(),
		Warnings: all.Warnings(),
		Policy:   policy,
	}
	r.Status = statusOf(r)
	return r
}

// statusOf maps findings to a validation status. Definite errors win over
// unavailability: a workflow that is known to be broken is "error" even if
// some collaborator could not be reached.
func statusOf(r Result) ValidationStatus {
	unavailable := false
	for _, e := range r.Errors {
		if !e.IsUnavailable() {
			return ValidationError
		}
		unavailable = true
	}
	switch {
	case unavailable, r.Policy.Pending():
		return ValidationUnknown
	case len(r.Warnings) > 0:
		return ValidationWarning
	}
	return ValidationValid
}

type checkedSchema struct {
	schema *schema.Schema
	diags  workflow.Diagnostics
}

// checkSchema turns a schema lookup into a usable schema or findings.
// Malformed schemas are structural errors.
func checkSchema(l catalog.Lookup[*schema.Schema], path, what string) checkedSchema {
	switch {
	case l.IsError():
		return checkedSchema{diags: workflow.Diagnostics{{
			Severity: workflow.SeverityError,
			Code:     workflow.CodeUnavailableSchemas,
			Message:  fmt.Sprintf("Schema registry is unavailable: %v", l.Err),
			StepPath: path,
		}}}
	case !l.IsLoaded() || l.Value == nil:
		return checkedSchema{}
	}
	if _, err := schema.ExtractFields(l.Value, nil); err != nil {
		return checkedSchema{diags: workflow.Diagnostics{{
			Severity: workflow.SeverityError,
			Code:     workflow.CodeSchemaMalformed,
			Message:  fmt.Sprintf("%s is malformed: %v", what, err),
			StepPath: path,
		}}}
	}
	return checkedSchema{schema: l.Value}
}

// dropDuplicateUnavailable keeps the first unavailability finding per code.
func dropDuplicateUnavailable(d workflow.Diagnostics) workflow.Diagnostics {
	seen := make(map[string]bool)
	out := d[:0:0]
	for _, e := range d {
		if e.IsUnavailable() {
			if seen[e.Code] {
				continue
			}
			seen[e.Code] = true
		}
		out = append(out, e)
	}
	return out
}
