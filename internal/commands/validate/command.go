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

package validate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/contract"
	"github.com/tombee/stepflow/pkg/workflow/lifecycle"
)

// Response is the JSON output of the validate command.
type Response struct {
	shared.JSONResponse
	Workflow WorkflowInfo               `json:"workflow"`
	Status   lifecycle.ValidationStatus `json:"status"`
	Policy   contract.Policy            `json:"policy"`
	Errors   []shared.JSONError         `json:"errors"`
	Warnings []shared.JSONError         `json:"warnings"`
}

// WorkflowInfo summarizes the validated definition.
type WorkflowInfo struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	Steps            int    `json:"steps"`
	PayloadSchemaRef string `json:"payload_schema_ref,omitempty"`
	Trigger          string `json:"trigger,omitempty"`
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	var (
		mode      string
		pinnedRef string
	)

	cmd := &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Validate a workflow definition",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Validate checks a workflow definition file without storing it.

The document is checked against the definition schema, then the step tree
structure, the payload contract and trigger reconciliation, and every
expression are validated against the configured action registry, event
catalog and payload schema registry.

Exit codes:
  0  valid (warnings may be reported)
  1  a collaborator was unavailable, so validity is unknown
  2  the definition has validation errors

See also: stepflow publish, stepflow context`,
		Example: `  # Example 1: Basic validation
  stepflow validate workflow.yaml

  # Example 2: Use the trigger event's payload schema
  stepflow validate workflow.yaml --mode inferred

  # Example 3: List only the error codes
  stepflow validate workflow.yaml --query '[.errors[].code]'`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], mode, pinnedRef)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Payload schema mode: pinned (default) or inferred")
	cmd.Flags().StringVar(&pinnedRef, "pinned-ref", "", "Payload schema ref to pin instead of the definition's own")
	_ = cmd.RegisterFlagCompletionFunc("mode", completion.CompleteModes)

	return cmd
}

func runValidate(cmd *cobra.Command, path, modeFlag, pinnedRef string) error {
	out := cmd.OutOrStdout()

	m, err := shared.ParseMode(modeFlag)
	if err != nil {
		return shared.NewFailedError("", err)
	}

	def, err := shared.LoadDefinition(path)
	if err != nil {
		return shared.DefinitionLoadError(out, "validate", err)
	}

	env, err := shared.OpenEnv(cmd.ErrOrStderr())
	if err != nil {
		return shared.EnvError(out, "validate", err)
	}
	defer env.Close()

	res := env.Service.Validate(cmd.Context(), def, m, pinnedRef)

	if shared.GetJSON() {
		if err := shared.EmitJSON(out, Response{
			JSONResponse: shared.NewResponse("validate", res.Status != lifecycle.ValidationError && res.Status != lifecycle.ValidationUnknown),
			Workflow:     describe(def),
			Status:       res.Status,
			Policy:       res.Policy,
			Errors:       shared.DiagnosticErrors(res.Errors),
			Warnings:     shared.DiagnosticErrors(res.Warnings),
		}); err != nil {
			return err
		}
		return exitFor(res.Status, true)
	}

	shared.PrintDiagnostics(out, res.Diagnostics())
	switch res.Status {
	case lifecycle.ValidationValid:
		fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s is valid", path)))
	case lifecycle.ValidationWarning:
		fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("%s is valid with %d warning(s)", path, len(res.Warnings))))
	case lifecycle.ValidationUnknown:
		fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("%s could not be fully validated", path)))
	default:
		fmt.Fprintln(out, shared.RenderError(fmt.Sprintf("%s has %d error(s)", path, len(res.Errors.Errors()))))
	}
	return exitFor(res.Status, false)
}

func exitFor(status lifecycle.ValidationStatus, quiet bool) error {
	switch status {
	case lifecycle.ValidationError:
		return shared.Silent(shared.ExitInvalidWorkflow)
	case lifecycle.ValidationUnknown:
		if quiet {
			return shared.Silent(shared.ExitFailed)
		}
		return shared.NewFailedError("validation incomplete: a collaborator is unavailable", nil)
	}
	return nil
}

func describe(def *workflow.Definition) WorkflowInfo {
	info := WorkflowInfo{
		ID:               def.ID,
		Name:             def.Name,
		Steps:            len(workflow.CollectStepIDs(def.Steps)),
		PayloadSchemaRef: def.PayloadSchemaRef,
	}
	if def.Trigger != nil {
		info.Trigger = def.Trigger.EventName
	}
	return info
}
