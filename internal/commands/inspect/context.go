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

package inspect

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow/scope"
)

// ContextResponse is the JSON output of the context command.
type ContextResponse struct {
	shared.JSONResponse
	WorkflowID   string             `json:"workflow_id,omitempty"`
	StepID       string             `json:"step_id,omitempty"`
	Context      *scope.DataContext `json:"context"`
	PayloadError string             `json:"payload_error,omitempty"`
}

// NewContextCommand creates the context command
func NewContextCommand() *cobra.Command {
	var (
		step      string
		mode      string
		pinnedRef string
	)

	cmd := &cobra.Command{
		Use:   "context <workflow>",
		Short: "Show the data a step's expressions can reference",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Context prints the data context of one step: payload fields, variables bound
by earlier steps with saveAs, enclosing loop variables, the catch error
binding and the global namespaces.

Steps are visited depth-first in document order and the walk stops at the
requested step, so a step never sees its own saveAs. Without --step the
context after the last step is shown.

See also: stepflow fields, stepflow validate`,
		Example: `  # Example 1: What can the "notify" step use?
  stepflow context workflow.yaml --step notify

  # Example 2: Variable names only
  stepflow context workflow.yaml --step notify --query '[.context.steps[].saveAs]'`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(cmd, args[0], step, mode, pinnedRef)
		},
	}

	cmd.Flags().StringVarP(&step, "step", "s", "", "Step id to inspect")
	cmd.Flags().StringVar(&mode, "mode", "", "Payload schema mode: pinned (default) or inferred")
	cmd.Flags().StringVar(&pinnedRef, "pinned-ref", "", "Payload schema ref to pin instead of the definition's own")
	_ = cmd.RegisterFlagCompletionFunc("step", completion.CompleteStepIDs)
	_ = cmd.RegisterFlagCompletionFunc("mode", completion.CompleteModes)

	return cmd
}

func runContext(cmd *cobra.Command, path, step, modeFlag, pinnedRef string) error {
	out := cmd.OutOrStdout()

	m, err := shared.ParseMode(modeFlag)
	if err != nil {
		return shared.NewFailedError("", err)
	}
	def, err := shared.LoadDefinition(path)
	if err != nil {
		return shared.DefinitionLoadError(out, "context", err)
	}

	env, err := shared.OpenEnv(cmd.ErrOrStderr())
	if err != nil {
		return shared.EnvError(out, "context", err)
	}
	defer env.Close()

	dc, err := env.Service.DataContext(cmd.Context(), def, m, pinnedRef, step)
	if dc == nil {
		return shared.OperationError(out, "context", err)
	}
	// A schema outage still yields the step and global bindings.
	lookupErr := err
	if step != "" && !dc.TargetFound {
		return shared.OperationError(out, "context", &errors.NotFoundError{Resource: "step", ID: step})
	}

	if shared.GetJSON() {
		resp := ContextResponse{
			JSONResponse: shared.NewResponse("context", lookupErr == nil),
			WorkflowID:   def.ID,
			StepID:       step,
			Context:      dc,
		}
		switch {
		case lookupErr != nil:
			resp.PayloadError = lookupErr.Error()
		case dc.PayloadError != nil:
			resp.PayloadError = dc.PayloadError.Error()
		}
		if err := shared.EmitJSON(out, resp); err != nil {
			return err
		}
		if lookupErr != nil {
			return shared.Silent(shared.ExitFailed)
		}
		return nil
	}

	printContext(out, dc)
	if lookupErr != nil {
		return shared.NewFailedError("payload schema unavailable", lookupErr)
	}
	return nil
}

func printContext(w io.Writer, dc *scope.DataContext) {
	section := func(title string) {
		fmt.Fprintln(w, shared.Header.Render(title))
	}

	section("payload")
	switch {
	case dc.PayloadError != nil:
		fmt.Fprintln(w, shared.RenderError(dc.PayloadError.Error()))
	case dc.PayloadSchema == nil:
		fmt.Fprintln(w, shared.RenderInfo("no payload schema"))
	default:
		printFields(w, "payload", dc.Payload, 1)
	}

	section("vars")
	if len(dc.Steps) == 0 {
		fmt.Fprintln(w, shared.RenderInfo("no variables bound yet"))
	}
	for _, s := range dc.Steps {
		label := "from " + s.StepID
		if s.Degraded {
			label += ", output schema unavailable"
		}
		fmt.Fprintf(w, "  vars.%s %s\n", s.SaveAs, shared.RenderLabel("("+label+")"))
		printFields(w, "vars."+s.SaveAs, s.Fields, 2)
	}

	if len(dc.Loops) > 0 {
		section("loops")
		for _, l := range dc.Loops {
			item := l.ItemType
			if item == "" {
				item = "any"
			}
			fmt.Fprintf(w, "  %s %s\n", l.ItemVar, shared.RenderLabel(fmt.Sprintf("(%s, item of %s)", item, l.StepID)))
			printFields(w, l.ItemVar, l.ItemFields, 2)
			fmt.Fprintf(w, "  %s %s\n", l.IndexVar, shared.RenderLabel("(integer)"))
		}
	}

	if dc.InCatchBlock {
		section("catch")
		printFields(w, "error", dc.Globals.Error, 1)
		if dc.CaptureErrorAs != "" {
			printFields(w, dc.CaptureErrorAs, dc.Globals.Error, 1)
		}
	}

	section("globals")
	printFields(w, "meta", dc.Globals.Meta, 1)
	printFields(w, "env", dc.Globals.Env, 1)
	printFields(w, "secrets", dc.Globals.Secrets, 1)
}
