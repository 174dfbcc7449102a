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

package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/contract"
	"github.com/tombee/stepflow/pkg/workflow/lifecycle"
)

// Response is the JSON output of the publish command.
type Response struct {
	shared.JSONResponse
	WorkflowID       string                     `json:"workflow_id"`
	DraftVersion     int                        `json:"draft_version"`
	PublishedVersion int                        `json:"published_version,omitempty"`
	Status           lifecycle.Status           `json:"status"`
	Validation       lifecycle.ValidationStatus `json:"validation_status"`
	PayloadSchemaRef string                     `json:"payload_schema_ref,omitempty"`
	Errors           []shared.JSONError         `json:"errors"`
	Warnings         []shared.JSONError         `json:"warnings"`
}

// NewCommand creates the publish command
func NewCommand() *cobra.Command {
	var (
		mode        string
		pinnedRef   string
		expectDraft int
	)

	cmd := &cobra.Command{
		Use:   "publish <workflow>",
		Short: "Save a definition as a draft and publish it",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Publish stores the definition as the workflow's draft and then publishes it.

A workflow whose id is already stored gets a new draft version; otherwise a
new workflow is created (with a generated id when the document has none).
Publishing validates the draft. On success an immutable published version is
recorded together with a snapshot of its payload schema. A rejected publish
keeps the draft, records the findings and leaves earlier published versions
in place.

Pass --expect-draft with the draft version an edit was based on to refuse
the publish when someone else saved a newer draft in the meantime.

Use a sqlite store in the config to keep workflows between invocations.

See also: stepflow validate, stepflow run, stepflow list`,
		Example: `  # Example 1: Publish a definition
  stepflow publish workflow.yaml

  # Example 2: Publish a triggered workflow using the event's payload schema
  stepflow publish workflow.yaml --mode inferred

  # Example 3: Print only the new version number
  stepflow publish workflow.yaml --query .published_version`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, args[0], mode, pinnedRef, expectDraft)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Payload schema mode: pinned (default) or inferred")
	cmd.Flags().StringVar(&pinnedRef, "pinned-ref", "", "Payload schema ref to pin instead of the definition's own")
	cmd.Flags().IntVar(&expectDraft, "expect-draft", 0, "Fail with CONFLICT unless the stored draft has this version")
	_ = cmd.RegisterFlagCompletionFunc("mode", completion.CompleteModes)

	return cmd
}

func runPublish(cmd *cobra.Command, path, modeFlag, pinnedRef string, expectDraft int) error {
	out := cmd.OutOrStdout()

	m, err := shared.ParseMode(modeFlag)
	if err != nil {
		return shared.NewFailedError("", err)
	}

	def, err := shared.LoadDefinition(path)
	if err != nil {
		return shared.DefinitionLoadError(out, "publish", err)
	}

	env, err := shared.OpenEnv(cmd.ErrOrStderr())
	if err != nil {
		return shared.EnvError(out, "publish", err)
	}
	defer env.Close()

	ctx := cmd.Context()
	rec, err := saveDraft(ctx, env.Service, def, m, pinnedRef, expectDraft)
	if err != nil {
		return shared.OperationError(out, "publish", err)
	}

	outcome, err := env.Service.Publish(ctx, rec.ID)
	if err != nil {
		return shared.OperationError(out, "publish", err)
	}
	rec = outcome.Record

	if shared.GetJSON() {
		resp := Response{
			JSONResponse:     shared.NewResponse("publish", outcome.OK()),
			WorkflowID:       rec.ID,
			DraftVersion:     rec.DraftVersion,
			Status:           rec.Status,
			Validation:       outcome.Result.Status,
			PayloadSchemaRef: outcome.Result.Policy.EffectivePayloadSchemaRef,
			Errors:           shared.DiagnosticErrors(outcome.Result.Errors),
			Warnings:         shared.DiagnosticErrors(outcome.Result.Warnings),
		}
		if outcome.Published != nil {
			resp.PublishedVersion = outcome.Published.Version
		}
		if err := shared.EmitJSON(out, resp); err != nil {
			return err
		}
		return exitFor(outcome)
	}

	shared.PrintDiagnostics(out, outcome.Result.Diagnostics())
	if outcome.OK() {
		fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("published %s version %d (draft %d)",
			rec.ID, outcome.Published.Version, outcome.Published.DraftVersion)))
		return nil
	}
	msg := fmt.Sprintf("publish of %s rejected; draft %d kept", rec.ID, rec.DraftVersion)
	if rec.IsPublished() {
		msg += fmt.Sprintf(", version %d stays live", rec.PublishedVersion)
	}
	fmt.Fprintln(out, shared.RenderError(msg))
	return exitFor(outcome)
}

// saveDraft creates the workflow or replaces the draft of an existing one.
// A non-zero expectDraft must match the stored draft version.
func saveDraft(ctx context.Context, svc *lifecycle.Service, def *workflow.Definition, m contract.Mode, pinnedRef string, expectDraft int) (*lifecycle.Record, error) {
	if def.ID != "" {
		_, err := svc.Get(ctx, def.ID)
		var nf *stepflowerrors.NotFoundError
		switch {
		case err == nil:
			return svc.SaveDraft(ctx, def.ID, lifecycle.DraftUpdate{
				Definition:             def,
				ExpectedVersion:        expectDraft,
				PayloadSchemaMode:      m,
				PinnedPayloadSchemaRef: &pinnedRef,
			})
		case !errors.As(err, &nf):
			return nil, err
		}
	}
	return svc.Create(ctx, lifecycle.CreateRequest{
		Definition:             def,
		PayloadSchemaMode:      m,
		PinnedPayloadSchemaRef: pinnedRef,
	})
}

func exitFor(outcome *lifecycle.PublishOutcome) error {
	switch {
	case outcome.OK():
		return nil
	case outcome.Result.Status == lifecycle.ValidationUnknown:
		return shared.Silent(shared.ExitFailed)
	default:
		return shared.Silent(shared.ExitInvalidWorkflow)
	}
}
