package workflow

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/workflow/lifecycle"
)

// ShowResponse is the JSON output of show. Exactly one of Record and
// Published is set.
type ShowResponse struct {
	shared.JSONResponse
	Record    *lifecycle.Record           `json:"record,omitempty"`
	Published *lifecycle.PublishedVersion `json:"published,omitempty"`
}

// NewShowCommand creates the show command
func NewShowCommand() *cobra.Command {
	var (
		published bool
		version   int
	)

	cmd := &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show a stored workflow or one of its published versions",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Show prints the stored record of a workflow: its draft, the last validation
result and the publish pointer.

With --published the latest published version is shown instead, including
the payload schema captured at publish time. --version selects an older
published version.`,
		Example: `  # Example 1: Show the record
  stepflow show triage

  # Example 2: Show published version 2 as JSON
  stepflow show triage --version 2 --json`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if version > 0 {
				published = true
			}
			return runShow(cmd, args[0], published, version)
		},
	}

	cmd.Flags().BoolVar(&published, "published", false, "Show the latest published version")
	cmd.Flags().IntVar(&version, "version", 0, "Show this published version (implies --published)")

	return cmd
}

func runShow(cmd *cobra.Command, id string, published bool, version int) error {
	out := cmd.OutOrStdout()

	env, err := shared.OpenEnv(cmd.ErrOrStderr())
	if err != nil {
		return shared.EnvError(out, "show", err)
	}
	defer env.Close()

	ctx := cmd.Context()
	resp := ShowResponse{JSONResponse: shared.NewResponse("show", true)}
	if published {
		resp.Published, err = env.Service.PublishedVersion(ctx, id, version)
	} else {
		resp.Record, err = env.Service.Get(ctx, id)
	}
	if err != nil {
		return shared.OperationError(out, "show", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, resp)
	}
	if resp.Published != nil {
		printPublished(out, resp.Published)
		return nil
	}
	printRecord(out, resp.Record)
	return nil
}

func printRecord(w io.Writer, rec *lifecycle.Record) {
	field := func(label string, v any) {
		fmt.Fprintf(w, "%s %v\n", shared.RenderLabel(fmt.Sprintf("%-18s", label)), v)
	}
	field("Workflow:", rec.ID)
	if rec.DraftDefinition != nil && rec.DraftDefinition.Name != "" {
		field("Name:", rec.DraftDefinition.Name)
	}
	field("Status:", rec.Status)
	field("Draft version:", rec.DraftVersion)
	if rec.IsPublished() {
		field("Published version:", rec.PublishedVersion)
	}
	field("Payload mode:", rec.PayloadSchemaMode)
	if rec.PinnedPayloadSchemaRef != "" {
		field("Pinned ref:", rec.PinnedPayloadSchemaRef)
	}
	field("Paused:", rec.Paused)
	field("Validation:", rec.ValidationStatus)
	if rec.ValidatedAt != nil {
		field("Validated at:", rec.ValidatedAt.Format("2006-01-02 15:04:05"))
	}
	if v := rec.Validation(); len(v.Errors)+len(v.Warnings) > 0 {
		fmt.Fprintln(w)
		shared.PrintDiagnostics(w, append(v.Errors, v.Warnings...))
	}
}

func printPublished(w io.Writer, pv *lifecycle.PublishedVersion) {
	field := func(label string, v any) {
		fmt.Fprintf(w, "%s %v\n", shared.RenderLabel(fmt.Sprintf("%-16s", label)), v)
	}
	field("Workflow:", pv.WorkflowID)
	field("Version:", pv.Version)
	field("From draft:", pv.DraftVersion)
	field("Published at:", pv.PublishedAt.Format("2006-01-02 15:04:05"))
	if pv.PayloadSchemaRef != "" {
		field("Payload schema:", pv.PayloadSchemaRef)
	}
	if pv.Definition != nil {
		field("Steps:", len(pv.Definition.Steps))
	}
	if len(pv.Warnings) > 0 {
		fmt.Fprintln(w)
		shared.PrintDiagnostics(w, pv.Warnings)
	}
}
