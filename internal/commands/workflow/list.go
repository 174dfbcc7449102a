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

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow/lifecycle"
)

// Summary is one workflow in list output.
type Summary struct {
	ID               string                     `json:"id"`
	Name             string                     `json:"name,omitempty"`
	Status           lifecycle.Status           `json:"status"`
	Validation       lifecycle.ValidationStatus `json:"validation_status"`
	DraftVersion     int                        `json:"draft_version"`
	PublishedVersion int                        `json:"published_version,omitempty"`
	Paused           bool                       `json:"paused"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

// ListResponse is the JSON output of the list command.
type ListResponse struct {
	shared.JSONResponse
	Workflows []Summary `json:"workflows"`
}

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	var (
		status     string
		validation string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored workflows",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `List the workflows in the configured store, ordered by id.

Filter by lifecycle status (draft, publishing, published) or by the status
of the last validation (unknown, valid, warning, error).

See also: stepflow show, stepflow publish`,
		Example: `  # Example 1: List everything
  stepflow list

  # Example 2: Published workflows only
  stepflow list --status published

  # Example 3: Ids of workflows whose draft has errors
  stepflow list --validation error --query '.workflows[].id'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(status, validation, limit, offset)
			if err != nil {
				return shared.OperationError(cmd.OutOrStdout(), "list", err)
			}
			return runList(cmd, q)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status: draft, publishing, published")
	cmd.Flags().StringVar(&validation, "validation", "", "Filter by validation status: unknown, valid, warning, error")
	_ = cmd.RegisterFlagCompletionFunc("status", completion.CompleteStatuses)
	_ = cmd.RegisterFlagCompletionFunc("validation", completion.CompleteValidationStatuses)
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of workflows (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of workflows to skip")

	return cmd
}

func buildQuery(status, validation string, limit, offset int) (*lifecycle.Query, error) {
	q := &lifecycle.Query{Limit: limit, Offset: offset}
	if limit < 0 || offset < 0 {
		return nil, &errors.ValidationError{Field: "limit", Message: "limit and offset must not be negative"}
	}
	if status != "" {
		s := lifecycle.Status(status)
		switch s {
		case lifecycle.StatusDraft, lifecycle.StatusPublishing, lifecycle.StatusPublished:
		default:
			return nil, &errors.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
		}
		q.Status = &s
	}
	if validation != "" {
		v := lifecycle.ValidationStatus(validation)
		switch v {
		case lifecycle.ValidationUnknown, lifecycle.ValidationValid, lifecycle.ValidationWarning, lifecycle.ValidationError:
		default:
			return nil, &errors.ValidationError{Field: "validation", Message: fmt.Sprintf("unknown validation status %q", validation)}
		}
		q.ValidationStatus = &v
	}
	return q, nil
}

func runList(cmd *cobra.Command, q *lifecycle.Query) error {
	out := cmd.OutOrStdout()

	env, err := shared.OpenEnv(cmd.ErrOrStderr())
	if err != nil {
		return shared.EnvError(out, "list", err)
	}
	defer env.Close()

	records, err := env.Service.List(cmd.Context(), q)
	if err != nil {
		return shared.OperationError(out, "list", err)
	}

	summaries := make([]Summary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, summarize(rec))
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, ListResponse{
			JSONResponse: shared.NewResponse("list", true),
			Workflows:    summaries,
		})
	}

	if len(summaries) == 0 {
		fmt.Fprintln(out, "No workflows found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tVALIDATION\tDRAFT\tPUBLISHED\tPAUSED")
	for _, s := range summaries {
		published := "-"
		if s.PublishedVersion > 0 {
			published = fmt.Sprintf("v%d", s.PublishedVersion)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%t\n", s.ID, s.Status, s.Validation, s.DraftVersion, published, s.Paused)
	}
	return w.Flush()
}

func summarize(rec *lifecycle.Record) Summary {
	s := Summary{
		ID:               rec.ID,
		Status:           rec.Status,
		Validation:       rec.ValidationStatus,
		DraftVersion:     rec.DraftVersion,
		PublishedVersion: rec.PublishedVersion,
		Paused:           rec.Paused,
		UpdatedAt:        rec.UpdatedAt,
	}
	if rec.DraftDefinition != nil {
		s.Name = rec.DraftDefinition.Name
	}
	return s
}
