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

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
)

// StateResponse is the JSON output of pause, resume and delete.
type StateResponse struct {
	shared.JSONResponse
	WorkflowID string `json:"workflow_id"`
	Paused     bool   `json:"paused"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// NewPauseCommand creates the pause command
func NewPauseCommand() *cobra.Command {
	return newPausedCommand("pause", true,
		"Stop a workflow from running",
		`Pause marks a workflow so that run refuses it, whatever its validation
status. Drafts can still be saved and published while paused.`)
}

// NewResumeCommand creates the resume command
func NewResumeCommand() *cobra.Command {
	return newPausedCommand("resume", false,
		"Allow a paused workflow to run again",
		`Resume clears the pause flag set by stepflow pause.`)
}

func newPausedCommand(name string, paused bool, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <workflow-id>",
		Short: short,
		Long:  long,
		Annotations: map[string]string{
			"group": "execution",
		},
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			env, err := shared.OpenEnv(cmd.ErrOrStderr())
			if err != nil {
				return shared.EnvError(out, name, err)
			}
			defer env.Close()

			rec, err := env.Service.SetPaused(cmd.Context(), args[0], paused)
			if err != nil {
				return shared.OperationError(out, name, err)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, StateResponse{
					JSONResponse: shared.NewResponse(name, true),
					WorkflowID:   rec.ID,
					Paused:       rec.Paused,
				})
			}
			state := "resumed"
			if rec.Paused {
				state = "paused"
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s %s", rec.ID, state)))
			return nil
		},
	}
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <workflow-id>",
		Short: "Delete a workflow and its published versions",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			env, err := shared.OpenEnv(cmd.ErrOrStderr())
			if err != nil {
				return shared.EnvError(out, "delete", err)
			}
			defer env.Close()

			if err := env.Service.Delete(cmd.Context(), args[0]); err != nil {
				return shared.OperationError(out, "delete", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, StateResponse{
					JSONResponse: shared.NewResponse("delete", true),
					WorkflowID:   args[0],
					Deleted:      true,
				})
			}
			fmt.Fprintln(out, shared.RenderOK("deleted "+args[0]))
			return nil
		},
	}
}
