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

package run

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/workflow/lifecycle"
)

// Response is the JSON output of the run command.
type Response struct {
	shared.JSONResponse
	Ticket *lifecycle.RunTicket `json:"ticket"`
}

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		inputs    []string
		inputFile string
		draft     bool
	)

	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Request a run of a stored workflow",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Run checks that a stored workflow may start and that the payload satisfies
its payload schema, then prints the accepted run ticket.

By default the latest published version runs and the payload is checked
against the schema captured when that version was published. With --draft
the current draft runs instead, checked against the live schema. A workflow
whose last validation found errors does not run, whichever target is chosen,
and neither does a paused one.

The payload is built from --input-file (JSON or YAML, "-" for stdin) with
--input key=value pairs applied on top. Values that parse as JSON keep their
type.

See also: stepflow publish, stepflow pause`,
		Example: `  # Example 1: Run the published version
  stepflow run triage --input id=T-1

  # Example 2: Run the draft with a payload file
  stepflow run triage --draft --input-file payload.json

  # Example 3: Pipe the payload and print the run id
  cat payload.json | stepflow run triage --input-file - --query .ticket.id`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := lifecycle.RunPublished
			if draft {
				target = lifecycle.RunDraft
			}
			return runWorkflow(cmd, args[0], target, inputs, inputFile)
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "Payload field as key=value (repeatable)")
	cmd.Flags().StringVarP(&inputFile, "input-file", "f", "", "Payload file (JSON or YAML, - for stdin)")
	cmd.Flags().BoolVar(&draft, "draft", false, "Run the current draft instead of the published version")

	return cmd
}

func runWorkflow(cmd *cobra.Command, id string, target lifecycle.RunTarget, inputs []string, inputFile string) error {
	out := cmd.OutOrStdout()

	payload, err := parsePayload(inputs, inputFile, cmd.InOrStdin())
	if err != nil {
		if shared.GetJSON() {
			return shared.FailureJSON(out, "run", shared.ErrorCodeInvalidInput, err, shared.ExitFailed)
		}
		return shared.NewFailedError("", err)
	}

	env, err := shared.OpenEnv(cmd.ErrOrStderr())
	if err != nil {
		return shared.EnvError(out, "run", err)
	}
	defer env.Close()

	ticket, err := env.Service.Run(cmd.Context(), id, lifecycle.RunRequest{Target: target, Payload: payload})
	if err != nil {
		return shared.OperationError(out, "run", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, Response{
			JSONResponse: shared.NewResponse("run", true),
			Ticket:       ticket,
		})
	}

	what := "draft"
	if ticket.Target == lifecycle.RunPublished {
		what = fmt.Sprintf("version %d", ticket.Version)
	}
	fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("run %s accepted for %s (%s)", ticket.ID, id, what)))
	if ticket.PayloadSchemaRef != "" {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Payload schema:"), ticket.PayloadSchemaRef)
	}
	return nil
}
