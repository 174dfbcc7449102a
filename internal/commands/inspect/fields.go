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
	"context"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// FieldsResponse is the JSON output of the fields command.
type FieldsResponse struct {
	shared.JSONResponse
	Ref    string         `json:"ref"`
	Fields []schema.Field `json:"fields"`
}

// NewFieldsCommand creates the fields command
func NewFieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fields <schema-ref>",
		Short: "List the fields of a registered schema",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Fields resolves a schema from the configured schema source and prints its
fields as a tree. $ref, allOf, oneOf and anyOf are resolved; recursive
types are marked instead of expanded.`,
		Example: `  # Example 1: Fields of a payload schema
  stepflow fields payload.Ticket.v1

  # Example 2: Required top-level field names
  stepflow fields payload.Ticket.v1 --query '[.fields[] | select(.required) | .name]'`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteSchemaRefs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ref := args[0]

			env, err := shared.OpenEnv(cmd.ErrOrStderr())
			if err != nil {
				return shared.EnvError(out, "fields", err)
			}
			defer env.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), env.Config.Lookup.Timeout)
			defer cancel()
			sc, err := env.Schemas.GetSchema(ctx, ref)
			if err != nil {
				return shared.OperationError(out, "fields", err)
			}
			fields, err := schema.ExtractFields(sc, nil)
			if err != nil {
				return shared.OperationError(out, "fields", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, FieldsResponse{
					JSONResponse: shared.NewResponse("fields", true),
					Ref:          ref,
					Fields:       fields,
				})
			}
			printFields(out, "", fields, 0)
			return nil
		},
	}
}
