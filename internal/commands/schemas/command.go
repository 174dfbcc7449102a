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

// Package schemas implements the commands that manage the payload schema
// registry.
package schemas

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/schemastore"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
)

// ListResponse is the JSON output of schemas list.
type ListResponse struct {
	shared.JSONResponse
	Refs []string `json:"refs"`
}

// PushResponse is the JSON output of schemas push and schemas remove.
type PushResponse struct {
	shared.JSONResponse
	Pushed  int      `json:"pushed,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// NewCommand creates the schemas command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "Manage the payload schema registry",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Payload schemas come from one of three places, picked by the config:
a Redis registry (schemas.redis_url), a directory of JSON files
(schemas.dir) or the schemas section of the registry file.

list works with any source. push and remove need the Redis registry.`,
	}

	cmd.AddCommand(newListCommand(), newPushCommand(), newRemoveCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered schema refs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			env, err := shared.OpenEnv(cmd.ErrOrStderr())
			if err != nil {
				return shared.EnvError(out, "schemas list", err)
			}
			defer env.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), env.Config.Lookup.Timeout)
			defer cancel()
			refs, err := env.Schemas.ListRefs(ctx)
			if err != nil {
				return shared.OperationError(out, "schemas list", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, ListResponse{
					JSONResponse: shared.NewResponse("schemas list", true),
					Refs:         refs,
				})
			}
			if len(refs) == 0 {
				fmt.Fprintln(out, "No schemas registered.")
				return nil
			}
			for _, ref := range refs {
				fmt.Fprintln(out, ref)
			}
			return nil
		},
	}
}

func newPushCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Copy schemas into the Redis registry",
		Long: `Push registers every schema of the registry file, or of --dir, in the Redis
registry. Existing refs are overwritten. Published workflows keep the schema
they captured at publish time.`,
		Example: `  # Example 1: Push the registry file's schemas
  stepflow schemas push

  # Example 2: Push a directory of <ref>.json files
  stepflow schemas push --dir ./payload-schemas`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			env, err := shared.OpenEnv(cmd.ErrOrStderr())
			if err != nil {
				return shared.EnvError(out, "schemas push", err)
			}
			defer env.Close()

			store, err := redisStore(env)
			if err != nil {
				return shared.EnvError(out, "schemas push", err)
			}

			var src catalog.SchemaSource = env.Bundle.SchemaSource()
			if dir != "" {
				if src, err = catalog.LoadSchemaDir(dir); err != nil {
					return shared.OperationError(out, "schemas push", err)
				}
			}

			n, err := store.Import(cmd.Context(), src)
			if err != nil {
				return shared.OperationError(out, "schemas push", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, PushResponse{
					JSONResponse: shared.NewResponse("schemas push", true),
					Pushed:       n,
				})
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("pushed %d schema(s)", n)))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory of <ref>.json schema files to push instead of the registry file")
	return cmd
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <ref>...",
		Short: "Remove schemas from the Redis registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			env, err := shared.OpenEnv(cmd.ErrOrStderr())
			if err != nil {
				return shared.EnvError(out, "schemas remove", err)
			}
			defer env.Close()

			store, err := redisStore(env)
			if err != nil {
				return shared.EnvError(out, "schemas remove", err)
			}
			for _, ref := range args {
				if err := store.Delete(cmd.Context(), ref); err != nil {
					return shared.OperationError(out, "schemas remove", err)
				}
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, PushResponse{
					JSONResponse: shared.NewResponse("schemas remove", true),
					Removed:      args,
				})
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("removed %d schema(s)", len(args))))
			return nil
		},
	}
}

func redisStore(env *shared.Env) (*schemastore.Store, error) {
	store, ok := env.Schemas.(*schemastore.Store)
	if !ok {
		return nil, &errors.ConfigError{
			Key:    "schemas.redis_url",
			Reason: "the Redis schema registry is not configured",
		}
	}
	return store, nil
}
