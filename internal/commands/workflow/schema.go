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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// SchemaPath is where --write puts the definition schema.
var SchemaPath = filepath.Join("schemas", "definition.schema.json")

// NewSchemaCommand creates the schema command
func NewSchemaCommand() *cobra.Command {
	var (
		outputFormat string
		writeToFile  bool
		force        bool
	)

	cmd := &cobra.Command{
		Use: "schema",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Short: "Output the workflow definition JSON Schema",
		Long: `Output the embedded JSON Schema for Stepflow workflow definitions.

Every document passed to validate or publish is checked against this schema
before it is parsed. Editors can use it for completion and inline checks.

Use --write to save the schema to ./schemas/definition.schema.json.

See also: stepflow validate, stepflow fields`,
		Example: `  # Example 1: Output schema to stdout
  stepflow schema

  # Example 2: Save schema to file for IDE integration
  stepflow schema --write

  # Example 3: Output schema in YAML format
  stepflow schema --output yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := schema.GetEmbeddedSchema()

			if writeToFile {
				return writeSchema(cmd, raw, force)
			}

			var doc any
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("failed to parse embedded schema: %w", err)
			}

			var (
				output []byte
				err    error
			)
			switch outputFormat {
			case "json":
				output, err = json.MarshalIndent(doc, "", "  ")
			case "yaml":
				output, err = yaml.Marshal(doc)
			default:
				return &shared.ExitError{
					Code:    shared.ExitFailed,
					Message: fmt.Sprintf("invalid output format: %s (must be 'json' or 'yaml')", outputFormat),
				}
			}
			if err != nil {
				return fmt.Errorf("failed to encode schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json (default), yaml")
	cmd.Flags().BoolVarP(&writeToFile, "write", "w", false, "Write to ./schemas/definition.schema.json")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing file (only with --write)")

	return cmd
}

// writeSchema always writes JSON, whatever --output says.
func writeSchema(cmd *cobra.Command, raw []byte, force bool) error {
	if _, err := os.Stat(SchemaPath); err == nil && !force {
		return shared.NewFailedError(fmt.Sprintf("file already exists: %s (use --force to overwrite)", SchemaPath), nil)
	}
	if err := os.MkdirAll(filepath.Dir(SchemaPath), 0o755); err != nil {
		return shared.NewFailedError("failed to create directory", err)
	}
	if err := os.WriteFile(SchemaPath, raw, 0o644); err != nil {
		return shared.NewFailedError(fmt.Sprintf("failed to write %s", SchemaPath), err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Schema written to "+SchemaPath))
	return nil
}
