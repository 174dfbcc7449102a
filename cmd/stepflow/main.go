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

package main

import (
	"github.com/tombee/stepflow/internal/cli"
	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/inspect"
	"github.com/tombee/stepflow/internal/commands/publish"
	"github.com/tombee/stepflow/internal/commands/run"
	"github.com/tombee/stepflow/internal/commands/schemas"
	"github.com/tombee/stepflow/internal/commands/validate"
	versioncmd "github.com/tombee/stepflow/internal/commands/version"
	"github.com/tombee/stepflow/internal/commands/workflow"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Authoring
	rootCmd.AddCommand(validate.NewCommand())
	rootCmd.AddCommand(publish.NewCommand())
	rootCmd.AddCommand(inspect.NewContextCommand())
	rootCmd.AddCommand(inspect.NewFieldsCommand())
	rootCmd.AddCommand(inspect.NewEvalCommand())
	rootCmd.AddCommand(workflow.NewSchemaCommand())

	// Stored workflows
	rootCmd.AddCommand(workflow.NewListCommand())
	rootCmd.AddCommand(workflow.NewShowCommand())
	rootCmd.AddCommand(workflow.NewDeleteCommand())

	// Execution
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(workflow.NewPauseCommand())
	rootCmd.AddCommand(workflow.NewResumeCommand())

	// Registry
	rootCmd.AddCommand(schemas.NewCommand())

	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Custom help command with JSON support
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
