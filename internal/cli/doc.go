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
/*
Package cli provides the root command and global flags for the stepflow CLI.

Individual commands live in the internal/commands subpackages and are
attached to the root in cmd/stepflow.

# Command Tree

	stepflow
	├── validate      Validate a definition against the registry and schemas
	├── publish       Save a definition as a draft and publish it
	├── run           Check a payload and issue a run ticket
	├── list          List stored workflows
	├── show          Show a stored workflow or a published version
	├── pause         Stop a workflow from running
	├── resume        Allow a paused workflow to run again
	├── delete        Delete a workflow
	├── context       Show the data context visible to a step
	├── fields        List the fields of a payload schema
	├── schemas       Manage the payload schema registry (list, push, remove)
	├── schema        Output the definition document schema
	├── completion    Generate shell completion scripts
	├── version       Show version
	└── help          Show help

# Global Flags

	--verbose, -v    Debug logging on stderr
	--json           Output in JSON format
	--query          jq filter applied to JSON output (implies --json)
	--config         Path to config file

# Exit Codes

  - 0: success
  - 1: failure (I/O, configuration, unavailable collaborators, denied runs)
  - 2: the definition has validation errors
*/
package cli
