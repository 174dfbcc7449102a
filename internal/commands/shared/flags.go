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
package shared

var (
	verboseFlag bool
	jsonFlag    bool
	configFlag  string
	queryFlag   string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to the global flag variables for
// the root command to bind.
func RegisterFlagPointers() (verbose *bool, json *bool, config *string, query *string) {
	return &verboseFlag, &jsonFlag, &configFlag, &queryFlag
}

// SetVersion sets the build information reported by the version command.
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose returns whether verbose logging was requested.
func GetVerbose() bool {
	return verboseFlag
}

// GetJSON returns whether JSON output was requested. A --query implies it.
func GetJSON() bool {
	return jsonFlag || queryFlag != ""
}

// GetConfigPath returns the --config value.
func GetConfigPath() string {
	return configFlag
}

// GetQuery returns the jq filter applied to JSON output.
func GetQuery() string {
	return queryFlag
}

// GetVersion returns version information.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// ResetFlags clears the global flags. Tests call it between command runs.
func ResetFlags() {
	verboseFlag = false
	jsonFlag = false
	configFlag = ""
	queryFlag = ""
}
