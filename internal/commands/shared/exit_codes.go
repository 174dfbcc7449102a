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

import (
	"errors"
	"fmt"
	"io"
	"os"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

// Exit codes for CLI commands.
const (
	// ExitSuccess means the command completed and found nothing wrong.
	ExitSuccess = 0
	// ExitFailed covers runtime failures: unreadable files, bad
	// configuration, unavailable collaborators, denied runs.
	ExitFailed = 1
	// ExitInvalidWorkflow means the definition has validation errors.
	ExitInvalidWorkflow = 2
)

// ExitError carries an exit code through cobra's error return.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewFailedError creates an error that exits with ExitFailed.
func NewFailedError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitFailed, Message: msg, Cause: cause}
}

// NewInvalidWorkflowError creates an error that exits with ExitInvalidWorkflow.
func NewInvalidWorkflowError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidWorkflow, Message: msg, Cause: cause}
}

// Silent returns an error that sets the exit code without printing
// anything. Commands use it after they have already reported the problem.
func Silent(code int) *ExitError {
	return &ExitError{Code: code}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// PrintError writes err and any suggestion it carries to w.
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, RenderError(msg))
	}
	if s := suggestion(err); s != "" {
		fmt.Fprintf(w, "\n%s %s\n", Muted.Render("Suggestion:"), s)
	}
}

// HandleExitError prints err to stderr and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

func suggestion(err error) string {
	var ve *stepflowerrors.ValidationError
	if errors.As(err, &ve) {
		return ve.Suggestion
	}
	var ce *stepflowerrors.ConfigError
	if errors.As(err, &ce) {
		return "check the configuration file passed with --config and the STEPFLOW_* environment"
	}
	var ue *stepflowerrors.UnavailableError
	if errors.As(err, &ue) {
		return fmt.Sprintf("%s could not be reached; retry once it is back", ue.Service)
	}
	return ""
}
