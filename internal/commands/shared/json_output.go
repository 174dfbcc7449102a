package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tombee/stepflow/internal/jq"
	"github.com/tombee/stepflow/pkg/workflow"
)

// JSONResponse is embedded in every command's JSON output.
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// NewResponse creates the common response header.
func NewResponse(command string, success bool) JSONResponse {
	return JSONResponse{Version: "1.0", Command: command, Success: success}
}

// JSONError is one error in JSON output. Validation findings carry their
// diagnostic code and structural path.
type JSONError struct {
	Code     string `json:"code"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`
	StepPath string `json:"step_path,omitempty"`
	StepID   string `json:"step_id,omitempty"`
	Field    string `json:"field,omitempty"`
}

// Error codes for failures that are not validation findings.
const (
	ErrorCodeFileNotFound = "FILE_NOT_FOUND"
	ErrorCodeInvalidYAML  = "INVALID_DOCUMENT"
	ErrorCodeConfig       = "CONFIG"
	ErrorCodeNotFound     = "NOT_FOUND"
	ErrorCodeUnavailable  = "UNAVAILABLE"
	ErrorCodeRunDenied    = "RUN_DENIED"
	ErrorCodeInvalidInput = "INVALID_INPUT"
	ErrorCodeConflict     = "CONFLICT"
	ErrorCodeInternal     = "INTERNAL"
)

var queryExecutor = jq.NewExecutor(jq.DefaultTimeout, jq.DefaultMaxInputSize)

// EmitJSON writes v as indented JSON. When --query is set the jq filter is
// applied first and its result is written instead.
func EmitJSON(w io.Writer, v any) error {
	if q := GetQuery(); q != "" {
		out, err := queryExecutor.Execute(context.Background(), q, v)
		if err != nil {
			return NewFailedError("--query failed", err)
		}
		v = out
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// EmitJSONError writes a failed response carrying errs.
func EmitJSONError(w io.Writer, command string, errs []JSONError) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}
	return EmitJSON(w, errorResponse{JSONResponse: NewResponse(command, false), Errors: errs})
}

// DiagnosticErrors converts validation findings for JSON output.
func DiagnosticErrors(d workflow.Diagnostics) []JSONError {
	out := make([]JSONError, 0, len(d))
	for _, e := range d {
		out = append(out, JSONError{
			Code:     e.Code,
			Severity: string(e.Severity),
			Message:  e.Message,
			StepPath: e.StepPath,
			StepID:   e.StepID,
			Field:    e.Field,
		})
	}
	return out
}

// FailureJSON writes err as a single-error response and returns an error
// that exits with code without printing again.
func FailureJSON(w io.Writer, command, code string, err error, exitCode int) error {
	if emitErr := EmitJSONError(w, command, []JSONError{{Code: code, Message: err.Error()}}); emitErr != nil {
		return fmt.Errorf("%w (while reporting: %v)", emitErr, err)
	}
	return Silent(exitCode)
}
