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

package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedSchema is matched by every error that means a schema exists
// but cannot be interpreted. A nil schema with no error means "absent".
var ErrMalformedSchema = errors.New("malformed schema")

// CyclicReferenceError is returned when a $ref chain revisits itself.
type CyclicReferenceError struct {
	// Chain lists the refs in visiting order, ending with the repeated ref.
	Chain []string
}

func (e *CyclicReferenceError) Error() string {
	return fmt.Sprintf("cyclic schema reference: %s", strings.Join(e.Chain, " -> "))
}

// Is implements error equality checking for errors.Is().
func (e *CyclicReferenceError) Is(target error) bool {
	return target == ErrMalformedSchema
}

// UnresolvedReferenceError is returned when a $ref names a definition that
// does not exist in the root schema.
type UnresolvedReferenceError struct {
	Ref string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved schema reference %q", e.Ref)
}

// Is implements error equality checking for errors.Is().
func (e *UnresolvedReferenceError) Is(target error) bool {
	return target == ErrMalformedSchema
}

// ValidationError represents a schema validation failure with detailed context.
type ValidationError struct {
	// Path is the JSON path to the failing field (e.g., "$.category", "$.items[0].name")
	Path string

	// Keyword is the schema keyword that failed (type, required, enum, etc.)
	Keyword string

	// Message is the human-readable error message
	Message string
}

// NewValidationError creates a new validation error.
func NewValidationError(path, keyword, message string) *ValidationError {
	return &ValidationError{
		Path:    path,
		Keyword: keyword,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at %s (%s): %s", e.Path, e.Keyword, e.Message)
}

// Is implements error equality checking for errors.Is().
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return e.Path == t.Path && e.Keyword == t.Keyword
}

// ValidationErrors collects every failure reported for one instance.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e), strings.Join(msgs, "; "))
}
