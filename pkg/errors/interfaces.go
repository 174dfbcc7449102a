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

package errors

// ErrorClassifier defines methods for programmatic error handling.
// Errors that implement this interface can be classified by type
// for retry logic, error reporting, or specific handling paths.
type ErrorClassifier interface {
	error

	// ErrorType returns a string identifying the error category.
	// Examples: "conflict", "timeout", "unavailable"
	ErrorType() string

	// IsRetryable returns true if the operation should be retried.
	IsRetryable() bool
}

var (
	_ ErrorClassifier = (*ConflictError)(nil)
	_ ErrorClassifier = (*UnavailableError)(nil)
	_ ErrorClassifier = (*TimeoutError)(nil)
)

// IsRetryable reports whether any error in err's tree is a retryable
// ErrorClassifier.
func IsRetryable(err error) bool {
	var c ErrorClassifier
	return As(err, &c) && c.IsRetryable()
}

// IsUnavailable reports whether err means a collaborator could not be
// reached, including lookups that timed out.
func IsUnavailable(err error) bool {
	var c ErrorClassifier
	if !As(err, &c) {
		return false
	}
	switch c.ErrorType() {
	case "unavailable", "timeout":
		return true
	}
	return false
}
