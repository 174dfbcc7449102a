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

package expression

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/stepflow/pkg/errors"
)

// Checker compiles wrapped expression bodies with expr-lang/expr. It caches
// compiled programs, so one Checker should be shared across validations.
type Checker struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewChecker creates a new expression checker.
func NewChecker() *Checker {
	return &Checker{
		cache: make(map[string]*vm.Program),
	}
}

// CheckSyntax compiles an expression body. ${path} placeholders are accepted
// as grouped sub-expressions. An empty expression is valid.
func (c *Checker) CheckSyntax(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return nil
	}
	if _, err := c.compile(expression); err != nil {
		return &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("failed to compile expression: %s", firstLine(err.Error())),
			Suggestion: "check expression syntax; placeholders use ${path}",
		}
	}
	return nil
}

// Evaluate runs an expression against sample data, for previews. data is
// keyed by root namespace, e.g. {"vars": {...}, "payload": {...}}.
func (c *Checker) Evaluate(expression string, data map[string]any) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	program, err := c.compile(expression)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "expression",
			Message: fmt.Sprintf("failed to compile expression: %s", firstLine(err.Error())),
		}
	}

	env := make(map[string]any, len(data)+len(functions))
	for k, v := range data {
		env[k] = v
	}
	for k, fn := range functions {
		env[k] = fn
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("expression evaluation failed: %s", err.Error()),
			Suggestion: "verify that the sample data contains every referenced path",
		}
	}
	return result, nil
}

// compile compiles an expression and caches the result.
func (c *Checker) compile(expression string) (*vm.Program, error) {
	c.mu.RLock()
	if prog, ok := c.cache[expression]; ok {
		c.mu.RUnlock()
		return prog, nil
	}
	c.mu.RUnlock()

	env := make(map[string]any, len(functions))
	for k, fn := range functions {
		env[k] = fn
	}

	prog, err := expr.Compile(rewritePlaceholders(expression),
		expr.Env(env),
		// Roots are bound by the path validator, not by the compiler.
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[expression] = prog
	c.mu.Unlock()

	return prog, nil
}

// CacheSize returns the number of cached programs.
func (c *Checker) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
