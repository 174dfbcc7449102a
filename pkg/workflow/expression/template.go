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
	"regexp"
	"strings"
)

var (
	// placeholderPattern matches ${...} occurrences.
	placeholderPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

	// pathPattern is the plain dotted-identifier grammar of a bindable path.
	pathPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)
)

// HasPlaceholders reports whether s contains a ${ placeholder opening.
func HasPlaceholders(s string) bool {
	return strings.Contains(s, "${")
}

// ExtractPaths returns the plain paths referenced by ${...} placeholders in
// document order, without duplicates. Placeholder bodies that contain
// operators, calls or literals are skipped.
//
// Example:
//
//	ExtractPaths("${vars.ticket.id} and ${a > b} and ${payload.name}")
//	// => ["vars.ticket.id", "payload.name"]
func ExtractPaths(s string) []string {
	if s == "" {
		return nil
	}
	var paths []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		body := strings.TrimSpace(m[1])
		if !pathPattern.MatchString(body) || seen[body] {
			continue
		}
		seen[body] = true
		paths = append(paths, body)
	}
	return paths
}

// SplitPath splits a dotted path into segments, dropping empty ones.
func SplitPath(path string) []string {
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// rewritePlaceholders turns "${body}" into "(body)" so that a wrapped
// expression can be compiled as a plain expr-lang program.
func rewritePlaceholders(expression string) string {
	return placeholderPattern.ReplaceAllStringFunc(expression, func(match string) string {
		body := strings.TrimSpace(match[2 : len(match)-1])
		if body == "" {
			return match
		}
		return "(" + body + ")"
	})
}
