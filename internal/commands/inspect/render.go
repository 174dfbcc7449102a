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

// Package inspect holds the commands that show authors what data their
// expressions can reach: the data context of a step and the fields of a
// registered schema.
package inspect

import (
	"fmt"
	"io"
	"strings"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// printFields writes fields as an indented tree, one per line, with the
// path an expression would use.
func printFields(w io.Writer, prefix string, fields []schema.Field, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range fields {
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		fmt.Fprintf(w, "%s%s %s\n", indent, path, shared.RenderLabel(describeField(f)))
		if f.Recursive {
			continue
		}
		printFields(w, path, f.Children, depth+1)
	}
}

func describeField(f schema.Field) string {
	var parts []string
	typ := f.Type
	if typ == "" {
		typ = "any"
	}
	if f.ItemType != "" {
		typ += "<" + f.ItemType + ">"
	}
	parts = append(parts, typ)
	if f.Required {
		parts = append(parts, "required")
	}
	if f.Nullable {
		parts = append(parts, "nullable")
	}
	if f.Recursive {
		parts = append(parts, "recursive")
	}
	if c := f.Constraints; c != nil && len(c.Enum) > 0 {
		vals := make([]string, 0, len(c.Enum))
		for _, v := range c.Enum {
			vals = append(vals, fmt.Sprint(v))
		}
		parts = append(parts, "one of "+strings.Join(vals, "|"))
	}
	s := "(" + strings.Join(parts, ", ") + ")"
	if f.Description != "" {
		s += " " + f.Description
	}
	return s
}
