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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

func TestChecker_CheckSyntax(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"empty", "", false},
		{"placeholder comparison", `${vars.ticket.status} == "open"`, false},
		{"bare path", "vars.ticket.items", false},
		{"functions", `has(${vars.ticket.tags}, "vip") && length(${payload.items}) > 0`, false},
		{"dangling operator", "${vars.a} ==", true},
		{"unbalanced parens", "(vars.a", true},
	}
	c := NewChecker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.CheckSyntax(tt.expr)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *stepflowerrors.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestChecker_Cache(t *testing.T) {
	c := NewChecker()
	require.NoError(t, c.CheckSyntax("vars.a == 1"))
	require.NoError(t, c.CheckSyntax("vars.a == 1"))
	assert.Equal(t, 1, c.CacheSize())
	_ = c.CheckSyntax("vars.a ==")
	assert.Equal(t, 1, c.CacheSize())
}

func TestChecker_Evaluate(t *testing.T) {
	c := NewChecker()
	data := map[string]any{
		"vars": map[string]any{
			"ticket": map[string]any{"status": "open", "tags": []any{"vip", "eu"}},
		},
	}

	got, err := c.Evaluate(`${vars.ticket.status} == "open"`, data)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = c.Evaluate(`has(vars.ticket.tags, "vip") && length(vars.ticket.tags) == 2`, data)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = c.Evaluate("", data)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = c.Evaluate("vars.a ==", data)
	assert.Error(t, err)
}

func TestContainsFunc(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want any
	}{
		{"slice hit", []any{[]any{"a", "b"}, "b"}, true},
		{"slice miss", []any{[]string{"a"}, "z"}, false},
		{"map key", []any{map[string]any{"k": 1}, "k"}, true},
		{"map wrong key type", []any{map[string]any{"k": 1}, 3}, false},
		{"substring", []any{"hello", "ell"}, true},
		{"empty substring", []any{"hello", ""}, false},
		{"nil collection", []any{nil, "x"}, false},
		{"scalar", []any{42, 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := containsFunc(tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := containsFunc("only one")
	assert.Error(t, err)
}

func TestLenFunc(t *testing.T) {
	got, err := lenFunc([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = lenFunc(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = lenFunc(3.5)
	assert.Error(t, err)
}
