package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaultValue_Scalars(t *testing.T) {
	tests := []struct {
		name   string
		schema *Schema
		want   any
	}{
		{"string", &Schema{Type: TypeSet{"string"}}, ""},
		{"number", &Schema{Type: TypeSet{"number"}}, 0},
		{"integer", &Schema{Type: TypeSet{"integer"}}, 0},
		{"boolean", &Schema{Type: TypeSet{"boolean"}}, false},
		{"array", &Schema{Type: TypeSet{"array"}}, []any{}},
		{"explicit default", &Schema{Type: TypeSet{"string"}, Default: "hi"}, "hi"},
		{"enum string is empty", &Schema{Type: TypeSet{"string"}, Enum: []any{"low", "high"}}, ""},
		{"nullable string", &Schema{Type: TypeSet{"null", "string"}}, ""},
		{"empty object", &Schema{Type: TypeSet{"object"}}, map[string]any{}},
		{"untyped", &Schema{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildDefaultValue(tt.schema, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDefaultValue_Object(t *testing.T) {
	root := mustParse(t, ticketSchema)

	got, err := BuildDefaultValue(root, nil)
	require.NoError(t, err)

	// Only the required ticket is built; optional assignee and tags are skipped.
	assert.Equal(t, map[string]any{
		"ticket": map[string]any{
			"id":     "",
			"status": "",
		},
	}, got)
}

func TestBuildDefaultValue_OptionalWithDefault(t *testing.T) {
	root := mustParse(t, `{
	  "type": "object",
	  "properties": {
	    "mode": {"type": "string", "enum": ["a", "b"]},
	    "retries": {"type": "integer", "default": 3}
	  }
	}`)

	got, err := BuildDefaultValue(root, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"retries": float64(3)}, got)
}

func TestBuildDefaultValue_RequiredRecursion(t *testing.T) {
	root := mustParse(t, `{
	  "$ref": "#/definitions/Node",
	  "definitions": {
	    "Node": {"type": "object", "required": ["next"], "properties": {"next": {"$ref": "#/definitions/Node"}}}
	  }
	}`)

	_, err := BuildDefaultValue(root, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedSchema)
}

func TestBuildDefaultValue_NullableRecursion(t *testing.T) {
	root := mustParse(t, `{
	  "$ref": "#/definitions/Node",
	  "definitions": {
	    "Node": {"type": "object", "required": ["next"], "properties": {"next": {"anyOf": [{"$ref": "#/definitions/Node"}, {"type": "null"}]}}}
	  }
	}`)

	got, err := BuildDefaultValue(root, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"next": nil}, got)
}
