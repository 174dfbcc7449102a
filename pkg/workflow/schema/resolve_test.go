package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, doc string) *Schema {
	t.Helper()
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	return s
}

const ticketSchema = `{
  "type": "object",
  "required": ["ticket"],
  "properties": {
    "ticket": {"$ref": "#/definitions/Ticket"},
    "assignee": {"anyOf": [{"$ref": "User"}, {"type": "null"}], "description": "Current owner"},
    "tags": {"type": "array", "items": {"type": "string"}}
  },
  "definitions": {
    "Ticket": {
      "type": "object",
      "required": ["id", "status"],
      "properties": {
        "id": {"type": "string", "format": "uuid"},
        "status": {"type": "string", "enum": ["open", "closed"]},
        "priority": {"type": ["integer", "null"], "minimum": 1, "maximum": 5}
      }
    },
    "User": {
      "type": "object",
      "properties": {
        "email": {"type": "string", "pattern": "^.+@.+$"}
      }
    }
  }
}`

func TestResolve_Ref(t *testing.T) {
	root := mustParse(t, ticketSchema)
	prop, _ := root.Properties.Get("ticket")

	resolved, err := Resolve(prop, root)
	require.NoError(t, err)
	assert.Equal(t, "object", NormalizeType(resolved))
	assert.Equal(t, []string{"id", "status", "priority"}, resolved.Properties.Keys())
}

func TestResolve_RefForms(t *testing.T) {
	root := &Schema{
		Definitions: map[string]*Schema{"A": {Type: TypeSet{"string"}}},
		Defs:        map[string]*Schema{"B": {Type: TypeSet{"number"}}},
	}

	tests := []struct {
		ref  string
		want string
	}{
		{"#/definitions/A", "string"},
		{"A", "string"},
		{"#/$defs/B", "number"},
		{"B", "number"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			resolved, err := Resolve(&Schema{Ref: tt.ref}, root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, NormalizeType(resolved))
		})
	}
}

func TestResolve_NullableWrapper(t *testing.T) {
	root := mustParse(t, ticketSchema)
	prop, _ := root.Properties.Get("assignee")

	r, err := ResolveNullable(prop, root)
	require.NoError(t, err)
	assert.True(t, r.Nullable)
	assert.Equal(t, "object", NormalizeType(r.Schema))
	assert.Equal(t, "Current owner", r.Schema.Description)

	// The shared definition is not modified by the wrapper's annotations.
	assert.Empty(t, root.Definitions["User"].Description)
}

func TestResolve_NullableVariants(t *testing.T) {
	tests := []struct {
		name         string
		schema       *Schema
		wantType     string
		wantNullable bool
	}{
		{
			name:         "null variant first",
			schema:       &Schema{AnyOf: []*Schema{{Type: TypeSet{"null"}}, {Type: TypeSet{"string"}}}},
			wantType:     "string",
			wantNullable: true,
		},
		{
			name:         "type array with null",
			schema:       &Schema{OneOf: []*Schema{{Type: TypeSet{"integer", "null"}}}},
			wantType:     "integer",
			wantNullable: true,
		},
		{
			name:         "no null variant",
			schema:       &Schema{AnyOf: []*Schema{{Type: TypeSet{"string"}}, {Type: TypeSet{"number"}}}},
			wantType:     "string",
			wantNullable: false,
		},
		{
			name:         "plain type list",
			schema:       &Schema{Type: TypeSet{"null", "boolean"}},
			wantType:     "boolean",
			wantNullable: true,
		},
		{
			name:         "only null",
			schema:       &Schema{AnyOf: []*Schema{{Type: TypeSet{"null"}}}},
			wantType:     "null",
			wantNullable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ResolveNullable(tt.schema, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, NormalizeType(r.Schema))
			assert.Equal(t, tt.wantNullable, r.Nullable)
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	root := mustParse(t, ticketSchema)
	for _, name := range root.Properties.Keys() {
		prop, _ := root.Properties.Get(name)
		once, err := Resolve(prop, root)
		require.NoError(t, err)
		twice, err := Resolve(once, root)
		require.NoError(t, err)
		assert.Equal(t, once, twice, name)
	}
}

func TestResolve_CyclicReference(t *testing.T) {
	root := &Schema{
		Definitions: map[string]*Schema{
			"A": {Ref: "#/definitions/B"},
			"B": {Ref: "A"},
		},
	}

	_, err := Resolve(&Schema{Ref: "A"}, root)
	require.Error(t, err)

	var cyclic *CyclicReferenceError
	require.True(t, errors.As(err, &cyclic))
	assert.Equal(t, []string{"A", "#/definitions/B", "A"}, cyclic.Chain)
	assert.ErrorIs(t, err, ErrMalformedSchema)
}

func TestResolve_UnresolvedReference(t *testing.T) {
	_, err := Resolve(&Schema{Ref: "#/definitions/Missing"}, &Schema{})

	var unresolved *UnresolvedReferenceError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "#/definitions/Missing", unresolved.Ref)
	assert.ErrorIs(t, err, ErrMalformedSchema)
}

func TestResolve_NilIsAbsent(t *testing.T) {
	s, err := Resolve(nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, "", NormalizeType(nil))
	assert.Equal(t, "", NormalizeType(&Schema{}))
	assert.Equal(t, "string", NormalizeType(&Schema{Type: TypeSet{"string"}}))
	assert.Equal(t, "number", NormalizeType(&Schema{Type: TypeSet{"null", "number"}}))
	assert.Equal(t, "null", NormalizeType(&Schema{Type: TypeSet{"null"}}))
}

func TestParse_PreservesPropertyOrder(t *testing.T) {
	s := mustParse(t, `{"type":"object","properties":{"z":{},"a":{},"m":{}}}`)
	assert.Equal(t, []string{"z", "a", "m"}, s.Properties.Keys())

	out, err := s.Properties.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"z":{},"a":{},"m":{}}`, string(out))
}
