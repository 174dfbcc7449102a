package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSteps_JSONRoundTrip(t *testing.T) {
	def := sampleDefinition()

	data, err := json.Marshal(def)
	require.NoError(t, err)

	var decoded Definition
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Len(t, decoded.Steps, 4)
	ifBlock, ok := decoded.Steps[1].(*IfBlock)
	require.True(t, ok, "got %T", decoded.Steps[1])
	assert.Equal(t, "${vars.ticket.status}", ifBlock.Condition.Expr)

	loop := ifBlock.Else[0].(*ForEachBlock)
	assert.Equal(t, "item", loop.ItemVar)
	tc := loop.Body[1].(*TryCatchBlock)
	assert.Equal(t, "s5", tc.Catch[0].StepID())

	call := decoded.Steps[2].(*CallWorkflowBlock)
	assert.Equal(t, E("${vars.ticket.id}"), call.InputMapping["id"])
	assert.IsType(t, &ReturnStep{}, decoded.Steps[3])
}

func TestSteps_JSONDiscriminator(t *testing.T) {
	data, err := json.Marshal(Steps{&IfBlock{ID: "a", Condition: E("x")}})
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "control.if", raw[0]["type"])
	assert.Equal(t, map[string]any{"$expr": "x"}, raw[0]["condition"])
	// nil branches encode as empty lists
	assert.Equal(t, []any{}, raw[0]["then"])
	assert.Equal(t, []any{}, raw[0]["else"])
}

func TestSteps_DecodeNormalizesBranches(t *testing.T) {
	var steps Steps
	require.NoError(t, json.Unmarshal([]byte(`[
	  {"id": "i", "type": "control.if", "condition": "x"},
	  {"id": "f", "type": "control.forEach", "items": {"expr": "${payload.items}"}, "itemVar": "row"},
	  {"id": "t", "type": "control.tryCatch", "try": null}
	]`), &steps))

	ifBlock := steps[0].(*IfBlock)
	assert.NotNil(t, ifBlock.Then)
	assert.NotNil(t, ifBlock.Else)
	assert.Equal(t, "x", ifBlock.Condition.Expr)

	loop := steps[1].(*ForEachBlock)
	assert.NotNil(t, loop.Body)
	assert.Equal(t, "${payload.items}", loop.Items.Expr)

	tc := steps[2].(*TryCatchBlock)
	assert.NotNil(t, tc.Try)
	assert.NotNil(t, tc.Catch)
}

func TestParseDefinition_YAML(t *testing.T) {
	def, err := ParseDefinition([]byte(`
name: Ticket triage
payloadSchemaRef: payload.TicketPayload.v1
trigger:
  type: event
  eventName: ticket.created
  payloadMapping:
    ticketId: "${payload.id}"
steps:
  - id: s1
    type: action.call
    config:
      actionId: tickets.get
      version: 2
      saveAs: ticket
      subject: {$expr: "${payload.subject}"}
  - id: check
    type: control.if
    condition: {$expr: "${vars.ticket.open}"}
    then:
      - id: done
        type: control.return
`))
	require.NoError(t, err)

	assert.Equal(t, DefinitionVersion, def.Version)
	require.NotNil(t, def.Trigger)
	assert.Equal(t, TriggerTypeEvent, def.Trigger.Type)
	assert.Equal(t, E("${payload.id}"), def.Trigger.PayloadMapping["ticketId"])

	node := def.Steps[0].(*NodeStep)
	assert.Equal(t, "ticket", node.SaveAs())
	assert.Equal(t, "tickets.get", node.ActionID())
	assert.Equal(t, 2, node.ActionVersion())
	expr, ok := AsExpr(node.Config["subject"])
	require.True(t, ok)
	assert.Equal(t, "${payload.subject}", expr.Expr)

	check := def.Steps[1].(*IfBlock)
	assert.Equal(t, Steps{}, check.Else)
	assert.Equal(t, "done", check.Then[0].StepID())
}

func TestSteps_YAMLRoundTrip(t *testing.T) {
	def := sampleDefinition()

	data, err := yaml.Marshal(def)
	require.NoError(t, err)

	decoded, err := ParseDefinition(data)
	require.NoError(t, err)

	assert.Equal(t, CollectStepIDs(def.Steps), CollectStepIDs(decoded.Steps))
	loop := FindStepByID(decoded.Steps, "loop1").(*ForEachBlock)
	assert.Equal(t, "${payload.items}", loop.Items.Expr)
	assert.Equal(t, "ticket", FindStepByID(decoded.Steps, "s1").(*NodeStep).SaveAs())
}

func TestParseDefinition_Invalid(t *testing.T) {
	_, err := ParseDefinition([]byte(`steps: {not: a list}`))
	assert.Error(t, err)

	_, err = ParseDefinition([]byte(`steps: ["scalar"]`))
	assert.Error(t, err)
}

func TestAsExpr(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  Expr
		ok    bool
	}{
		{"expr value", E("a"), E("a"), true},
		{"dollar key", map[string]any{"$expr": "b"}, E("b"), true},
		{"legacy key", map[string]any{"expr": "c"}, E("c"), true},
		{"extra keys", map[string]any{"$expr": "d", "other": 1}, Expr{}, false},
		{"non-string", map[string]any{"$expr": 1}, Expr{}, false},
		{"plain string", "e", Expr{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsExpr(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefinition_Clone(t *testing.T) {
	def := sampleDefinition()
	def.Trigger = &Trigger{Type: TriggerTypeEvent, EventName: "x", PayloadMapping: map[string]Expr{"a": E("b")}}

	clone := def.Clone()
	assert.Equal(t, def, clone)

	clone.Steps[0].(*NodeStep).Config[ConfigSaveAs] = "changed"
	clone.Trigger.PayloadMapping["a"] = E("changed")
	assert.Equal(t, "ticket", def.Steps[0].(*NodeStep).SaveAs())
	assert.Equal(t, E("b"), def.Trigger.PayloadMapping["a"])
}

func TestNewDefinition(t *testing.T) {
	def := NewDefinition("triage")
	assert.NotEmpty(t, def.ID)
	assert.Equal(t, Steps{}, def.Steps)
	assert.NotEqual(t, def.ID, NewDefinition("triage").ID)
}
