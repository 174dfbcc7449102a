package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

func mustSchema(t *testing.T, doc string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(doc))
	require.NoError(t, err)
	return s
}

func testRegistry(t *testing.T) *catalog.Registry {
	return catalog.NewRegistry(
		[]catalog.Node{
			{ID: "transform.map", OutputSchema: mustSchema(t, `{"type":"object","properties":{"result":{"type":"string"}}}`)},
			{ID: "email.send"},
		},
		[]catalog.Action{
			{ID: "tickets.get", Version: 1, OutputSchema: mustSchema(t, `{
				"type": "object",
				"required": ["id"],
				"properties": {
					"id": {"type": "string"},
					"status": {"type": "string", "enum": ["open", "closed"]},
					"lines": {"type": "array", "items": {"type": "object", "properties": {"sku": {"type": "string"}}}}
				}
			}`)},
		},
	)
}

const payloadDoc = `{
	"type": "object",
	"properties": {
		"customer": {"type": "string"},
		"items": {
			"type": "array",
			"items": {"type": "object", "properties": {"qty": {"type": "integer"}}}
		}
	}
}`

// testDefinition:
//
//	s1 action.call tickets.get (saveAs ticket)
//	if1
//	  then: s2 (saveAs mapped) , s2b
//	  else: loop1 over payload.items (item)
//	          body: s3, tc1 try: s4  catch(err): s5
//	        loop2 over vars.ticket.lines (line)
//	          body: loop3 over item... (nested) -> s6
//	call1 (outputMapping: child)
//	s7
func testDefinition() *workflow.Definition {
	return &workflow.Definition{
		ID: "wf-1",
		Steps: workflow.Steps{
			&workflow.NodeStep{ID: "s1", Type: workflow.NodeTypeActionCall, Name: "Fetch Ticket", Config: map[string]any{
				"actionId": "tickets.get", "version": 1, "saveAs": "ticket",
			}},
			&workflow.IfBlock{
				ID:        "if1",
				Condition: workflow.E("${vars.ticket.status}"),
				Then: workflow.Steps{
					&workflow.NodeStep{ID: "s2", Type: "transform.map", Config: map[string]any{"saveAs": "mapped"}},
					&workflow.NodeStep{ID: "s2b", Type: "email.send"},
				},
				Else: workflow.Steps{
					&workflow.ForEachBlock{
						ID: "loop1", Items: workflow.E("${payload.items}"), ItemVar: "item",
						Body: workflow.Steps{
							&workflow.NodeStep{ID: "s3", Type: "transform.map"},
							&workflow.TryCatchBlock{
								ID:             "tc1",
								Try:            workflow.Steps{&workflow.NodeStep{ID: "s4", Type: "http.request"}},
								Catch:          workflow.Steps{&workflow.NodeStep{ID: "s5", Type: "log.write"}},
								CaptureErrorAs: "err",
							},
						},
					},
					&workflow.ForEachBlock{
						ID: "loop2", Items: workflow.E("${vars.ticket.lines}"), ItemVar: "line",
						Body: workflow.Steps{
							&workflow.ForEachBlock{
								ID: "loop3", Items: workflow.E("${payload.customer}"), ItemVar: "c",
								Body: workflow.Steps{&workflow.NodeStep{ID: "s6", Type: "log.write"}},
							},
						},
					},
				},
			},
			&workflow.CallWorkflowBlock{ID: "call1", WorkflowID: "child", OutputMapping: map[string]workflow.Expr{
				"child": workflow.E("${payload}"),
			}},
			&workflow.NodeStep{ID: "s7", Type: "unregistered.node", Config: map[string]any{"saveAs": "mystery"}},
		},
	}
}

func build(t *testing.T, target string) *DataContext {
	return Build(testDefinition(), target, testRegistry(t), mustSchema(t, payloadDoc))
}

func TestBuild_VisibilityOrdering(t *testing.T) {
	tests := []struct {
		target string
		want   []string
	}{
		{"s1", []string{}},
		{"if1", []string{"ticket"}},
		{"s2", []string{"ticket"}},
		{"s2b", []string{"ticket", "mapped"}},
		{"s3", []string{"ticket", "mapped"}},
		{"s7", []string{"ticket", "mapped", "child"}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			ctx := build(t, tt.target)
			assert.True(t, ctx.TargetFound)
			assert.Equal(t, tt.want, ctx.KnownVars())
		})
	}
}

func TestBuild_TargetOwnSaveAsExcluded(t *testing.T) {
	ctx := build(t, "s2")
	_, ok := ctx.Lookup("mapped")
	assert.False(t, ok)
}

func TestBuild_MissingTargetWalksEverything(t *testing.T) {
	ctx := build(t, "nope")
	assert.False(t, ctx.TargetFound)
	assert.Equal(t, []string{"ticket", "mapped", "child", "mystery"}, ctx.KnownVars())
	assert.Nil(t, ctx.ForEach)
	assert.False(t, ctx.InCatchBlock)

	all := build(t, "")
	assert.Equal(t, ctx.KnownVars(), all.KnownVars())
}

func TestBuild_ForEachScope(t *testing.T) {
	inside := build(t, "s3")
	require.NotNil(t, inside.ForEach)
	assert.Equal(t, "item", inside.ForEach.ItemVar)
	assert.Equal(t, "itemIndex", inside.ForEach.IndexVar)
	assert.Equal(t, "object", inside.ForEach.ItemType)
	_, ok := schema.Find(inside.ForEach.ItemFields, "qty")
	assert.True(t, ok)

	sibling := build(t, "s2")
	assert.Nil(t, sibling.ForEach)

	after := build(t, "call1")
	assert.Nil(t, after.ForEach)
}

func TestBuild_NestedLoops(t *testing.T) {
	ctx := build(t, "s6")
	require.Len(t, ctx.Loops, 2)
	assert.Equal(t, "line", ctx.Loops[0].ItemVar)
	assert.Equal(t, "object", ctx.Loops[0].ItemType)
	assert.Equal(t, "c", ctx.ForEach.ItemVar)
	// payload.customer is not an array
	assert.Empty(t, ctx.ForEach.ItemType)
	assert.True(t, ctx.IsLocalVar("line"))
	assert.True(t, ctx.IsLocalVar("lineIndex"))
	assert.False(t, ctx.IsLocalVar("item"))
}

func TestBuild_TryCatchScope(t *testing.T) {
	try := build(t, "s4")
	assert.False(t, try.InCatchBlock)
	assert.Empty(t, try.CaptureErrorAs)

	catch := build(t, "s5")
	assert.True(t, catch.InCatchBlock)
	assert.Equal(t, "err", catch.CaptureErrorAs)
	assert.True(t, catch.IsLocalVar("err"))
	require.NotNil(t, catch.ForEach)
	assert.Equal(t, "item", catch.ForEach.ItemVar)
}

func TestBuild_OutputSchemas(t *testing.T) {
	ctx := build(t, "")

	ticket, ok := ctx.Lookup("ticket")
	require.True(t, ok)
	assert.False(t, ticket.Degraded)
	assert.Equal(t, "Fetch Ticket", ticket.StepName)
	status, ok := schema.Find(ticket.Fields, "status")
	require.True(t, ok)
	assert.Equal(t, []any{"open", "closed"}, status.Constraints.Enum)

	mapped, _ := ctx.Lookup("mapped")
	assert.Equal(t, "s2", mapped.StepID)
	assert.Len(t, mapped.Fields, 1)

	mystery, ok := ctx.Lookup("mystery")
	require.True(t, ok, "unresolved outputs stay known")
	assert.True(t, mystery.Degraded)
	assert.NotNil(t, mystery.Fields)
	assert.Empty(t, mystery.Fields)

	child, _ := ctx.Lookup("child")
	assert.True(t, child.Degraded)
	assert.Equal(t, "call1", child.StepID)
}

func TestBuild_UnknownActionVersionDegrades(t *testing.T) {
	def := &workflow.Definition{Steps: workflow.Steps{
		&workflow.NodeStep{ID: "a", Type: workflow.NodeTypeActionCall, Config: map[string]any{
			"actionId": "tickets.get", "version": 9, "saveAs": "t",
		}},
	}}
	ctx := Build(def, "", testRegistry(t), nil)
	out, ok := ctx.Lookup("t")
	require.True(t, ok)
	assert.True(t, out.Degraded)
}

func TestBuild_NilInputs(t *testing.T) {
	ctx := Build(nil, "x", nil, nil)
	assert.Empty(t, ctx.Payload)
	assert.NotNil(t, ctx.Steps)

	ctx = Build(testDefinition(), "s2b", nil, nil)
	out, ok := ctx.Lookup("ticket")
	require.True(t, ok)
	assert.True(t, out.Degraded)
}

func TestBuild_MalformedPayloadSchema(t *testing.T) {
	bad := mustSchema(t, `{"$ref": "#/definitions/Missing"}`)
	ctx := Build(testDefinition(), "s1", nil, bad)
	assert.ErrorIs(t, ctx.PayloadError, schema.ErrMalformedSchema)
	assert.Empty(t, ctx.Payload)
}

func TestBuild_DoesNotMutateDefinition(t *testing.T) {
	def := testDefinition()
	before := workflow.CollectStepIDs(def.Steps)
	Build(def, "s5", testRegistry(t), nil)
	assert.Equal(t, before, workflow.CollectStepIDs(def.Steps))
}

func TestLookup_Shadowing(t *testing.T) {
	ctx := &DataContext{Steps: []StepOutput{
		{StepID: "a", SaveAs: "x"},
		{StepID: "b", SaveAs: "x"},
	}}
	out, ok := ctx.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, "b", out.StepID)
	assert.Equal(t, []string{"x"}, ctx.KnownVars())
}

func TestTriggerContext(t *testing.T) {
	ctx := TriggerContext(mustSchema(t, payloadDoc))
	assert.Len(t, ctx.Payload, 2)
	assert.Empty(t, ctx.Steps)
	fields, ok := ctx.Global(RootError)
	require.True(t, ok)
	_, ok = schema.Find(fields, "nodePath")
	assert.True(t, ok)
	secrets, ok := ctx.Global(RootSecrets)
	assert.True(t, ok)
	assert.Empty(t, secrets)
	_, ok = ctx.Global(RootPayload)
	assert.False(t, ok)
}
