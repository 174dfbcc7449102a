package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/schema"
	"github.com/tombee/stepflow/pkg/workflow/scope"
)

func testContext() *scope.DataContext {
	return &scope.DataContext{
		Payload: []schema.Field{{Name: "customer", Type: "string"}},
		Steps: []scope.StepOutput{
			{StepID: "s1", SaveAs: "ticket"},
			{StepID: "s2", SaveAs: "invoice"},
		},
		Globals: scope.DefaultGlobals(),
		Loops:   []scope.ForEachContext{{ItemVar: "item", IndexVar: "itemIndex"}},
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		valid       bool
		wantError   string
		wantWarning string
		wantCode    string
	}{
		{name: "payload", path: "payload.customer", valid: true},
		{name: "vars known", path: "vars.ticket.status", valid: true},
		{name: "vars unknown", path: "vars.missing", wantError: "Unknown variable: missing. Available variables: ticket, invoice", wantCode: workflow.CodeUnknownVariable},
		{name: "vars bare", path: "vars", wantError: "Missing variable name after vars. Available variables: ticket, invoice", wantCode: workflow.CodeUnknownVariable},
		{name: "meta", path: "meta.traceId", valid: true},
		{name: "env", path: "env.tenantId", valid: true},
		{name: "secrets", path: "secrets.apiKey", valid: true},
		{name: "error outside catch", path: "error.message", valid: true},
		{name: "loop item", path: "item.qty", valid: true},
		{name: "loop index", path: "itemIndex", valid: true},
		{name: "unknown root", path: "steps.s1", wantError: "Unknown root: steps", wantCode: workflow.CodeUnknownRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidatePath(tt.path, testContext())
			assert.Equal(t, tt.valid, got.Valid)
			assert.Equal(t, tt.wantError, got.Error)
			assert.Equal(t, tt.wantWarning, got.Warning)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestValidatePath_EmptyPayloadWarns(t *testing.T) {
	ctx := testContext()
	ctx.Payload = nil
	got := ValidatePath("payload.customer", ctx)
	assert.True(t, got.Valid)
	assert.Equal(t, MsgNoPayloadSchema, got.Warning)
}

func TestValidatePath_ErrorInsideCatch(t *testing.T) {
	ctx := testContext()
	ctx.InCatchBlock = true
	ctx.CaptureErrorAs = "failure"
	assert.False(t, ValidatePath("error.message", ctx).HasFinding())
	assert.False(t, ValidatePath("failure.message", ctx).HasFinding())
}

func TestValidatePath_NoVariables(t *testing.T) {
	got := ValidatePath("vars.missingVar", &scope.DataContext{})
	assert.Equal(t, "Unknown variable: missingVar. Available variables: none", got.Error)
}

func TestValidateStepConfig_UnknownVariable(t *testing.T) {
	ctx := &scope.DataContext{Globals: scope.DefaultGlobals()}
	got := ValidateStepConfig(map[string]any{"to": "${vars.missingVar}"}, ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "to", got[0].Field)
	assert.False(t, got[0].Validation.Valid)
	assert.Contains(t, got[0].Validation.Error, "Unknown variable: missingVar.")
}

func TestValidateStepConfig_Walk(t *testing.T) {
	config := map[string]any{
		"saveAs":  "out",
		"subject": "Ticket ${vars.ticket.id} for ${nope.x}",
		"body": map[string]any{
			"text":  "${vars.gone}",
			"count": 3,
			"inner": map[string]any{"deep": "${vars.alsoGone}"},
		},
		"when":  map[string]any{"$expr": "${vars.ghost} == 1"},
		"old":   map[string]any{"expr": "${unknown.root}"},
		"typed": workflow.E("${vars.ticket.id}"),
		"list":  []any{"${vars.ignored}"},
		"plain": "no placeholders",
	}
	got := ValidateStepConfig(config, testContext())

	var fields []string
	for _, f := range got {
		fields = append(fields, f.Field+"|"+f.Path)
	}
	assert.Equal(t, []string{
		"body.inner.deep|vars.alsoGone",
		"body.text|vars.gone",
		"old|unknown.root",
		"subject|nope.x",
		"when|vars.ghost",
	}, fields)
}

func TestValidateExpr(t *testing.T) {
	assert.Nil(t, ValidateExpr("condition", workflow.Expr{}, testContext()))
	got := ValidateExpr("condition", workflow.E("${vars.nope} && ${vars.ticket.ok}"), testContext())
	require.Len(t, got, 1)
	assert.Equal(t, "vars.nope", got[0].Path)
}
