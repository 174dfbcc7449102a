package expression

import (
	"fmt"
	"sort"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
	"github.com/tombee/stepflow/pkg/workflow/schema"
	"github.com/tombee/stepflow/pkg/workflow/scope"
)

// Env is what expression validation of a whole definition needs besides the
// definition itself. Every field may be nil.
type Env struct {
	Registry      catalog.ActionRegistry
	PayloadSchema *schema.Schema

	// EventSchema is the trigger event's payload schema. Trigger payload
	// mappings are validated against it.
	EventSchema *schema.Schema
}

// Validator validates the expressions of definitions and steps.
type Validator struct {
	checker *Checker
}

// NewValidator creates a Validator with its own compile cache.
func NewValidator() *Validator {
	return &Validator{checker: NewChecker()}
}

// ValidateStep returns the findings for one step in the given context:
// path findings for every template and wrapped expression, and syntax
// warnings for wrapped expressions that do not compile.
func (v *Validator) ValidateStep(step workflow.Step, ctx *scope.DataContext) []FieldValidation {
	var out []FieldValidation
	switch s := step.(type) {
	case *workflow.NodeStep:
		out = append(out, ValidateStepConfig(s.Config, ctx)...)
		for _, e := range configExprs("", s.Config) {
			out = append(out, v.syntax(e.field, e.expr)...)
		}
	case *workflow.IfBlock:
		out = append(out, v.expr("condition", s.Condition, ctx)...)
	case *workflow.ForEachBlock:
		out = append(out, v.expr("items", s.Items, ctx)...)
	case *workflow.CallWorkflowBlock:
		for _, k := range sortedKeys(s.InputMapping) {
			out = append(out, v.expr("inputMapping."+k, s.InputMapping[k], ctx)...)
		}
	}
	return out
}

func (v *Validator) expr(field string, e workflow.Expr, ctx *scope.DataContext) []FieldValidation {
	return append(ValidateExpr(field, e, ctx), v.syntax(field, e)...)
}

func (v *Validator) syntax(field string, e workflow.Expr) []FieldValidation {
	if err := v.checker.CheckSyntax(e.Expr); err != nil {
		return []FieldValidation{{
			Field:      field,
			Validation: PathValidation{Valid: true, Warning: err.Error(), Code: workflow.CodeExpressionSyntax},
		}}
	}
	return nil
}

// ValidateDefinition validates every step's expressions in the context
// visible to that step, and the trigger payload mapping against the event
// schema.
func (v *Validator) ValidateDefinition(def *workflow.Definition, env Env) workflow.Diagnostics {
	out := workflow.Diagnostics{}
	if def == nil {
		return out
	}

	out = append(out, v.validateMapping(def, env)...)

	workflow.Walk(def.Steps, func(step workflow.Step, path workflow.StepPath) bool {
		if !hasExpressions(step) {
			return true
		}
		ctx := scope.Build(def, step.StepID(), env.Registry, env.PayloadSchema)
		for _, f := range v.ValidateStep(step, ctx) {
			out = append(out, f.Diagnostic(path.String(), step.StepID()))
		}
		return true
	})
	return out
}

func (v *Validator) validateMapping(def *workflow.Definition, env Env) workflow.Diagnostics {
	if !def.Trigger.HasMapping() {
		return nil
	}
	var out workflow.Diagnostics
	ctx := scope.TriggerContext(env.EventSchema)

	var target []schema.Field
	if env.PayloadSchema != nil {
		target, _ = schema.ExtractFields(env.PayloadSchema, nil)
	}

	for _, k := range sortedKeys(def.Trigger.PayloadMapping) {
		field := "payloadMapping." + k
		for _, f := range v.expr(field, def.Trigger.PayloadMapping[k], ctx) {
			out = append(out, f.Diagnostic(workflow.PayloadMappingPath, ""))
		}
		if len(target) == 0 {
			continue
		}
		if _, ok := schema.Find(target, k); !ok {
			out = append(out, workflow.PublishError{
				Severity: workflow.SeverityWarning,
				Code:     workflow.CodeExpressionWarning,
				Message:  fmt.Sprintf("%s is not a field of the workflow payload schema", k),
				StepPath: workflow.PayloadMappingPath,
				Field:    field,
			})
		}
	}
	return out
}

// Diagnostic converts a finding into a PublishError.
func (f FieldValidation) Diagnostic(stepPath, stepID string) workflow.PublishError {
	d := workflow.PublishError{
		Severity: workflow.SeverityError,
		Code:     f.Validation.Code,
		Message:  f.Validation.Error,
		StepPath: stepPath,
		StepID:   stepID,
		Field:    f.Field,
	}
	if f.Validation.Valid {
		d.Severity = workflow.SeverityWarning
		d.Message = f.Validation.Warning
	}
	if d.Code == "" {
		d.Code = workflow.CodeExpressionWarning
	}
	return d
}

func hasExpressions(s workflow.Step) bool {
	switch v := s.(type) {
	case *workflow.NodeStep:
		return len(v.Config) > 0
	case *workflow.IfBlock, *workflow.ForEachBlock:
		return true
	case *workflow.CallWorkflowBlock:
		return len(v.InputMapping) > 0
	}
	return false
}

type namedExpr struct {
	field string
	expr  workflow.Expr
}

// configExprs collects the wrapped expressions of a config map.
func configExprs(prefix string, m map[string]any) []namedExpr {
	var out []namedExpr
	for _, k := range sortedKeys(m) {
		switch v := m[k].(type) {
		case workflow.Expr:
			out = append(out, namedExpr{prefix + k, v})
		case map[string]any:
			if e, ok := workflow.AsExpr(v); ok {
				out = append(out, namedExpr{prefix + k, e})
				continue
			}
			out = append(out, configExprs(prefix+k+".", v)...)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
