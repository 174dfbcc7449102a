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

package scope

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// blockContext is the nesting state at one point of the walk. It is passed
// by value and every with* method returns a copy.
type blockContext struct {
	loops          []ForEachContext
	inCatch        bool
	captureErrorAs string
}

func (b blockContext) withLoop(l ForEachContext) blockContext {
	loops := make([]ForEachContext, len(b.loops), len(b.loops)+1)
	copy(loops, b.loops)
	b.loops = append(loops, l)
	return b
}

func (b blockContext) withCatch(captureErrorAs string) blockContext {
	b.inCatch = true
	b.captureErrorAs = captureErrorAs
	return b
}

func (b blockContext) withTry() blockContext {
	b.inCatch = false
	return b
}

type builder struct {
	target string
	reg    catalog.ActionRegistry
	ctx    *DataContext
}

// Build returns the context visible to the step with id targetStepID. The
// walk is depth-first in document order and stops when the target is
// reached, so the target's own saveAs binding is not included. When the
// target is empty or absent the context of the whole definition is
// returned. reg and payloadSchema may be nil.
func Build(def *workflow.Definition, targetStepID string, reg catalog.ActionRegistry, payloadSchema *schema.Schema) *DataContext {
	ctx := newContext(payloadSchema)
	if def == nil {
		return ctx
	}
	b := &builder{target: targetStepID, reg: reg, ctx: ctx}
	b.walk(def.Steps, blockContext{})
	return ctx
}

// TriggerContext returns the context for trigger payload mappings, where
// payload refers to the event payload and no step outputs exist yet.
func TriggerContext(eventSchema *schema.Schema) *DataContext {
	return newContext(eventSchema)
}

func newContext(payloadSchema *schema.Schema) *DataContext {
	ctx := &DataContext{
		Payload:       []schema.Field{},
		PayloadSchema: payloadSchema,
		Steps:         []StepOutput{},
		Globals:       DefaultGlobals(),
	}
	if payloadSchema != nil {
		fields, err := schema.ExtractFields(payloadSchema, nil)
		if err != nil {
			ctx.PayloadError = err
		} else {
			ctx.Payload = fields
		}
	}
	return ctx
}

func (b *builder) walk(list workflow.Steps, bc blockContext) bool {
	for _, s := range list {
		if workflow.IsNilStep(s) {
			continue
		}
		if b.target != "" && s.StepID() == b.target {
			b.enter(bc)
			return true
		}
		switch v := s.(type) {
		case *workflow.NodeStep:
			if v.SaveAs() != "" {
				b.ctx.Steps = append(b.ctx.Steps, b.output(v))
			}
		case *workflow.IfBlock:
			if b.walk(v.Then, bc) || b.walk(v.Else, bc) {
				return true
			}
		case *workflow.ForEachBlock:
			if b.walk(v.Body, bc.withLoop(b.loop(v, bc))) {
				return true
			}
		case *workflow.TryCatchBlock:
			if b.walk(v.Try, bc.withTry()) || b.walk(v.Catch, bc.withCatch(v.CaptureErrorAs)) {
				return true
			}
		case *workflow.CallWorkflowBlock:
			b.ctx.Steps = append(b.ctx.Steps, callOutputs(v)...)
		}
	}
	return false
}

// enter records the nesting state of the target step.
func (b *builder) enter(bc blockContext) {
	b.ctx.TargetFound = true
	b.ctx.InCatchBlock = bc.inCatch
	b.ctx.CaptureErrorAs = bc.captureErrorAs
	if len(bc.loops) > 0 {
		b.ctx.Loops = bc.loops
		inner := bc.loops[len(bc.loops)-1]
		b.ctx.ForEach = &inner
	}
}

func (b *builder) output(n *workflow.NodeStep) StepOutput {
	out := StepOutput{
		StepID:   n.ID,
		StepName: workflow.StepLabel(n),
		SaveAs:   n.SaveAs(),
		Fields:   []schema.Field{},
	}
	sc := OutputSchema(b.reg, n)
	if sc == nil {
		out.Degraded = true
		return out
	}
	out.OutputSchema = sc
	fields, err := schema.ExtractFields(sc, nil)
	if err != nil {
		out.Degraded = true
		return out
	}
	out.Fields = fields
	return out
}

// OutputSchema returns the output schema of a node step: the action's for
// action.call steps, the node type's otherwise. It returns nil when the
// registry cannot resolve it.
func OutputSchema(reg catalog.ActionRegistry, n *workflow.NodeStep) *schema.Schema {
	if reg == nil || n == nil {
		return nil
	}
	if n.Type == workflow.NodeTypeActionCall {
		a, ok := reg.Action(n.ActionID(), n.ActionVersion())
		if !ok {
			return nil
		}
		return a.OutputSchema
	}
	node, ok := reg.Node(n.Type)
	if !ok {
		return nil
	}
	return node.OutputSchema
}

// callOutputs binds each output mapping key of a sub-workflow call. The
// callee's output schema is not known here, so the bindings are degraded.
func callOutputs(c *workflow.CallWorkflowBlock) []StepOutput {
	keys := make([]string, 0, len(c.OutputMapping))
	for k := range c.OutputMapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]StepOutput, 0, len(keys))
	for _, k := range keys {
		out = append(out, StepOutput{
			StepID:   c.ID,
			StepName: workflow.StepLabel(c),
			SaveAs:   k,
			Fields:   []schema.Field{},
			Degraded: true,
		})
	}
	return out
}

var plainPath = regexp.MustCompile(`^\$\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}$`)

func (b *builder) loop(f *workflow.ForEachBlock, bc blockContext) ForEachContext {
	l := ForEachContext{StepID: f.ID, ItemVar: f.ItemVar, IndexVar: f.IndexVar()}
	m := plainPath.FindStringSubmatch(strings.TrimSpace(f.Items.Expr))
	if m == nil {
		return l
	}
	if field, ok := b.fieldAt(strings.Split(m[1], "."), bc); ok && field.Type == "array" {
		l.ItemType = field.ItemType
		l.ItemFields = field.Children
	}
	return l
}

// fieldAt resolves a dotted path against the fields known at this point of
// the walk.
func (b *builder) fieldAt(segs []string, bc blockContext) (schema.Field, bool) {
	var fields []schema.Field
	switch root := segs[0]; root {
	case RootPayload:
		fields = b.ctx.Payload
		segs = segs[1:]
	case RootVars:
		if len(segs) < 2 {
			return schema.Field{}, false
		}
		out, ok := b.ctx.Lookup(segs[1])
		if !ok {
			return schema.Field{}, false
		}
		fields = out.Fields
		segs = segs[2:]
	default:
		found := false
		for i := len(bc.loops) - 1; i >= 0; i-- {
			if bc.loops[i].ItemVar == root {
				fields, found = bc.loops[i].ItemFields, true
				break
			}
		}
		if !found {
			return schema.Field{}, false
		}
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return schema.Field{}, false
	}
	var f schema.Field
	for i, seg := range segs {
		var ok bool
		f, ok = schema.Find(fields, seg)
		if !ok {
			return schema.Field{}, false
		}
		if i < len(segs)-1 {
			fields = f.Children
		}
	}
	return f, true
}
