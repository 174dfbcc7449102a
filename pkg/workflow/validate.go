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

package workflow

import (
	"fmt"
	"regexp"
)

// Path of the trigger in diagnostics.
const (
	TriggerPath        = PathRoot + ".trigger"
	PayloadMappingPath = TriggerPath + ".payloadMapping"
	PayloadSchemaPath  = PathRoot + ".payloadSchemaRef"
)

// ReservedRoots are the expression namespaces a binding name may not shadow.
var ReservedRoots = []string{"payload", "vars", "meta", "env", "secrets", "error"}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsIdentifier reports whether s can be used as a binding name.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func isReserved(s string) bool {
	for _, r := range ReservedRoots {
		if r == s {
			return true
		}
	}
	return false
}

// ValidateStructure checks that a definition is a well-formed tree: every
// step present and identified, ids unique, branches non-nil and each
// control block carrying the fields it needs. Findings are returned as data.
func ValidateStructure(def *Definition) Diagnostics {
	out := Diagnostics{}
	if def == nil {
		return append(out, diag(CodeInvalidStep, PathRoot, "", "definition is nil"))
	}

	out = append(out, validateTrigger(def.Trigger)...)

	if def.Steps == nil {
		return append(out, diag(CodeNilBranch, PathRoot, "", "step list is nil"))
	}

	v := &structureValidator{
		seen:   make(map[string]string),
		saveAs: make(map[string]string),
	}
	v.checkList(def.Steps, BranchPath{})
	return append(out, v.diags...)
}

func validateTrigger(t *Trigger) Diagnostics {
	if t == nil {
		return nil
	}
	var out Diagnostics
	if t.Type != TriggerTypeEvent {
		out = append(out, diag(CodeInvalidTrigger, TriggerPath, "", "unsupported trigger type %q", t.Type))
	}
	if t.EventName == "" {
		out = append(out, diag(CodeInvalidTrigger, TriggerPath, "", "event trigger has no eventName"))
	}
	return out
}

type structureValidator struct {
	seen   map[string]string // step id -> first path
	saveAs map[string]string // binding -> first step id
	diags  Diagnostics
}

func (v *structureValidator) add(d PublishError) {
	v.diags = append(v.diags, d)
}

func (v *structureValidator) checkList(list Steps, at BranchPath) {
	returned := false
	for i, s := range list {
		path := at.Step(i).String()
		if isNilStep(s) {
			v.add(diag(CodeNilStep, path, "", "step is nil"))
			continue
		}
		if returned {
			v.add(warn(CodeUnreachable, path, s.StepID(), "step %q follows a return and never runs", s.StepID()))
			returned = false
		}
		v.checkStep(s, path)

		if _, ok := s.(*ReturnStep); ok && i < len(list)-1 {
			returned = true
		}

		c, ok := s.(Container)
		if !ok {
			continue
		}
		for _, b := range c.Branches() {
			child, _ := c.BranchSteps(b)
			branchPath := at.Child(i, b)
			if child == nil {
				v.add(diag(CodeNilBranch, branchPath.String(), s.StepID(), "%s branch is nil", b))
				continue
			}
			v.checkList(child, branchPath)
		}
	}
}

func (v *structureValidator) checkStep(s Step, path string) {
	id := s.StepID()
	switch {
	case id == "":
		v.add(diag(CodeMissingID, path, "", "step has no id"))
	default:
		if first, dup := v.seen[id]; dup {
			v.add(diag(CodeDuplicateID, path, id, "step id %q is already used at %s", id, first))
		} else {
			v.seen[id] = path
		}
	}

	switch st := s.(type) {
	case *NodeStep:
		if st.Type == "" {
			v.add(diag(CodeInvalidStep, path, id, "step has no type"))
		}
		if raw, ok := st.Config[ConfigSaveAs]; ok {
			v.checkSaveAs(raw, path, id)
		}
		if st.Type == NodeTypeActionCall && st.ActionID() == "" {
			v.add(diag(CodeInvalidStep, path, id, "action.call step has no %s", ConfigActionID))
		}
	case *IfBlock:
		if st.Condition.IsEmpty() {
			v.add(diag(CodeInvalidStep, path, id, "if block has no condition"))
		}
	case *ForEachBlock:
		if st.Items.IsEmpty() {
			v.add(diag(CodeInvalidStep, path, id, "forEach block has no items expression"))
		}
		v.checkBindingName("itemVar", st.ItemVar, path, id)
		if st.Concurrency < 0 {
			v.add(diag(CodeInvalidStep, path, id, "concurrency must not be negative, got %d", st.Concurrency))
		}
		switch st.OnItemError {
		case "", OnItemErrorContinue, OnItemErrorFail:
		default:
			v.add(diag(CodeInvalidStep, path, id, "onItemError must be %q or %q, got %q", OnItemErrorContinue, OnItemErrorFail, st.OnItemError))
		}
	case *TryCatchBlock:
		if st.CaptureErrorAs != "" {
			v.checkBindingName("captureErrorAs", st.CaptureErrorAs, path, id)
		}
	case *CallWorkflowBlock:
		if st.WorkflowID == "" {
			v.add(diag(CodeInvalidStep, path, id, "callWorkflow block has no workflowId"))
		}
		if st.WorkflowVersion < 0 {
			v.add(diag(CodeInvalidStep, path, id, "workflowVersion must not be negative, got %d", st.WorkflowVersion))
		}
	case *ReturnStep:
	default:
		v.add(diag(CodeInvalidStep, path, id, "unsupported step %T", s))
	}
}

func (v *structureValidator) checkSaveAs(raw any, path, id string) {
	name, ok := raw.(string)
	if !ok {
		v.add(diag(CodeInvalidStep, path, id, "%s must be a string", ConfigSaveAs))
		return
	}
	if !IsIdentifier(name) {
		v.add(diag(CodeInvalidStep, path, id, "%s %q is not a valid identifier", ConfigSaveAs, name))
		return
	}
	if first, dup := v.saveAs[name]; dup {
		v.add(warn(CodeDuplicateSaveAs, path, id, "%s %q shadows the output of step %q", ConfigSaveAs, name, first))
		return
	}
	v.saveAs[name] = id
}

func (v *structureValidator) checkBindingName(field, name, path, id string) {
	switch {
	case name == "":
		v.add(diag(CodeInvalidStep, path, id, "%s is required", field))
	case !IsIdentifier(name):
		v.add(diag(CodeInvalidStep, path, id, "%s %q is not a valid identifier", field, name))
	case isReserved(name):
		v.add(diag(CodeInvalidStep, path, id, "%s %q shadows a reserved namespace", field, name))
	}
}

// Summary renders diagnostics one per line for logs and terminals.
func (d Diagnostics) Summary() string {
	s := ""
	for i, e := range d {
		if i > 0 {
			s += "\n"
		}
		s += fmt.Sprintf("  - %s", e)
	}
	return s
}
