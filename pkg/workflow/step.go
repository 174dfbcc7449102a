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
	"strconv"
)

// StepKind identifies a step variant. Control blocks use their wire type;
// every other type string is a node step.
type StepKind string

const (
	KindNode         StepKind = "node"
	KindIf           StepKind = "control.if"
	KindForEach      StepKind = "control.forEach"
	KindTryCatch     StepKind = "control.tryCatch"
	KindCallWorkflow StepKind = "control.callWorkflow"
	KindReturn       StepKind = "control.return"
)

// NodeTypeActionCall is the node type that invokes a registry action.
const NodeTypeActionCall = "action.call"

// Node config keys with engine meaning.
const (
	ConfigSaveAs        = "saveAs"
	ConfigActionID      = "actionId"
	ConfigActionVersion = "version"
)

// OnItemError policies for ForEachBlock.
const (
	OnItemErrorContinue = "continue"
	OnItemErrorFail     = "fail"
)

// Step is one entry of a step tree. The set of implementations is closed:
// *NodeStep, *IfBlock, *ForEachBlock, *TryCatchBlock, *CallWorkflowBlock and
// *ReturnStep.
type Step interface {
	StepID() string
	Kind() StepKind
	isStep()
}

// Branch names a child step list of a control block.
type Branch string

const (
	BranchThen  Branch = "then"
	BranchElse  Branch = "else"
	BranchTry   Branch = "try"
	BranchCatch Branch = "catch"
	BranchBody  Branch = "body"
)

// Container is implemented by steps that own child step lists.
type Container interface {
	Step
	// Branches lists the branch names in document order.
	Branches() []Branch
	// BranchSteps returns the steps of one branch.
	BranchSteps(b Branch) (Steps, bool)
	// withBranch returns a shallow copy with one branch replaced.
	withBranch(b Branch, steps Steps) Step
}

// NodeStep is a leaf action, transform or event node. Config is shaped by
// the node's config schema and may hold Expr values and a saveAs binding.
type NodeStep struct {
	ID     string         `yaml:"id" json:"id"`
	Type   string         `yaml:"type" json:"type"`
	Name   string         `yaml:"name,omitempty" json:"name,omitempty"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

func (s *NodeStep) StepID() string { return s.ID }
func (s *NodeStep) Kind() StepKind { return KindNode }
func (*NodeStep) isStep()          {}

// SaveAs returns the output binding name, or "" when the step declares none.
func (s *NodeStep) SaveAs() string {
	v, _ := s.Config[ConfigSaveAs].(string)
	return v
}

// ActionID returns the registry action invoked by an action.call node.
func (s *NodeStep) ActionID() string {
	v, _ := s.Config[ConfigActionID].(string)
	return v
}

// ActionVersion returns the pinned action version, or 0 for latest.
func (s *NodeStep) ActionVersion() int {
	switch v := s.Config[ConfigActionVersion].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// IfBlock runs Then when Condition holds and Else otherwise.
type IfBlock struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	Condition Expr   `yaml:"condition" json:"condition"`
	Then      Steps  `yaml:"then" json:"then"`
	Else      Steps  `yaml:"else" json:"else"`
}

func (s *IfBlock) StepID() string     { return s.ID }
func (s *IfBlock) Kind() StepKind     { return KindIf }
func (*IfBlock) isStep()              {}
func (s *IfBlock) Branches() []Branch { return []Branch{BranchThen, BranchElse} }

func (s *IfBlock) BranchSteps(b Branch) (Steps, bool) {
	switch b {
	case BranchThen:
		return s.Then, true
	case BranchElse:
		return s.Else, true
	}
	return nil, false
}

func (s *IfBlock) withBranch(b Branch, steps Steps) Step {
	c := *s
	switch b {
	case BranchThen:
		c.Then = steps
	case BranchElse:
		c.Else = steps
	}
	return &c
}

// ForEachBlock runs Body once per element of Items, binding the element to
// ItemVar and its position to ItemVar+"Index".
type ForEachBlock struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Items       Expr   `yaml:"items" json:"items"`
	ItemVar     string `yaml:"itemVar" json:"itemVar"`
	Concurrency int    `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	OnItemError string `yaml:"onItemError,omitempty" json:"onItemError,omitempty"`
	Body        Steps  `yaml:"body" json:"body"`
}

func (s *ForEachBlock) StepID() string     { return s.ID }
func (s *ForEachBlock) Kind() StepKind     { return KindForEach }
func (*ForEachBlock) isStep()              {}
func (s *ForEachBlock) Branches() []Branch { return []Branch{BranchBody} }

// IndexVar is the name bound to the current iteration index.
func (s *ForEachBlock) IndexVar() string { return IndexVarFor(s.ItemVar) }

// IndexVarFor derives the index variable name from an item variable.
func IndexVarFor(itemVar string) string { return itemVar + "Index" }

func (s *ForEachBlock) BranchSteps(b Branch) (Steps, bool) {
	if b == BranchBody {
		return s.Body, true
	}
	return nil, false
}

func (s *ForEachBlock) withBranch(b Branch, steps Steps) Step {
	c := *s
	if b == BranchBody {
		c.Body = steps
	}
	return &c
}

// TryCatchBlock runs Catch when a step in Try fails. CaptureErrorAs, when
// set, names an extra scope root bound to the error inside Catch.
type TryCatchBlock struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name,omitempty" json:"name,omitempty"`
	Try            Steps  `yaml:"try" json:"try"`
	Catch          Steps  `yaml:"catch" json:"catch"`
	CaptureErrorAs string `yaml:"captureErrorAs,omitempty" json:"captureErrorAs,omitempty"`
}

func (s *TryCatchBlock) StepID() string     { return s.ID }
func (s *TryCatchBlock) Kind() StepKind     { return KindTryCatch }
func (*TryCatchBlock) isStep()              {}
func (s *TryCatchBlock) Branches() []Branch { return []Branch{BranchTry, BranchCatch} }

func (s *TryCatchBlock) BranchSteps(b Branch) (Steps, bool) {
	switch b {
	case BranchTry:
		return s.Try, true
	case BranchCatch:
		return s.Catch, true
	}
	return nil, false
}

func (s *TryCatchBlock) withBranch(b Branch, steps Steps) Step {
	c := *s
	switch b {
	case BranchTry:
		c.Try = steps
	case BranchCatch:
		c.Catch = steps
	}
	return &c
}

// CallWorkflowBlock invokes another published workflow.
type CallWorkflowBlock struct {
	ID              string          `yaml:"id" json:"id"`
	Name            string          `yaml:"name,omitempty" json:"name,omitempty"`
	WorkflowID      string          `yaml:"workflowId" json:"workflowId"`
	WorkflowVersion int             `yaml:"workflowVersion,omitempty" json:"workflowVersion,omitempty"`
	InputMapping    map[string]Expr `yaml:"inputMapping,omitempty" json:"inputMapping,omitempty"`
	OutputMapping   map[string]Expr `yaml:"outputMapping,omitempty" json:"outputMapping,omitempty"`
}

func (s *CallWorkflowBlock) StepID() string { return s.ID }
func (s *CallWorkflowBlock) Kind() StepKind { return KindCallWorkflow }
func (*CallWorkflowBlock) isStep()          {}

// ReturnStep ends the workflow.
type ReturnStep struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

func (s *ReturnStep) StepID() string { return s.ID }
func (s *ReturnStep) Kind() StepKind { return KindReturn }
func (*ReturnStep) isStep()          {}

// TypeName returns the wire "type" of a step.
func TypeName(s Step) string {
	if n, ok := s.(*NodeStep); ok {
		return n.Type
	}
	return string(s.Kind())
}

// StepLabel returns the human label used in breadcrumbs and diagnostics.
func StepLabel(s Step) string {
	switch v := s.(type) {
	case *NodeStep:
		if v.Name != "" {
			return v.Name
		}
		if v.Type != "" {
			return v.Type
		}
	case *IfBlock:
		return labelOr(v.Name, "If")
	case *ForEachBlock:
		return labelOr(v.Name, fmt.Sprintf("For each %s", v.ItemVar))
	case *TryCatchBlock:
		return labelOr(v.Name, "Try / Catch")
	case *CallWorkflowBlock:
		return labelOr(v.Name, fmt.Sprintf("Call %s", v.WorkflowID))
	case *ReturnStep:
		return labelOr(v.Name, "Return")
	}
	if s == nil {
		return ""
	}
	return s.StepID()
}

func labelOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// IsNilStep reports whether s is a nil interface or a typed nil pointer.
func IsNilStep(s Step) bool {
	return isNilStep(s)
}

func isNilStep(s Step) bool {
	switch v := s.(type) {
	case nil:
		return true
	case *NodeStep:
		return v == nil
	case *IfBlock:
		return v == nil
	case *ForEachBlock:
		return v == nil
	case *TryCatchBlock:
		return v == nil
	case *CallWorkflowBlock:
		return v == nil
	case *ReturnStep:
		return v == nil
	}
	return false
}

func cloneStep(s Step) Step {
	switch v := s.(type) {
	case *NodeStep:
		if v == nil {
			return v
		}
		c := *v
		if v.Config != nil {
			c.Config = cloneValue(v.Config).(map[string]any)
		}
		return &c
	case *IfBlock:
		if v == nil {
			return v
		}
		c := *v
		c.Then = cloneSteps(v.Then)
		c.Else = cloneSteps(v.Else)
		return &c
	case *ForEachBlock:
		if v == nil {
			return v
		}
		c := *v
		c.Body = cloneSteps(v.Body)
		return &c
	case *TryCatchBlock:
		if v == nil {
			return v
		}
		c := *v
		c.Try = cloneSteps(v.Try)
		c.Catch = cloneSteps(v.Catch)
		return &c
	case *CallWorkflowBlock:
		if v == nil {
			return v
		}
		c := *v
		c.InputMapping = cloneExprMap(v.InputMapping)
		c.OutputMapping = cloneExprMap(v.OutputMapping)
		return &c
	case *ReturnStep:
		if v == nil {
			return v
		}
		c := *v
		return &c
	}
	return s
}

func cloneSteps(steps Steps) Steps {
	if steps == nil {
		return nil
	}
	out := make(Steps, len(steps))
	for i, s := range steps {
		out[i] = cloneStep(s)
	}
	return out
}
