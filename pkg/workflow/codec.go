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
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Steps is an ordered step list. It encodes as a list of objects whose
// "type" field selects the variant.
type Steps []Step

// MarshalJSON writes nil lists as [] so branches are never null on the wire.
func (s Steps) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Step(s))
}

// UnmarshalJSON decodes each element by its "type" discriminator.
func (s *Steps) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Steps{}
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("steps must be a list: %w", err)
	}
	out := make(Steps, 0, len(raws))
	for i, raw := range raws {
		step, err := decodeStepJSON(raw)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		out = append(out, step)
	}
	*s = out
	return nil
}

// MarshalYAML writes nil lists as an empty sequence.
func (s Steps) MarshalYAML() (interface{}, error) {
	if s == nil {
		return []Step{}, nil
	}
	return []Step(s), nil
}

// UnmarshalYAML decodes each element by its "type" discriminator.
func (s *Steps) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*s = Steps{}
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("steps must be a list (line %d)", node.Line)
	}
	out := make(Steps, 0, len(node.Content))
	for i, item := range node.Content {
		step, err := decodeStepYAML(item)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		out = append(out, step)
	}
	*s = out
	return nil
}

// decoder abstracts json.Unmarshal and yaml.Node.Decode so variant dispatch
// is written once.
type decoder func(v any) error

func decodeStepJSON(raw json.RawMessage) (Step, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	return decodeStep(head.Type, func(v any) error { return json.Unmarshal(raw, v) })
}

func decodeStepYAML(node *yaml.Node) (Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("step must be a mapping (line %d)", node.Line)
	}
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return nil, err
	}
	return decodeStep(head.Type, node.Decode)
}

func decodeStep(typ string, decode decoder) (Step, error) {
	switch StepKind(typ) {
	case KindIf:
		type plain IfBlock
		var p plain
		if err := decode(&p); err != nil {
			return nil, err
		}
		s := IfBlock(p)
		s.Then, s.Else = nonNil(s.Then), nonNil(s.Else)
		return &s, nil
	case KindForEach:
		type plain ForEachBlock
		var p plain
		if err := decode(&p); err != nil {
			return nil, err
		}
		s := ForEachBlock(p)
		s.Body = nonNil(s.Body)
		return &s, nil
	case KindTryCatch:
		type plain TryCatchBlock
		var p plain
		if err := decode(&p); err != nil {
			return nil, err
		}
		s := TryCatchBlock(p)
		s.Try, s.Catch = nonNil(s.Try), nonNil(s.Catch)
		return &s, nil
	case KindCallWorkflow:
		type plain CallWorkflowBlock
		var p plain
		if err := decode(&p); err != nil {
			return nil, err
		}
		s := CallWorkflowBlock(p)
		return &s, nil
	case KindReturn:
		type plain ReturnStep
		var p plain
		if err := decode(&p); err != nil {
			return nil, err
		}
		s := ReturnStep(p)
		return &s, nil
	default:
		var s NodeStep
		if err := decode(&s); err != nil {
			return nil, err
		}
		return &s, nil
	}
}

func nonNil(s Steps) Steps {
	if s == nil {
		return Steps{}
	}
	return s
}

// Control blocks carry their discriminator only on the wire. Each encoder
// embeds a method-less copy of the block so encoding does not recurse.

func (s *IfBlock) MarshalJSON() ([]byte, error) {
	type plain IfBlock
	return json.Marshal(struct {
		Type StepKind `json:"type"`
		plain
	}{KindIf, plain(*s)})
}

func (s *IfBlock) MarshalYAML() (interface{}, error) {
	type plain IfBlock
	return struct {
		Type  StepKind `yaml:"type"`
		plain `yaml:",inline"`
	}{KindIf, plain(*s)}, nil
}

func (s *ForEachBlock) MarshalJSON() ([]byte, error) {
	type plain ForEachBlock
	return json.Marshal(struct {
		Type StepKind `json:"type"`
		plain
	}{KindForEach, plain(*s)})
}

func (s *ForEachBlock) MarshalYAML() (interface{}, error) {
	type plain ForEachBlock
	return struct {
		Type  StepKind `yaml:"type"`
		plain `yaml:",inline"`
	}{KindForEach, plain(*s)}, nil
}

func (s *TryCatchBlock) MarshalJSON() ([]byte, error) {
	type plain TryCatchBlock
	return json.Marshal(struct {
		Type StepKind `json:"type"`
		plain
	}{KindTryCatch, plain(*s)})
}

func (s *TryCatchBlock) MarshalYAML() (interface{}, error) {
	type plain TryCatchBlock
	return struct {
		Type  StepKind `yaml:"type"`
		plain `yaml:",inline"`
	}{KindTryCatch, plain(*s)}, nil
}

func (s *CallWorkflowBlock) MarshalJSON() ([]byte, error) {
	type plain CallWorkflowBlock
	return json.Marshal(struct {
		Type StepKind `json:"type"`
		plain
	}{KindCallWorkflow, plain(*s)})
}

func (s *CallWorkflowBlock) MarshalYAML() (interface{}, error) {
	type plain CallWorkflowBlock
	return struct {
		Type  StepKind `yaml:"type"`
		plain `yaml:",inline"`
	}{KindCallWorkflow, plain(*s)}, nil
}

func (s *ReturnStep) MarshalJSON() ([]byte, error) {
	type plain ReturnStep
	return json.Marshal(struct {
		Type StepKind `json:"type"`
		plain
	}{KindReturn, plain(*s)})
}

func (s *ReturnStep) MarshalYAML() (interface{}, error) {
	type plain ReturnStep
	return struct {
		Type  StepKind `yaml:"type"`
		plain `yaml:",inline"`
	}{KindReturn, plain(*s)}, nil
}
