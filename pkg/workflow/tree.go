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
	"strings"
)

// GetStepsAtPath returns the step list addressed by path.
func GetStepsAtPath(tree Steps, path BranchPath) (Steps, error) {
	cur := tree
	for depth, seg := range path {
		c, err := containerAt(cur, seg, path[:depth+1])
		if err != nil {
			return nil, err
		}
		cur, _ = c.BranchSteps(seg.Branch)
	}
	return cur, nil
}

// ReplaceStepsAtPath returns a new tree with the list at path replaced.
// Only the blocks along the path are copied; the input is not modified.
func ReplaceStepsAtPath(tree Steps, path BranchPath, steps Steps) (Steps, error) {
	if len(path) == 0 {
		return nonNil(copySteps(steps)), nil
	}
	return replaceAt(tree, path, steps, 0)
}

func replaceAt(tree Steps, path BranchPath, steps Steps, depth int) (Steps, error) {
	if depth == len(path) {
		return nonNil(copySteps(steps)), nil
	}
	seg := path[depth]
	c, err := containerAt(tree, seg, path[:depth+1])
	if err != nil {
		return nil, err
	}
	child, _ := c.BranchSteps(seg.Branch)
	replaced, err := replaceAt(child, path, steps, depth+1)
	if err != nil {
		return nil, err
	}
	out := copySteps(tree)
	out[seg.Index] = c.withBranch(seg.Branch, replaced)
	return out, nil
}

func containerAt(list Steps, seg PathSegment, upTo BranchPath) (Container, error) {
	if seg.Index < 0 || seg.Index >= len(list) {
		return nil, &PathError{Path: upTo.String(), Reason: fmt.Sprintf("index %d out of range (%d steps)", seg.Index, len(list))}
	}
	c, ok := list[seg.Index].(Container)
	if !ok || isNilStep(list[seg.Index]) {
		return nil, &PathError{Path: upTo.String(), Reason: fmt.Sprintf("step at index %d has no branches", seg.Index)}
	}
	if _, ok := c.BranchSteps(seg.Branch); !ok {
		return nil, &PathError{Path: upTo.String(), Reason: fmt.Sprintf("%s step %q has no %s branch", c.Kind(), c.StepID(), seg.Branch)}
	}
	return c, nil
}

// FindStepByID returns the step with the given id, searching every branch
// in document order, or nil.
func FindStepByID(tree Steps, id string) Step {
	var found Step
	Walk(tree, func(s Step, _ StepPath) bool {
		if s.StepID() == id {
			found = s
			return false
		}
		return true
	})
	return found
}

// UpdateStepByID returns a new tree with fn applied to the step with the
// given id. Steps off the path to the match are shared, not copied. The tree
// is returned unchanged when no step matches.
func UpdateStepByID(tree Steps, id string, fn func(Step) Step) Steps {
	out, _ := updateByID(tree, id, fn)
	return out
}

func updateByID(tree Steps, id string, fn func(Step) Step) (Steps, bool) {
	for i, s := range tree {
		if isNilStep(s) {
			continue
		}
		if s.StepID() == id {
			out := copySteps(tree)
			out[i] = fn(s)
			return out, true
		}
		c, ok := s.(Container)
		if !ok {
			continue
		}
		for _, b := range c.Branches() {
			child, _ := c.BranchSteps(b)
			updated, changed := updateByID(child, id, fn)
			if changed {
				out := copySteps(tree)
				out[i] = c.withBranch(b, updated)
				return out, true
			}
		}
	}
	return tree, false
}

// RemoveStepByID returns a new tree without any step carrying id, wherever
// it is nested. Every branch of every remaining block is searched.
func RemoveStepByID(tree Steps, id string) Steps {
	out, _ := removeByID(tree, id)
	return out
}

func removeByID(tree Steps, id string) (Steps, bool) {
	changed := false
	out := make(Steps, 0, len(tree))
	for _, s := range tree {
		if isNilStep(s) {
			out = append(out, s)
			continue
		}
		if s.StepID() == id {
			changed = true
			continue
		}
		if c, ok := s.(Container); ok {
			for _, b := range c.Branches() {
				child, _ := c.BranchSteps(b)
				pruned, removed := removeByID(child, id)
				if removed {
					s = c.withBranch(b, pruned)
					c = s.(Container)
					changed = true
				}
			}
		}
		out = append(out, s)
	}
	if !changed {
		return tree, false
	}
	return out, true
}

// PathIndex maps step ids to their paths.
type PathIndex map[string]StepPath

// StepIDAt returns the id of the step at a rendered step path.
func (idx PathIndex) StepIDAt(path string) (string, bool) {
	for id, p := range idx {
		if p.String() == path {
			return id, true
		}
	}
	return "", false
}

// BuildPathIndex records the path of every step in a single pass. When ids
// are duplicated the first occurrence wins.
func BuildPathIndex(tree Steps) PathIndex {
	idx := make(PathIndex)
	Walk(tree, func(s Step, p StepPath) bool {
		if _, seen := idx[s.StepID()]; !seen {
			idx[s.StepID()] = p
		}
		return true
	})
	return idx
}

// Breadcrumbs renders a branch or step path as labels, e.g.
// ["Check Status", "THEN", "Send Email"].
func Breadcrumbs(tree Steps, path string) ([]string, error) {
	branches, last, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	var crumbs []string
	cur := tree
	for depth, seg := range branches {
		c, err := containerAt(cur, seg, branches[:depth+1])
		if err != nil {
			return nil, err
		}
		crumbs = append(crumbs, StepLabel(c), strings.ToUpper(string(seg.Branch)))
		cur, _ = c.BranchSteps(seg.Branch)
	}
	if last >= 0 {
		if last >= len(cur) || isNilStep(cur[last]) {
			return nil, &PathError{Path: path, Reason: fmt.Sprintf("no step at index %d", last)}
		}
		crumbs = append(crumbs, StepLabel(cur[last]))
	}
	return crumbs, nil
}

// InsertStepAt returns a new tree with step inserted into the list at path.
// The step id must not already be in use.
func InsertStepAt(tree Steps, path BranchPath, index int, step Step) (Steps, error) {
	if isNilStep(step) {
		return nil, fmt.Errorf("cannot insert a nil step")
	}
	if FindStepByID(tree, step.StepID()) != nil {
		return nil, fmt.Errorf("step id %q is already in use", step.StepID())
	}
	list, err := GetStepsAtPath(tree, path)
	if err != nil {
		return nil, err
	}
	if index < 0 || index > len(list) {
		return nil, &PathError{Path: path.String(), Reason: fmt.Sprintf("insert index %d out of range (%d steps)", index, len(list))}
	}
	next := make(Steps, 0, len(list)+1)
	next = append(next, list[:index]...)
	next = append(next, step)
	next = append(next, list[index:]...)
	return ReplaceStepsAtPath(tree, path, next)
}

// MoveStep returns a new tree with the step moved to index within the list
// at dest. dest is interpreted against the tree before the move.
func MoveStep(tree Steps, id string, dest BranchPath, index int) (Steps, error) {
	src, ok := BuildPathIndex(tree)[id]
	if !ok {
		return nil, fmt.Errorf("step %q not found", id)
	}
	depth := len(src.Branch)
	if len(dest) > depth && dest.hasPrefix(src.Branch) && dest[depth].Index == src.Index {
		return nil, fmt.Errorf("cannot move step %q into its own branches", id)
	}
	if _, err := GetStepsAtPath(tree, dest); err != nil {
		return nil, err
	}

	// Removing the step shifts later siblings in its list up by one.
	adjusted := make(BranchPath, len(dest))
	copy(adjusted, dest)
	if depth < len(adjusted) && adjusted.hasPrefix(src.Branch) && adjusted[depth].Index > src.Index {
		adjusted[depth].Index--
	}
	if len(adjusted) == depth && adjusted.hasPrefix(src.Branch) && index > src.Index {
		index--
	}

	step := FindStepByID(tree, id)
	removed := RemoveStepByID(tree, id)
	return InsertStepAt(removed, adjusted, index, step)
}

// Walk visits every step in document order, parents before children. It
// stops when fn returns false. Nil steps and nil branches are skipped.
func Walk(tree Steps, fn func(step Step, path StepPath) bool) {
	walk(tree, BranchPath{}, fn)
}

func walk(list Steps, at BranchPath, fn func(Step, StepPath) bool) bool {
	for i, s := range list {
		if isNilStep(s) {
			continue
		}
		if !fn(s, at.Step(i)) {
			return false
		}
		c, ok := s.(Container)
		if !ok {
			continue
		}
		for _, b := range c.Branches() {
			child, _ := c.BranchSteps(b)
			if !walk(child, at.Child(i, b), fn) {
				return false
			}
		}
	}
	return true
}

// CollectStepIDs returns every step id in document order.
func CollectStepIDs(tree Steps) []string {
	var ids []string
	Walk(tree, func(s Step, _ StepPath) bool {
		ids = append(ids, s.StepID())
		return true
	})
	return ids
}

func copySteps(s Steps) Steps {
	if s == nil {
		return nil
	}
	out := make(Steps, len(s))
	copy(out, s)
	return out
}
