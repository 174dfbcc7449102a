package workflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PathRoot is the address of the top-level step list.
const PathRoot = "root"

// ErrInvalidPath is matched by every *PathError.
var ErrInvalidPath = errors.New("invalid step path")

// PathError reports a branch or step path that does not address the tree.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// Is implements error equality checking for errors.Is().
func (e *PathError) Is(target error) bool {
	return target == ErrInvalidPath
}

// PathSegment descends from a step list into one branch of the step at Index.
type PathSegment struct {
	Index  int
	Branch Branch
}

// BranchPath addresses a step list. The empty path is the top-level list.
type BranchPath []PathSegment

// String renders the path, e.g. "root.steps[2].then".
func (p BranchPath) String() string {
	var b strings.Builder
	b.WriteString(PathRoot)
	for _, seg := range p {
		fmt.Fprintf(&b, ".steps[%d].%s", seg.Index, seg.Branch)
	}
	return b.String()
}

// Child returns the path of one branch of the step at index.
func (p BranchPath) Child(index int, b Branch) BranchPath {
	out := make(BranchPath, len(p), len(p)+1)
	copy(out, p)
	return append(out, PathSegment{Index: index, Branch: b})
}

// Step returns the path of the step at index within this list.
func (p BranchPath) Step(index int) StepPath {
	return StepPath{Branch: p, Index: index}
}

// hasPrefix reports whether p starts with prefix.
func (p BranchPath) hasPrefix(prefix BranchPath) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// StepPath addresses one step: an index within a branch path.
type StepPath struct {
	Branch BranchPath
	Index  int
}

// String renders the path, e.g. "root.steps[2].then.steps[0]".
func (p StepPath) String() string {
	return fmt.Sprintf("%s.steps[%d]", p.Branch, p.Index)
}

// ParseBranchPath parses "root" or "root.steps[i].<branch>..." paths.
func ParseBranchPath(s string) (BranchPath, error) {
	path, last, err := parsePath(s)
	if err != nil {
		return nil, err
	}
	if last >= 0 {
		return nil, &PathError{Path: s, Reason: "path ends at a step, not a branch"}
	}
	return path, nil
}

// ParseStepPath parses "root.steps[i]" or "root.steps[i].<branch>.steps[j]..." paths.
func ParseStepPath(s string) (StepPath, error) {
	path, last, err := parsePath(s)
	if err != nil {
		return StepPath{}, err
	}
	if last < 0 {
		return StepPath{}, &PathError{Path: s, Reason: "path ends at a branch, not a step"}
	}
	return StepPath{Branch: path, Index: last}, nil
}

// parsePath parses a branch path optionally followed by a trailing step
// index. last is -1 when the path ends at a branch.
func parsePath(s string) (BranchPath, int, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), PathRoot)
	if !ok {
		return nil, -1, &PathError{Path: s, Reason: fmt.Sprintf("must start with %q", PathRoot)}
	}
	path := BranchPath{}
	for rest != "" {
		var idx int
		var err error
		idx, rest, err = parseIndex(rest)
		if err != nil {
			return nil, -1, &PathError{Path: s, Reason: err.Error()}
		}
		if rest == "" {
			return path, idx, nil
		}
		var branch Branch
		branch, rest, err = parseBranch(rest)
		if err != nil {
			return nil, -1, &PathError{Path: s, Reason: err.Error()}
		}
		path = append(path, PathSegment{Index: idx, Branch: branch})
	}
	return path, -1, nil
}

func parseIndex(s string) (int, string, error) {
	rest, ok := strings.CutPrefix(s, ".steps[")
	if !ok {
		return 0, "", fmt.Errorf("expected .steps[<index>] at %q", s)
	}
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return 0, "", fmt.Errorf("unterminated index at %q", s)
	}
	idx, err := strconv.Atoi(rest[:end])
	if err != nil || idx < 0 {
		return 0, "", fmt.Errorf("invalid index %q", rest[:end])
	}
	return idx, rest[end+1:], nil
}

func parseBranch(s string) (Branch, string, error) {
	rest, ok := strings.CutPrefix(s, ".")
	if !ok {
		return "", "", fmt.Errorf("expected .<branch> at %q", s)
	}
	name := rest
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		name = rest[:dot]
	}
	switch b := Branch(name); b {
	case BranchThen, BranchElse, BranchTry, BranchCatch, BranchBody:
		return b, rest[len(name):], nil
	}
	return "", "", fmt.Errorf("unknown branch %q", name)
}
