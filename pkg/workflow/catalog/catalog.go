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

// Package catalog describes the external collaborators the workflow engine
// reads from: the action/node registry, the event catalog and the schema
// registry. The engine never calls them itself; hosts fetch from them and
// pass the results in, wrapped in a Lookup that records whether the fetch
// is still loading, finished, or failed.
package catalog

import (
	"sort"

	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// Action is a versioned registry action invoked by action.call nodes.
type Action struct {
	ID           string         `yaml:"id" json:"id" validate:"required"`
	Version      int            `yaml:"version" json:"version" validate:"gte=1"`
	InputSchema  *schema.Schema `yaml:"inputSchema,omitempty" json:"inputSchema,omitempty"`
	OutputSchema *schema.Schema `yaml:"outputSchema,omitempty" json:"outputSchema,omitempty"`
	UI           map[string]any `yaml:"ui,omitempty" json:"ui,omitempty"`
}

// Node is a node type. OutputSchema is used for saveAs bindings of nodes
// that are not action calls.
type Node struct {
	ID           string         `yaml:"id" json:"id" validate:"required"`
	ConfigSchema *schema.Schema `yaml:"configSchema,omitempty" json:"configSchema,omitempty"`
	OutputSchema *schema.Schema `yaml:"outputSchema,omitempty" json:"outputSchema,omitempty"`
	UI           map[string]any `yaml:"ui,omitempty" json:"ui,omitempty"`
}

// ActionRegistry resolves node types and actions.
type ActionRegistry interface {
	ListNodes() []Node
	ListActions() []Action
	// Action returns an action by id. Version 0 selects the latest version.
	Action(id string, version int) (*Action, bool)
	Node(id string) (*Node, bool)
}

// Registry is an immutable in-memory ActionRegistry.
type Registry struct {
	nodes   map[string]*Node
	actions map[string][]*Action // sorted by version ascending
}

var _ ActionRegistry = (*Registry)(nil)

// NewRegistry builds a registry from node and action lists. Later entries
// replace earlier ones with the same id (and version).
func NewRegistry(nodes []Node, actions []Action) *Registry {
	r := &Registry{
		nodes:   make(map[string]*Node, len(nodes)),
		actions: make(map[string][]*Action),
	}
	for i := range nodes {
		n := nodes[i]
		r.nodes[n.ID] = &n
	}
	for i := range actions {
		a := actions[i]
		versions := r.actions[a.ID]
		replaced := false
		for j, existing := range versions {
			if existing.Version == a.Version {
				versions[j] = &a
				replaced = true
			}
		}
		if !replaced {
			versions = append(versions, &a)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
		r.actions[a.ID] = versions
	}
	return r
}

// ListNodes returns nodes sorted by id.
func (r *Registry) ListNodes() []Node {
	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListActions returns every action version sorted by id, then version.
func (r *Registry) ListActions() []Action {
	var out []Action
	for _, versions := range r.actions {
		for _, a := range versions {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// Action returns an action by id and version; version 0 means latest.
func (r *Registry) Action(id string, version int) (*Action, bool) {
	versions := r.actions[id]
	if len(versions) == 0 {
		return nil, false
	}
	if version == 0 {
		return versions[len(versions)-1], true
	}
	for _, a := range versions {
		if a.Version == version {
			return a, true
		}
	}
	return nil, false
}

// Node returns a node type by id.
func (r *Registry) Node(id string) (*Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}
