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

package lifecycle

import (
	"fmt"

	"github.com/tombee/stepflow/pkg/errors"
)

// Lifecycle events.
const (
	EventPublish          = "publish"
	EventPublishSucceeded = "publish_succeeded"
	EventPublishFailed    = "publish_failed"
)

// TransitionGuard reports whether a transition may be taken for a record.
type TransitionGuard func(r *Record) bool

// Transition defines a status transition with guards.
type Transition struct {
	From   Status
	To     Status
	Event  string
	Guards []TransitionGuard
}

// CanTransition checks if the transition is allowed based on current status and guards.
func (t *Transition) CanTransition(r *Record) bool {
	if r.Status != t.From {
		return false
	}
	for _, guard := range t.Guards {
		if !guard(r) {
			return false
		}
	}
	return true
}

// StateMachine manages record status transitions.
type StateMachine struct {
	transitions map[string][]*Transition // key: event name
}

// NewStateMachine creates a new state machine with the given transitions.
// Several transitions may share an event; the first allowed one is taken.
func NewStateMachine(transitions []*Transition) *StateMachine {
	sm := &StateMachine{
		transitions: make(map[string][]*Transition),
	}
	for _, t := range transitions {
		sm.transitions[t.Event] = append(sm.transitions[t.Event], t)
	}
	return sm
}

// Trigger applies event to r, updating its status.
func (sm *StateMachine) Trigger(r *Record, event string) error {
	candidates, ok := sm.transitions[event]
	if !ok {
		return &errors.ValidationError{
			Field:      "event",
			Message:    fmt.Sprintf("unknown event: %s", event),
			Suggestion: "use one of the valid events for the current status",
		}
	}
	for _, t := range candidates {
		if t.CanTransition(r) {
			r.Status = t.To
			return nil
		}
	}
	return &errors.ValidationError{
		Field:   "status",
		Message: fmt.Sprintf("transition not allowed: from %s on event %s", r.Status, event),
	}
}

// AvailableEvents returns the events that can be triggered from the record's status.
func (sm *StateMachine) AvailableEvents(r *Record) []string {
	var events []string
	for event, candidates := range sm.transitions {
		for _, t := range candidates {
			if t.CanTransition(r) {
				events = append(events, event)
				break
			}
		}
	}
	return events
}

func hasPublished(r *Record) bool   { return r.IsPublished() }
func neverPublished(r *Record) bool { return !r.IsPublished() }

// DefaultTransitions returns the draft/publish transitions. A failed
// publish returns to published when an earlier version is live.
func DefaultTransitions() []*Transition {
	return []*Transition{
		{From: StatusDraft, To: StatusPublishing, Event: EventPublish},
		{From: StatusPublished, To: StatusPublishing, Event: EventPublish},
		{From: StatusPublishing, To: StatusPublished, Event: EventPublishSucceeded},
		{From: StatusPublishing, To: StatusDraft, Event: EventPublishFailed, Guards: []TransitionGuard{neverPublished}},
		{From: StatusPublishing, To: StatusPublished, Event: EventPublishFailed, Guards: []TransitionGuard{hasPublished}},
	}
}
