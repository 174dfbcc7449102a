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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/contract"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// RunTarget selects which definition a run uses.
type RunTarget string

const (
	RunDraft     RunTarget = "draft"
	RunPublished RunTarget = "published"
)

// ErrRunDenied is matched by every *RunDeniedError.
var ErrRunDenied = errors.New("run denied")

// RunDeniedError reports why a workflow may not be started.
type RunDeniedError struct {
	WorkflowID string
	Reason     string
	Cause      error
}

func (e *RunDeniedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("workflow %s cannot run: %s: %v", e.WorkflowID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("workflow %s cannot run: %s", e.WorkflowID, e.Reason)
}

// Is implements error equality checking for errors.Is().
func (e *RunDeniedError) Is(target error) bool {
	return target == ErrRunDenied
}

func (e *RunDeniedError) Unwrap() error {
	return e.Cause
}

// RunRequest asks to start a workflow.
type RunRequest struct {
	Target  RunTarget      `json:"target"`
	Payload map[string]any `json:"payload"`
}

// RunTicket is an accepted run. Execution happens elsewhere; the ticket
// carries everything an executor needs.
type RunTicket struct {
	ID               string               `json:"id"`
	WorkflowID       string               `json:"workflowId"`
	Target           RunTarget            `json:"target"`
	Version          int                  `json:"version,omitempty"`
	PayloadSchemaRef string               `json:"payloadSchemaRef,omitempty"`
	Definition       *workflow.Definition `json:"definition"`
	Payload          map[string]any       `json:"payload"`
	CreatedAt        time.Time            `json:"createdAt"`
}

// CanRun reports whether a run of target may start. The reason is empty when
// it may.
func (s *Service) CanRun(ctx context.Context, id string, target RunTarget) (bool, string, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return false, "", err
	}
	reason := denyReason(rec, target)
	return reason == "", reason, nil
}

func denyReason(rec *Record, target RunTarget) string {
	switch {
	case target != RunDraft && target != RunPublished:
		return fmt.Sprintf("unknown run target %q", target)
	case rec.Paused:
		return "workflow is paused"
	case rec.ValidationStatus == ValidationError:
		return "workflow has validation errors"
	case target == RunPublished && !rec.IsPublished():
		return "workflow has never been published"
	}
	return ""
}

// Run checks that target may run and that the payload satisfies the payload
// schema, then issues a ticket. Published runs are checked against the
// schema captured at publish time; draft runs against the live schema.
func (s *Service) Run(ctx context.Context, id string, req RunRequest) (ticket *RunTicket, err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.run", id)
	defer func() { endSpan(span, err) }()

	if req.Target == "" {
		req.Target = RunPublished
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reason := denyReason(rec, req.Target); reason != "" {
		return nil, &RunDeniedError{WorkflowID: id, Reason: reason}
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	ticket = &RunTicket{
		ID:         uuid.NewString(),
		WorkflowID: id,
		Target:     req.Target,
		Payload:    payload,
		CreatedAt:  s.now(),
	}

	var sc *schema.Schema
	switch req.Target {
	case RunPublished:
		pv, err := s.store.GetPublished(ctx, id, 0)
		if err != nil {
			return nil, err
		}
		ticket.Version = pv.Version
		ticket.Definition = pv.Definition.Clone()
		ticket.PayloadSchemaRef = pv.PayloadSchemaRef
		sc = pv.PayloadSchema
	case RunDraft:
		in := s.gather(ctx, rec.DraftDefinition, rec.PayloadSchemaMode, rec.PinnedPayloadSchemaRef)
		if in.PayloadSchema.IsError() {
			return nil, &RunDeniedError{WorkflowID: id, Reason: "payload schema is unavailable", Cause: in.PayloadSchema.Err}
		}
		ticket.Definition = rec.DraftDefinition.Clone()
		ticket.PayloadSchemaRef = contract.ComputePolicy(in.contractInput()).EffectivePayloadSchemaRef
		sc = in.PayloadSchema.Value
	}

	if sc != nil {
		if err := schema.ValidateInstance(ticket.PayloadSchemaRef, sc, payload); err != nil {
			return nil, &RunDeniedError{WorkflowID: id, Reason: "payload does not match the payload schema", Cause: err}
		}
	}

	s.logger.Info("run accepted",
		log.WorkflowID(id),
		slog.String(log.RunIDKey, ticket.ID),
		slog.String("target", string(req.Target)),
		log.Version(ticket.Version))
	return ticket, nil
}
