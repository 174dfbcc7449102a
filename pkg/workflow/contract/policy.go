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

// Package contract reconciles a workflow's payload contract with its
// trigger. It decides which payload schema a workflow runs against, whether
// the trigger event's schema matches it and whether an explicit payload
// mapping is required, and turns those answers into publish and run gates.
//
// ComputePolicy is pure: catalog and registry lookups are passed in as
// catalog.Lookup values so callers decide when to fetch and re-evaluate.
package contract

import (
	"fmt"
	"slices"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
)

// Mode selects where the effective payload schema ref comes from.
type Mode string

const (
	// ModePinned uses the workflow's own payloadSchemaRef.
	ModePinned Mode = "pinned"
	// ModeInferred uses the payload schema of the trigger event.
	ModeInferred Mode = "inferred"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePinned || m == ModeInferred
}

// Status is the outcome of one policy check.
type Status string

const (
	StatusOK       Status = "ok"
	StatusError    Status = "error"
	StatusDeferred Status = "deferred"
)

// Verdict is the outcome of one policy check with a human-readable reason.
type Verdict struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Code   string `json:"code,omitempty"`
}

// OK reports whether the check passed or is waiting on a lookup.
func (v Verdict) OK() bool { return v.Status != StatusError }

// Deferred reports whether the check is waiting on a lookup.
func (v Verdict) Deferred() bool { return v.Status == StatusDeferred }

func ok(reason string) Verdict { return Verdict{Status: StatusOK, Reason: reason} }

func deferred(reason string) Verdict { return Verdict{Status: StatusDeferred, Reason: reason} }

func fail(code, format string, args ...any) Verdict {
	return Verdict{Status: StatusError, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Input is everything the policy reads.
type Input struct {
	Definition *workflow.Definition
	Mode       Mode

	// PinnedRef overrides Definition.PayloadSchemaRef in pinned mode.
	PinnedRef string

	// Catalog is the event catalog entry for the trigger's event. A loaded
	// nil entry means the event is not in the catalog.
	Catalog catalog.Lookup[*catalog.EventEntry]

	// KnownRefs is the list of refs the schema registry can resolve.
	KnownRefs catalog.Lookup[[]string]
}

// Policy is the reconciled contract of one definition.
type Policy struct {
	EffectivePayloadSchemaRef string  `json:"effectivePayloadSchemaRef"`
	TriggerSourceSchemaRef    string  `json:"triggerSourceSchemaRef"`
	TriggerSchemaPolicy       Verdict `json:"triggerSchemaPolicy"`
	PayloadSchemaPolicy       Verdict `json:"payloadSchemaPolicy"`
	MappingRequired           bool    `json:"mappingRequired"`
	MappingPresent            bool    `json:"mappingPresent"`
	CanPublish                bool    `json:"canPublish"`
	CanRun                    bool    `json:"canRun"`
}

// Pending reports whether any verdict is waiting on a lookup.
func (p Policy) Pending() bool {
	return p.TriggerSchemaPolicy.Deferred() || p.PayloadSchemaPolicy.Deferred()
}

// ComputePolicy reconciles the definition's payload contract with its
// trigger. It performs no I/O and keeps no state between calls.
func ComputePolicy(in Input) Policy {
	def := in.Definition
	if def == nil {
		def = &workflow.Definition{}
	}
	mode := in.Mode
	if mode == "" {
		mode = ModePinned
	}
	trigger := def.Trigger

	var p Policy
	inferred := inferredRef(trigger, in.Catalog)

	switch mode {
	case ModeInferred:
		p.EffectivePayloadSchemaRef = inferred
	default:
		p.EffectivePayloadSchemaRef = in.PinnedRef
		if p.EffectivePayloadSchemaRef == "" {
			p.EffectivePayloadSchemaRef = def.PayloadSchemaRef
		}
	}

	if trigger != nil {
		p.TriggerSourceSchemaRef = trigger.SourcePayloadSchemaRef
		if p.TriggerSourceSchemaRef == "" {
			p.TriggerSourceSchemaRef = inferred
		}
	}

	p.TriggerSchemaPolicy = triggerPolicy(trigger, in.Catalog)
	p.PayloadSchemaPolicy = payloadPolicy(mode, trigger, p.EffectivePayloadSchemaRef, in)

	p.MappingRequired = p.TriggerSourceSchemaRef != "" &&
		p.EffectivePayloadSchemaRef != "" &&
		p.TriggerSourceSchemaRef != p.EffectivePayloadSchemaRef
	p.MappingPresent = trigger.HasMapping()

	gate := p.TriggerSchemaPolicy.OK() && p.PayloadSchemaPolicy.OK() &&
		(!p.MappingRequired || p.MappingPresent)
	p.CanPublish = gate
	p.CanRun = gate
	return p
}

func inferredRef(t *workflow.Trigger, entry catalog.Lookup[*catalog.EventEntry]) string {
	if t == nil || !entry.IsLoaded() || entry.Value == nil {
		return ""
	}
	return entry.Value.PayloadSchemaRef
}

func triggerPolicy(t *workflow.Trigger, entry catalog.Lookup[*catalog.EventEntry]) Verdict {
	if t == nil {
		return ok("workflow has no trigger")
	}
	switch {
	case entry.IsError():
		return fail(workflow.CodeUnavailableCatalog, "Event catalog is unavailable: %v", entry.Err)
	case entry.IsLoading():
		return deferred("waiting for the event catalog")
	case entry.Value == nil:
		return fail(workflow.CodeTriggerSchema, "Event %q is not in the event catalog", t.EventName)
	case entry.Value.PayloadSchemaRefStatus != catalog.SchemaRefKnown:
		return fail(workflow.CodeTriggerSchema,
			"Event %q has payload schema status %q; only events with a known payload schema can trigger workflows",
			t.EventName, entry.Value.PayloadSchemaRefStatus)
	}
	return ok(fmt.Sprintf("event %q has payload schema %q", t.EventName, entry.Value.PayloadSchemaRef))
}

func payloadPolicy(mode Mode, t *workflow.Trigger, ref string, in Input) Verdict {
	if mode == ModeInferred {
		if t == nil {
			return fail(workflow.CodePayloadSchema, "Manual workflows must pin a payload schema; set payloadSchemaMode to pinned")
		}
		switch {
		case in.Catalog.IsError():
			return fail(workflow.CodeUnavailableCatalog, "Payload schema cannot be inferred: event catalog is unavailable")
		case in.Catalog.IsLoading():
			return deferred("waiting for the event catalog to infer the payload schema")
		case ref == "":
			return fail(workflow.CodePayloadSchema, "No payload schema could be inferred from event %q", t.EventName)
		}
	} else if ref == "" {
		return fail(workflow.CodePayloadSchema, "Pinned payload schema mode requires a payloadSchemaRef")
	}

	switch {
	case in.KnownRefs.IsError():
		return fail(workflow.CodeUnavailableSchemas, "Schema registry is unavailable: %v", in.KnownRefs.Err)
	case in.KnownRefs.IsLoading():
		return deferred("waiting for the schema registry")
	case !slices.Contains(in.KnownRefs.Value, ref): // an empty registry knows no refs
		return fail(workflow.CodePayloadSchema, "Payload schema %q is not registered", ref)
	}
	return ok(fmt.Sprintf("payload schema %q is registered", ref))
}

// Diagnostics returns the policy's findings as publish errors.
func (p Policy) Diagnostics() workflow.Diagnostics {
	out := workflow.Diagnostics{}
	if v := p.TriggerSchemaPolicy; v.Status == StatusError {
		out = append(out, finding(v, workflow.TriggerPath))
	}
	if v := p.PayloadSchemaPolicy; v.Status == StatusError {
		out = append(out, finding(v, workflow.PayloadSchemaPath))
	}
	if p.MappingRequired && !p.MappingPresent {
		out = append(out, workflow.PublishError{
			Severity: workflow.SeverityError,
			Code:     workflow.CodeMappingRequired,
			Message: fmt.Sprintf("Event payload schema %q differs from workflow payload schema %q; add a payloadMapping",
				p.TriggerSourceSchemaRef, p.EffectivePayloadSchemaRef),
			StepPath: workflow.PayloadMappingPath,
		})
	}
	return out
}

func finding(v Verdict, path string) workflow.PublishError {
	return workflow.PublishError{
		Severity: workflow.SeverityError,
		Code:     v.Code,
		Message:  v.Reason,
		StepPath: path,
	}
}
