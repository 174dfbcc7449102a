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

// Package lifecycle governs the draft and publish lifecycle of workflow
// definitions.
//
// A draft is freely editable and versioned. Publishing validates the draft
// (tree structure, payload contract and expressions), and on success
// records an immutable published version together with a snapshot of its
// payload schema. Validation findings are recorded either way and are
// returned as data; Go errors are reserved for storage and programmer
// errors.
package lifecycle

import (
	"encoding/json"
	"time"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/contract"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// Status is the lifecycle state of a registration record.
type Status string

const (
	// StatusDraft is a record that has never been published.
	StatusDraft Status = "draft"
	// StatusPublishing is held only while a publish attempt is running.
	StatusPublishing Status = "publishing"
	// StatusPublished is a record with at least one published version.
	StatusPublished Status = "published"
)

var validStatuses = map[Status]bool{
	StatusDraft:      true,
	StatusPublishing: true,
	StatusPublished:  true,
}

// IsValid checks if a status is valid.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// ValidationStatus summarizes the last validation run.
type ValidationStatus string

const (
	// ValidationUnknown means the draft has not been validated, or a
	// collaborator was unavailable so the answer is not known.
	ValidationUnknown ValidationStatus = "unknown"
	ValidationValid   ValidationStatus = "valid"
	ValidationWarning ValidationStatus = "warning"
	ValidationError   ValidationStatus = "error"
)

// Record is the persisted envelope of one workflow: its draft, the result
// of the last validation and a pointer to the latest published version.
type Record struct {
	ID string `json:"id"`

	DraftDefinition *workflow.Definition `json:"draftDefinition"`
	DraftVersion    int                  `json:"draftVersion"`

	Status Status `json:"status"`

	ValidationStatus   ValidationStatus     `json:"validationStatus"`
	ValidationErrors   workflow.Diagnostics `json:"validationErrors"`
	ValidationWarnings workflow.Diagnostics `json:"validationWarnings"`
	ValidatedAt        *time.Time           `json:"validatedAt,omitempty"`

	PayloadSchemaMode      contract.Mode `json:"payloadSchemaMode"`
	PinnedPayloadSchemaRef string        `json:"pinnedPayloadSchemaRef,omitempty"`

	// PublishedVersion is 0 until the first successful publish.
	PublishedVersion int `json:"publishedVersion,omitempty"`

	// Paused disables runs regardless of validation status.
	Paused bool `json:"paused"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsPublished reports whether the record has a published version.
func (r *Record) IsPublished() bool {
	return r.PublishedVersion > 0
}

// Validation returns the recorded validation result.
func (r *Record) Validation() Validation {
	return Validation{
		Status:      r.ValidationStatus,
		Errors:      r.ValidationErrors,
		Warnings:    r.ValidationWarnings,
		ValidatedAt: r.ValidatedAt,
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.DraftDefinition = r.DraftDefinition.Clone()
	c.ValidationErrors = cloneDiagnostics(r.ValidationErrors)
	c.ValidationWarnings = cloneDiagnostics(r.ValidationWarnings)
	if r.ValidatedAt != nil {
		at := *r.ValidatedAt
		c.ValidatedAt = &at
	}
	return &c
}

// Validation is a recorded validation result.
type Validation struct {
	Status      ValidationStatus     `json:"status"`
	Errors      workflow.Diagnostics `json:"errors"`
	Warnings    workflow.Diagnostics `json:"warnings"`
	ValidatedAt *time.Time           `json:"validatedAt,omitempty"`
}

// PublishedVersion is an immutable published definition with the payload
// schema it was validated against.
type PublishedVersion struct {
	WorkflowID   string               `json:"workflowId"`
	Version      int                  `json:"version"`
	DraftVersion int                  `json:"draftVersion"`
	Definition   *workflow.Definition `json:"definition"`

	PayloadSchemaRef string `json:"payloadSchemaRef,omitempty"`

	// PayloadSchema is a copy of the schema PayloadSchemaRef resolved to at
	// publish time. Later registry changes do not affect it.
	PayloadSchema *schema.Schema `json:"payloadSchema,omitempty"`

	Warnings    workflow.Diagnostics `json:"warnings"`
	PublishedAt time.Time            `json:"publishedAt"`
}

// Clone returns a deep copy of the published version.
func (p *PublishedVersion) Clone() *PublishedVersion {
	if p == nil {
		return nil
	}
	c := *p
	c.Definition = p.Definition.Clone()
	c.PayloadSchema = cloneSchema(p.PayloadSchema)
	c.Warnings = cloneDiagnostics(p.Warnings)
	return &c
}

func cloneDiagnostics(d workflow.Diagnostics) workflow.Diagnostics {
	if d == nil {
		return nil
	}
	out := make(workflow.Diagnostics, len(d))
	copy(out, d)
	return out
}

// cloneSchema deep-copies a schema through its JSON form.
func cloneSchema(s *schema.Schema) *schema.Schema {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return s
	}
	c, err := schema.Parse(data)
	if err != nil {
		return s
	}
	return c
}
