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
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
	"github.com/tombee/stepflow/pkg/workflow/contract"
	"github.com/tombee/stepflow/pkg/workflow/expression"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// DefaultLookupTimeout bounds each collaborator call.
const DefaultLookupTimeout = 5 * time.Second

// maxSaveAttempts bounds retries of unconditional draft saves that lose a
// compare-and-swap race.
const maxSaveAttempts = 3

// Collaborators are the external services validation depends on. Any of
// them may be nil; a missing collaborator is reported as unavailable when
// it is needed.
type Collaborators struct {
	Schemas  catalog.SchemaSource
	Events   catalog.EventCatalog
	Registry catalog.ActionRegistry

	// Tenant is passed to event catalog lookups.
	Tenant string
}

// Metrics receives lifecycle measurements.
type Metrics interface {
	RecordPublish(outcome string, duration time.Duration)
	RecordValidation(status string)
	RecordDraftSaved()
	RecordLookupFailure(service string)
}

type nopMetrics struct{}

func (nopMetrics) RecordPublish(string, time.Duration) {}
func (nopMetrics) RecordValidation(string)             {}
func (nopMetrics) RecordDraftSaved()                   {}
func (nopMetrics) RecordLookupFailure(string)          {}

// Publish outcomes reported to Metrics.
const (
	OutcomePublished = "published"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Service runs the draft/publish lifecycle on top of a Store.
type Service struct {
	store     Store
	collab    Collaborators
	validator *expression.Validator
	machine   *StateMachine
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   Metrics
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer used for lifecycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLookupTimeout bounds each collaborator call.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a lifecycle service.
func NewService(store Store, collab Collaborators, opts ...Option) *Service {
	s := &Service{
		store:     store,
		collab:    collab,
		validator: expression.NewValidator(),
		machine:   NewStateMachine(DefaultTransitions()),
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/tombee/stepflow/pkg/workflow/lifecycle"),
		metrics:   nopMetrics{},
		timeout:   DefaultLookupTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest describes a new workflow.
type CreateRequest struct {
	// Definition is the initial draft. Nil creates an empty definition.
	Definition *workflow.Definition

	// PayloadSchemaMode defaults to pinned.
	PayloadSchemaMode      contract.Mode
	PinnedPayloadSchemaRef string
}

// Create stores a new draft with draft version 1.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Record, error) {
	mode, err := checkMode(req.PayloadSchemaMode)
	if err != nil {
		return nil, err
	}

	def := req.Definition.Clone()
	if def == nil {
		def = workflow.NewDefinition("")
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.Steps == nil {
		def.Steps = workflow.Steps{}
	}

	now := s.now()
	rec := &Record{
		ID:                     def.ID,
		DraftDefinition:        def,
		DraftVersion:           1,
		Status:                 StatusDraft,
		ValidationStatus:       ValidationUnknown,
		ValidationErrors:       workflow.Diagnostics{},
		ValidationWarnings:     workflow.Diagnostics{},
		PayloadSchemaMode:      mode,
		PinnedPayloadSchemaRef: req.PinnedPayloadSchemaRef,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "creating workflow")
	}
	s.logger.Info("workflow created", log.WorkflowID(rec.ID))
	return rec.Clone(), nil
}

// Get returns a record.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// List returns the records matching query.
func (s *Service) List(ctx context.Context, query *Query) ([]*Record, error) {
	return s.store.List(ctx, query)
}

// Delete removes a workflow and its published versions.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// DraftUpdate is a change to a draft.
type DraftUpdate struct {
	// Definition replaces the draft definition when non-nil.
	Definition *workflow.Definition

	// ExpectedVersion is the draft version the change is based on. Zero
	// saves unconditionally.
	ExpectedVersion int

	// PayloadSchemaMode replaces the mode when non-empty.
	PayloadSchemaMode contract.Mode

	// PinnedPayloadSchemaRef replaces the pinned ref when non-nil.
	PinnedPayloadSchemaRef *string
}

// SaveDraft applies upd and increments the draft version. It never touches
// the published version or the recorded validation result.
func (s *Service) SaveDraft(ctx context.Context, id string, upd DraftUpdate) (rec *Record, err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.save_draft", id)
	defer func() { endSpan(span, err) }()

	if upd.PayloadSchemaMode != "" && !upd.PayloadSchemaMode.Valid() {
		return nil, invalidMode(upd.PayloadSchemaMode)
	}
	if upd.Definition != nil && upd.Definition.ID != "" && upd.Definition.ID != id {
		return nil, &errors.ValidationError{
			Field:   "id",
			Message: "definition id " + upd.Definition.ID + " does not match workflow " + id,
		}
	}

	for attempt := 1; ; attempt++ {
		rec, err = s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if upd.ExpectedVersion > 0 && upd.ExpectedVersion != rec.DraftVersion {
			return nil, &errors.ConflictError{
				Resource: "workflow draft",
				ID:       id,
				Expected: upd.ExpectedVersion,
				Actual:   rec.DraftVersion,
			}
		}

		base := rec.DraftVersion
		applyDraftUpdate(rec, upd)
		rec.DraftVersion = base + 1

		err = s.store.Update(ctx, rec, base)
		if err == nil {
			break
		}
		var conflict *errors.ConflictError
		if upd.ExpectedVersion > 0 || !errors.As(err, &conflict) || attempt == maxSaveAttempts {
			return nil, err
		}
	}

	s.metrics.RecordDraftSaved()
	s.logger.Info("draft saved",
		log.WorkflowID(id),
		log.DraftVersion(rec.DraftVersion))
	span.SetAttributes(draftVersionAttr(rec.DraftVersion))
	return rec, nil
}

func applyDraftUpdate(rec *Record, upd DraftUpdate) {
	if upd.Definition != nil {
		def := upd.Definition.Clone()
		def.ID = rec.ID
		if def.Steps == nil {
			def.Steps = workflow.Steps{}
		}
		rec.DraftDefinition = def
	}
	if upd.PayloadSchemaMode != "" {
		rec.PayloadSchemaMode = upd.PayloadSchemaMode
	}
	if upd.PinnedPayloadSchemaRef != nil {
		rec.PinnedPayloadSchemaRef = *upd.PinnedPayloadSchemaRef
	}
}

// Validate runs full validation of def without recording anything.
func (s *Service) Validate(ctx context.Context, def *workflow.Definition, mode contract.Mode, pinnedRef string) Result {
	in := s.gather(ctx, def, mode, pinnedRef)
	r := Evaluate(in, s.validator)
	s.metrics.RecordValidation(string(r.Status))
	return r
}

// ValidationResult returns the recorded validation result of a workflow.
func (s *Service) ValidationResult(ctx context.Context, id string) (Validation, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Validation{}, err
	}
	return rec.Validation(), nil
}

// PublishOutcome is the result of a publish attempt.
type PublishOutcome struct {
	Record *Record `json:"record"`
	Result Result  `json:"result"`

	// Published is nil when the attempt was rejected.
	Published *PublishedVersion `json:"published,omitempty"`
}

// OK reports whether a new version was published.
func (o *PublishOutcome) OK() bool {
	return o != nil && o.Published != nil
}

// Publish validates the current draft. When validation passes it stores a
// new published version with a snapshot of the payload schema; either way
// the findings are recorded on the record. A rejected publish is not an
// error: inspect the outcome. Errors are returned only when the attempt
// could not be completed, in which case nothing was stored.
func (s *Service) Publish(ctx context.Context, id string) (out *PublishOutcome, err error) {
	start := s.now()
	ctx, span := s.startSpan(ctx, "lifecycle.publish", id)
	defer func() {
		endSpan(span, err)
		switch {
		case err != nil:
			s.metrics.RecordPublish(OutcomeFailed, s.now().Sub(start))
		case out.OK():
			s.metrics.RecordPublish(OutcomePublished, s.now().Sub(start))
		default:
			s.metrics.RecordPublish(OutcomeRejected, s.now().Sub(start))
		}
	}()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	base := rec.DraftVersion

	if err := s.machine.Trigger(rec, EventPublish); err != nil {
		return nil, err
	}

	in := s.gather(ctx, rec.DraftDefinition, rec.PayloadSchemaMode, rec.PinnedPayloadSchemaRef)
	result := Evaluate(in, s.validator)
	s.metrics.RecordValidation(string(result.Status))
	s.recordResult(rec, result)
	span.SetAttributes(validationAttr(result.Status))

	out = &PublishOutcome{Record: rec, Result: result}

	if !result.CanPublish() {
		if err := s.machine.Trigger(rec, EventPublishFailed); err != nil {
			return nil, err
		}
		if err := s.store.Publish(ctx, rec, nil, base); err != nil {
			return nil, err
		}
		s.logger.Warn("publish rejected",
			log.WorkflowID(id),
			log.DraftVersion(base),
			slog.String(log.ValidationStatusKey, string(result.Status)),
			slog.Int("errors", len(result.Errors)))
		return out, nil
	}

	if err := s.machine.Trigger(rec, EventPublishSucceeded); err != nil {
		return nil, err
	}
	pv := &PublishedVersion{
		WorkflowID:       id,
		Version:          rec.PublishedVersion + 1,
		DraftVersion:     base,
		Definition:       rec.DraftDefinition.Clone(),
		PayloadSchemaRef: result.Policy.EffectivePayloadSchemaRef,
		PayloadSchema:    cloneSchema(in.PayloadSchema.Value),
		Warnings:         cloneDiagnostics(result.Warnings),
		PublishedAt:      s.now(),
	}
	rec.PublishedVersion = pv.Version

	if err := s.store.Publish(ctx, rec, pv, base); err != nil {
		return nil, err
	}

	s.logger.Info("workflow published",
		log.WorkflowID(id),
		log.Version(pv.Version),
		log.DraftVersion(base),
		slog.Int("warnings", len(result.Warnings)))
	span.SetAttributes(publishedVersionAttr(pv.Version))

	out.Published = pv
	return out, nil
}

// PublishedVersion returns a published version. Version 0 selects the latest.
func (s *Service) PublishedVersion(ctx context.Context, id string, version int) (*PublishedVersion, error) {
	return s.store.GetPublished(ctx, id, version)
}

// SetPaused sets the administrative pause flag.
func (s *Service) SetPaused(ctx context.Context, id string, paused bool) (*Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Paused = paused
	if err := s.store.Update(ctx, rec, rec.DraftVersion); err != nil {
		return nil, err
	}
	s.logger.Info("pause flag changed", log.WorkflowID(id), slog.Bool("paused", paused))
	return rec, nil
}

func (s *Service) recordResult(rec *Record, r Result) {
	at := s.now()
	rec.ValidationStatus = r.Status
	rec.ValidationErrors = r.Errors
	rec.ValidationWarnings = r.Warnings
	rec.ValidatedAt = &at
}

// gather fetches every lookup validation of def needs. Failures become
// error lookups; the engine decides what they mean.
func (s *Service) gather(ctx context.Context, def *workflow.Definition, mode contract.Mode, pinnedRef string) Inputs {
	in := Inputs{
		Definition: def,
		Mode:       mode,
		PinnedRef:  pinnedRef,
		Registry:   s.collab.Registry,
	}

	in.Catalog = catalog.Loaded[*catalog.EventEntry](nil)
	if def != nil && def.Trigger != nil {
		in.Catalog = s.fetchEvent(ctx, def.Trigger.EventName)
	}
	in.KnownRefs = s.fetchRefs(ctx)

	// The policy only needs the refs here; schemas are fetched below.
	p := contract.ComputePolicy(in.contractInput())

	in.PayloadSchema = catalog.Loaded[*schema.Schema](nil)
	if ref := p.EffectivePayloadSchemaRef; ref != "" {
		in.PayloadSchema = s.fetchSchema(ctx, ref)
	}
	in.EventSchema = catalog.Loaded[*schema.Schema](nil)
	switch ref := p.TriggerSourceSchemaRef; {
	case ref == "":
	case ref == p.EffectivePayloadSchemaRef:
		in.EventSchema = in.PayloadSchema
	default:
		in.EventSchema = s.fetchSchema(ctx, ref)
	}
	return in
}

func (s *Service) fetchEvent(ctx context.Context, eventName string) catalog.Lookup[*catalog.EventEntry] {
	const service = "event catalog"
	if s.collab.Events == nil {
		return unavailableLookup(s, catalog.Failed[*catalog.EventEntry](notConfigured(service)), service)
	}
	l := catalog.Fetch(ctx, service, s.timeout, func(ctx context.Context) (*catalog.EventEntry, error) {
		return s.collab.Events.GetEventCatalogEntry(ctx, eventName, s.collab.Tenant)
	})
	return unavailableLookup(s, l, service)
}

func (s *Service) fetchRefs(ctx context.Context) catalog.Lookup[[]string] {
	const service = "schema registry"
	if s.collab.Schemas == nil {
		return unavailableLookup(s, catalog.Failed[[]string](notConfigured(service)), service)
	}
	return unavailableLookup(s, catalog.Fetch(ctx, service, s.timeout, s.collab.Schemas.ListRefs), service)
}

func (s *Service) fetchSchema(ctx context.Context, ref string) catalog.Lookup[*schema.Schema] {
	const service = "schema registry"
	if s.collab.Schemas == nil {
		return unavailableLookup(s, catalog.Failed[*schema.Schema](notConfigured(service)), service)
	}
	l := catalog.Fetch(ctx, service, s.timeout, func(ctx context.Context) (*schema.Schema, error) {
		return s.collab.Schemas.GetSchema(ctx, ref)
	})
	return unavailableLookup(s, l, service)
}

// unavailableLookup records and logs failed lookups and passes l through.
func unavailableLookup[T any](s *Service, l catalog.Lookup[T], service string) catalog.Lookup[T] {
	if l.IsError() {
		s.metrics.RecordLookupFailure(service)
		s.logger.Warn("lookup failed", slog.String(log.ServiceKey, service), log.Error(l.Err))
	}
	return l
}

func notConfigured(service string) error {
	return &errors.UnavailableError{Service: service, Cause: errors.New("not configured")}
}

func checkMode(m contract.Mode) (contract.Mode, error) {
	if m == "" {
		return contract.ModePinned, nil
	}
	if !m.Valid() {
		return "", invalidMode(m)
	}
	return m, nil
}

func invalidMode(m contract.Mode) error {
	return &errors.ValidationError{
		Field:      "payloadSchemaMode",
		Message:    "unknown payload schema mode " + string(m),
		Suggestion: "use pinned or inferred",
	}
}
