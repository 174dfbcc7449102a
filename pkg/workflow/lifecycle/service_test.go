package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
	"github.com/tombee/stepflow/pkg/workflow/contract"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

type recordingMetrics struct {
	mu          sync.Mutex
	publishes   []string
	validations []string
	saves       int
	failures    []string
}

func (m *recordingMetrics) RecordPublish(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishes = append(m.publishes, outcome)
}

func (m *recordingMetrics) RecordValidation(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations = append(m.validations, status)
}

func (m *recordingMetrics) RecordDraftSaved() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
}

func (m *recordingMetrics) RecordLookupFailure(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, service)
}

// brokenSchemas fails every call.
type brokenSchemas struct{}

func (brokenSchemas) GetSchema(context.Context, string) (*schema.Schema, error) {
	return nil, errors.New("connection refused")
}

func (brokenSchemas) ListRefs(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

type fixture struct {
	svc     *Service
	store   *MemoryStore
	schemas *catalog.MemorySchemaSource
	metrics *recordingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: NewMemoryStore(),
		schemas: catalog.NewMemorySchemaSource(map[string]*schema.Schema{
			ticketRef: mustSchema(t, ticketSchema),
			orderRef:  mustSchema(t, `{"type":"object","properties":{"orderId":{"type":"string"}}}`),
		}),
		metrics: &recordingMetrics{},
	}
	events := catalog.NewMemoryEventCatalog(catalog.EventEntry{
		EventType:              "ticket.created",
		PayloadSchemaRef:       ticketRef,
		PayloadSchemaRefStatus: catalog.SchemaRefKnown,
	})
	reg := catalog.NewRegistry(
		[]catalog.Node{{ID: "log.write"}},
		[]catalog.Action{{ID: "tickets.get", Version: 1}},
	)
	f.svc = NewService(f.store, Collaborators{Schemas: f.schemas, Events: events, Registry: reg},
		WithMetrics(f.metrics),
		WithLookupTimeout(time.Second))
	return f
}

func (f *fixture) create(t *testing.T, def *workflow.Definition) *Record {
	t.Helper()
	rec, err := f.svc.Create(context.Background(), CreateRequest{Definition: def})
	require.NoError(t, err)
	return rec
}

func triggeredDefinition() *workflow.Definition {
	def := manualDefinition(
		&workflow.NodeStep{ID: "fetch", Type: workflow.NodeTypeActionCall, Config: map[string]any{
			"actionId": "tickets.get", "saveAs": "ticket",
		}},
		logStep("log", "${vars.ticket} ${payload.id}"),
	)
	def.Trigger = &workflow.Trigger{Type: workflow.TriggerTypeEvent, EventName: "ticket.created"}
	return def
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.create(t, triggeredDefinition())
	assert.Equal(t, "wf-1", rec.ID)
	assert.Equal(t, 1, rec.DraftVersion)
	assert.Equal(t, StatusDraft, rec.Status)
	assert.Equal(t, ValidationUnknown, rec.ValidationStatus)
	assert.Equal(t, contract.ModePinned, rec.PayloadSchemaMode)

	_, err := f.svc.Create(ctx, CreateRequest{Definition: triggeredDefinition()})
	var conflict *errors.ConflictError
	assert.ErrorAs(t, err, &conflict)

	blank, err := f.svc.Create(ctx, CreateRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, blank.ID)
	assert.NotNil(t, blank.DraftDefinition.Steps)

	_, err = f.svc.Create(ctx, CreateRequest{PayloadSchemaMode: "guess"})
	var ve *errors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestService_PublishLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, triggeredDefinition())

	out, err := f.svc.Publish(ctx, "wf-1")
	require.NoError(t, err)
	require.True(t, out.OK(), out.Result.Errors.Summary())
	assert.Equal(t, 1, out.Published.Version)
	assert.Equal(t, 1, out.Published.DraftVersion)
	assert.Equal(t, ticketRef, out.Published.PayloadSchemaRef)
	require.NotNil(t, out.Published.PayloadSchema)
	assert.Equal(t, StatusPublished, out.Record.Status)
	assert.NotNil(t, out.Record.ValidatedAt)

	// Saving a draft leaves the published version alone.
	next := triggeredDefinition()
	next.Name = "renamed"
	rec, err := f.svc.SaveDraft(ctx, "wf-1", DraftUpdate{Definition: next, ExpectedVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.DraftVersion)
	assert.Equal(t, 1, rec.PublishedVersion)
	assert.Equal(t, StatusPublished, rec.Status)

	pv, err := f.svc.PublishedVersion(ctx, "wf-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, pv.Version)
	assert.Empty(t, pv.Definition.Name)

	// A broken draft is rejected and the live version stays.
	broken := triggeredDefinition()
	broken.Steps = append(broken.Steps, logStep("bad", "${bogus.id}"))
	_, err = f.svc.SaveDraft(ctx, "wf-1", DraftUpdate{Definition: broken})
	require.NoError(t, err)

	out, err = f.svc.Publish(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, out.OK())
	assert.Equal(t, StatusPublished, out.Record.Status)
	assert.Equal(t, ValidationError, out.Record.ValidationStatus)

	v, err := f.svc.ValidationResult(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, ValidationError, v.Status)
	assert.Equal(t, []string{workflow.CodeUnknownRoot}, codesOf(v.Errors))

	pv, err = f.svc.PublishedVersion(ctx, "wf-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, pv.Version)

	// Fixing the draft publishes version 2.
	_, err = f.svc.SaveDraft(ctx, "wf-1", DraftUpdate{Definition: next})
	require.NoError(t, err)
	out, err = f.svc.Publish(ctx, "wf-1")
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, 2, out.Published.Version)
	assert.Equal(t, 4, out.Published.DraftVersion)

	assert.Equal(t, []string{OutcomePublished, OutcomeRejected, OutcomePublished}, f.metrics.publishes)
	assert.Equal(t, 3, f.metrics.saves)
}

func TestService_FirstPublishRejectedReturnsToDraft(t *testing.T) {
	f := newFixture(t)
	f.create(t, manualDefinition(logStep("bad", "${bogus.id}")))

	out, err := f.svc.Publish(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.False(t, out.OK())
	assert.Equal(t, StatusDraft, out.Record.Status)

	rec, err := f.svc.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, rec.Status)
	assert.Equal(t, ValidationError, rec.ValidationStatus)
	assert.Equal(t, 1, rec.DraftVersion)
}

func TestService_SaveDraftConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, manualDefinition())

	_, err := f.svc.SaveDraft(ctx, "wf-1", DraftUpdate{ExpectedVersion: 1, Definition: manualDefinition()})
	require.NoError(t, err)

	_, err = f.svc.SaveDraft(ctx, "wf-1", DraftUpdate{ExpectedVersion: 1, Definition: manualDefinition()})
	var conflict *errors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.Actual)

	other := manualDefinition()
	other.ID = "someone-else"
	_, err = f.svc.SaveDraft(ctx, "wf-1", DraftUpdate{Definition: other})
	var ve *errors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestService_SaveDraftSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, manualDefinition())

	pinned := orderRef
	rec, err := f.svc.SaveDraft(ctx, "wf-1", DraftUpdate{
		PayloadSchemaMode:      contract.ModeInferred,
		PinnedPayloadSchemaRef: &pinned,
	})
	require.NoError(t, err)
	assert.Equal(t, contract.ModeInferred, rec.PayloadSchemaMode)
	assert.Equal(t, orderRef, rec.PinnedPayloadSchemaRef)
	assert.Equal(t, ticketRef, rec.DraftDefinition.PayloadSchemaRef)

	_, err = f.svc.SaveDraft(ctx, "wf-1", DraftUpdate{PayloadSchemaMode: "guess"})
	var ve *errors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestService_Validate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.svc.Validate(ctx, triggeredDefinition(), contract.ModeInferred, "")
	assert.Empty(t, r.Errors)
	assert.Equal(t, ticketRef, r.Policy.EffectivePayloadSchemaRef)

	def := triggeredDefinition()
	def.Trigger.EventName = "nobody.listens"
	r = f.svc.Validate(ctx, def, contract.ModePinned, "")
	assert.Equal(t, ValidationError, r.Status)
	assert.Contains(t, codesOf(r.Errors), workflow.CodeTriggerSchema)
}

func TestService_CollaboratorOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, manualDefinition())

	svc := NewService(f.store, Collaborators{Schemas: brokenSchemas{}}, WithMetrics(f.metrics))
	out, err := svc.Publish(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, out.OK())
	assert.Equal(t, ValidationUnknown, out.Result.Status)
	assert.Equal(t, []string{workflow.CodeUnavailableSchemas}, codesOf(out.Result.Errors))
	assert.Contains(t, f.metrics.failures, "schema registry")

	_, err = svc.PublishedVersion(ctx, "wf-1", 0)
	var nf *errors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestService_MissingCollaborators(t *testing.T) {
	svc := NewService(NewMemoryStore(), Collaborators{})
	r := svc.Validate(context.Background(), triggeredDefinition(), contract.ModePinned, "")

	assert.Equal(t, ValidationUnknown, r.Status)
	assert.Contains(t, codesOf(r.Errors), workflow.CodeUnavailableCatalog)
	assert.Contains(t, codesOf(r.Errors), workflow.CodeUnavailableSchemas)
}

func TestService_DeleteAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, manualDefinition())

	recs, err := f.svc.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	require.NoError(t, f.svc.Delete(ctx, "wf-1"))
	_, err = f.svc.Get(ctx, "wf-1")
	var nf *errors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

// interleavingStore runs beforeUpdate once, ahead of the next Update.
type interleavingStore struct {
	Store
	beforeUpdate func()
}

func (s *interleavingStore) Update(ctx context.Context, rec *Record, expectedDraftVersion int) error {
	if fn := s.beforeUpdate; fn != nil {
		s.beforeUpdate = nil
		fn()
	}
	return s.Store.Update(ctx, rec, expectedDraftVersion)
}

func TestService_SaveDraftDuringPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, manualDefinition(logStep("s1", "${payload.id}")))

	out, err := f.svc.Publish(ctx, "wf-1")
	require.NoError(t, err)
	require.True(t, out.OK())

	wrapped := &interleavingStore{Store: f.store}
	wrapped.beforeUpdate = func() {
		out, err := f.svc.Publish(ctx, "wf-1")
		require.NoError(t, err)
		require.True(t, out.OK())
		require.Equal(t, 2, out.Published.Version)
	}
	editor := NewService(wrapped, Collaborators{})

	rec, err := editor.SaveDraft(ctx, "wf-1", DraftUpdate{
		Definition: manualDefinition(logStep("s1", "ticket ${payload.id}")),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.DraftVersion)
	assert.Equal(t, 2, rec.PublishedVersion)
	assert.Equal(t, StatusPublished, rec.Status)

	stored, err := f.svc.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.PublishedVersion)
	assert.Equal(t, StatusPublished, stored.Status)

	out, err = f.svc.Publish(ctx, "wf-1")
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, 3, out.Published.Version)

	for v := 1; v <= 3; v++ {
		pv, err := f.svc.PublishedVersion(ctx, "wf-1", v)
		require.NoError(t, err)
		assert.Equal(t, v, pv.Version)
	}
	v2, err := f.svc.PublishedVersion(ctx, "wf-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, v2.DraftVersion)
}
