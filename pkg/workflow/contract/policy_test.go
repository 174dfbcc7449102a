package contract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
)

const (
	ticketRef = "payload.TicketPayload.v1"
	orderRef  = "payload.OrderCreated.v1"
)

func eventDef(mapping map[string]workflow.Expr) *workflow.Definition {
	return &workflow.Definition{
		ID:               "wf",
		PayloadSchemaRef: ticketRef,
		Trigger: &workflow.Trigger{
			Type:           workflow.TriggerTypeEvent,
			EventName:      "order.created",
			PayloadMapping: mapping,
		},
		Steps: workflow.Steps{},
	}
}

func entry(ref string, status catalog.SchemaRefStatus) catalog.Lookup[*catalog.EventEntry] {
	return catalog.Loaded(&catalog.EventEntry{EventType: "order.created", PayloadSchemaRef: ref, PayloadSchemaRefStatus: status})
}

func known(refs ...string) catalog.Lookup[[]string] {
	return catalog.Loaded(refs)
}

func codes(d workflow.Diagnostics) []string {
	out := []string{}
	for _, e := range d {
		out = append(out, e.Code)
	}
	return out
}

func TestComputePolicy_ManualInferredMustPin(t *testing.T) {
	p := ComputePolicy(Input{
		Definition: &workflow.Definition{ID: "wf"},
		Mode:       ModeInferred,
		KnownRefs:  known(ticketRef),
	})
	assert.False(t, p.PayloadSchemaPolicy.OK())
	assert.Contains(t, p.PayloadSchemaPolicy.Reason, "must pin")
	assert.True(t, p.TriggerSchemaPolicy.OK())
	assert.False(t, p.CanPublish)
	assert.False(t, p.CanRun)
	assert.Empty(t, p.EffectivePayloadSchemaRef)
}

func TestComputePolicy_TriggerSchemaMatches(t *testing.T) {
	p := ComputePolicy(Input{
		Definition: eventDef(nil),
		Mode:       ModePinned,
		Catalog:    entry(ticketRef, catalog.SchemaRefKnown),
		KnownRefs:  known(ticketRef, orderRef),
	})
	assert.Equal(t, ticketRef, p.EffectivePayloadSchemaRef)
	assert.Equal(t, ticketRef, p.TriggerSourceSchemaRef)
	assert.False(t, p.MappingRequired)
	assert.True(t, p.CanPublish)
	assert.Empty(t, p.Diagnostics())
}

func TestComputePolicy_MismatchWithoutMapping(t *testing.T) {
	p := ComputePolicy(Input{
		Definition: eventDef(nil),
		Mode:       ModePinned,
		Catalog:    entry(orderRef, catalog.SchemaRefKnown),
		KnownRefs:  known(ticketRef, orderRef),
	})
	assert.True(t, p.MappingRequired)
	assert.False(t, p.MappingPresent)
	assert.False(t, p.CanPublish)

	diags := p.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, workflow.CodeMappingRequired, diags[0].Code)
	assert.Equal(t, "root.trigger.payloadMapping", diags[0].StepPath)
	assert.Contains(t, diags[0].Message, orderRef)
	assert.Contains(t, diags[0].Message, ticketRef)
}

func TestComputePolicy_MismatchWithMapping(t *testing.T) {
	p := ComputePolicy(Input{
		Definition: eventDef(map[string]workflow.Expr{"ticket": workflow.E("${payload.order}")}),
		Mode:       ModePinned,
		Catalog:    entry(orderRef, catalog.SchemaRefKnown),
		KnownRefs:  known(ticketRef),
	})
	assert.True(t, p.MappingRequired)
	assert.True(t, p.MappingPresent)
	assert.True(t, p.CanPublish)
}

func TestComputePolicy_EmptyMappingDoesNotCount(t *testing.T) {
	p := ComputePolicy(Input{
		Definition: eventDef(map[string]workflow.Expr{"ticket": {}}),
		Catalog:    entry(orderRef, catalog.SchemaRefKnown),
		KnownRefs:  known(ticketRef),
	})
	assert.False(t, p.MappingPresent)
	assert.False(t, p.CanPublish)
}

func TestComputePolicy_SourceOverride(t *testing.T) {
	def := eventDef(nil)
	def.Trigger.SourcePayloadSchemaRef = ticketRef
	p := ComputePolicy(Input{
		Definition: def,
		Catalog:    entry(orderRef, catalog.SchemaRefKnown),
		KnownRefs:  known(ticketRef),
	})
	assert.Equal(t, ticketRef, p.TriggerSourceSchemaRef)
	assert.False(t, p.MappingRequired)
}

func TestComputePolicy_Inferred(t *testing.T) {
	def := eventDef(nil)
	def.PayloadSchemaRef = ""
	p := ComputePolicy(Input{
		Definition: def,
		Mode:       ModeInferred,
		Catalog:    entry(orderRef, catalog.SchemaRefKnown),
		KnownRefs:  known(orderRef),
	})
	assert.Equal(t, orderRef, p.EffectivePayloadSchemaRef)
	assert.False(t, p.MappingRequired)
	assert.True(t, p.CanPublish)

	p = ComputePolicy(Input{
		Definition: def,
		Mode:       ModeInferred,
		Catalog:    entry("", catalog.SchemaRefMissing),
		KnownRefs:  known(orderRef),
	})
	assert.Equal(t, []string{workflow.CodeTriggerSchema, workflow.CodePayloadSchema}, codes(p.Diagnostics()))
	assert.Contains(t, p.PayloadSchemaPolicy.Reason, "could be inferred")
}

func TestComputePolicy_TriggerErrors(t *testing.T) {
	tests := []struct {
		name    string
		catalog catalog.Lookup[*catalog.EventEntry]
		want    string
		reason  string
	}{
		{"unreachable", catalog.Failed[*catalog.EventEntry](errors.New("dial tcp: refused")), workflow.CodeUnavailableCatalog, "unavailable"},
		{"absent", catalog.Loaded[*catalog.EventEntry](nil), workflow.CodeTriggerSchema, "not in the event catalog"},
		{"status missing", entry("", catalog.SchemaRefMissing), workflow.CodeTriggerSchema, `status "missing"`},
		{"status unknown", entry(ticketRef, catalog.SchemaRefUnknown), workflow.CodeTriggerSchema, `status "unknown"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ComputePolicy(Input{Definition: eventDef(nil), Catalog: tt.catalog, KnownRefs: known(ticketRef)})
			assert.Equal(t, StatusError, p.TriggerSchemaPolicy.Status)
			assert.Equal(t, tt.want, p.TriggerSchemaPolicy.Code)
			assert.Contains(t, p.TriggerSchemaPolicy.Reason, tt.reason)
			assert.False(t, p.CanPublish)
		})
	}
}

func TestComputePolicy_KnownRefsGating(t *testing.T) {
	def := &workflow.Definition{ID: "wf", PayloadSchemaRef: ticketRef}

	absent := ComputePolicy(Input{Definition: def, KnownRefs: known(orderRef)})
	assert.False(t, absent.PayloadSchemaPolicy.OK())
	assert.Contains(t, absent.PayloadSchemaPolicy.Reason, "not registered")

	loading := ComputePolicy(Input{Definition: def, KnownRefs: catalog.Loading[[]string]()})
	assert.True(t, loading.PayloadSchemaPolicy.OK())
	assert.True(t, loading.PayloadSchemaPolicy.Deferred())
	assert.True(t, loading.Pending())
	assert.Empty(t, loading.Diagnostics())

	down := ComputePolicy(Input{Definition: def, KnownRefs: catalog.Failed[[]string](errors.New("timeout"))})
	assert.Equal(t, []string{workflow.CodeUnavailableSchemas}, codes(down.Diagnostics()))
	assert.True(t, down.Diagnostics()[0].IsUnavailable())
}

func TestComputePolicy_CatalogLoadingDefers(t *testing.T) {
	p := ComputePolicy(Input{Definition: eventDef(nil), KnownRefs: known(ticketRef)})
	assert.True(t, p.TriggerSchemaPolicy.Deferred())
	assert.False(t, p.MappingRequired)
	assert.Empty(t, p.Diagnostics())
}

func TestComputePolicy_PinnedOverride(t *testing.T) {
	p := ComputePolicy(Input{
		Definition: &workflow.Definition{PayloadSchemaRef: "ignored"},
		Mode:       ModePinned,
		PinnedRef:  ticketRef,
		KnownRefs:  known(ticketRef),
	})
	assert.Equal(t, ticketRef, p.EffectivePayloadSchemaRef)
	assert.True(t, p.CanPublish)

	empty := ComputePolicy(Input{Definition: &workflow.Definition{}, KnownRefs: known(ticketRef)})
	assert.Contains(t, empty.PayloadSchemaPolicy.Reason, "requires a payloadSchemaRef")
}

func TestComputePolicy_Deterministic(t *testing.T) {
	in := Input{
		Definition: eventDef(nil),
		Catalog:    entry(orderRef, catalog.SchemaRefKnown),
		KnownRefs:  known(ticketRef, orderRef),
	}
	assert.Equal(t, ComputePolicy(in), ComputePolicy(in))
}

func TestMode_Valid(t *testing.T) {
	assert.True(t, ModePinned.Valid())
	assert.True(t, ModeInferred.Valid())
	assert.False(t, Mode("auto").Valid())
}

func TestComputePolicy_EmptyRegistryRejectsRef(t *testing.T) {
	p := ComputePolicy(Input{
		Definition: &workflow.Definition{ID: "wf", PayloadSchemaRef: ticketRef},
		Mode:       ModePinned,
		KnownRefs:  known(),
	})
	assert.False(t, p.PayloadSchemaPolicy.OK())
	assert.Contains(t, p.PayloadSchemaPolicy.Reason, "is not registered")
	assert.Equal(t, []string{workflow.CodePayloadSchema}, codes(p.Diagnostics()))
	assert.False(t, p.CanPublish)
}
