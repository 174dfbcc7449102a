package catalog

import (
	"context"
	"sync"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

// SchemaRefStatus tells whether the catalog could determine an event's
// payload schema.
type SchemaRefStatus string

const (
	SchemaRefKnown   SchemaRefStatus = "known"
	SchemaRefMissing SchemaRefStatus = "missing"
	SchemaRefUnknown SchemaRefStatus = "unknown"
)

// EventEntry is one event catalog entry.
type EventEntry struct {
	EventType              string          `yaml:"eventType" json:"eventType" validate:"required"`
	PayloadSchemaRef       string          `yaml:"payloadSchemaRef,omitempty" json:"payloadSchemaRef,omitempty" validate:"required_if=PayloadSchemaRefStatus known"`
	PayloadSchemaRefStatus SchemaRefStatus `yaml:"payloadSchemaRefStatus" json:"payloadSchemaRefStatus" validate:"required,oneof=known missing unknown"`
	Status                 string          `yaml:"status,omitempty" json:"status,omitempty"`
	Source                 string          `yaml:"source,omitempty" json:"source,omitempty"`
}

// EventCatalog looks up event catalog entries. Implementations return a
// *errors.NotFoundError when the event does not exist.
type EventCatalog interface {
	GetEventCatalogEntry(ctx context.Context, eventType, tenant string) (*EventEntry, error)
}

// MemoryEventCatalog is an in-memory EventCatalog shared by all tenants.
type MemoryEventCatalog struct {
	mu      sync.RWMutex
	entries map[string]EventEntry
}

// NewMemoryEventCatalog creates a catalog holding entries.
func NewMemoryEventCatalog(entries ...EventEntry) *MemoryEventCatalog {
	c := &MemoryEventCatalog{entries: make(map[string]EventEntry, len(entries))}
	for _, e := range entries {
		c.entries[e.EventType] = e
	}
	return c
}

// Put adds or replaces an entry.
func (c *MemoryEventCatalog) Put(e EventEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.EventType] = e
}

// GetEventCatalogEntry implements EventCatalog.
func (c *MemoryEventCatalog) GetEventCatalogEntry(ctx context.Context, eventType, tenant string) (*EventEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[eventType]
	if !ok {
		return nil, &stepflowerrors.NotFoundError{Resource: "event", ID: eventType}
	}
	return &e, nil
}
