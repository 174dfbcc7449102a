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
	"sort"
	"sync"
	"time"

	"github.com/tombee/stepflow/pkg/errors"
)

// Store persists registration records and published versions.
//
// A record has a draft side (definition, draft version, payload schema
// mode, pinned ref, pause flag) and a publish side (status, validation
// snapshot, published version). Update writes only the draft side and
// Publish writes only the publish side, so neither can roll back the
// other. Both are compare-and-swap writes: they fail with a
// *errors.ConflictError when the stored draft version differs from
// expectedDraftVersion. A failed write leaves nothing behind.
type Store interface {
	// Create stores a new record.
	Create(ctx context.Context, rec *Record) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*Record, error)

	// Update writes the draft side of rec. On success the publish side of
	// rec is refreshed from the store.
	Update(ctx context.Context, rec *Record, expectedDraftVersion int) error

	// Publish writes the publish side of rec. A non-nil pv is stored as a
	// new version and pv.Version must be one more than the stored published
	// version. A nil pv records a rejected attempt; the stored published
	// version must then still equal rec.PublishedVersion.
	Publish(ctx context.Context, rec *Record, pv *PublishedVersion, expectedDraftVersion int) error

	// GetPublished retrieves a published version. Version 0 selects the latest.
	GetPublished(ctx context.Context, id string, version int) (*PublishedVersion, error)

	// Delete deletes a record and its published versions.
	Delete(ctx context.Context, id string) error

	// List returns the records matching the query, ordered by ID.
	List(ctx context.Context, query *Query) ([]*Record, error)
}

// Query defines query parameters for listing records.
type Query struct {
	Status           *Status           // Filter by lifecycle status
	ValidationStatus *ValidationStatus // Filter by validation status
	Limit            int               // Maximum number of results (0 = no limit)
	Offset           int               // Number of results to skip
}

// Matches reports whether rec satisfies the query filters.
func (q *Query) Matches(rec *Record) bool {
	if q == nil {
		return true
	}
	if q.Status != nil && rec.Status != *q.Status {
		return false
	}
	if q.ValidationStatus != nil && rec.ValidationStatus != *q.ValidationStatus {
		return false
	}
	return true
}

// Page applies offset and limit.
func (q *Query) Page(recs []*Record) []*Record {
	if q == nil {
		return recs
	}
	if q.Offset > 0 {
		if q.Offset >= len(recs) {
			return []*Record{}
		}
		recs = recs[q.Offset:]
	}
	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}
	return recs
}

// MemoryStore is an in-memory implementation of Store.
// It is thread-safe and suitable for testing or single-instance deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*Record
	published map[string][]*PublishedVersion // ascending by version
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*Record),
		published: make(map[string][]*PublishedVersion),
	}
}

func checkRecord(rec *Record) error {
	if rec == nil {
		return &errors.ValidationError{Field: "record", Message: "record cannot be nil"}
	}
	if rec.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "workflow ID cannot be empty"}
	}
	return nil
}

// Create stores a new record.
func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return &errors.ConflictError{Resource: "workflow", ID: rec.ID, Message: "workflow already exists"}
	}

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	// Store a copy to prevent external modifications
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Get retrieves a record by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, &errors.ValidationError{Field: "id", Message: "workflow ID cannot be empty"}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return rec.Clone(), nil
}

// Update writes the draft side of rec.
func (s *MemoryStore) Update(ctx context.Context, rec *Record, expectedDraftVersion int) error {
	if err := checkRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkVersion(rec.ID, expectedDraftVersion); err != nil {
		return err
	}
	stored := s.records[rec.ID]
	copyPublishSide(rec, stored)
	rec.UpdatedAt = time.Now()
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Publish writes the publish side of rec and appends pv when non-nil.
func (s *MemoryStore) Publish(ctx context.Context, rec *Record, pv *PublishedVersion, expectedDraftVersion int) error {
	if err := checkRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkVersion(rec.ID, expectedDraftVersion); err != nil {
		return err
	}
	stored := s.records[rec.ID]
	if err := checkPublishedVersion(rec, pv, stored.PublishedVersion); err != nil {
		return err
	}
	if pv != nil {
		rec.PublishedVersion = pv.Version
	}

	next := stored.Clone()
	copyPublishSide(next, rec)
	next.UpdatedAt = time.Now()
	s.records[rec.ID] = next
	if pv != nil {
		s.published[rec.ID] = append(s.published[rec.ID], pv.Clone())
	}
	rec.UpdatedAt = next.UpdatedAt
	return nil
}

// copyPublishSide copies the fields only Publish may write from src to dst.
func copyPublishSide(dst, src *Record) {
	dst.Status = src.Status
	dst.ValidationStatus = src.ValidationStatus
	dst.ValidationErrors = cloneDiagnostics(src.ValidationErrors)
	dst.ValidationWarnings = cloneDiagnostics(src.ValidationWarnings)
	dst.ValidatedAt = nil
	if src.ValidatedAt != nil {
		at := *src.ValidatedAt
		dst.ValidatedAt = &at
	}
	dst.PublishedVersion = src.PublishedVersion
}

// checkPublishedVersion checks the published version a publish attempt was
// based on against the stored one.
func checkPublishedVersion(rec *Record, pv *PublishedVersion, stored int) error {
	base := rec.PublishedVersion
	if pv != nil {
		base = pv.Version - 1
	}
	if base != stored {
		return &errors.ConflictError{
			Resource: "published version",
			ID:       rec.ID,
			Expected: base,
			Actual:   stored,
		}
	}
	return nil
}

// checkVersion must be called with the write lock held.
func (s *MemoryStore) checkVersion(id string, expected int) error {
	stored, exists := s.records[id]
	if !exists {
		return &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	if stored.DraftVersion != expected {
		return &errors.ConflictError{
			Resource: "workflow draft",
			ID:       id,
			Expected: expected,
			Actual:   stored.DraftVersion,
		}
	}
	return nil
}

// GetPublished retrieves a published version.
func (s *MemoryStore) GetPublished(ctx context.Context, id string, version int) (*PublishedVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.published[id]
	if len(versions) == 0 {
		return nil, &errors.NotFoundError{Resource: "published version", ID: id}
	}
	if version == 0 {
		return versions[len(versions)-1].Clone(), nil
	}
	for _, pv := range versions {
		if pv.Version == version {
			return pv.Clone(), nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "published version", ID: publishedID(id, version)}
}

// Delete deletes a record and its published versions.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &errors.ValidationError{Field: "id", Message: "workflow ID cannot be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	delete(s.records, id)
	delete(s.published, id)
	return nil
}

// List returns the records matching the query.
func (s *MemoryStore) List(ctx context.Context, query *Query) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*Record{}
	for _, rec := range s.records {
		if query.Matches(rec) {
			results = append(results, rec.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return query.Page(results), nil
}

func publishedID(id string, version int) string {
	return fmt.Sprintf("%s@v%d", id, version)
}
