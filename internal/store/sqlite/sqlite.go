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

// Package sqlite provides a SQLite implementation of lifecycle.Store for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/contract"
	"github.com/tombee/stepflow/pkg/workflow/lifecycle"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

var _ lifecycle.Store = (*Store)(nil)

// Store is a SQLite storage backend for workflow records.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens the database and runs migrations.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			draft_definition TEXT NOT NULL,
			draft_version INTEGER NOT NULL,
			status TEXT NOT NULL,
			validation_status TEXT NOT NULL,
			validation_errors TEXT,
			validation_warnings TEXT,
			validated_at TEXT,
			payload_schema_mode TEXT NOT NULL,
			pinned_payload_schema_ref TEXT,
			published_version INTEGER DEFAULT 0,
			paused INTEGER DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_validation_status ON workflows(validation_status)`,
		`CREATE TABLE IF NOT EXISTS published_versions (
			workflow_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			draft_version INTEGER NOT NULL,
			definition TEXT NOT NULL,
			payload_schema_ref TEXT,
			payload_schema TEXT,
			warnings TEXT,
			published_at TEXT NOT NULL,
			PRIMARY KEY (workflow_id, version),
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const recordColumns = `id, draft_definition, draft_version, status, validation_status,
	validation_errors, validation_warnings, validated_at, payload_schema_mode,
	pinned_payload_schema_ref, published_version, paused, created_at, updated_at`

// row holds the encoded columns of a record.
type row struct {
	definition string
	errors     string
	warnings   string
}

func encodeRecord(rec *lifecycle.Record) (row, error) {
	var r row
	def, err := json.Marshal(rec.DraftDefinition)
	if err != nil {
		return r, fmt.Errorf("failed to marshal definition: %w", err)
	}
	errs, err := json.Marshal(rec.ValidationErrors)
	if err != nil {
		return r, fmt.Errorf("failed to marshal validation errors: %w", err)
	}
	warns, err := json.Marshal(rec.ValidationWarnings)
	if err != nil {
		return r, fmt.Errorf("failed to marshal validation warnings: %w", err)
	}
	return row{definition: string(def), errors: string(errs), warnings: string(warns)}, nil
}

// Create stores a new record.
func (s *Store) Create(ctx context.Context, rec *lifecycle.Record) error {
	if rec == nil || rec.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "workflow ID cannot be empty"}
	}
	r, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID, r.definition, rec.DraftVersion, string(rec.Status), string(rec.ValidationStatus),
		r.errors, r.warnings, formatTime(rec.ValidatedAt), string(rec.PayloadSchemaMode),
		nullString(rec.PinnedPayloadSchemaRef), rec.PublishedVersion, rec.Paused,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ConflictError{Resource: "workflow", ID: rec.ID, Message: "workflow already exists"}
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*lifecycle.Record, error) {
	if id == "" {
		return nil, &errors.ValidationError{Field: "id", Message: "workflow ID cannot be empty"}
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM workflows WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return rec, nil
}

// Update writes the draft side of rec if its stored draft version is
// expectedDraftVersion, then refreshes the publish side of rec.
func (s *Store) Update(ctx context.Context, rec *lifecycle.Record, expectedDraftVersion int) error {
	if rec == nil || rec.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "workflow ID cannot be empty"}
	}
	r, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE workflows SET
			draft_definition = ?, draft_version = ?, payload_schema_mode = ?,
			pinned_payload_schema_ref = ?, paused = ?, updated_at = ?
		WHERE id = ? AND draft_version = ?
	`,
		r.definition, rec.DraftVersion, string(rec.PayloadSchemaMode),
		nullString(rec.PinnedPayloadSchemaRef), rec.Paused, now.Format(time.RFC3339Nano),
		rec.ID, expectedDraftVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return draftConflict(ctx, tx, rec.ID, expectedDraftVersion)
	}

	stored, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM workflows WHERE id = ?`, rec.ID))
	if err != nil {
		return fmt.Errorf("failed to read workflow: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update: %w", err)
	}

	rec.Status = stored.Status
	rec.ValidationStatus = stored.ValidationStatus
	rec.ValidationErrors = stored.ValidationErrors
	rec.ValidationWarnings = stored.ValidationWarnings
	rec.ValidatedAt = stored.ValidatedAt
	rec.PublishedVersion = stored.PublishedVersion
	rec.UpdatedAt = now
	return nil
}

// draftConflict explains why a draft-version guarded write matched no row.
func draftConflict(ctx context.Context, tx *sql.Tx, id string, expected int) error {
	var actual int
	err := tx.QueryRowContext(ctx, `SELECT draft_version FROM workflows WHERE id = ?`, id).Scan(&actual)
	if err == sql.ErrNoRows {
		return &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to read draft version: %w", err)
	}
	return &errors.ConflictError{Resource: "workflow draft", ID: id, Expected: expected, Actual: actual}
}

// Publish writes the publish side of rec and, when pv is non-nil, inserts
// pv in the same transaction.
func (s *Store) Publish(ctx context.Context, rec *lifecycle.Record, pv *lifecycle.PublishedVersion, expectedDraftVersion int) error {
	if rec == nil || rec.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "workflow ID cannot be empty"}
	}
	r, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	base, next := rec.PublishedVersion, rec.PublishedVersion
	var def, warnings, snapshot []byte
	if pv != nil {
		base, next = pv.Version-1, pv.Version
		if def, err = json.Marshal(pv.Definition); err != nil {
			return fmt.Errorf("failed to marshal definition: %w", err)
		}
		if warnings, err = json.Marshal(pv.Warnings); err != nil {
			return fmt.Errorf("failed to marshal warnings: %w", err)
		}
		if pv.PayloadSchema != nil {
			if snapshot, err = json.Marshal(pv.PayloadSchema); err != nil {
				return fmt.Errorf("failed to marshal payload schema: %w", err)
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE workflows SET
			status = ?, validation_status = ?, validation_errors = ?,
			validation_warnings = ?, validated_at = ?, published_version = ?, updated_at = ?
		WHERE id = ? AND draft_version = ? AND published_version = ?
	`,
		string(rec.Status), string(rec.ValidationStatus), r.errors,
		r.warnings, formatTime(rec.ValidatedAt), next, now.Format(time.RFC3339Nano),
		rec.ID, expectedDraftVersion, base,
	)
	if err != nil {
		return fmt.Errorf("failed to record publish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var draft, current int
		err := tx.QueryRowContext(ctx, `SELECT draft_version, published_version FROM workflows WHERE id = ?`, rec.ID).Scan(&draft, &current)
		switch {
		case err == sql.ErrNoRows:
			return &errors.NotFoundError{Resource: "workflow", ID: rec.ID}
		case err != nil:
			return fmt.Errorf("failed to read workflow versions: %w", err)
		case draft != expectedDraftVersion:
			return &errors.ConflictError{Resource: "workflow draft", ID: rec.ID, Expected: expectedDraftVersion, Actual: draft}
		default:
			return &errors.ConflictError{Resource: "published version", ID: rec.ID, Expected: base, Actual: current}
		}
	}

	if pv != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO published_versions (workflow_id, version, draft_version, definition,
				payload_schema_ref, payload_schema, warnings, published_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			pv.WorkflowID, pv.Version, pv.DraftVersion, string(def),
			nullString(pv.PayloadSchemaRef), nullBytes(snapshot), string(warnings),
			pv.PublishedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to insert published version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit publish: %w", err)
	}
	rec.PublishedVersion = next
	rec.UpdatedAt = now
	return nil
}

// GetPublished retrieves a published version. Version 0 selects the latest.
func (s *Store) GetPublished(ctx context.Context, id string, version int) (*lifecycle.PublishedVersion, error) {
	query := `
		SELECT workflow_id, version, draft_version, definition, payload_schema_ref,
			payload_schema, warnings, published_at
		FROM published_versions WHERE workflow_id = ?
	`
	args := []any{id}
	if version > 0 {
		query += " AND version = ?"
		args = append(args, version)
	} else {
		query += " ORDER BY version DESC LIMIT 1"
	}

	var pv lifecycle.PublishedVersion
	var def string
	var ref, snapshot, warnings sql.NullString
	var publishedAt string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&pv.WorkflowID, &pv.Version, &pv.DraftVersion, &def, &ref,
		&snapshot, &warnings, &publishedAt,
	)
	if err == sql.ErrNoRows {
		notFound := id
		if version > 0 {
			notFound = fmt.Sprintf("%s@v%d", id, version)
		}
		return nil, &errors.NotFoundError{Resource: "published version", ID: notFound}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get published version: %w", err)
	}

	if err := json.Unmarshal([]byte(def), &pv.Definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}
	pv.PayloadSchemaRef = ref.String
	if snapshot.Valid && snapshot.String != "" {
		sc, err := schema.Parse([]byte(snapshot.String))
		if err != nil {
			return nil, fmt.Errorf("failed to parse payload schema snapshot: %w", err)
		}
		pv.PayloadSchema = sc
	}
	if pv.Warnings, err = decodeDiagnostics(warnings); err != nil {
		return nil, err
	}
	pv.PublishedAt, _ = time.Parse(time.RFC3339Nano, publishedAt)
	return &pv, nil
}

// Delete deletes a record and, by cascade, its published versions.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &errors.ValidationError{Field: "id", Message: "workflow ID cannot be empty"}
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return nil
}

// List returns the records matching the query, ordered by ID.
func (s *Store) List(ctx context.Context, q *lifecycle.Query) ([]*lifecycle.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM workflows WHERE 1=1`
	args := []any{}

	if q != nil && q.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*q.Status))
	}
	if q != nil && q.ValidationStatus != nil {
		query += " AND validation_status = ?"
		args = append(args, string(*q.ValidationStatus))
	}
	query += " ORDER BY id"
	if q != nil && q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	} else if q != nil && q.Offset > 0 {
		query += " LIMIT -1"
	}
	if q != nil && q.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	recs := []*lifecycle.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}
	return recs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*lifecycle.Record, error) {
	var rec lifecycle.Record
	var def string
	var status, validation, mode string
	var errs, warns, validatedAt, pinned sql.NullString
	var createdAt, updatedAt string

	err := sc.Scan(
		&rec.ID, &def, &rec.DraftVersion, &status, &validation,
		&errs, &warns, &validatedAt, &mode,
		&pinned, &rec.PublishedVersion, &rec.Paused, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(def), &rec.DraftDefinition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}
	if rec.DraftDefinition != nil && rec.DraftDefinition.Steps == nil {
		rec.DraftDefinition.Steps = workflow.Steps{}
	}
	rec.Status = lifecycle.Status(status)
	rec.ValidationStatus = lifecycle.ValidationStatus(validation)
	rec.PayloadSchemaMode = contract.Mode(mode)
	rec.PinnedPayloadSchemaRef = pinned.String

	if rec.ValidationErrors, err = decodeDiagnostics(errs); err != nil {
		return nil, err
	}
	if rec.ValidationWarnings, err = decodeDiagnostics(warns); err != nil {
		return nil, err
	}
	if validatedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, validatedAt.String)
		rec.ValidatedAt = &t
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

func decodeDiagnostics(s sql.NullString) (workflow.Diagnostics, error) {
	d := workflow.Diagnostics{}
	if !s.Valid || s.String == "" || s.String == "null" {
		return d, nil
	}
	if err := json.Unmarshal([]byte(s.String), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
	}
	return d, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
