// Package sqlite persists tags, relationships, transition records, and the
// demo entity-record table behind the app package ports.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/weft/internal/app"
	"github.com/hylla/weft/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository implements app.Repository plus the entity-record contracts
// over one sqlite database.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens an in-memory database for tests and ephemeral runs.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate ensures tables and indexes. Statements are idempotent so existing
// databases remain readable.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS tags (
			object_type TEXT NOT NULL,
			object_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			applied_by_kind TEXT NOT NULL,
			applied_by_id TEXT NOT NULL,
			PRIMARY KEY(object_type, object_id, tag)
		);`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			source_type TEXT NOT NULL,
			source_id TEXT NOT NULL,
			name TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			created_by_kind TEXT NOT NULL,
			created_by_id TEXT NOT NULL,
			removed_at TEXT,
			removed_by_kind TEXT,
			removed_by_id TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS transition_records (
			id TEXT PRIMARY KEY,
			object_type TEXT NOT NULL,
			object_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			from_state TEXT NOT NULL DEFAULT '',
			to_state TEXT NOT NULL,
			actor_kind TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			forced INTEGER NOT NULL DEFAULT 0,
			justification TEXT NOT NULL DEFAULT '',
			report_json TEXT NOT NULL DEFAULT '[]',
			occurred_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS records (
			object_type TEXT NOT NULL,
			object_id TEXT NOT NULL,
			fields_json TEXT NOT NULL DEFAULT '{}',
			display_value TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			PRIMARY KEY(object_type, object_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tags_object_type_tag ON tags(object_type, tag);`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_type, source_id);`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_type, target_id);`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_source_name ON relationships(source_type, name);`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_removed ON relationships(removed_at) WHERE removed_at IS NOT NULL;`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_relationships_active_quadruple
			ON relationships(source_type, source_id, name, target_type, target_id)
			WHERE removed_at IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_transition_records_object ON transition_records(object_type, object_id, occurred_at ASC, id ASC);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// ApplyTag inserts one tag fact. Applying the same tag twice is rejected.
func (r *Repository) ApplyTag(ctx context.Context, t domain.Tag) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tags(object_type, object_id, tag, applied_at, applied_by_kind, applied_by_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ObjectType, t.ObjectID, t.Tag, ts(t.AppliedAt), string(t.AppliedBy.Kind), t.AppliedBy.ID)
	if isUniqueErr(err) {
		return fmt.Errorf("%w: %s on %s/%s", domain.ErrDuplicateTag, t.Tag, t.ObjectType, t.ObjectID)
	}
	return err
}

// RemoveTag deletes one tag fact; removing an absent tag is a no-op.
func (r *Repository) RemoveTag(ctx context.Context, objectType, objectID, tag string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM tags WHERE object_type = ? AND object_id = ? AND tag = ?
	`, objectType, objectID, tag)
	return err
}

// ListTags returns the object's tags in application order.
func (r *Repository) ListTags(ctx context.Context, objectType, objectID string) ([]domain.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT object_type, object_id, tag, applied_at, applied_by_kind, applied_by_id
		FROM tags
		WHERE object_type = ? AND object_id = ?
		ORDER BY applied_at ASC, tag ASC
	`, objectType, objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Tag{}
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// FindByTag returns the ids of objects of one type currently holding tag.
func (r *Repository) FindByTag(ctx context.Context, objectType, tag string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT object_id FROM tags
		WHERE object_type = ? AND tag = ?
		ORDER BY object_id ASC
	`, objectType, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SwapTags removes the old state tag, applies the new one, and appends the
// audit record inside one transaction.
func (r *Repository) SwapTags(ctx context.Context, fromTag string, toTag domain.Tag, record domain.TransitionRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if fromTag != "" {
		if _, err = tx.ExecContext(ctx, `
			DELETE FROM tags WHERE object_type = ? AND object_id = ? AND tag = ?
		`, toTag.ObjectType, toTag.ObjectID, fromTag); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO tags(object_type, object_id, tag, applied_at, applied_by_kind, applied_by_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, toTag.ObjectType, toTag.ObjectID, toTag.Tag, ts(toTag.AppliedAt), string(toTag.AppliedBy.Kind), toTag.AppliedBy.ID); err != nil {
		if isUniqueErr(err) {
			err = fmt.Errorf("%w: %s on %s/%s", domain.ErrDuplicateTag, toTag.Tag, toTag.ObjectType, toTag.ObjectID)
		}
		return err
	}
	if err = insertTransitionRecord(ctx, tx, record); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// AppendTransitionRecord appends one audit entry outside a tag swap.
func (r *Repository) AppendTransitionRecord(ctx context.Context, record domain.TransitionRecord) error {
	return insertTransitionRecord(ctx, r.db, record)
}

// execer covers *sql.DB and *sql.Tx for shared insert helpers.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertTransitionRecord writes one immutable audit row.
func insertTransitionRecord(ctx context.Context, ex execer, record domain.TransitionRecord) error {
	reportJSON, err := json.Marshal(record.Report)
	if err != nil {
		return fmt.Errorf("encode prerequisite report: %w", err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO transition_records(
			id, object_type, object_id, workflow_id, from_state, to_state,
			actor_kind, actor_id, kind, forced, justification, report_json, occurred_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.ObjectType,
		record.ObjectID,
		record.WorkflowID,
		record.FromState,
		record.ToState,
		string(record.Actor.Kind),
		record.Actor.ID,
		string(record.Kind),
		boolToInt(record.Forced),
		record.Justification,
		string(reportJSON),
		ts(record.OccurredAt),
	)
	return err
}

// ListTransitionRecords returns the object's audit trail ordered by time.
func (r *Repository) ListTransitionRecords(ctx context.Context, objectType, objectID string) ([]domain.TransitionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, object_type, object_id, workflow_id, from_state, to_state,
		       actor_kind, actor_id, kind, forced, justification, report_json, occurred_at
		FROM transition_records
		WHERE object_type = ? AND object_id = ?
		ORDER BY occurred_at ASC, id ASC
	`, objectType, objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.TransitionRecord{}
	for rows.Next() {
		record, err := scanTransitionRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// CreateRelationship inserts one active link. The partial unique index on
// the active quadruple backs the duplicate-active invariant.
func (r *Repository) CreateRelationship(ctx context.Context, rel domain.Relationship) error {
	metaJSON, err := json.Marshal(rel.Metadata)
	if err != nil {
		return fmt.Errorf("encode relationship metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO relationships(
			id, source_type, source_id, name, target_type, target_id,
			metadata_json, created_at, created_by_kind, created_by_id,
			removed_at, removed_by_kind, removed_by_id
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rel.ID,
		rel.SourceType,
		rel.SourceID,
		rel.Name,
		rel.TargetType,
		rel.TargetID,
		string(metaJSON),
		ts(rel.CreatedAt),
		string(rel.CreatedBy.Kind),
		rel.CreatedBy.ID,
		nullableTS(rel.RemovedAt),
		nullableActorKind(rel.RemovedBy),
		nullableActorID(rel.RemovedBy),
	)
	if isUniqueErr(err) {
		return fmt.Errorf("%w: %s/%s -%s-> %s/%s", domain.ErrDuplicateActive,
			rel.SourceType, rel.SourceID, rel.Name, rel.TargetType, rel.TargetID)
	}
	return err
}

// GetRelationship returns one link by id, active or removed.
func (r *Repository) GetRelationship(ctx context.Context, relID string) (domain.Relationship, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source_type, source_id, name, target_type, target_id,
		       metadata_json, created_at, created_by_kind, created_by_id,
		       removed_at, removed_by_kind, removed_by_id
		FROM relationships
		WHERE id = ?
	`, relID)
	return scanRelationship(row)
}

// RemoveRelationship marks one link removed. Rows already removed are left
// untouched so removal history is never rewritten.
func (r *Repository) RemoveRelationship(ctx context.Context, relID string, removedAt time.Time, removedBy domain.Actor) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE relationships
		SET removed_at = ?, removed_by_kind = ?, removed_by_id = ?
		WHERE id = ? AND removed_at IS NULL
	`, ts(removedAt), string(removedBy.Kind), removedBy.ID, relID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish a missing row from an idempotent repeat removal.
		if _, getErr := r.GetRelationship(ctx, relID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// ListRelationshipsBySource lists links from one source.
func (r *Repository) ListRelationshipsBySource(ctx context.Context, sourceType, sourceID, name string, activeOnly bool) ([]domain.Relationship, error) {
	query := `
		SELECT id, source_type, source_id, name, target_type, target_id,
		       metadata_json, created_at, created_by_kind, created_by_id,
		       removed_at, removed_by_kind, removed_by_id
		FROM relationships
		WHERE source_type = ? AND source_id = ?
	`
	args := []any{sourceType, sourceID}
	if name != "" {
		query += ` AND name = ?`
		args = append(args, name)
	}
	if activeOnly {
		query += ` AND removed_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return r.queryRelationships(ctx, query, args...)
}

// ListRelationshipsByTarget lists links pointing at one target.
func (r *Repository) ListRelationshipsByTarget(ctx context.Context, targetType, targetID, name string, activeOnly bool) ([]domain.Relationship, error) {
	query := `
		SELECT id, source_type, source_id, name, target_type, target_id,
		       metadata_json, created_at, created_by_kind, created_by_id,
		       removed_at, removed_by_kind, removed_by_id
		FROM relationships
		WHERE target_type = ? AND target_id = ?
	`
	args := []any{targetType, targetID}
	if name != "" {
		query += ` AND name = ?`
		args = append(args, name)
	}
	if activeOnly {
		query += ` AND removed_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return r.queryRelationships(ctx, query, args...)
}

// ListRelationshipsByName lists every link under one relationship name,
// used by the scheduled sync batch job.
func (r *Repository) ListRelationshipsByName(ctx context.Context, name string, activeOnly bool) ([]domain.Relationship, error) {
	query := `
		SELECT id, source_type, source_id, name, target_type, target_id,
		       metadata_json, created_at, created_by_kind, created_by_id,
		       removed_at, removed_by_kind, removed_by_id
		FROM relationships
		WHERE name = ?
	`
	args := []any{name}
	if activeOnly {
		query += ` AND removed_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return r.queryRelationships(ctx, query, args...)
}

// queryRelationships runs one relationship select and scans all rows.
func (r *Repository) queryRelationships(ctx context.Context, query string, args ...any) ([]domain.Relationship, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Relationship{}
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// PutRecord creates or replaces one entity record with its scalar fields
// and display value.
func (r *Repository) PutRecord(ctx context.Context, objectType, objectID string, fields map[string]string, displayValue string) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode record fields: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO records(object_type, object_id, fields_json, display_value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(object_type, object_id) DO UPDATE SET
			fields_json = excluded.fields_json,
			display_value = excluded.display_value,
			updated_at = excluded.updated_at
	`, objectType, objectID, string(fieldsJSON), displayValue, ts(time.Now()))
	return err
}

// ReadField returns one scalar field of a record; a present record with a
// missing field reads as empty.
func (r *Repository) ReadField(ctx context.Context, objectType, objectID, field string) (string, error) {
	fields, _, err := r.loadRecord(ctx, objectType, objectID)
	if err != nil {
		return "", err
	}
	return fields[field], nil
}

// CurrentDisplayValue returns the record's human-readable display field.
func (r *Repository) CurrentDisplayValue(ctx context.Context, objectType, objectID string) (string, error) {
	_, display, err := r.loadRecord(ctx, objectType, objectID)
	if err != nil {
		return "", err
	}
	return display, nil
}

// WriteField updates one scalar field in place, preserving the rest.
func (r *Repository) WriteField(ctx context.Context, objectType, objectID, field, value string) error {
	fields, display, err := r.loadRecord(ctx, objectType, objectID)
	if err != nil {
		return err
	}
	if fields == nil {
		fields = map[string]string{}
	}
	fields[field] = value
	return r.PutRecord(ctx, objectType, objectID, fields, display)
}

// SetDisplayValue updates the record's display field.
func (r *Repository) SetDisplayValue(ctx context.Context, objectType, objectID, value string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE records SET display_value = ?, updated_at = ? WHERE object_type = ? AND object_id = ?
	`, value, ts(time.Now()), objectType, objectID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// loadRecord reads one record's fields and display value.
func (r *Repository) loadRecord(ctx context.Context, objectType, objectID string) (map[string]string, string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT fields_json, display_value FROM records WHERE object_type = ? AND object_id = ?
	`, objectType, objectID)
	var (
		fieldsRaw string
		display   string
	)
	if err := row.Scan(&fieldsRaw, &display); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", app.ErrNotFound
		}
		return nil, "", err
	}
	if strings.TrimSpace(fieldsRaw) == "" {
		fieldsRaw = "{}"
	}
	fields := map[string]string{}
	if err := json.Unmarshal([]byte(fieldsRaw), &fields); err != nil {
		return nil, "", fmt.Errorf("decode record fields_json: %w", err)
	}
	return fields, display, nil
}

// scanner abstracts sql.Row and sql.Rows for scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

// scanTag scans one tag row.
func scanTag(s scanner) (domain.Tag, error) {
	var (
		tag        domain.Tag
		appliedRaw string
		actorKind  string
	)
	if err := s.Scan(&tag.ObjectType, &tag.ObjectID, &tag.Tag, &appliedRaw, &actorKind, &tag.AppliedBy.ID); err != nil {
		return domain.Tag{}, err
	}
	tag.AppliedAt = parseTS(appliedRaw)
	tag.AppliedBy.Kind = domain.ActorKind(actorKind)
	return tag, nil
}

// scanTransitionRecord scans one audit row.
func scanTransitionRecord(s scanner) (domain.TransitionRecord, error) {
	var (
		record      domain.TransitionRecord
		actorKind   string
		kindRaw     string
		forcedRaw   int
		reportRaw   string
		occurredRaw string
	)
	if err := s.Scan(
		&record.ID,
		&record.ObjectType,
		&record.ObjectID,
		&record.WorkflowID,
		&record.FromState,
		&record.ToState,
		&actorKind,
		&record.Actor.ID,
		&kindRaw,
		&forcedRaw,
		&record.Justification,
		&reportRaw,
		&occurredRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TransitionRecord{}, app.ErrNotFound
		}
		return domain.TransitionRecord{}, err
	}
	record.Actor.Kind = domain.ActorKind(actorKind)
	record.Kind = domain.TransitionKind(kindRaw)
	record.Forced = forcedRaw != 0
	if strings.TrimSpace(reportRaw) == "" {
		reportRaw = "[]"
	}
	if err := json.Unmarshal([]byte(reportRaw), &record.Report); err != nil {
		return domain.TransitionRecord{}, fmt.Errorf("decode report_json: %w", err)
	}
	record.OccurredAt = parseTS(occurredRaw)
	return record, nil
}

// scanRelationship scans one relationship row.
func scanRelationship(s scanner) (domain.Relationship, error) {
	var (
		rel         domain.Relationship
		metaRaw     string
		createdRaw  string
		createdKind string
		removedRaw  sql.NullString
		removedKind sql.NullString
		removedID   sql.NullString
	)
	if err := s.Scan(
		&rel.ID,
		&rel.SourceType,
		&rel.SourceID,
		&rel.Name,
		&rel.TargetType,
		&rel.TargetID,
		&metaRaw,
		&createdRaw,
		&createdKind,
		&rel.CreatedBy.ID,
		&removedRaw,
		&removedKind,
		&removedID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Relationship{}, app.ErrNotFound
		}
		return domain.Relationship{}, err
	}
	if strings.TrimSpace(metaRaw) == "" {
		metaRaw = "{}"
	}
	if err := json.Unmarshal([]byte(metaRaw), &rel.Metadata); err != nil {
		return domain.Relationship{}, fmt.Errorf("decode relationship metadata_json: %w", err)
	}
	if len(rel.Metadata) == 0 {
		rel.Metadata = nil
	}
	rel.CreatedAt = parseTS(createdRaw)
	rel.CreatedBy.Kind = domain.ActorKind(createdKind)
	rel.RemovedAt = parseNullTS(removedRaw)
	if removedKind.Valid && removedID.Valid {
		actor := domain.Actor{Kind: domain.ActorKind(removedKind.String), ID: removedID.String}
		rel.RemovedBy = &actor
	}
	return rel, nil
}

// translateNoRows maps zero affected rows to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts formats a timestamp for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS formats an optional timestamp for storage.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses a stored timestamp.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

// parseNullTS parses an optional stored timestamp.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	parsed := parseTS(v.String)
	return &parsed
}

// nullableActorKind extracts the kind column for an optional actor.
func nullableActorKind(a *domain.Actor) any {
	if a == nil {
		return nil
	}
	return string(a.Kind)
}

// nullableActorID extracts the id column for an optional actor.
func nullableActorID(a *domain.Actor) any {
	if a == nil {
		return nil
	}
	return a.ID
}

// boolToInt stores booleans as sqlite integers.
func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// isUniqueErr reports whether err is a unique-constraint violation.
func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
