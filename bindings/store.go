package bindings

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ripkitten-co/tether"
	"github.com/ripkitten-co/tether/internal/codecs"
	"github.com/ripkitten-co/tether/internal/pg"
	"github.com/ripkitten-co/tether/schema"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// StatusUpdate carries one compare-and-swap status write. ExpectedVersion is
// the optimistic token: the write lands only if the stored version still
// matches, and the stored version is bumped by one.
type StatusUpdate struct {
	BindingID       string
	ExpectedVersion int
	Status          Status
	UpdatedBy       string
	UpdatedAt       time.Time
}

// Store persists binding records and their audit, cache, and inconsistency
// rows. All writes are scoped to one binding at a time; no cross-table
// transaction spans a transition.
type Store struct {
	exec   pg.Executor
	codec  codecs.Codec
	schema *schema.Bootstrap
}

// New creates a bindings store using the given backend's executor and schema.
func New(b tether.Backend) *Store {
	return &Store{
		exec:   b.DBExecutor(),
		codec:  b.JSONCodec(),
		schema: b.SchemaBootstrap(),
	}
}

func (s *Store) ensureBindings(ctx context.Context) error {
	return s.schema.EnsureBindings(ctx, s.exec)
}

// Insert creates a new binding row. Returns ErrDuplicateID if the id exists.
func (s *Store) Insert(ctx context.Context, b *Binding) error {
	if err := s.ensureBindings(ctx); err != nil {
		return err
	}

	sql, args, err := psql.Insert("tether_bindings").
		Columns("id", "container_id", "element_id", "block_id", "mark_id",
			"status", "status_updated_at", "status_updated_by", "provenance", "version", "created_at").
		Values(b.ID, b.ContainerID, b.ElementID, b.BlockID, b.MarkID,
			b.Status, b.StatusUpdatedAt, b.StatusUpdatedBy, b.Provenance, 1, b.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("bindings: insert %s: build sql: %w", b.ID, err)
	}

	_, err = s.exec.Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("bindings: insert %s: %w", b.ID, tether.ErrDuplicateID)
		}
		return fmt.Errorf("bindings: insert %s: %w", b.ID, err)
	}

	b.Version = 1
	return nil
}

// Load reads one binding by id.
func (s *Store) Load(ctx context.Context, id string) (*Binding, error) {
	if err := s.ensureBindings(ctx); err != nil {
		return nil, err
	}

	sql, args, err := psql.
		Select("id", "container_id", "element_id", "block_id", "mark_id",
			"status", "status_updated_at", "status_updated_by", "provenance", "version", "created_at").
		From("tether_bindings").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("bindings: load %s: build sql: %w", id, err)
	}

	var b Binding
	err = s.exec.QueryRow(ctx, sql, args...).Scan(
		&b.ID, &b.ContainerID, &b.ElementID, &b.BlockID, &b.MarkID,
		&b.Status, &b.StatusUpdatedAt, &b.StatusUpdatedBy, &b.Provenance, &b.Version, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bindings: load %s: %w", id, tether.ErrNotFound)
		}
		return nil, fmt.Errorf("bindings: load %s: %w", id, err)
	}
	return &b, nil
}

// ListByContainer returns all bindings for a container, tombstones included.
func (s *Store) ListByContainer(ctx context.Context, containerID string) ([]Binding, error) {
	if err := s.ensureBindings(ctx); err != nil {
		return nil, err
	}

	sql, args, err := psql.
		Select("id", "container_id", "element_id", "block_id", "mark_id",
			"status", "status_updated_at", "status_updated_by", "provenance", "version", "created_at").
		From("tether_bindings").
		Where(sq.Eq{"container_id": containerID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("bindings: list %s: build sql: %w", containerID, err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("bindings: list %s: %w", containerID, err)
	}
	defer rows.Close()

	var result []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(
			&b.ID, &b.ContainerID, &b.ElementID, &b.BlockID, &b.MarkID,
			&b.Status, &b.StatusUpdatedAt, &b.StatusUpdatedBy, &b.Provenance, &b.Version, &b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("bindings: list %s: scan: %w", containerID, err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bindings: list %s: %w", containerID, err)
	}
	return result, nil
}

// UpdateStatus applies one status write with an optimistic version check.
// Returns ErrConcurrencyConflict when the version no longer matches and
// ErrNotFound when the binding does not exist at all.
func (s *Store) UpdateStatus(ctx context.Context, u StatusUpdate) error {
	if err := s.ensureBindings(ctx); err != nil {
		return err
	}

	sql, args, err := psql.Update("tether_bindings").
		Set("status", u.Status).
		Set("status_updated_at", u.UpdatedAt).
		Set("status_updated_by", u.UpdatedBy).
		Set("version", u.ExpectedVersion+1).
		Where(sq.Eq{"id": u.BindingID, "version": u.ExpectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("bindings: update %s: build sql: %w", u.BindingID, err)
	}

	tag, err := s.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("bindings: update %s: %w", u.BindingID, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		err := s.exec.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM tether_bindings WHERE id = $1)", u.BindingID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("bindings: update %s: %w", u.BindingID, err)
		}
		if exists {
			return fmt.Errorf("bindings: update %s: %w", u.BindingID, tether.ErrConcurrencyConflict)
		}
		return fmt.Errorf("bindings: update %s: %w", u.BindingID, tether.ErrNotFound)
	}
	return nil
}

// AppendLog writes one immutable audit row. The row's ID and CreatedAt are
// assigned by the database and written back to the entry.
func (s *Store) AppendLog(ctx context.Context, e *StatusLogEntry) error {
	if err := s.schema.EnsureStatusLog(ctx, s.exec); err != nil {
		return err
	}

	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		metadata, err = s.codec.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("bindings: append log %s: marshal metadata: %w", e.BindingID, err)
		}
	}

	err := s.exec.QueryRow(ctx,
		`INSERT INTO tether_status_log (binding_id, status, previous_status, cause, actor_id, actor_type, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		e.BindingID, e.Status, e.PreviousStatus, e.Cause, e.ActorID, e.ActorType, metadata,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("bindings: append log %s: %w", e.BindingID, err)
	}
	return nil
}

// StatusLog returns the full audit history for a binding in append order.
func (s *Store) StatusLog(ctx context.Context, bindingID string) ([]StatusLogEntry, error) {
	if err := s.schema.EnsureStatusLog(ctx, s.exec); err != nil {
		return nil, err
	}

	sql, args, err := psql.
		Select("id", "binding_id", "status", "previous_status", "cause", "actor_id", "actor_type", "metadata", "created_at").
		From("tether_status_log").
		Where(sq.Eq{"binding_id": bindingID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("bindings: status log %s: build sql: %w", bindingID, err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("bindings: status log %s: %w", bindingID, err)
	}
	defer rows.Close()

	var result []StatusLogEntry
	for rows.Next() {
		var e StatusLogEntry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.BindingID, &e.Status, &e.PreviousStatus, &e.Cause,
			&e.ActorID, &e.ActorType, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("bindings: status log %s: scan: %w", bindingID, err)
		}
		if len(metadata) > 0 {
			if err := s.codec.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("bindings: status log %s: unmarshal metadata: %w", bindingID, err)
			}
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bindings: status log %s: %w", bindingID, err)
	}
	return result, nil
}

// UpsertCacheStatus refreshes only the status column of a cache entry,
// bumping cache_version. Existence flags are left to the next verification
// pass; the entry is marked stale until then.
func (s *Store) UpsertCacheStatus(ctx context.Context, bindingID string, status Status, at time.Time) error {
	if err := s.schema.EnsureExistenceCache(ctx, s.exec); err != nil {
		return err
	}

	_, err := s.exec.Exec(ctx,
		`INSERT INTO tether_existence_cache (binding_id, status, last_verified_at, cache_version, is_stale)
		 VALUES ($1, $2, $3, 1, true)
		 ON CONFLICT (binding_id) DO UPDATE
		 SET status = $2, last_verified_at = $3,
		     cache_version = tether_existence_cache.cache_version + 1,
		     is_stale = true`,
		bindingID, status, at,
	)
	if err != nil {
		return fmt.Errorf("bindings: cache status %s: %w", bindingID, err)
	}
	return nil
}

// UpsertCache writes a fully verified cache entry, clearing the stale flag.
func (s *Store) UpsertCache(ctx context.Context, e *ExistenceCacheEntry) error {
	if err := s.schema.EnsureExistenceCache(ctx, s.exec); err != nil {
		return err
	}

	_, err := s.exec.Exec(ctx,
		`INSERT INTO tether_existence_cache
		   (binding_id, status, element_exists, element_deleted, mark_exists, last_verified_at, cache_version, is_stale)
		 VALUES ($1, $2, $3, $4, $5, $6, 1, false)
		 ON CONFLICT (binding_id) DO UPDATE
		 SET status = $2, element_exists = $3, element_deleted = $4, mark_exists = $5,
		     last_verified_at = $6,
		     cache_version = tether_existence_cache.cache_version + 1,
		     is_stale = false`,
		e.BindingID, e.Status, e.ElementExists, e.ElementDeleted, e.MarkExists, e.LastVerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("bindings: cache %s: %w", e.BindingID, err)
	}
	return nil
}

// LoadCache reads the derived snapshot for a binding.
func (s *Store) LoadCache(ctx context.Context, bindingID string) (*ExistenceCacheEntry, error) {
	if err := s.schema.EnsureExistenceCache(ctx, s.exec); err != nil {
		return nil, err
	}

	var e ExistenceCacheEntry
	err := s.exec.QueryRow(ctx,
		`SELECT binding_id, status, element_exists, element_deleted, mark_exists, last_verified_at, cache_version, is_stale
		 FROM tether_existence_cache WHERE binding_id = $1`,
		bindingID,
	).Scan(&e.BindingID, &e.Status, &e.ElementExists, &e.ElementDeleted, &e.MarkExists,
		&e.LastVerifiedAt, &e.CacheVersion, &e.IsStale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bindings: load cache %s: %w", bindingID, tether.ErrNotFound)
		}
		return nil, fmt.Errorf("bindings: load cache %s: %w", bindingID, err)
	}
	return &e, nil
}

// InsertInconsistency persists one detected finding.
func (s *Store) InsertInconsistency(ctx context.Context, inc *Inconsistency) error {
	if err := s.schema.EnsureInconsistencies(ctx, s.exec); err != nil {
		return err
	}

	var snapshot []byte
	if len(inc.Snapshot) > 0 {
		var err error
		snapshot, err = s.codec.Marshal(inc.Snapshot)
		if err != nil {
			return fmt.Errorf("bindings: insert inconsistency %s: marshal snapshot: %w", inc.ID, err)
		}
	}

	sql, args, err := psql.Insert("tether_inconsistencies").
		Columns("id", "binding_id", "type", "detected_at", "detected_by",
			"binding_status", "suggested_resolution", "confidence", "snapshot").
		Values(inc.ID, inc.BindingID, inc.Type, inc.DetectedAt, inc.DetectedBy,
			inc.BindingStatus, inc.SuggestedResolution, inc.Confidence, snapshot).
		ToSql()
	if err != nil {
		return fmt.Errorf("bindings: insert inconsistency %s: build sql: %w", inc.ID, err)
	}

	if _, err := s.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("bindings: insert inconsistency %s: %w", inc.ID, err)
	}
	return nil
}

// OpenInconsistency returns the most recently detected unresolved finding
// for a binding.
func (s *Store) OpenInconsistency(ctx context.Context, bindingID string) (*Inconsistency, error) {
	if err := s.schema.EnsureInconsistencies(ctx, s.exec); err != nil {
		return nil, err
	}

	sql, args, err := psql.
		Select("id", "binding_id", "type", "detected_at", "detected_by",
			"binding_status", "suggested_resolution", "confidence",
			"resolved_at", "resolved_by", "resolution_action", "resolution_notes", "snapshot").
		From("tether_inconsistencies").
		Where(sq.Eq{"binding_id": bindingID}).
		Where("resolved_at IS NULL").
		OrderBy("detected_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("bindings: open inconsistency %s: build sql: %w", bindingID, err)
	}

	inc, err := s.scanInconsistency(s.exec.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bindings: open inconsistency %s: %w", bindingID, tether.ErrNotFound)
		}
		return nil, fmt.Errorf("bindings: open inconsistency %s: %w", bindingID, err)
	}
	return inc, nil
}

// ResolveInconsistency closes a finding with the given action and notes.
// Resolved findings are immutable; resolving twice is a no-op.
func (s *Store) ResolveInconsistency(ctx context.Context, id, resolvedBy, action, notes string) error {
	if err := s.schema.EnsureInconsistencies(ctx, s.exec); err != nil {
		return err
	}

	_, err := s.exec.Exec(ctx,
		`UPDATE tether_inconsistencies
		 SET resolved_at = now(), resolved_by = $2, resolution_action = $3, resolution_notes = $4
		 WHERE id = $1 AND resolved_at IS NULL`,
		id, resolvedBy, action, notes,
	)
	if err != nil {
		return fmt.Errorf("bindings: resolve inconsistency %s: %w", id, err)
	}
	return nil
}

// ListInconsistencies returns all findings for a binding, newest first.
func (s *Store) ListInconsistencies(ctx context.Context, bindingID string) ([]Inconsistency, error) {
	if err := s.schema.EnsureInconsistencies(ctx, s.exec); err != nil {
		return nil, err
	}

	sql, args, err := psql.
		Select("id", "binding_id", "type", "detected_at", "detected_by",
			"binding_status", "suggested_resolution", "confidence",
			"resolved_at", "resolved_by", "resolution_action", "resolution_notes", "snapshot").
		From("tether_inconsistencies").
		Where(sq.Eq{"binding_id": bindingID}).
		OrderBy("detected_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("bindings: list inconsistencies %s: build sql: %w", bindingID, err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("bindings: list inconsistencies %s: %w", bindingID, err)
	}
	defer rows.Close()

	var result []Inconsistency
	for rows.Next() {
		inc, err := s.scanInconsistency(rows)
		if err != nil {
			return nil, fmt.Errorf("bindings: list inconsistencies %s: scan: %w", bindingID, err)
		}
		result = append(result, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bindings: list inconsistencies %s: %w", bindingID, err)
	}
	return result, nil
}

func (s *Store) scanInconsistency(row pgx.Row) (*Inconsistency, error) {
	var inc Inconsistency
	var snapshot []byte
	err := row.Scan(&inc.ID, &inc.BindingID, &inc.Type, &inc.DetectedAt, &inc.DetectedBy,
		&inc.BindingStatus, &inc.SuggestedResolution, &inc.Confidence,
		&inc.ResolvedAt, &inc.ResolvedBy, &inc.ResolutionAction, &inc.ResolutionNotes, &snapshot)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := s.codec.Unmarshal(snapshot, &inc.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	return &inc, nil
}
