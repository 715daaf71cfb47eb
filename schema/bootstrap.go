package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/ripkitten-co/tether/internal/pg"
)

func bindingsDDL() string {
	return `CREATE TABLE IF NOT EXISTS tether_bindings (
	id TEXT PRIMARY KEY,
	container_id TEXT NOT NULL,
	element_id TEXT NOT NULL,
	block_id TEXT NOT NULL,
	mark_id TEXT NOT NULL,
	status TEXT NOT NULL,
	status_updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	status_updated_by TEXT NOT NULL DEFAULT '',
	provenance TEXT NOT NULL DEFAULT 'user',
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
}

func statusLogDDL() string {
	return `CREATE TABLE IF NOT EXISTS tether_status_log (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	binding_id TEXT NOT NULL,
	status TEXT NOT NULL,
	previous_status TEXT NOT NULL DEFAULT '',
	cause TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	actor_type TEXT NOT NULL DEFAULT 'system',
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
}

func existenceCacheDDL() string {
	return `CREATE TABLE IF NOT EXISTS tether_existence_cache (
	binding_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	element_exists BOOLEAN NOT NULL DEFAULT true,
	element_deleted BOOLEAN NOT NULL DEFAULT false,
	mark_exists BOOLEAN NOT NULL DEFAULT true,
	last_verified_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	cache_version INTEGER NOT NULL DEFAULT 1,
	is_stale BOOLEAN NOT NULL DEFAULT false
)`
}

func inconsistenciesDDL() string {
	return `CREATE TABLE IF NOT EXISTS tether_inconsistencies (
	id TEXT PRIMARY KEY,
	binding_id TEXT NOT NULL,
	type TEXT NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	detected_by TEXT NOT NULL DEFAULT '',
	binding_status TEXT NOT NULL,
	suggested_resolution TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	resolved_at TIMESTAMPTZ,
	resolved_by TEXT,
	resolution_action TEXT,
	resolution_notes TEXT,
	snapshot JSONB
)`
}

// Bootstrap manages idempotent creation of Tether tables and indexes.
// It caches which tables and indexes have been created to avoid repeated DDL.
type Bootstrap struct {
	tables  sync.Map
	indexes sync.Map
}

// New returns a Bootstrap with empty caches.
func New() *Bootstrap {
	return &Bootstrap{}
}

// IsCreated reports whether the named table has been created in this session.
func (b *Bootstrap) IsCreated(table string) bool {
	_, ok := b.tables.Load(table)
	return ok
}

// MarkCreated records that the named table has been created.
func (b *Bootstrap) MarkCreated(table string) {
	b.tables.Store(table, true)
}

func (b *Bootstrap) ensure(ctx context.Context, exec pg.Executor, table, ddl string) error {
	if _, ok := b.tables.Load(table); ok {
		return nil
	}
	_, err := exec.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("schema: create table %s: %w", table, err)
	}
	b.tables.Store(table, true)
	return nil
}

// EnsureBindings creates the tether_bindings table if it doesn't exist.
func (b *Bootstrap) EnsureBindings(ctx context.Context, exec pg.Executor) error {
	return b.ensure(ctx, exec, "tether_bindings", bindingsDDL())
}

// EnsureStatusLog creates the tether_status_log table if it doesn't exist.
func (b *Bootstrap) EnsureStatusLog(ctx context.Context, exec pg.Executor) error {
	return b.ensure(ctx, exec, "tether_status_log", statusLogDDL())
}

// EnsureExistenceCache creates the tether_existence_cache table if it doesn't exist.
func (b *Bootstrap) EnsureExistenceCache(ctx context.Context, exec pg.Executor) error {
	return b.ensure(ctx, exec, "tether_existence_cache", existenceCacheDDL())
}

// EnsureInconsistencies creates the tether_inconsistencies table if it doesn't exist.
func (b *Bootstrap) EnsureInconsistencies(ctx context.Context, exec pg.Executor) error {
	return b.ensure(ctx, exec, "tether_inconsistencies", inconsistenciesDDL())
}

// EnsureBindingIndexes creates lookup indexes on tether_bindings and
// tether_status_log for container scans and per-binding history reads.
// Must be called with a pool-level executor — CREATE INDEX CONCURRENTLY
// cannot run inside a transaction block.
func (b *Bootstrap) EnsureBindingIndexes(ctx context.Context, exec pg.Executor) error {
	ddls := map[string]string{
		"idx_tether_bindings_container": `CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_tether_bindings_container ON tether_bindings (container_id)`,
		"idx_tether_bindings_element":   `CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_tether_bindings_element ON tether_bindings (element_id)`,
		"idx_tether_status_log_binding": `CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_tether_status_log_binding ON tether_status_log (binding_id, id)`,
		"idx_tether_inconsistencies_open": `CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_tether_inconsistencies_open ON tether_inconsistencies (binding_id) WHERE resolved_at IS NULL`,
	}
	for name, ddl := range ddls {
		if _, ok := b.indexes.Load(name); ok {
			continue
		}
		if _, err := exec.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("schema: create index %s: %w", name, err)
		}
		b.indexes.Store(name, true)
	}
	return nil
}

// IsIndexCreated reports whether the named index has been created in this session.
func (b *Bootstrap) IsIndexCreated(name string) bool {
	_, ok := b.indexes.Load(name)
	return ok
}
