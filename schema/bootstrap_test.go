package schema

import "testing"

func TestBindingsDDL(t *testing.T) {
	ddl := bindingsDDL()
	want := `CREATE TABLE IF NOT EXISTS tether_bindings (
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
	if ddl != want {
		t.Errorf("got:\n%s\nwant:\n%s", ddl, want)
	}
}

func TestStatusLogDDL(t *testing.T) {
	ddl := statusLogDDL()
	want := `CREATE TABLE IF NOT EXISTS tether_status_log (
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
	if ddl != want {
		t.Errorf("got:\n%s\nwant:\n%s", ddl, want)
	}
}

func TestExistenceCacheDDL(t *testing.T) {
	ddl := existenceCacheDDL()
	want := `CREATE TABLE IF NOT EXISTS tether_existence_cache (
	binding_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	element_exists BOOLEAN NOT NULL DEFAULT true,
	element_deleted BOOLEAN NOT NULL DEFAULT false,
	mark_exists BOOLEAN NOT NULL DEFAULT true,
	last_verified_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	cache_version INTEGER NOT NULL DEFAULT 1,
	is_stale BOOLEAN NOT NULL DEFAULT false
)`
	if ddl != want {
		t.Errorf("got:\n%s\nwant:\n%s", ddl, want)
	}
}

func TestInconsistenciesDDL(t *testing.T) {
	ddl := inconsistenciesDDL()
	want := `CREATE TABLE IF NOT EXISTS tether_inconsistencies (
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
	if ddl != want {
		t.Errorf("got:\n%s\nwant:\n%s", ddl, want)
	}
}

func TestBootstrap_TracksCreated(t *testing.T) {
	b := New()
	if b.IsCreated("tether_bindings") {
		t.Error("should not be created yet")
	}
	b.MarkCreated("tether_bindings")
	if !b.IsCreated("tether_bindings") {
		t.Error("should be created")
	}
}

func TestBootstrap_TracksIndexes(t *testing.T) {
	b := New()
	if b.IsIndexCreated("idx_tether_bindings_container") {
		t.Error("should not be created yet")
	}
}
