//go:build integration

package reconcile_test

import (
	"context"
	"testing"

	"github.com/ripkitten-co/tether"
	"github.com/ripkitten-co/tether/internal/testutil"
	"github.com/ripkitten-co/tether/reconcile"
)

func setupProjectionTables(t *testing.T) *tether.Store {
	t.Helper()
	connStr := testutil.SetupPostgres(t)
	ctx := context.Background()

	store, err := tether.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	exec := store.DBExecutor()
	for _, ddl := range []string{
		`CREATE TABLE canvas_elements (
			id TEXT PRIMARY KEY,
			canvas_id TEXT NOT NULL,
			deleted BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE document_marks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			deleted BOOLEAN NOT NULL DEFAULT false
		)`,
	} {
		if _, err := exec.Exec(ctx, ddl); err != nil {
			t.Fatalf("create projection table: %v", err)
		}
	}
	return store
}

func TestElementSource_States(t *testing.T) {
	store := setupProjectionTables(t)
	ctx := context.Background()
	exec := store.DBExecutor()

	rows := [][]any{
		{"e1", "canvas-1", false},
		{"e2", "canvas-1", true},
		{"e3", "canvas-2", false},
	}
	for _, r := range rows {
		if _, err := exec.Exec(ctx,
			`INSERT INTO canvas_elements (id, canvas_id, deleted) VALUES ($1, $2, $3)`, r...); err != nil {
			t.Fatalf("insert element: %v", err)
		}
	}

	src := reconcile.NewElementSourceFromStore(store)
	states, err := src.States(ctx, "canvas-1")
	if err != nil {
		t.Fatalf("states: %v", err)
	}

	if len(states) != 2 {
		t.Fatalf("got %d states, want 2", len(states))
	}
	if st := states["e1"]; !st.Exists || st.Deleted {
		t.Errorf("e1: got %+v, want alive", st)
	}
	if st := states["e2"]; !st.Exists || !st.Deleted {
		t.Errorf("e2: got %+v, want tombstoned", st)
	}
	if _, ok := states["e3"]; ok {
		t.Error("e3 belongs to another canvas, should be absent")
	}
}

func TestMarkSource_States(t *testing.T) {
	store := setupProjectionTables(t)
	ctx := context.Background()
	exec := store.DBExecutor()

	rows := [][]any{
		{"m1", "canvas-1", false},
		{"m2", "canvas-1", true},
		{"m3", "canvas-2", false},
	}
	for _, r := range rows {
		if _, err := exec.Exec(ctx,
			`INSERT INTO document_marks (id, document_id, deleted) VALUES ($1, $2, $3)`, r...); err != nil {
			t.Fatalf("insert mark: %v", err)
		}
	}

	src, err := reconcile.NewMarkSourceFromStore(store)
	if err != nil {
		t.Fatalf("mark source: %v", err)
	}
	states, err := src.States(ctx, "canvas-1")
	if err != nil {
		t.Fatalf("states: %v", err)
	}

	if len(states) != 2 {
		t.Fatalf("got %d states, want 2", len(states))
	}
	if st := states["m1"]; !st.Exists || st.Deleted {
		t.Errorf("m1: got %+v, want alive", st)
	}
	if st := states["m2"]; !st.Exists || !st.Deleted {
		t.Errorf("m2: got %+v, want tombstoned", st)
	}
}

func TestSources_EmptyScope(t *testing.T) {
	store := setupProjectionTables(t)
	ctx := context.Background()

	elems := reconcile.NewElementSourceFromStore(store)
	states, err := elems.States(ctx, "canvas-empty")
	if err != nil {
		t.Fatalf("element states: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("got %d element states, want 0", len(states))
	}

	marks, err := reconcile.NewMarkSourceFromStore(store)
	if err != nil {
		t.Fatalf("mark source: %v", err)
	}
	states, err = marks.States(ctx, "canvas-empty")
	if err != nil {
		t.Fatalf("mark states: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("got %d mark states, want 0", len(states))
	}
}
