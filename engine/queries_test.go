package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/ripkitten-co/tether"
	"github.com/ripkitten-co/tether/bindings"
)

func TestQueries_RequireInitialize(t *testing.T) {
	e := New("canvas-1", bindings.NewMemory())

	if _, err := e.GetStatus("b1"); !errors.Is(err, tether.ErrNotInitialized) {
		t.Errorf("GetStatus: got %v, want ErrNotInitialized", err)
	}
	if _, err := e.BindingsByStatus(bindings.StatusVisible); !errors.Is(err, tether.ErrNotInitialized) {
		t.Errorf("BindingsByStatus: got %v, want ErrNotInitialized", err)
	}
	if _, err := e.BindingByElementID("e1"); !errors.Is(err, tether.ErrNotInitialized) {
		t.Errorf("BindingByElementID: got %v, want ErrNotInitialized", err)
	}
	if _, err := e.BindingsByBlockID("blk1"); !errors.Is(err, tether.ErrNotInitialized) {
		t.Errorf("BindingsByBlockID: got %v, want ErrNotInitialized", err)
	}
}

func TestBindingsByStatus(t *testing.T) {
	e, _, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")
	register(t, e, "b2", "e2", "blk1")
	ctx := context.Background()

	if _, err := e.Hide(ctx, "b2", "user-1"); err != nil {
		t.Fatalf("hide: %v", err)
	}

	hidden, err := e.BindingsByStatus(bindings.StatusHidden)
	if err != nil {
		t.Fatalf("bindings by status: %v", err)
	}
	if len(hidden) != 1 || hidden[0].ID != "b2" {
		t.Errorf("got %v, want [b2]", hidden)
	}
}

func TestBindingByElementID(t *testing.T) {
	e, _, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")

	b, err := e.BindingByElementID("e1")
	if err != nil {
		t.Fatalf("binding by element: %v", err)
	}
	if b.ID != "b1" {
		t.Errorf("got %q, want b1", b.ID)
	}

	if _, err := e.BindingByElementID("no-such-element"); !errors.Is(err, tether.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestBindingsByBlockID(t *testing.T) {
	e, _, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")
	register(t, e, "b2", "e2", "blk1")
	register(t, e, "b3", "e3", "blk2")

	got, err := e.BindingsByBlockID("blk1")
	if err != nil {
		t.Fatalf("bindings by block: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d bindings, want 2", len(got))
	}
}

func TestEngineStatus(t *testing.T) {
	e, _, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")
	register(t, e, "b2", "e2", "blk1")
	if _, err := e.Hide(context.Background(), "b1", "user-1"); err != nil {
		t.Fatalf("hide: %v", err)
	}

	s := e.Status()
	if !s.Initialized || s.ScopeID != "canvas-1" {
		t.Errorf("got %+v", s)
	}
	if s.Bindings != 2 {
		t.Errorf("got %d bindings, want 2", s.Bindings)
	}
	if s.ByStatus[bindings.StatusHidden] != 1 || s.ByStatus[bindings.StatusVisible] != 1 {
		t.Errorf("got counts %v", s.ByStatus)
	}
}

func TestQueriesReturnCopies(t *testing.T) {
	e, _, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")

	b, _ := e.BindingByElementID("e1")
	b.Status = bindings.StatusDeleted

	status, _ := e.GetStatus("b1")
	if status != bindings.StatusVisible {
		t.Error("mutating a query result must not touch the index")
	}
}
