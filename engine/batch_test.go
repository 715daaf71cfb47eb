package engine

import (
	"context"
	"testing"

	"github.com/ripkitten-co/tether/bindings"
)

func TestHideMany_PartialFailure(t *testing.T) {
	e, _, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")

	res := e.HideMany(context.Background(), []string{"b1", "no-such-binding"}, "user-1")
	if res.Succeeded != 1 {
		t.Errorf("got %d succeeded, want 1", res.Succeeded)
	}
	if res.Failed != 1 {
		t.Errorf("got %d failed, want 1", res.Failed)
	}

	status, _ := e.GetStatus("b1")
	if status != bindings.StatusHidden {
		t.Errorf("got %q, want hidden", status)
	}
}

func TestHideMany_IdempotentItemsCountAsSuccess(t *testing.T) {
	e, _, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")
	ctx := context.Background()

	e.HideMany(ctx, []string{"b1"}, "user-1")
	res := e.HideMany(ctx, []string{"b1"}, "user-1")
	if res.Succeeded != 1 || res.Failed != 0 {
		t.Errorf("got %+v, want re-hide counted as success", res)
	}
}

func TestShowMany(t *testing.T) {
	e, _, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")
	register(t, e, "b2", "e2", "blk1")
	ctx := context.Background()

	e.HideMany(ctx, []string{"b1", "b2"}, "user-1")
	res := e.ShowMany(ctx, []string{"b1", "b2"}, "user-1")
	if res.Succeeded != 2 {
		t.Errorf("got %d succeeded, want 2", res.Succeeded)
	}
	for _, id := range []string{"b1", "b2"} {
		if status, _ := e.GetStatus(id); status != bindings.StatusVisible {
			t.Errorf("%s: got %q, want visible", id, status)
		}
	}
}

func TestHideByElementIDs(t *testing.T) {
	e, store, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")
	ctx := context.Background()

	res := e.HideByElementIDs(ctx, []string{"e1"}, "user-1")
	if res.Succeeded != 1 {
		t.Fatalf("got %d succeeded, want 1", res.Succeeded)
	}

	status, err := e.GetStatus("b1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status != bindings.StatusHidden {
		t.Errorf("got %q, want hidden", status)
	}

	log, _ := store.StatusLog(ctx, "b1")
	var hideRows int
	for _, entry := range log {
		if entry.Cause == bindings.CauseUserHide {
			hideRows++
		}
	}
	if hideRows != 1 {
		t.Errorf("got %d user_hide audit rows, want 1", hideRows)
	}
}

func TestHideByElementIDs_UnknownElement(t *testing.T) {
	e, _, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")

	res := e.HideByElementIDs(context.Background(), []string{"e1", "no-such-element"}, "user-1")
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Errorf("got %+v, want 1 succeeded 1 failed", res)
	}
}

func TestShowByElementIDs(t *testing.T) {
	e, _, _ := newTestEngine(t)
	register(t, e, "b1", "e1", "blk1")
	ctx := context.Background()

	e.HideByElementIDs(ctx, []string{"e1"}, "user-1")
	res := e.ShowByElementIDs(ctx, []string{"e1"}, "user-1")
	if res.Succeeded != 1 {
		t.Errorf("got %d succeeded, want 1", res.Succeeded)
	}
	if status, _ := e.GetStatus("b1"); status != bindings.StatusVisible {
		t.Errorf("got %q, want visible", status)
	}
}
