package engine

import (
	"context"

	"github.com/ripkitten-co/tether/bindings"
)

// Hide transitions a binding to hidden on behalf of a user.
func (e *Engine) Hide(ctx context.Context, bindingID, actorID string) (Result, error) {
	return e.Transition(ctx, TransitionRequest{
		BindingID: bindingID,
		To:        bindings.StatusHidden,
		Cause:     bindings.CauseUserHide,
		ActorID:   actorID,
		ActorType: bindings.ActorUser,
	})
}

// Show transitions a binding to visible on behalf of a user.
func (e *Engine) Show(ctx context.Context, bindingID, actorID string) (Result, error) {
	return e.Transition(ctx, TransitionRequest{
		BindingID: bindingID,
		To:        bindings.StatusVisible,
		Cause:     bindings.CauseUserShow,
		ActorID:   actorID,
		ActorType: bindings.ActorUser,
	})
}

// SoftDelete tombstones a binding. The row stays for audit and restore.
func (e *Engine) SoftDelete(ctx context.Context, bindingID, actorID string) (Result, error) {
	return e.Transition(ctx, TransitionRequest{
		BindingID: bindingID,
		To:        bindings.StatusDeleted,
		Cause:     bindings.CauseUserDelete,
		ActorID:   actorID,
		ActorType: bindings.ActorUser,
	})
}

// Restore revives a tombstoned binding to visible.
func (e *Engine) Restore(ctx context.Context, bindingID, actorID string) (Result, error) {
	return e.Transition(ctx, TransitionRequest{
		BindingID: bindingID,
		To:        bindings.StatusVisible,
		Cause:     bindings.CauseUserRestore,
		ActorID:   actorID,
		ActorType: bindings.ActorUser,
	})
}

// BatchResult aggregates per-item outcomes. Batches never fail wholesale:
// each item's failure is logged, counted, and skipped.
type BatchResult struct {
	Succeeded int
	Failed    int
}

// HideMany hides bindings sequentially, isolating per-item failures.
func (e *Engine) HideMany(ctx context.Context, bindingIDs []string, actorID string) BatchResult {
	return e.each(ctx, bindingIDs, actorID, e.Hide)
}

// ShowMany shows bindings sequentially, isolating per-item failures.
func (e *Engine) ShowMany(ctx context.Context, bindingIDs []string, actorID string) BatchResult {
	return e.each(ctx, bindingIDs, actorID, e.Show)
}

// HideByElementIDs hides the bindings linked to the given canvas elements.
// Elements without a binding in this scope count as failures.
func (e *Engine) HideByElementIDs(ctx context.Context, elementIDs []string, actorID string) BatchResult {
	return e.each(ctx, e.resolveElements(elementIDs), actorID, e.Hide)
}

// ShowByElementIDs shows the bindings linked to the given canvas elements.
func (e *Engine) ShowByElementIDs(ctx context.Context, elementIDs []string, actorID string) BatchResult {
	return e.each(ctx, e.resolveElements(elementIDs), actorID, e.Show)
}

type itemFunc func(ctx context.Context, bindingID, actorID string) (Result, error)

func (e *Engine) each(ctx context.Context, bindingIDs []string, actorID string, fn itemFunc) BatchResult {
	var res BatchResult
	for _, id := range bindingIDs {
		if id == "" {
			res.Failed++
			continue
		}
		if _, err := fn(ctx, id, actorID); err != nil {
			e.log.Warn("batch item failed", "scope", e.scopeID, "binding", id, "error", err)
			res.Failed++
			continue
		}
		res.Succeeded++
	}
	return res
}

// resolveElements maps element ids to binding ids, flagging unknown elements
// with an empty id so each can count them as failures.
func (e *Engine) resolveElements(elementIDs []string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(elementIDs))
	for _, elementID := range elementIDs {
		if !e.initialized {
			ids = append(ids, "")
			continue
		}
		b, ok := e.idx.byElementID(elementID)
		if !ok {
			e.log.Warn("no binding for element", "scope", e.scopeID, "element", elementID)
			ids = append(ids, "")
			continue
		}
		ids = append(ids, b.ID)
	}
	return ids
}
