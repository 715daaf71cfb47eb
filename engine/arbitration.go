package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ripkitten-co/tether"
	"github.com/ripkitten-co/tether/bindings"
)

// Approve closes a human-review item: the binding becomes visible and the
// most recent open inconsistency for it is marked resolved. The caller is
// responsible for matching userID to the authenticated caller.
func (e *Engine) Approve(ctx context.Context, bindingID, userID string) error {
	_, err := e.Transition(ctx, TransitionRequest{
		BindingID: bindingID,
		To:        bindings.StatusVisible,
		Cause:     bindings.CauseArbitrationApprove,
		ActorID:   userID,
		ActorType: bindings.ActorUser,
	})
	if err != nil {
		return fmt.Errorf("engine %s: approve %s: %w", e.scopeID, bindingID, err)
	}
	return e.resolveOpen(ctx, bindingID, userID, bindings.ActionApproved, "")
}

// Reject closes a human-review item: the binding is tombstoned and the most
// recent open inconsistency for it is marked resolved with the given reason.
func (e *Engine) Reject(ctx context.Context, bindingID, userID, reason string) error {
	_, err := e.Transition(ctx, TransitionRequest{
		BindingID: bindingID,
		To:        bindings.StatusDeleted,
		Cause:     bindings.CauseArbitrationReject,
		ActorID:   userID,
		ActorType: bindings.ActorUser,
		Reason:    reason,
	})
	if err != nil {
		return fmt.Errorf("engine %s: reject %s: %w", e.scopeID, bindingID, err)
	}
	return e.resolveOpen(ctx, bindingID, userID, bindings.ActionRejected, reason)
}

func (e *Engine) resolveOpen(ctx context.Context, bindingID, userID, action, notes string) error {
	inc, err := e.store.OpenInconsistency(ctx, bindingID)
	if errors.Is(err, tether.ErrNotFound) {
		// Arbitration on a binding nothing flagged; the transition stands.
		return nil
	}
	if err != nil {
		return fmt.Errorf("engine %s: arbitrate %s: %w", e.scopeID, bindingID, err)
	}
	if err := e.store.ResolveInconsistency(ctx, inc.ID, userID, action, notes); err != nil {
		return fmt.Errorf("engine %s: arbitrate %s: %w", e.scopeID, bindingID, err)
	}
	return nil
}
