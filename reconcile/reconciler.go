package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ripkitten-co/tether/bindings"
	"github.com/ripkitten-co/tether/engine"
)

const reconcilerActor = "tether-reconciler"

// Store is the persistence surface the reconciler drives. Both
// bindings.Store and bindings.MemoryStore implement it.
type Store interface {
	ListByContainer(ctx context.Context, containerID string) ([]bindings.Binding, error)
	InsertInconsistency(ctx context.Context, inc *bindings.Inconsistency) error
	ResolveInconsistency(ctx context.Context, id, resolvedBy, action, notes string) error
	UpsertCache(ctx context.Context, e *bindings.ExistenceCacheEntry) error
}

// Summary reports one reconciliation pass. The full findings list is
// returned even when autoFix is off, so dry runs stay inspectable.
type Summary struct {
	AutoFixed           int
	RequiresHumanReview int
	Inconsistencies     []bindings.Inconsistency
}

// Reconciler orchestrates one scope's drift repair: detect, persist every
// finding, auto-fix the high-confidence ones through the engine, demote the
// rest to pending. Safe to re-invoke arbitrarily often and to run
// concurrently with live transitions.
type Reconciler struct {
	engine *engine.Engine
	store  Store
	det    *Detector
	log    *slog.Logger
}

// NewReconciler creates a reconciler for the engine's scope.
func NewReconciler(e *engine.Engine, store Store, det *Detector) *Reconciler {
	return &Reconciler{
		engine: e,
		store:  store,
		det:    det,
		log:    slog.Default(),
	}
}

// SetLogger overrides the reconciler's logger.
func (r *Reconciler) SetLogger(l *slog.Logger) { r.log = l }

// ScopeID returns the container this reconciler repairs.
func (r *Reconciler) ScopeID() string { return r.engine.ScopeID() }

// Reconcile runs one pass over the scope. Every finding is persisted before
// any repair is attempted; a failed auto-fix is reclassified as requiring
// human review, never an abort.
func (r *Reconciler) Reconcile(ctx context.Context, autoFix bool) (Summary, error) {
	scope := r.engine.ScopeID()

	bs, err := r.store.ListByContainer(ctx, scope)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile %s: %w", scope, err)
	}

	obs, err := r.det.Observe(ctx, scope)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile %s: %w", scope, err)
	}

	r.refreshCache(ctx, bs, obs)

	findings := Evaluate(bs, obs)
	summary := Summary{Inconsistencies: findings}

	for i := range findings {
		inc := &findings[i]
		if err := r.store.InsertInconsistency(ctx, inc); err != nil {
			return summary, fmt.Errorf("reconcile %s: persist finding %s: %w", scope, inc.ID, err)
		}

		target, fixable := resolutionTarget(inc.SuggestedResolution)
		if autoFix && fixable && inc.Confidence >= AutoFixThreshold {
			if err := r.apply(ctx, inc.BindingID, target); err != nil {
				r.log.Warn("auto-fix failed", "scope", scope, "binding", inc.BindingID, "error", err)
				r.demote(ctx, inc.BindingID)
				summary.RequiresHumanReview++
				continue
			}
			if err := r.store.ResolveInconsistency(ctx, inc.ID, reconcilerActor, bindings.ActionAutoFixed, ""); err != nil {
				r.log.Warn("mark finding resolved", "scope", scope, "finding", inc.ID, "error", err)
			}
			summary.AutoFixed++
			continue
		}

		r.demote(ctx, inc.BindingID)
		summary.RequiresHumanReview++
	}

	return summary, nil
}

func (r *Reconciler) apply(ctx context.Context, bindingID string, target bindings.Status) error {
	_, err := r.engine.Transition(ctx, engine.TransitionRequest{
		BindingID: bindingID,
		To:        target,
		Cause:     bindings.CauseSystemReconcile,
		ActorID:   reconcilerActor,
		ActorType: bindings.ActorSystem,
	})
	return err
}

// demote parks a binding in pending for human review. Best-effort: a
// demotion failure is logged, and the finding still counts as needing
// review.
func (r *Reconciler) demote(ctx context.Context, bindingID string) {
	if err := r.apply(ctx, bindingID, bindings.StatusPending); err != nil {
		r.log.Warn("demote to pending failed", "scope", r.engine.ScopeID(), "binding", bindingID, "error", err)
	}
}

// refreshCache rewrites every binding's derived snapshot from the observed
// signals. Failures are logged; the cache is rebuildable and never blocks a
// pass.
func (r *Reconciler) refreshCache(ctx context.Context, bs []bindings.Binding, obs Observation) {
	now := time.Now().UTC()
	for i := range bs {
		b := &bs[i]
		element, elementFound := obs.Elements[b.ElementID]
		mark, markFound := obs.Marks[b.MarkID]
		entry := &bindings.ExistenceCacheEntry{
			BindingID:      b.ID,
			Status:         b.Status,
			ElementExists:  elementFound && element.Exists,
			ElementDeleted: element.Deleted,
			MarkExists:     markFound && mark.Exists,
			LastVerifiedAt: now,
		}
		if err := r.store.UpsertCache(ctx, entry); err != nil {
			r.log.Warn("refresh cache", "scope", r.engine.ScopeID(), "binding", b.ID, "error", err)
		}
	}
}

func resolutionTarget(resolution string) (bindings.Status, bool) {
	switch resolution {
	case ResolutionSetHidden:
		return bindings.StatusHidden, true
	case ResolutionSetVisible:
		return bindings.StatusVisible, true
	case ResolutionSoftDelete:
		return bindings.StatusDeleted, true
	}
	return "", false
}
