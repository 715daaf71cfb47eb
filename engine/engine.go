// Package engine applies status transitions to bindings. One Engine owns the
// in-memory index for exactly one scope (a canvas/document container pair);
// Initialize must complete before any query or transition is accepted. The
// engine holds no cross-store lock spanning the status write, audit append,
// and cache upsert — the optimistic version token narrows the concurrent-
// writer window and reconciliation heals what slips through.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ripkitten-co/tether"
	"github.com/ripkitten-co/tether/bindings"
	"github.com/ripkitten-co/tether/events"
)

// StatusStore is the persistence surface the engine drives. Both
// bindings.Store and bindings.MemoryStore implement it.
type StatusStore interface {
	Insert(ctx context.Context, b *bindings.Binding) error
	Load(ctx context.Context, id string) (*bindings.Binding, error)
	ListByContainer(ctx context.Context, containerID string) ([]bindings.Binding, error)
	UpdateStatus(ctx context.Context, u bindings.StatusUpdate) error
	AppendLog(ctx context.Context, e *bindings.StatusLogEntry) error
	UpsertCacheStatus(ctx context.Context, bindingID string, status bindings.Status, at time.Time) error
	OpenInconsistency(ctx context.Context, bindingID string) (*bindings.Inconsistency, error)
	ResolveInconsistency(ctx context.Context, id, resolvedBy, action, notes string) error
}

type Option func(*Engine)

// WithPublisher injects the publish capability used on every applied
// transition. Defaults to a no-op publisher.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.pub = p }
}

// WithLogger overrides the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine is the transition engine for one scope.
type Engine struct {
	scopeID string
	store   StatusStore
	pub     events.Publisher
	log     *slog.Logger

	mu          sync.RWMutex
	idx         *index
	initialized bool
}

// New constructs an engine for the given scope. Call Initialize before
// using it.
func New(scopeID string, store StatusStore, opts ...Option) *Engine {
	e := &Engine{
		scopeID: scopeID,
		store:   store,
		pub:     events.NopPublisher{},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ScopeID returns the container id this engine arbitrates.
func (e *Engine) ScopeID() string { return e.scopeID }

// Initialize loads the scope's bindings and builds the memory index.
// Idempotent to re-call for a refresh.
func (e *Engine) Initialize(ctx context.Context) error {
	loaded, err := e.store.ListByContainer(ctx, e.scopeID)
	if err != nil {
		return fmt.Errorf("engine %s: initialize: %w", e.scopeID, err)
	}

	idx := newIndex()
	for i := range loaded {
		idx.register(&loaded[i])
	}

	e.mu.Lock()
	e.idx = idx
	e.initialized = true
	e.mu.Unlock()
	return nil
}

// TransitionRequest describes one status change.
type TransitionRequest struct {
	BindingID string
	To        bindings.Status
	Cause     bindings.Cause
	ActorID   string
	ActorType bindings.ActorType
	Reason    string
}

// Result reports what a transition did. Changed is false for the idempotent
// same-status no-op, which is a success, not an error.
type Result struct {
	Changed  bool
	Previous bindings.Status
	Current  bindings.Status
}

// Transition validates and applies one status change: status write with a
// version check, one audit row, a cache refresh, an index update, and one
// published event. A transition to the binding's current status is a no-op
// that writes and publishes nothing.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (Result, error) {
	if !req.To.Valid() {
		return Result{}, fmt.Errorf("engine %s: transition %s: invalid status %q", e.scopeID, req.BindingID, req.To)
	}
	if req.ActorType == "" {
		req.ActorType = bindings.ActorSystem
	}

	e.mu.RLock()
	if !e.initialized {
		e.mu.RUnlock()
		return Result{}, fmt.Errorf("engine %s: transition %s: %w", e.scopeID, req.BindingID, tether.ErrNotInitialized)
	}
	b, ok := e.idx.get(req.BindingID)
	e.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("engine %s: transition %s: %w", e.scopeID, req.BindingID, tether.ErrUnknownBinding)
	}

	if b.Status == req.To {
		return Result{Changed: false, Previous: b.Status, Current: b.Status}, nil
	}

	now := time.Now().UTC()
	update := bindings.StatusUpdate{
		BindingID:       req.BindingID,
		ExpectedVersion: b.Version,
		Status:          req.To,
		UpdatedBy:       req.ActorID,
		UpdatedAt:       now,
	}

	err := e.store.UpdateStatus(ctx, update)
	if errors.Is(err, tether.ErrConcurrencyConflict) {
		// Someone else won the race since our index snapshot. Refresh once
		// and retry; a second conflict is the caller's to handle.
		fresh, loadErr := e.store.Load(ctx, req.BindingID)
		if loadErr != nil {
			return Result{}, fmt.Errorf("engine %s: transition %s: refresh after conflict: %w", e.scopeID, req.BindingID, loadErr)
		}
		e.updateIndex(fresh)
		if fresh.Status == req.To {
			return Result{Changed: false, Previous: fresh.Status, Current: fresh.Status}, nil
		}
		b = fresh
		update.ExpectedVersion = fresh.Version
		err = e.store.UpdateStatus(ctx, update)
	}
	if err != nil {
		return Result{}, fmt.Errorf("engine %s: transition %s: %w", e.scopeID, req.BindingID, err)
	}

	entry := &bindings.StatusLogEntry{
		BindingID:      req.BindingID,
		Status:         req.To,
		PreviousStatus: b.Status,
		Cause:          req.Cause,
		ActorID:        req.ActorID,
		ActorType:      req.ActorType,
	}
	if req.Reason != "" {
		entry.Metadata = map[string]any{"reason": req.Reason}
	}
	if err := e.store.AppendLog(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("engine %s: transition %s: %w", e.scopeID, req.BindingID, err)
	}

	if err := e.store.UpsertCacheStatus(ctx, req.BindingID, req.To, now); err != nil {
		return Result{}, fmt.Errorf("engine %s: transition %s: %w", e.scopeID, req.BindingID, err)
	}

	previous := b.Status
	updated := *b
	updated.Status = req.To
	updated.StatusUpdatedAt = now
	updated.StatusUpdatedBy = req.ActorID
	updated.Version = update.ExpectedVersion + 1
	e.updateIndex(&updated)

	evt := events.Event{
		BindingID:      req.BindingID,
		ElementID:      b.ElementID,
		Status:         req.To,
		PreviousStatus: previous,
		Cause:          req.Cause,
		ActorID:        req.ActorID,
		Reason:         req.Reason,
		OccurredAt:     now,
	}
	if err := e.pub.Publish(ctx, evt); err != nil {
		// Fire-and-forget: a lost notification is healed by reconciliation.
		e.log.Warn("publish event", "scope", e.scopeID, "binding", req.BindingID, "error", err)
	}

	return Result{Changed: true, Previous: previous, Current: req.To}, nil
}

// NewBinding describes a cross-projection link being established.
type NewBinding struct {
	ID            string
	ElementID     string
	BlockID       string
	MarkID        string
	Provenance    bindings.Provenance
	LowConfidence bool
	ActorID       string
}

// RegisterBinding creates a binding in this scope. Status defaults to
// visible, or pending when provenance confidence is low. The fresh binding
// is inserted into the index without a rescan.
func (e *Engine) RegisterBinding(ctx context.Context, nb NewBinding) (*bindings.Binding, error) {
	e.mu.RLock()
	initialized := e.initialized
	e.mu.RUnlock()
	if !initialized {
		return nil, fmt.Errorf("engine %s: register binding: %w", e.scopeID, tether.ErrNotInitialized)
	}

	id := nb.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := bindings.StatusVisible
	if nb.LowConfidence {
		status = bindings.StatusPending
	}
	provenance := nb.Provenance
	if provenance == "" {
		provenance = bindings.ProvenanceUser
	}

	now := time.Now().UTC()
	b := &bindings.Binding{
		ID:              id,
		ContainerID:     e.scopeID,
		ElementID:       nb.ElementID,
		BlockID:         nb.BlockID,
		MarkID:          nb.MarkID,
		Status:          status,
		StatusUpdatedAt: now,
		StatusUpdatedBy: nb.ActorID,
		Provenance:      provenance,
		CreatedAt:       now,
	}

	if err := e.store.Insert(ctx, b); err != nil {
		return nil, fmt.Errorf("engine %s: register binding %s: %w", e.scopeID, id, err)
	}

	entry := &bindings.StatusLogEntry{
		BindingID: id,
		Status:    status,
		Cause:     bindings.CauseRegistered,
		ActorID:   nb.ActorID,
		ActorType: actorTypeFor(provenance),
	}
	if err := e.store.AppendLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("engine %s: register binding %s: %w", e.scopeID, id, err)
	}

	if err := e.store.UpsertCacheStatus(ctx, id, status, now); err != nil {
		return nil, fmt.Errorf("engine %s: register binding %s: %w", e.scopeID, id, err)
	}

	cp := *b
	e.mu.Lock()
	e.idx.register(&cp)
	e.mu.Unlock()

	evt := events.Event{
		BindingID:  id,
		ElementID:  nb.ElementID,
		Status:     status,
		Cause:      bindings.CauseRegistered,
		ActorID:    nb.ActorID,
		OccurredAt: now,
	}
	if err := e.pub.Publish(ctx, evt); err != nil {
		e.log.Warn("publish event", "scope", e.scopeID, "binding", id, "error", err)
	}

	out := *b
	return &out, nil
}

func (e *Engine) updateIndex(b *bindings.Binding) {
	cp := *b
	e.mu.Lock()
	e.idx.update(&cp)
	e.mu.Unlock()
}

func actorTypeFor(p bindings.Provenance) bindings.ActorType {
	switch p {
	case bindings.ProvenanceAI:
		return bindings.ActorAI
	case bindings.ProvenanceSystem:
		return bindings.ActorSystem
	}
	return bindings.ActorUser
}
