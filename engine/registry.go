package engine

import (
	"context"
	"fmt"
	"sync"
)

// Registry hands out one initialized engine per scope so multiple scopes can
// be active concurrently without shared hidden state.
type Registry struct {
	factory func(scopeID string) *Engine

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewRegistry creates a registry constructing engines with the given factory.
func NewRegistry(factory func(scopeID string) *Engine) *Registry {
	return &Registry{
		factory: factory,
		engines: make(map[string]*Engine),
	}
}

// Open returns the engine for a scope, constructing and initializing it on
// first use. A failed Initialize leaves the scope unregistered so the next
// Open retries.
func (r *Registry) Open(ctx context.Context, scopeID string) (*Engine, error) {
	r.mu.Lock()
	if e, ok := r.engines[scopeID]; ok {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	e := r.factory(scopeID)
	if err := e.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", scopeID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.engines[scopeID]; ok {
		// Lost a concurrent Open; use the engine that registered first.
		return existing, nil
	}
	r.engines[scopeID] = e
	return e, nil
}

// Get returns the engine for a scope if one is open.
func (r *Registry) Get(scopeID string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[scopeID]
	return e, ok
}

// Close drops a scope's engine from the registry.
func (r *Registry) Close(scopeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, scopeID)
}
