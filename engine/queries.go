package engine

import (
	"fmt"

	"github.com/ripkitten-co/tether"
	"github.com/ripkitten-co/tether/bindings"
)

// GetStatus returns the canonical status of a binding from the index,
// without touching storage.
func (e *Engine) GetStatus(bindingID string) (bindings.Status, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return "", fmt.Errorf("engine %s: get status %s: %w", e.scopeID, bindingID, tether.ErrNotInitialized)
	}
	b, ok := e.idx.get(bindingID)
	if !ok {
		return "", fmt.Errorf("engine %s: get status %s: %w", e.scopeID, bindingID, tether.ErrUnknownBinding)
	}
	return b.Status, nil
}

// BindingsByStatus returns copies of all bindings currently in the given
// status. O(n) over the scope.
func (e *Engine) BindingsByStatus(status bindings.Status) ([]bindings.Binding, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return nil, fmt.Errorf("engine %s: bindings by status: %w", e.scopeID, tether.ErrNotInitialized)
	}
	matched := e.idx.listByStatus(status)
	result := make([]bindings.Binding, 0, len(matched))
	for _, b := range matched {
		result = append(result, *b)
	}
	return result, nil
}

// BindingByElementID returns a copy of the binding linked to a canvas element.
func (e *Engine) BindingByElementID(elementID string) (*bindings.Binding, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return nil, fmt.Errorf("engine %s: binding by element %s: %w", e.scopeID, elementID, tether.ErrNotInitialized)
	}
	b, ok := e.idx.byElementID(elementID)
	if !ok {
		return nil, fmt.Errorf("engine %s: binding by element %s: %w", e.scopeID, elementID, tether.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

// BindingsByBlockID returns copies of all bindings anchored to a document block.
func (e *Engine) BindingsByBlockID(blockID string) ([]bindings.Binding, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return nil, fmt.Errorf("engine %s: bindings by block %s: %w", e.scopeID, blockID, tether.ErrNotInitialized)
	}
	matched := e.idx.byBlockID(blockID)
	result := make([]bindings.Binding, 0, len(matched))
	for _, b := range matched {
		result = append(result, *b)
	}
	return result, nil
}

// Status summarizes the engine's state for UI layers that need a snapshot
// without a rescan.
type Status struct {
	ScopeID     string
	Initialized bool
	Bindings    int
	ByStatus    map[bindings.Status]int
}

// Status reports the engine's scope, readiness, and binding counts.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Status{
		ScopeID:     e.scopeID,
		Initialized: e.initialized,
	}
	if e.initialized {
		s.Bindings = e.idx.size()
		s.ByStatus = e.idx.countByStatus()
	}
	return s
}
