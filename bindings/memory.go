package bindings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ripkitten-co/tether"
)

// MemoryStore is an in-memory implementation of the same surface as Store.
// It backs unit tests and lightweight embedded use; semantics mirror the
// Postgres store, including the optimistic version check.
type MemoryStore struct {
	mu              sync.Mutex
	bindings        map[string]*Binding
	log             map[string][]StatusLogEntry
	cache           map[string]*ExistenceCacheEntry
	inconsistencies map[string]*Inconsistency
	nextLogID       int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		bindings:        make(map[string]*Binding),
		log:             make(map[string][]StatusLogEntry),
		cache:           make(map[string]*ExistenceCacheEntry),
		inconsistencies: make(map[string]*Inconsistency),
	}
}

func (m *MemoryStore) Insert(_ context.Context, b *Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bindings[b.ID]; ok {
		return fmt.Errorf("bindings: insert %s: %w", b.ID, tether.ErrDuplicateID)
	}
	b.Version = 1
	cp := *b
	m.bindings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bindings[id]
	if !ok {
		return nil, fmt.Errorf("bindings: load %s: %w", id, tether.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) ListByContainer(_ context.Context, containerID string) ([]Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Binding
	for _, b := range m.bindings {
		if b.ContainerID == containerID {
			result = append(result, *b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, u StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bindings[u.BindingID]
	if !ok {
		return fmt.Errorf("bindings: update %s: %w", u.BindingID, tether.ErrNotFound)
	}
	if b.Version != u.ExpectedVersion {
		return fmt.Errorf("bindings: update %s: %w", u.BindingID, tether.ErrConcurrencyConflict)
	}
	b.Status = u.Status
	b.StatusUpdatedAt = u.UpdatedAt
	b.StatusUpdatedBy = u.UpdatedBy
	b.Version++
	return nil
}

func (m *MemoryStore) AppendLog(_ context.Context, e *StatusLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLogID++
	e.ID = m.nextLogID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.log[e.BindingID] = append(m.log[e.BindingID], *e)
	return nil
}

func (m *MemoryStore) StatusLog(_ context.Context, bindingID string) ([]StatusLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.log[bindingID]
	result := make([]StatusLogEntry, len(entries))
	copy(result, entries)
	return result, nil
}

func (m *MemoryStore) UpsertCacheStatus(_ context.Context, bindingID string, status Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.cache[bindingID]
	if !ok {
		m.cache[bindingID] = &ExistenceCacheEntry{
			BindingID:      bindingID,
			Status:         status,
			ElementExists:  true,
			MarkExists:     true,
			LastVerifiedAt: at,
			CacheVersion:   1,
			IsStale:        true,
		}
		return nil
	}
	e.Status = status
	e.LastVerifiedAt = at
	e.CacheVersion++
	e.IsStale = true
	return nil
}

func (m *MemoryStore) UpsertCache(_ context.Context, e *ExistenceCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.cache[e.BindingID]
	cp := *e
	if ok {
		cp.CacheVersion = prev.CacheVersion + 1
	} else {
		cp.CacheVersion = 1
	}
	cp.IsStale = false
	m.cache[e.BindingID] = &cp
	return nil
}

func (m *MemoryStore) LoadCache(_ context.Context, bindingID string) (*ExistenceCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.cache[bindingID]
	if !ok {
		return nil, fmt.Errorf("bindings: load cache %s: %w", bindingID, tether.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) InsertInconsistency(_ context.Context, inc *Inconsistency) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *inc
	m.inconsistencies[inc.ID] = &cp
	return nil
}

func (m *MemoryStore) OpenInconsistency(_ context.Context, bindingID string) (*Inconsistency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var newest *Inconsistency
	for _, inc := range m.inconsistencies {
		if inc.BindingID != bindingID || inc.Resolved() {
			continue
		}
		if newest == nil || inc.DetectedAt.After(newest.DetectedAt) {
			newest = inc
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("bindings: open inconsistency %s: %w", bindingID, tether.ErrNotFound)
	}
	cp := *newest
	return &cp, nil
}

func (m *MemoryStore) ResolveInconsistency(_ context.Context, id, resolvedBy, action, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inc, ok := m.inconsistencies[id]
	if !ok || inc.Resolved() {
		return nil
	}
	now := time.Now()
	inc.ResolvedAt = &now
	inc.ResolvedBy = &resolvedBy
	inc.ResolutionAction = &action
	inc.ResolutionNotes = &notes
	return nil
}

func (m *MemoryStore) ListInconsistencies(_ context.Context, bindingID string) ([]Inconsistency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Inconsistency
	for _, inc := range m.inconsistencies {
		if inc.BindingID == bindingID {
			result = append(result, *inc)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DetectedAt.After(result[j].DetectedAt)
	})
	return result, nil
}
