// Package reconcile compares canonical binding status against the existence
// signals each projection reports for its own entities, persists classified
// findings, auto-applies high-confidence fixes through the transition
// engine, and demotes the rest to human review.
package reconcile

import (
	"context"
	"sync"
)

// EntityState is one projection's existence signal for one of its entities.
// The projection owns and mutates it; this package only reads it.
type EntityState struct {
	Exists  bool
	Deleted bool
}

// Source reads a projection's existence signals for all entities in a
// container. Implementations must not mutate projection data.
type Source interface {
	States(ctx context.Context, containerID string) (map[string]EntityState, error)
}

// MemorySource is a map-backed Source for tests and for hosts that push
// signals instead of exposing a table.
type MemorySource struct {
	mu         sync.RWMutex
	containers map[string]map[string]EntityState
}

// NewMemorySource returns an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		containers: make(map[string]map[string]EntityState),
	}
}

// Set records the state of one entity.
func (s *MemorySource) Set(containerID, entityID string, st EntityState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[containerID]
	if !ok {
		c = make(map[string]EntityState)
		s.containers[containerID] = c
	}
	c[entityID] = st
}

// Remove forgets an entity entirely, as if its row vanished.
func (s *MemorySource) Remove(containerID, entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.containers[containerID], entityID)
}

func (s *MemorySource) States(_ context.Context, containerID string) (map[string]EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]EntityState, len(s.containers[containerID]))
	for id, st := range s.containers[containerID] {
		out[id] = st
	}
	return out, nil
}
