package service

import (
	"sync"

	"github.com/medirun/medisuite/internal/claim"
)

// RunStore is an in-memory index of runs, keyed by run id and preserving
// insertion order for listing. Only terminal runs are inserted, so readers
// always see immutable records.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]*claim.Run
	order []string
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*claim.Run)}
}

// Put inserts the run. Re-inserting an id is a no-op for ordering.
func (s *RunStore) Put(run *claim.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
}

// Get returns the run by id.
func (s *RunStore) Get(id string) (*claim.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// List returns all runs in insertion order.
func (s *RunStore) List() []*claim.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*claim.Run, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.runs[id])
	}
	return out
}

// Len returns the number of stored runs.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
