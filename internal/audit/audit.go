// Package audit records the append-only per-run, per-stage trail of the
// pipeline. Entries are never updated or deleted after append and persist
// independently of run state.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one append-only audit record. StageID is a pipeline stage name,
// or "orchestrator" for run-level transitions.
type Entry struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	StageID       string    `json:"stage_id"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	InputSummary  string    `json:"input_summary,omitempty"`
	OutputSummary string    `json:"output_summary,omitempty"`
	Err           string    `json:"error,omitempty"`
}

// NewEntry stamps an entry with an id and the current time.
func NewEntry(runID, stageID, status string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		RunID:     runID,
		StageID:   stageID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// Sink accepts audit entries and serves them back per run in append order.
type Sink interface {
	Append(ctx context.Context, e Entry) error
	ByRun(ctx context.Context, runID string) ([]Entry, error)
}

// Compile-time interface check.
var _ Sink = (*MemorySink)(nil)

// MemorySink keeps the trail in process memory, ordered per run.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
	byRun   map[string][]int
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{byRun: make(map[string][]int)}
}

func (s *MemorySink) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	s.byRun[e.RunID] = append(s.byRun[e.RunID], len(s.entries)-1)
	return nil
}

func (s *MemorySink) ByRun(_ context.Context, runID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.byRun[runID]
	out := make([]Entry, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// Len reports the total number of appended entries.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
