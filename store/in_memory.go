package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/invoicemesh/core"
)

var _ core.RunStore = (*InMemoryStore)(nil)

// InMemoryStore is a volatile RunStore keeping runs in a process local map.
// It is safe for concurrent access. Saved and returned runs are cloned so
// callers cannot mutate stored state.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*core.OrchestrationRun
}

// NewInMemoryStore constructs an empty in-memory run store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]*core.OrchestrationRun)}
}

// Save stores a clone of run.
func (s *InMemoryStore) Save(_ context.Context, run *core.OrchestrationRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("save run: missing run id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Clone()
	return nil
}

// Get returns a clone of the stored run.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.OrchestrationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("get run %q: %w", id, core.ErrRunNotFound)
	}
	return run.Clone(), nil
}

// List returns up to limit runs ordered by completion time, newest first.
// limit <= 0 returns every run.
func (s *InMemoryStore) List(_ context.Context, limit int) ([]*core.OrchestrationRun, error) {
	s.mu.RLock()
	out := make([]*core.OrchestrationRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a run.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("delete run %q: %w", id, core.ErrRunNotFound)
	}
	delete(s.runs, id)
	return nil
}
