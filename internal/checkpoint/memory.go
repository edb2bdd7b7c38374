package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemStore is a thread-safe, in-memory Store for tests and for running
// without a data directory. Snapshots are deep-copied through JSON so
// callers cannot mutate stored state.
type MemStore struct {
	mu   sync.RWMutex
	rows map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string][]byte)}
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// Save implements Store.
func (s *MemStore) Save(_ context.Context, cp Checkpoint) error {
	if cp.Job.ID == "" {
		return fmt.Errorf("checkpoint: save: empty job id")
	}
	cp.SavedAt = time.Now().UTC()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.rows[cp.Job.ID]; ok {
		var prev Checkpoint
		if err := json.Unmarshal(old, &prev); err == nil {
			if prev.Job.Status.Terminal() && prev.Job.Status != cp.Job.Status {
				return fmt.Errorf("checkpoint: save %s: %w", cp.Job.ID, ErrTerminal)
			}
		}
	}

	s.rows[cp.Job.ID] = data
	return nil
}

// Load implements Store.
func (s *MemStore) Load(_ context.Context, jobID string) (Checkpoint, error) {
	s.mu.RLock()
	data, ok := s.rows[jobID]
	s.mu.RUnlock()

	if !ok {
		return Checkpoint{}, fmt.Errorf("checkpoint: load %s: %w", jobID, ErrNotFound)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: unmarshal %s: %w", jobID, err)
	}
	return cp, nil
}

// Delete implements Store.
func (s *MemStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, jobID)
	return nil
}

// SweepExpired implements Store.
func (s *MemStore) SweepExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, data := range s.rows {
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		if cp.Job.Status.Terminal() && cp.SavedAt.Before(cutoff) {
			delete(s.rows, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored checkpoints.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
