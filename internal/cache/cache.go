// Package cache persists the last snapshot of every view so that a restarted
// dashboard can show data before the first fetch completes. The cache is
// advisory: the next fetch always replaces what it restored.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Snapshot is the persisted contents of one view.
type Snapshot struct {
	Records json.RawMessage `json:"records"`
	SavedAt time.Time       `json:"savedAt"`
}

// Store abstracts the cache backend.
type Store interface {
	Save(view string, snap Snapshot) error
	Load(view string) (Snapshot, bool, error)
	Range(fn func(view string, snap Snapshot) error) error
	Close() error
}

// Encode builds a snapshot of records taken at now.
func Encode[T any](records []T, now time.Time) (Snapshot, error) {
	if records == nil {
		records = []T{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return Snapshot{Records: b, SavedAt: now.UTC()}, nil
}

// Decode returns the records held by snap.
func Decode[T any](snap Snapshot) ([]T, error) {
	var out []T
	if len(snap.Records) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(snap.Records, &out); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return out, nil
}

// InMemoryStore is a simple thread-safe map store.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]Snapshot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]Snapshot)}
}

func (s *InMemoryStore) Save(view string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[view] = Snapshot{Records: append(json.RawMessage(nil), snap.Records...), SavedAt: snap.SavedAt}
	return nil
}

func (s *InMemoryStore) Load(view string) (Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[view]
	return snap, ok, nil
}

func (s *InMemoryStore) Range(fn func(view string, snap Snapshot) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.data {
		if err := fn(k, v); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
