package testutil

import (
	"context"
	"sync"
)

// MemoryState is a map-backed warehouse.StateStore.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryState struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryState creates a store holding the given pairs.
func NewMemoryState(pairs ...string) *MemoryState {
	s := &MemoryState{values: make(map[string]string)}
	for i := 0; i+1 < len(pairs); i += 2 {
		s.values[pairs[i]] = pairs[i+1]
	}
	return s
}

func (s *MemoryState) GetState(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryState) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryState) DeleteState(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Value returns the stored value for key, or "".
func (s *MemoryState) Value(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}
