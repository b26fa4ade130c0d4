package storage

import (
	"context"
	"sync"
)

// MemoryStateStore keeps state in process memory. Used by tests and the
// "memory" store setting.
type MemoryStateStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	puts   int
}

// NewMemoryStateStore returns an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{values: make(map[string][]byte)}
}

// Get returns a copy of the value at key.
func (s *MemoryStateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, unavailable("get", key, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put stores a copy of value at key.
func (s *MemoryStateStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable("put", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	s.puts++
	return nil
}

// Puts reports how many writes have been performed.
func (s *MemoryStateStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
