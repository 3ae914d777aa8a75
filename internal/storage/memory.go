package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and as a degraded
// fallback when no durable path is available.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte

	// FailWrites makes Put/Delete fail, simulating a durable-layer outage.
	FailWrites bool
	// FailReads makes Get/Keys fail.
	FailReads bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

type memoryFailure struct{ op string }

func (e memoryFailure) Error() string { return "storage: simulated " + e.op + " failure" }

// Get reads a value by key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailReads {
		return nil, memoryFailure{op: "read"}
	}
	value, ok := s.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put writes a value by key.
func (s *MemoryStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return memoryFailure{op: "write"}
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.items[key] = stored
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return memoryFailure{op: "delete"}
	}
	delete(s.items, key)
	return nil
}

// Keys returns all stored keys with the given prefix, sorted.
func (s *MemoryStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailReads {
		return nil, memoryFailure{op: "scan"}
	}
	var keys []string
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
