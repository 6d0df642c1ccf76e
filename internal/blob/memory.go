package blob

import (
	"context"
	"sync"
)

// MemoryStore keeps blobs in a map. Used by tests and by the memory store
// driver in development.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Upload implements Store. The returned reference uses a mem:// scheme so
// tests can assert the key without caring about a real endpoint.
func (s *MemoryStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[key] = buf
	return "mem://" + key, nil
}

// Get returns a stored blob, for test assertions.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	return data, ok
}

var _ Store = (*MemoryStore)(nil)
