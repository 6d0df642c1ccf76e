package docstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and by the
// STORE_DRIVER=memory development mode. Per-document atomicity comes from a
// single mutex over the whole store, which is more than the contract asks
// for but keeps the implementation trivial.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Document // collection -> id -> document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Document)}
}

// collection returns the named collection, creating it on first use.
// Callers must hold the write lock; readers use lookup instead.
func (s *MemoryStore) collection(name string) map[string]Document {
	coll, ok := s.data[name]
	if !ok {
		coll = make(map[string]Document)
		s.data[name] = coll
	}
	return coll
}

// lookup returns the named collection without creating it, so it is safe
// under the read lock. Ranging over the nil map it returns for an unknown
// collection yields nothing.
func (s *MemoryStore) lookup(name string) map[string]Document {
	return s.data[name]
}

// clone guards callers against aliasing the stored maps.
func clone(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = normalize(v)
	}
	return out
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.lookup(collection)[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc), nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll := s.lookup(collection)
	out := make([]Document, 0, len(coll))
	for _, doc := range coll {
		out = append(out, clone(doc))
	}
	return out, nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, doc := range s.lookup(collection) {
		if matches(doc, filters) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, collection, id string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection)[id] = clone(doc)
	return nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, collection, id string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collection(collection)
	if _, exists := coll[id]; exists {
		return ErrExists
	}
	coll[id] = clone(doc)
	return nil
}

// Apply implements Store.
func (s *MemoryStore) Apply(_ context.Context, collection, id string, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collection(collection)
	doc, ok := coll[id]
	if !ok {
		return ErrNotFound
	}
	applyUpdate(doc, update)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collection(collection), id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
