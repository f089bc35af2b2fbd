package store

import (
	"context"
	"sync"
)

// MemoryStore is a concurrency-safe in-memory Store, useful in tests and
// for short-lived processes.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[Key]Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[Key]Object)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotExist
	}
	// Return a copy to prevent callers from mutating internal state.
	clone := obj
	return &clone, nil
}

func (s *MemoryStore) Put(_ context.Context, key Key, obj *Object) error {
	s.mu.Lock()
	s.objects[key] = *obj
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored variants.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
