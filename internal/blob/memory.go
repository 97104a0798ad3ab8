package blob

import (
	"context"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// InMemory is a map-backed Store for tests and development.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewInMemory creates an empty in-process store.
func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string]object)}
}

func (s *InMemory) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), data...)
	s.objects[key] = object{data: cp, contentType: contentType}
	return nil
}

func (s *InMemory) Get(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return append([]byte(nil), obj.data...), obj.contentType, nil
}

func (s *InMemory) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}
