package repository

import (
	"context"
	"sync"
)

// MemoryStore keeps collections in process memory. Values are copied on the way in and out.
type MemoryStore struct {
	values sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, ok := s.values.Load(key)
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), val.([]byte)...), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.values.Store(key, append([]byte(nil), value...))
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.values.Delete(key)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.values.Range(func(key, _ any) bool {
		s.values.Delete(key)
		return true
	})
	return nil
}
