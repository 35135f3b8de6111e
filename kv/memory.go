package kv

import (
	"context"
	"io"
	"sort"
	"sync"
)

var _ Store = &MemStore{}

// MemStore is an in-memory Store. It is safe for concurrent use.
// It is intended for tests and for ephemeral datasets.
type MemStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string][]byte)}
}

func (s *MemStore) Put(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[string(key)] = append([]byte{}, value...)
	return nil
}

func (s *MemStore) Get(ctx context.Context, key, buf []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[string(key)]
	if !ok {
		return 0, NewNotExist("memory", string(key))
	}
	if len(v) > len(buf) {
		return 0, io.ErrShortBuffer
	}
	return copy(buf, v), nil
}

func (s *MemStore) Exists(ctx context.Context, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[string(key)]
	return ok, nil
}

func (s *MemStore) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, string(key))
	return nil
}

// Len returns the number of entries in the store.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *MemStore) NewKeyIterator(span Span) KeyIterator {
	s.mu.RLock()
	var keys [][]byte
	for k := range s.m {
		if span.Contains([]byte(k)) {
			keys = append(keys, []byte(k))
		}
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i]) < string(keys[j])
	})
	return &memIterator{keys: keys}
}

type memIterator struct {
	keys [][]byte
	pos  int
}

func (it *memIterator) Next(ctx context.Context, dst *[]byte) error {
	if it.pos >= len(it.keys) {
		return ErrEOS
	}
	*dst = append((*dst)[:0], it.keys[it.pos]...)
	it.pos++
	return nil
}
