// Package memory implements store.ObjectStore with an in-process map.
// Used by tests and by DEV_MODE runs that have no DynamoDB available.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tomoki/redline/internal/store"
)

// Store is a map-backed ObjectStore. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		objects: make(map[string][]byte),
	}
}

func (s *Store) ConditionalCreate(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; ok {
		return store.ErrAlreadyExists
	}
	s.objects[key] = clone(payload)
	return nil
}

func (s *Store) Overwrite(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = clone(payload)
	return nil
}

func (s *Store) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(payload), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// clone keeps callers from aliasing the stored slice.
func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
