// Package memkv is an in-memory kv.Store, useful for tests and for
// single-process demos where durability across restarts isn't required.
package memkv

import (
	"context"
	"sync"

	"github.com/loonylabs-dev/react-native-offline-sync/kv"
)

type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

func New() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

var _ kv.Store = (*Store)(nil)
