package memory

import (
	"context"
	"sync"
)

// KVStore keeps items in a map.  It is intended for tests, dev environments
// and the CLI's --ephemeral mode.
type KVStore struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewKVStore() *KVStore {
	return &KVStore{items: make(map[string]string)}
}

func (s *KVStore) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *KVStore) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *KVStore) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
