package cluster

import (
	"context"
	"sync"
)

// StickyStore remembers the last successful endpoint per call class.
type StickyStore interface {
	Get(ctx context.Context, class string) (string, error)
	Put(ctx context.Context, class, endpointID string) error
	Delete(ctx context.Context, class string) error
}

// MemoryStickyStore is a process-local StickyStore.
type MemoryStickyStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStickyStore creates an empty store.
func NewMemoryStickyStore() *MemoryStickyStore {
	return &MemoryStickyStore{entries: make(map[string]string)}
}

func (s *MemoryStickyStore) Get(_ context.Context, class string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[class], nil
}

func (s *MemoryStickyStore) Put(_ context.Context, class, endpointID string) error {
	s.mu.Lock()
	s.entries[class] = endpointID
	s.mu.Unlock()
	return nil
}

func (s *MemoryStickyStore) Delete(_ context.Context, class string) error {
	s.mu.Lock()
	delete(s.entries, class)
	s.mu.Unlock()
	return nil
}
