package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	status    Status
	result    string
	expiresAt time.Time
}

// MemoryStore is an in-process Store used in tests and single-node setups.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Begin(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[key]; ok && time.Now().Before(e.expiresAt) {
		return false, nil
	}
	s.items[key] = memoryEntry{status: StatusInFlight, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, key string, result string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memoryEntry{status: StatusCompleted, result: result, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Status, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		return StatusNone, "", nil
	}
	return e.status, e.result, nil
}
