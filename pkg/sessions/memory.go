package sessions

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	target    string
	expiresAt time.Time
}

// memoryStore keeps session bindings in a map with TTL cleanup, in the same
// shape as the proxy session manager: a janitor goroutine sweeps expired
// entries at half the TTL interval.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryStore creates an in-process session store with the given TTL.
// A ttl of zero uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &memoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go s.cleanupRoutine()
	return s
}

func (s *memoryStore) cleanupRoutine() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *memoryStore) cleanupExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
}

func (s *memoryStore) Get(_ context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[sessionID]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", nil
	}
	return entry.target, nil
}

func (s *memoryStore) Set(_ context.Context, sessionID, targetURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memoryEntry{
		target:    targetURL,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return nil
}
