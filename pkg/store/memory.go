package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// memoryStore is the in-memory backend. Records are kept as JSON so that
// callers never share mutable state with the store, matching the
// remote-backend behavior.
type memoryStore[T any] struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an in-memory store. Visibility is limited to one
// process; it exists for development mode and tests.
func NewMemoryStore[T any]() Store[T] {
	return &memoryStore[T]{records: make(map[string][]byte)}
}

func (s *memoryStore[T]) TryGet(_ context.Context, name string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.records[name]
	if !ok {
		return nil, nil
	}
	return decode[T](raw)
}

func (s *memoryStore[T]) Upsert(_ context.Context, name string, record *T) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[name] = raw
	return nil
}

func (s *memoryStore[T]) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}

func (s *memoryStore[T]) List(_ context.Context) ([]*T, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*T, 0, len(names))
	for _, name := range names {
		record, err := decode[T](s.records[name])
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		out = append(out, record)
	}
	s.mu.RUnlock()
	return out, nil
}

func decode[T any](raw []byte) (*T, error) {
	var record T
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &record, nil
}
