package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and single-replica
// development. It keeps the same window semantics as RedisStore but is not
// shared across replicas.
type MemoryStore struct {
	mu       sync.Mutex
	events   map[string][]time.Time
	accepted map[string]int64
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string][]time.Time),
		accepted: make(map[string]int64),
	}
}

func (s *MemoryStore) Slide(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := trim(s.events[key], now.Add(-window))
	kept = append(kept, now)
	s.events[key] = kept

	return int64(len(kept)), kept[0], nil
}

func (s *MemoryStore) CountInWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(trim(s.events[key], now.Add(-window)))), nil
}

func (s *MemoryStore) IncrAccepted(ctx context.Context, projectID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accepted[projectID]++
	return s.accepted[projectID], nil
}

func (s *MemoryStore) AcceptedCount(ctx context.Context, projectID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accepted[projectID], nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// SetAccepted seeds a project's accepted total. Test helper.
func (s *MemoryStore) SetAccepted(projectID string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accepted[projectID] = count
}

// trim drops events strictly older than cutoff. Events exactly at the cutoff
// still count (window closed on the lower bound).
func trim(events []time.Time, cutoff time.Time) []time.Time {
	kept := events[:0]
	for _, t := range events {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
