package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/realty/internal/domain/shared"
)

// sweepEvery is the number of new markers between expiry sweeps
const sweepEvery = 1024

// InMemoryIdempotencyStore keeps delivery markers in process memory. The
// markers are lost on restart and are not shared between engine instances;
// the commission event id still lets downstream consumers deduplicate.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	clock   shared.Clock
	marks   int
}

// NewInMemoryIdempotencyStore creates an empty store read against the wall clock
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		expires: make(map[string]time.Time),
		clock:   shared.SystemClock{},
	}
}

// WithClock sets the clock markers expire against
func (s *InMemoryIdempotencyStore) WithClock(clock shared.Clock) *InMemoryIdempotencyStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// MarkProcessed sets the marker for key unless a live one exists. Expired
// markers count as absent and are swept every sweepEvery new markers.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if expiresAt, ok := s.expires[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)

	s.marks++
	if s.marks%sweepEvery == 0 {
		s.sweep(now)
	}
	return true, nil
}

// Unmark removes the marker of key
func (s *InMemoryIdempotencyStore) Unmark(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, key)
	return nil
}

// Close drops every marker
func (s *InMemoryIdempotencyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires = make(map[string]time.Time)
	return nil
}

// Len returns the number of stored markers, expired ones included
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

func (s *InMemoryIdempotencyStore) sweep(now time.Time) {
	for key, expiresAt := range s.expires {
		if !now.Before(expiresAt) {
			delete(s.expires, key)
		}
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
