package store

import (
	"context"
	"sync"
	"time"

	"github.com/wardenlimit/warden/internal/clock"
)

// MemoryStore is the default in-process block store. Expiry is checked
// against a Clock, so block TTLs can be exercised under virtual time.
type MemoryStore struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]time.Time // identifier -> unblock time
}

// NewMemoryStore creates an empty in-memory block store.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:   c,
		entries: make(map[string]time.Time),
	}
}

func (s *MemoryStore) Block(_ context.Context, identifier string, d time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unblockAt := s.clock.Now().Add(d)
	s.entries[identifier] = unblockAt
	return unblockAt, nil
}

// IsBlocked lazily deletes an expired entry on lookup.
func (s *MemoryStore) IsBlocked(_ context.Context, identifier string) (bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unblockAt, ok := s.entries[identifier]
	if !ok {
		return false, time.Time{}, nil
	}
	if !unblockAt.After(s.clock.Now()) {
		delete(s.entries, identifier)
		return false, time.Time{}, nil
	}
	return true, unblockAt, nil
}

func (s *MemoryStore) Unblock(_ context.Context, identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[identifier]
	delete(s.entries, identifier)
	return ok, nil
}

func (s *MemoryStore) Blocked(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	var out []Entry
	for id, unblockAt := range s.entries {
		if unblockAt.After(now) {
			out = append(out, Entry{Identifier: id, UnblockAt: unblockAt})
		}
	}
	return out, nil
}

func (s *MemoryStore) Cleanup(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, unblockAt := range s.entries {
		if !unblockAt.After(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
