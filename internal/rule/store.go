package rule

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wardenlimit/warden/internal/clock"
)

// Store holds rule definitions in memory. Rules keep insertion order, which
// is what breaks priority ties in Match. Thread-safe for concurrent use.
type Store struct {
	clock clock.Clock

	mu    sync.RWMutex
	rules []*Rule
	byID  map[string]*Rule
}

// NewStore creates a Store seeded with the default rules.
func NewStore(c clock.Clock) *Store {
	s := &Store{
		clock: c,
		byID:  make(map[string]*Rule),
	}
	for _, r := range Defaults(c.Now()) {
		s.rules = append(s.rules, r)
		s.byID[r.ID] = r
	}
	return s
}

// NewEmptyStore creates a Store without the seeded defaults.
func NewEmptyStore(c clock.Clock) *Store {
	return &Store{
		clock: c,
		byID:  make(map[string]*Rule),
	}
}

// Add validates and inserts a rule. A missing ID is generated. Timestamps
// are stamped from the store's clock.
func (s *Store) Add(r *Rule) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := s.byID[r.ID]; exists {
		return fmt.Errorf("rule %q already exists", r.ID)
	}

	now := s.clock.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	s.rules = append(s.rules, r)
	s.byID[r.ID] = r
	return nil
}

// Remove deletes a rule by ID and returns it.
func (s *Store) Remove(id string) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("rule %q not found", id)
	}

	delete(s.byID, id)
	for i, candidate := range s.rules {
		if candidate.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			break
		}
	}
	return r, nil
}

// Get returns the rule with the given ID, or nil.
func (s *Store) Get(id string) *Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// List returns all rules in insertion order.
func (s *Store) List() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of stored rules.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// ActiveCount returns the number of active rules.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.rules {
		if r.Active {
			n++
		}
	}
	return n
}

// Match returns the active rules whose scope applies to the identifier,
// sorted by descending priority. Equal priorities keep insertion order.
func (s *Store) Match(identifier string, rctx RequestContext) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Rule
	for _, r := range s.rules {
		if r.Active && r.Matches(identifier, rctx) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})
	return matched
}
