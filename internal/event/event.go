// Package event carries engine notifications to logging, alerting, and
// streaming collaborators without coupling them to the decision path.
package event

import (
	"sync"
	"time"
)

// Topic names are part of the operational surface; monitoring tooling
// matches on them verbatim.
type Topic string

const (
	TopicRuleAdded           Topic = "rule:added"
	TopicRuleRemoved         Topic = "rule:removed"
	TopicRateLimitExceeded   Topic = "rate_limit:exceeded"
	TopicIdentifierBlocked   Topic = "identifier:blocked"
	TopicIdentifierUnblocked Topic = "identifier:unblocked"
	TopicCleanupCompleted    Topic = "cleanup:completed"
	TopicCleanupError        Topic = "cleanup:error"
	TopicRateLimitError      Topic = "rate_limit:error"
)

// Event is one notification.
type Event struct {
	Topic   Topic          `json:"topic"`
	Time    time.Time      `json:"time"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// that falls behind loses events rather than stalling decisions.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// func unregisters and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers e to every subscriber that has buffer space.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
