package clock

import (
	"sync"
	"time"
)

// VirtualClock only moves when a test tells it to. Advancing is instant,
// so window rollovers, token refills, and block expiries spanning minutes
// verify in microseconds. Safe for concurrent use.
type VirtualClock struct {
	mu      sync.RWMutex
	now     time.Time
	pending []pendingTimer
}

// pendingTimer is a one-shot timer created through After, delivered by
// whichever Advance or Set call first reaches its deadline.
type pendingTimer struct {
	fireAt time.Time
	ch     chan time.Time
}

// NewVirtualClock returns a VirtualClock frozen at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Since returns the virtual duration elapsed since t.
func (c *VirtualClock) Since(t time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now.Sub(t)
}

// After registers a one-shot timer against virtual time. Non-positive
// durations fire immediately; everything else fires from the Advance or
// Set call that reaches the deadline. The channel is buffered, so firing
// never blocks the caller moving the clock.
func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.pending = append(c.pending, pendingTimer{fireAt: c.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d. Panics on negative d: virtual
// time is monotonic like real time.
func (c *VirtualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: negative advance")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveTo(c.now.Add(d))
}

// Set jumps the clock to an exact instant. Panics when t is earlier than
// the current virtual time.
func (c *VirtualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Before(c.now) {
		panic("clock: set would move time backwards")
	}
	c.moveTo(t)
}

// moveTo updates the clock, fires every pending timer whose deadline has
// been reached, and compacts the survivors in place. Caller holds c.mu.
func (c *VirtualClock) moveTo(t time.Time) {
	c.now = t

	kept := 0
	for _, p := range c.pending {
		if p.fireAt.After(t) {
			c.pending[kept] = p
			kept++
			continue
		}
		p.ch <- t
	}
	c.pending = c.pending[:kept]
}
