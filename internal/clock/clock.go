// Package clock isolates warden from the system clock. Limiter state,
// block expiry, and the background loops all read time through a Clock,
// so tests drive them with a VirtualClock instead of sleeping.
package clock

import "time"

// Clock is the time source threaded through the engine.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
	// After behaves like time.After against this clock's notion of time.
	After(d time.Duration) <-chan time.Time
}

// RealClock delegates to the standard time package.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (c *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
