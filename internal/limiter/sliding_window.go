package limiter

import (
	"sync"
	"time"

	"github.com/wardenlimit/warden/internal/clock"
)

// SlidingWindow keeps a log of admission timestamps and admits a request
// while fewer than max fall inside the trailing window. Precise at the
// window boundary, at the cost of one stored timestamp per admission.
type SlidingWindow struct {
	clock  clock.Clock
	max    int
	window time.Duration

	mu  sync.Mutex
	log []time.Time
}

// NewSlidingWindow creates a sliding window log limiter.
func NewSlidingWindow(max int, window time.Duration, c clock.Clock) *SlidingWindow {
	return &SlidingWindow{
		clock:  c,
		max:    max,
		window: window,
	}
}

// prune drops entries older than now-window. Must be called with sw.mu held.
func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.window)
	kept := sw.log[:0]
	for _, ts := range sw.log {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	sw.log = kept
}

func (sw *SlidingWindow) Consume(n int) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.Now()
	sw.prune(now)

	if len(sw.log)+n > sw.max {
		return false
	}
	for i := 0; i < n; i++ {
		sw.log = append(sw.log, now)
	}
	return true
}

func (sw *SlidingWindow) Remaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.prune(sw.clock.Now())

	if r := sw.max - len(sw.log); r > 0 {
		return r
	}
	return 0
}

// ResetTime is when the oldest retained entry falls out of the window, or
// one full window from now if the log is empty.
func (sw *SlidingWindow) ResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.Now()
	sw.prune(now)

	if len(sw.log) == 0 {
		return now.Add(sw.window)
	}
	return sw.log[0].Add(sw.window)
}
