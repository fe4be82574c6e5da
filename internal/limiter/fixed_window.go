package limiter

import (
	"sync"
	"time"

	"github.com/wardenlimit/warden/internal/clock"
)

// FixedWindow counts admissions inside aligned windows of fixed duration.
// The counter resets exactly when floor(now/window) advances. Cheap, but
// can admit up to 2x max across a window boundary.
type FixedWindow struct {
	clock  clock.Clock
	max    int
	window time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewFixedWindow creates a fixed window counter limiter.
func NewFixedWindow(max int, window time.Duration, c clock.Clock) *FixedWindow {
	fw := &FixedWindow{
		clock:  c,
		max:    max,
		window: window,
	}
	fw.windowStart = fw.alignedStart(c.Now())
	return fw
}

// alignedStart returns the start of the window containing t.
func (fw *FixedWindow) alignedStart(t time.Time) time.Time {
	id := t.UnixNano() / int64(fw.window)
	return time.Unix(0, id*int64(fw.window))
}

// rollover resets the counter when the aligned window has advanced past the
// stored one. Must be called with fw.mu held.
func (fw *FixedWindow) rollover(now time.Time) {
	if start := fw.alignedStart(now); start.After(fw.windowStart) {
		fw.windowStart = start
		fw.count = 0
	}
}

func (fw *FixedWindow) Consume(n int) bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.rollover(fw.clock.Now())

	if fw.count+n > fw.max {
		return false
	}
	fw.count += n
	return true
}

func (fw *FixedWindow) Remaining() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.rollover(fw.clock.Now())

	if r := fw.max - fw.count; r > 0 {
		return r
	}
	return 0
}

func (fw *FixedWindow) ResetTime() time.Time {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.rollover(fw.clock.Now())
	return fw.windowStart.Add(fw.window)
}
