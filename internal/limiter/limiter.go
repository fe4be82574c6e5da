package limiter

import "time"

// Algorithm identifies an admission algorithm.
type Algorithm string

const (
	AlgorithmTokenBucket   Algorithm = "token_bucket"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmFixedWindow   Algorithm = "fixed_window"
)

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmTokenBucket, AlgorithmSlidingWindow, AlgorithmFixedWindow:
		return true
	}
	return false
}

// Primitive is the contract shared by the three admission counters.
// One instance covers exactly one derived limiter key; each instance
// serializes its own state mutation, so the registry can hand the same
// instance to concurrent callers.
type Primitive interface {
	// Consume attempts to take n slots. The refill/prune/rollover step and
	// the admission check happen atomically.
	Consume(n int) bool

	// Remaining returns the number of requests still admissible right now.
	// Never negative.
	Remaining() int

	// ResetTime returns when the primitive's state fully resets. Its exact
	// meaning is per-algorithm: time-to-full for the token bucket, oldest
	// entry expiry for the sliding window, next boundary for the fixed window.
	ResetTime() time.Time
}
