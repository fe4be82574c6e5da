package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenlimit/warden/internal/clock"
)

// Provider supplies a system load sample in [0,1]. Warden treats load as an
// injected external signal; it never measures the host itself.
type Provider func(ctx context.Context) (float64, error)

// LoadSource holds the most recent load sample. Reads are hot-path (every
// decision consults it), writes come from operators or the refresh loop.
type LoadSource struct {
	mu   sync.RWMutex
	load float64
}

// NewLoadSource creates a LoadSource starting at zero load.
func NewLoadSource() *LoadSource {
	return &LoadSource{}
}

// Set stores a sample, clamped to [0,1].
func (s *LoadSource) Set(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.mu.Lock()
	s.load = v
	s.mu.Unlock()
}

// Load returns the current sample.
func (s *LoadSource) Load() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load
}

// Run polls the provider on the given interval until ctx is done. A failing
// provider is not fatal: the last good sample stays in effect and the error
// is logged. Runs on its own timer and never blocks decision calls.
func (s *LoadSource) Run(ctx context.Context, c clock.Clock, interval time.Duration, p Provider, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.After(interval):
			sample, err := p(ctx)
			if err != nil {
				logger.Warn("load sample unavailable, keeping last value",
					"error", err, "load", s.Load())
				continue
			}
			s.Set(sample)
		}
	}
}
