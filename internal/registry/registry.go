// Package registry caches one algorithm primitive per derived limiter key.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/wardenlimit/warden/internal/clock"
	"github.com/wardenlimit/warden/internal/limiter"
	"github.com/wardenlimit/warden/internal/rule"
)

// Registry lazily creates and caches primitive instances. Keys derive from
// the full (rule, scope, identifier, context subset) tuple, so two callers
// passing different context fields for the same identifier get independent
// instances. Instances are never evicted by the registry itself; rule
// removal is the only destruction path.
type Registry struct {
	clock clock.Clock

	mu        sync.Mutex
	instances map[string]limiter.Primitive
	keyRule   map[string]string // derived key -> rule ID, for invalidation
}

// New creates an empty Registry.
func New(c clock.Clock) *Registry {
	return &Registry{
		clock:     c,
		instances: make(map[string]limiter.Primitive),
		keyRule:   make(map[string]string),
	}
}

// Key derives the deterministic cache key for a decision tuple.
func Key(ruleID string, scope rule.Scope, identifier string, rctx rule.RequestContext) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s",
		ruleID, scope, identifier, rctx.UserID, rctx.SourceIP, rctx.SessionID)
	return hex.EncodeToString(h.Sum(nil))
}

// Acquire returns the primitive for the decision tuple, creating it on
// first use. Returns an error for an unrecognized algorithm; the caller is
// expected to fail open.
func (g *Registry) Acquire(r *rule.Rule, identifier string, rctx rule.RequestContext) (limiter.Primitive, error) {
	key := Key(r.ID, r.Config.Scope, identifier, rctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if p, ok := g.instances[key]; ok {
		return p, nil
	}

	p, err := newPrimitive(r, g.clock)
	if err != nil {
		return nil, err
	}
	g.instances[key] = p
	g.keyRule[key] = r.ID
	return p, nil
}

func newPrimitive(r *rule.Rule, c clock.Clock) (limiter.Primitive, error) {
	cfg := r.Config
	switch cfg.Algorithm {
	case limiter.AlgorithmTokenBucket:
		return limiter.NewTokenBucket(cfg.MaxRequests, cfg.Window, cfg.Burst, c), nil
	case limiter.AlgorithmSlidingWindow:
		return limiter.NewSlidingWindow(cfg.MaxRequests, cfg.Window, c), nil
	case limiter.AlgorithmFixedWindow:
		return limiter.NewFixedWindow(cfg.MaxRequests, cfg.Window, c), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q in rule %q", cfg.Algorithm, r.ID)
	}
}

// InvalidateRule drops every cached instance created for the given rule.
func (g *Registry) InvalidateRule(ruleID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, id := range g.keyRule {
		if id == ruleID {
			delete(g.instances, key)
			delete(g.keyRule, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached instances. State only grows outside of
// rule removal, so operators should watch this.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.instances)
}
