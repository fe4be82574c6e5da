// Package engine composes the admission-control decision pipeline.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenlimit/warden/internal/clock"
	"github.com/wardenlimit/warden/internal/event"
	"github.com/wardenlimit/warden/internal/limiter"
	"github.com/wardenlimit/warden/internal/registry"
	"github.com/wardenlimit/warden/internal/rule"
	"github.com/wardenlimit/warden/internal/stats"
	"github.com/wardenlimit/warden/internal/store"
	"github.com/wardenlimit/warden/internal/throttle"
)

// Decision reasons. Reasons appear in responses and event payloads.
const (
	ReasonBlacklisted    = "blacklisted"
	ReasonWhitelisted    = "whitelisted"
	ReasonBlocked        = "blocked"
	ReasonLimitExceeded  = "rate_limit_exceeded"
	ReasonSystemOverload = "system_overload"
	ReasonError          = "error"
)

// Metadata annotates a decision with what produced it.
type Metadata struct {
	Algorithm  limiter.Algorithm `json:"algorithm,omitempty"`
	Scope      rule.Scope        `json:"scope,omitempty"`
	Identifier string            `json:"identifier"`
	SystemLoad float64           `json:"system_load"`
}

// Decision is the structured result of one admission check. Check always
// returns one; no error crosses the public boundary.
type Decision struct {
	Allowed     bool       `json:"allowed"`
	Remaining   int        `json:"remaining"`
	ResetTime   time.Time  `json:"reset_time,omitzero"`
	RuleID      string     `json:"rule_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	UnblockTime *time.Time `json:"unblock_time,omitempty"`
	Metadata    Metadata   `json:"metadata"`
}

// Options configures an Engine. Zero-value fields get working defaults, so
// construction is explicit but cheap; there is no package-level instance.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
	Rules  *rule.Store
	Blocks store.BlockStore
	Bus    *event.Bus
	Load   *throttle.LoadSource
}

// Engine is the single public decision entry point. It owns the rule store,
// the limiter registry, the block store, the adaptive gate input, and the
// stats and event surfaces.
type Engine struct {
	clock    clock.Clock
	logger   *slog.Logger
	rules    *rule.Store
	registry *registry.Registry
	blocks   store.BlockStore
	load     *throttle.LoadSource
	stats    *stats.Collector
	bus      *event.Bus

	listMu    sync.RWMutex
	whitelist map[string]struct{}
	blacklist map[string]struct{}
}

// New creates an Engine.
func New(opts Options) *Engine {
	c := opts.Clock
	if c == nil {
		c = clock.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rules := opts.Rules
	if rules == nil {
		rules = rule.NewStore(c)
	}
	blocks := opts.Blocks
	if blocks == nil {
		blocks = store.NewMemoryStore(c)
	}
	bus := opts.Bus
	if bus == nil {
		bus = event.NewBus()
	}
	load := opts.Load
	if load == nil {
		load = throttle.NewLoadSource()
	}

	return &Engine{
		clock:     c,
		logger:    logger,
		rules:     rules,
		registry:  registry.New(c),
		blocks:    blocks,
		load:      load,
		stats:     stats.NewCollector(),
		bus:       bus,
		whitelist: make(map[string]struct{}),
		blacklist: make(map[string]struct{}),
	}
}

// Events exposes the notification bus for streaming/logging collaborators.
func (e *Engine) Events() *event.Bus { return e.bus }

// LoadSource exposes the injected system-load signal.
func (e *Engine) LoadSource() *throttle.LoadSource { return e.load }

// Rules exposes the rule store for read-only introspection.
func (e *Engine) Rules() *rule.Store { return e.rules }

// Check is the hot-path entry point. It always returns a Decision; internal
// failures fail open with reason "error".
func (e *Engine) Check(ctx context.Context, identifier string, rctx rule.RequestContext) Decision {
	start := e.clock.Now()
	systemLoad := e.load.Load()

	d := e.evaluate(ctx, identifier, rctx, systemLoad)

	scope := d.Metadata.Scope
	if scope == "" {
		scope = rule.ScopeGlobal
	}
	e.stats.RecordDecision(scope, d.Allowed, e.clock.Since(start))

	return d
}

func (e *Engine) evaluate(ctx context.Context, identifier string, rctx rule.RequestContext, systemLoad float64) Decision {
	meta := Metadata{Identifier: identifier, SystemLoad: systemLoad}

	// Blacklist beats everything, whitelist beats the limiter pipeline.
	e.listMu.RLock()
	_, denied := e.blacklist[identifier]
	_, exempt := e.whitelist[identifier]
	e.listMu.RUnlock()

	if denied {
		return Decision{Allowed: false, Reason: ReasonBlacklisted, Metadata: meta}
	}
	if exempt {
		return Decision{Allowed: true, Remaining: -1, Reason: ReasonWhitelisted, Metadata: meta}
	}

	// Temporary blocks short-circuit before any rule is evaluated. A block
	// store failure is transient: log and continue unblocked.
	blocked, until, err := e.blocks.IsBlocked(ctx, identifier)
	if err != nil {
		e.logger.Warn("block lookup failed, continuing unblocked",
			"identifier", identifier, "error", err)
	}
	if blocked {
		return Decision{
			Allowed:     false,
			Reason:      ReasonBlocked,
			ResetTime:   until,
			UnblockTime: &until,
			Metadata:    meta,
		}
	}

	matched := e.rules.Match(identifier, rctx)
	if len(matched) == 0 {
		return Decision{Allowed: true, Remaining: -1, Metadata: meta}
	}

	// Track the tightest passing rule; an allowed decision reports the
	// caller's real headroom, not the last rule's.
	var (
		tightRule      *rule.Rule
		tightRemaining = -1
		tightReset     time.Time
	)

	for _, r := range matched {
		gate := throttle.Evaluate(r.Config.Adaptive, r.Config.LoadThreshold, r.Config.MaxRequests, systemLoad)
		if gate.Overloaded {
			// Overload denial bypasses the primitive entirely; no token is
			// consumed and no window slot is used.
			return e.deny(ctx, identifier, r, meta, ReasonSystemOverload, 0, time.Time{})
		}

		prim, err := e.registry.Acquire(r, identifier, rctx)
		if err != nil {
			// Fail open: availability over strict enforcement.
			e.logger.Error("admission pipeline error, failing open",
				"identifier", identifier, "rule", r.ID, "error", err)
			e.bus.Publish(event.Event{
				Topic: event.TopicRateLimitError,
				Time:  e.clock.Now(),
				Payload: map[string]any{
					"identifier": identifier,
					"rule_id":    r.ID,
					"error":      err.Error(),
				},
			})
			return Decision{Allowed: true, Remaining: -1, Reason: ReasonError, RuleID: r.ID, Metadata: meta}
		}

		// The primitive always checks against the rule's original
		// maxRequests; gate.AdjustedMax gates, it never resizes.
		if !prim.Consume(1) {
			return e.deny(ctx, identifier, r, meta, ReasonLimitExceeded, prim.Remaining(), prim.ResetTime())
		}

		if remaining := prim.Remaining(); tightRemaining < 0 || remaining < tightRemaining {
			tightRule = r
			tightRemaining = remaining
			tightReset = prim.ResetTime()
		}
	}

	meta.Algorithm = tightRule.Config.Algorithm
	meta.Scope = tightRule.Config.Scope
	return Decision{
		Allowed:   true,
		Remaining: tightRemaining,
		ResetTime: tightReset,
		RuleID:    tightRule.ID,
		Metadata:  meta,
	}
}

// deny finalizes the first refusing rule: block the identifier for the
// rule's block duration (whatever the scope), emit events, stop evaluating.
func (e *Engine) deny(ctx context.Context, identifier string, r *rule.Rule, meta Metadata, reason string, remaining int, reset time.Time) Decision {
	meta.Algorithm = r.Config.Algorithm
	meta.Scope = r.Config.Scope

	d := Decision{
		Allowed:   false,
		Remaining: remaining,
		ResetTime: reset,
		RuleID:    r.ID,
		Reason:    reason,
		Metadata:  meta,
	}

	now := e.clock.Now()
	e.bus.Publish(event.Event{
		Topic: event.TopicRateLimitExceeded,
		Time:  now,
		Payload: map[string]any{
			"identifier": identifier,
			"rule_id":    r.ID,
			"scope":      string(r.Config.Scope),
			"reason":     reason,
		},
	})

	if r.Config.BlockDuration > 0 {
		unblockAt, err := e.blocks.Block(ctx, identifier, r.Config.BlockDuration)
		if err != nil {
			e.logger.Warn("recording block entry failed",
				"identifier", identifier, "rule", r.ID, "error", err)
		} else {
			d.UnblockTime = &unblockAt
			e.bus.Publish(event.Event{
				Topic: event.TopicIdentifierBlocked,
				Time:  now,
				Payload: map[string]any{
					"identifier": identifier,
					"rule_id":    r.ID,
					"unblock_at": unblockAt,
				},
			})
		}
	}

	return d
}

// AddRule validates and installs a rule.
func (e *Engine) AddRule(r *rule.Rule) error {
	if err := e.rules.Add(r); err != nil {
		return err
	}
	e.logger.Info("rule added", "rule", r.ID, "name", r.Name, "scope", string(r.Config.Scope))
	e.bus.Publish(event.Event{
		Topic:   event.TopicRuleAdded,
		Time:    e.clock.Now(),
		Payload: map[string]any{"rule_id": r.ID, "name": r.Name},
	})
	return nil
}

// RemoveRule deletes a rule and invalidates every limiter instance keyed to it.
func (e *Engine) RemoveRule(id string) error {
	r, err := e.rules.Remove(id)
	if err != nil {
		return err
	}
	invalidated := e.registry.InvalidateRule(id)
	e.logger.Info("rule removed", "rule", id, "invalidated_limiters", invalidated)
	e.bus.Publish(event.Event{
		Topic:   event.TopicRuleRemoved,
		Time:    e.clock.Now(),
		Payload: map[string]any{"rule_id": r.ID, "invalidated": invalidated},
	})
	return nil
}

// BlockIdentifier is the manual override for operational tooling.
func (e *Engine) BlockIdentifier(ctx context.Context, identifier string, d time.Duration) (time.Time, error) {
	unblockAt, err := e.blocks.Block(ctx, identifier, d)
	if err != nil {
		return time.Time{}, err
	}
	e.bus.Publish(event.Event{
		Topic:   event.TopicIdentifierBlocked,
		Time:    e.clock.Now(),
		Payload: map[string]any{"identifier": identifier, "unblock_at": unblockAt, "manual": true},
	})
	return unblockAt, nil
}

// UnblockIdentifier removes a block entry ahead of its expiry.
func (e *Engine) UnblockIdentifier(ctx context.Context, identifier string) error {
	existed, err := e.blocks.Unblock(ctx, identifier)
	if err != nil {
		return err
	}
	if existed {
		e.bus.Publish(event.Event{
			Topic:   event.TopicIdentifierUnblocked,
			Time:    e.clock.Now(),
			Payload: map[string]any{"identifier": identifier},
		})
	}
	return nil
}

// BlockedIdentifiers lists current block entries.
func (e *Engine) BlockedIdentifiers(ctx context.Context) ([]store.Entry, error) {
	return e.blocks.Blocked(ctx)
}

// AddToWhitelist exempts an identifier from the limiter pipeline.
func (e *Engine) AddToWhitelist(identifier string) {
	e.listMu.Lock()
	e.whitelist[identifier] = struct{}{}
	e.listMu.Unlock()
}

// RemoveFromWhitelist drops a whitelist entry.
func (e *Engine) RemoveFromWhitelist(identifier string) {
	e.listMu.Lock()
	delete(e.whitelist, identifier)
	e.listMu.Unlock()
}

// AddToBlacklist denies an identifier unconditionally.
func (e *Engine) AddToBlacklist(identifier string) {
	e.listMu.Lock()
	e.blacklist[identifier] = struct{}{}
	e.listMu.Unlock()
}

// RemoveFromBlacklist drops a blacklist entry.
func (e *Engine) RemoveFromBlacklist(identifier string) {
	e.listMu.Lock()
	delete(e.blacklist, identifier)
	e.listMu.Unlock()
}

// Cleanup purges expired block entries only; limiter state has no
// destruction path outside rule removal.
func (e *Engine) Cleanup(ctx context.Context) (int, error) {
	removed, err := e.blocks.Cleanup(ctx)
	now := e.clock.Now()
	if err != nil {
		e.bus.Publish(event.Event{
			Topic:   event.TopicCleanupError,
			Time:    now,
			Payload: map[string]any{"error": err.Error()},
		})
		return 0, err
	}

	e.stats.RecordCleanup(now)
	e.bus.Publish(event.Event{
		Topic:   event.TopicCleanupCompleted,
		Time:    now,
		Payload: map[string]any{"removed": removed},
	})
	return removed, nil
}

// RunCleanupLoop sweeps expired block entries on the given interval until
// ctx is done. Intended to run in its own goroutine; sweeps never block
// concurrent decisions.
func (e *Engine) RunCleanupLoop(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(interval):
			removed, err := e.Cleanup(ctx)
			if err != nil {
				e.logger.Error("block sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				e.logger.Debug("block sweep", "removed", removed)
			}
		}
	}
}

// Stats assembles the introspection snapshot.
func (e *Engine) Stats(ctx context.Context) stats.Snapshot {
	blockEntries, err := e.blocks.Len(ctx)
	if err != nil {
		e.logger.Warn("block store size unavailable", "error", err)
	}
	return e.stats.Snapshot(e.rules.List(), e.rules.ActiveCount(), e.registry.Len(), blockEntries)
}
