// Package stats aggregates decision counters for introspection.
package stats

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wardenlimit/warden/internal/rule"
)

// Fixed per-entry size estimates. Limiter instances and block entries are
// not serialized, so the memory figure is an approximation for dashboards,
// not an accounting tool.
const (
	limiterEntryEstimate = 256
	blockEntryEstimate   = 64
)

// ScopeCounts breaks decisions down for one scope.
type ScopeCounts struct {
	Total   uint64 `json:"total"`
	Allowed uint64 `json:"allowed"`
	Blocked uint64 `json:"blocked"`
}

// Snapshot is a point-in-time view of engine activity.
type Snapshot struct {
	TotalRequests   uint64                 `json:"total_requests"`
	Allowed         uint64                 `json:"allowed"`
	Blocked         uint64                 `json:"blocked"`
	PerScope        map[string]ScopeCounts `json:"per_scope"`
	AvgProcessingNs float64                `json:"avg_processing_ns"`
	ActiveRules     int                    `json:"active_rules"`
	CachedLimiters  int                    `json:"cached_limiters"`
	BlockEntries    int                    `json:"block_entries"`
	MemoryBytes     int                    `json:"memory_bytes"`
	LastCleanup     time.Time              `json:"last_cleanup,omitempty"`
}

// Collector accumulates counters. Thread-safe; updated on every decision.
type Collector struct {
	mu          sync.Mutex
	total       uint64
	allowed     uint64
	blocked     uint64
	perScope    map[rule.Scope]*ScopeCounts
	avgNanos    float64
	samples     uint64
	lastCleanup time.Time
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{perScope: make(map[rule.Scope]*ScopeCounts)}
}

// RecordDecision folds one decision into the counters. The rolling mean
// uses avg = (avg*(n-1) + new) / n.
func (c *Collector) RecordDecision(scope rule.Scope, allowed bool, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	sc, ok := c.perScope[scope]
	if !ok {
		sc = &ScopeCounts{}
		c.perScope[scope] = sc
	}
	sc.Total++

	if allowed {
		c.allowed++
		sc.Allowed++
	} else {
		c.blocked++
		sc.Blocked++
	}

	c.samples++
	n := float64(c.samples)
	c.avgNanos = (c.avgNanos*(n-1) + float64(elapsed.Nanoseconds())) / n
}

// RecordCleanup notes when the last block sweep finished.
func (c *Collector) RecordCleanup(at time.Time) {
	c.mu.Lock()
	c.lastCleanup = at
	c.mu.Unlock()
}

// Snapshot assembles the introspection view. The memory estimate sums the
// serialized size of every rule plus fixed per-entry estimates for cached
// limiter instances and block entries.
func (c *Collector) Snapshot(rules []*rule.Rule, activeRules, cachedLimiters, blockEntries int) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	perScope := make(map[string]ScopeCounts, len(c.perScope))
	for scope, counts := range c.perScope {
		perScope[string(scope)] = *counts
	}

	memory := cachedLimiters*limiterEntryEstimate + blockEntries*blockEntryEstimate
	for _, r := range rules {
		if data, err := json.Marshal(r); err == nil {
			memory += len(data)
		}
	}

	return Snapshot{
		TotalRequests:   c.total,
		Allowed:         c.allowed,
		Blocked:         c.blocked,
		PerScope:        perScope,
		AvgProcessingNs: c.avgNanos,
		ActiveRules:     activeRules,
		CachedLimiters:  cachedLimiters,
		BlockEntries:    blockEntries,
		MemoryBytes:     memory,
		LastCleanup:     c.lastCleanup,
	}
}
