package stats

import (
	"testing"
	"time"

	"github.com/wardenlimit/warden/internal/rule"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.RecordDecision(rule.ScopeGlobal, true, time.Millisecond)
	c.RecordDecision(rule.ScopeGlobal, false, time.Millisecond)
	c.RecordDecision(rule.ScopePerIP, true, time.Millisecond)

	s := c.Snapshot(nil, 0, 0, 0)
	if s.TotalRequests != 3 || s.Allowed != 2 || s.Blocked != 1 {
		t.Errorf("totals = %d/%d/%d, want 3/2/1", s.TotalRequests, s.Allowed, s.Blocked)
	}

	g := s.PerScope[string(rule.ScopeGlobal)]
	if g.Total != 2 || g.Allowed != 1 || g.Blocked != 1 {
		t.Errorf("global scope = %+v, want 2/1/1", g)
	}
	ip := s.PerScope[string(rule.ScopePerIP)]
	if ip.Total != 1 || ip.Allowed != 1 {
		t.Errorf("per_ip scope = %+v, want 1/1/0", ip)
	}
}

func TestCollector_RollingMean(t *testing.T) {
	c := NewCollector()

	// avg over 10ns, 20ns, 30ns is 20ns exactly.
	c.RecordDecision(rule.ScopeGlobal, true, 10*time.Nanosecond)
	c.RecordDecision(rule.ScopeGlobal, true, 20*time.Nanosecond)
	c.RecordDecision(rule.ScopeGlobal, true, 30*time.Nanosecond)

	s := c.Snapshot(nil, 0, 0, 0)
	if s.AvgProcessingNs < 19.999 || s.AvgProcessingNs > 20.001 {
		t.Errorf("AvgProcessingNs = %v, want 20", s.AvgProcessingNs)
	}
}

func TestCollector_MemoryEstimate(t *testing.T) {
	c := NewCollector()

	rules := []*rule.Rule{{ID: "r1", Name: "r1"}}
	s := c.Snapshot(rules, 1, 3, 2)

	wantFixed := 3*limiterEntryEstimate + 2*blockEntryEstimate
	if s.MemoryBytes <= wantFixed {
		t.Errorf("MemoryBytes = %d, want > %d (fixed estimates plus serialized rule)", s.MemoryBytes, wantFixed)
	}
	if s.ActiveRules != 1 || s.CachedLimiters != 3 || s.BlockEntries != 2 {
		t.Errorf("snapshot sizes = %d/%d/%d, want 1/3/2", s.ActiveRules, s.CachedLimiters, s.BlockEntries)
	}
}

func TestCollector_LastCleanup(t *testing.T) {
	c := NewCollector()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c.RecordCleanup(at)
	if got := c.Snapshot(nil, 0, 0, 0).LastCleanup; !got.Equal(at) {
		t.Errorf("LastCleanup = %v, want %v", got, at)
	}
}
