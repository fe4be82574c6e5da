package rule

import (
	"testing"
	"time"

	"github.com/wardenlimit/warden/internal/clock"
	"github.com/wardenlimit/warden/internal/limiter"
)

var epoch = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func testRule(id string, priority int, scope Scope) *Rule {
	return &Rule{
		ID:       id,
		Name:     id,
		Priority: priority,
		Active:   true,
		Config: Config{
			Algorithm:     limiter.AlgorithmSlidingWindow,
			Scope:         scope,
			MaxRequests:   10,
			Window:        time.Minute,
			BlockDuration: time.Minute,
			LoadThreshold: 0.8,
		},
	}
}

func TestStore_SeededDefaults(t *testing.T) {
	s := NewStore(clock.NewVirtualClock(epoch))

	if got := s.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3 seeded defaults", got)
	}

	global := s.Get("default-global")
	if global == nil {
		t.Fatal("default-global missing")
	}
	if global.Config.Algorithm != limiter.AlgorithmSlidingWindow ||
		global.Config.MaxRequests != 1000 ||
		global.Config.Window != 60*time.Second ||
		global.Config.BlockDuration != 5*time.Minute ||
		!global.Config.Adaptive ||
		global.Config.LoadThreshold != 0.8 {
		t.Errorf("default-global config mismatch: %+v", global.Config)
	}

	perIP := s.Get("default-per-ip")
	if perIP == nil {
		t.Fatal("default-per-ip missing")
	}
	if perIP.Config.Scope != ScopePerIP ||
		perIP.Config.MaxRequests != 5 ||
		perIP.Config.BlockDuration != 15*time.Minute ||
		perIP.Config.LoadThreshold != 0.7 {
		t.Errorf("default-per-ip config mismatch: %+v", perIP.Config)
	}

	perUser := s.Get("default-per-user")
	if perUser == nil {
		t.Fatal("default-per-user missing")
	}
	if perUser.Config.Algorithm != limiter.AlgorithmFixedWindow ||
		perUser.Config.Window != 300*time.Second ||
		perUser.Config.BlockDuration != 30*time.Minute ||
		perUser.Config.Adaptive {
		t.Errorf("default-per-user config mismatch: %+v", perUser.Config)
	}
}

func TestStore_AddRemove(t *testing.T) {
	s := NewEmptyStore(clock.NewVirtualClock(epoch))

	r := testRule("r1", 1, ScopeGlobal)
	if err := s.Add(r); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(testRule("r1", 1, ScopeGlobal)); err == nil {
		t.Error("duplicate ID should be rejected")
	}

	removed, err := s.Remove("r1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed.ID != "r1" {
		t.Errorf("removed %q, want r1", removed.ID)
	}
	if _, err := s.Remove("r1"); err == nil {
		t.Error("removing a missing rule should error")
	}
}

func TestStore_AddGeneratesID(t *testing.T) {
	s := NewEmptyStore(clock.NewVirtualClock(epoch))

	r := testRule("", 1, ScopeGlobal)
	r.Name = "anon"
	if err := s.Add(r); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r.ID == "" {
		t.Error("Add should generate an ID")
	}
	if r.CreatedAt.IsZero() || r.UpdatedAt.IsZero() {
		t.Error("Add should stamp timestamps")
	}
}

func TestStore_AddRejectsInvalid(t *testing.T) {
	s := NewEmptyStore(clock.NewVirtualClock(epoch))

	bad := testRule("bad", 1, ScopeGlobal)
	bad.Config.Window = 0
	if err := s.Add(bad); err == nil {
		t.Error("zero window should be rejected")
	}

	bad = testRule("bad2", 1, ScopeGlobal)
	bad.Config.Algorithm = "leaky_bucket"
	if err := s.Add(bad); err == nil {
		t.Error("unknown algorithm should be rejected")
	}
}

func TestStore_MatchScopes(t *testing.T) {
	s := NewEmptyStore(clock.NewVirtualClock(epoch))
	s.Add(testRule("g", 1, ScopeGlobal))
	s.Add(testRule("ip", 1, ScopePerIP))
	s.Add(testRule("user", 1, ScopePerUser))
	s.Add(testRule("sess", 1, ScopePerSession))

	rctx := RequestContext{SourceIP: "10.0.0.1", UserID: "alice", SessionID: "s-1"}

	ids := func(rules []*Rule) map[string]bool {
		m := make(map[string]bool)
		for _, r := range rules {
			m[r.ID] = true
		}
		return m
	}

	got := ids(s.Match("10.0.0.1", rctx))
	if !got["g"] || !got["ip"] || got["user"] || got["sess"] {
		t.Errorf("Match for IP identifier = %v, want global+ip", got)
	}

	got = ids(s.Match("alice", rctx))
	if !got["g"] || !got["user"] || got["ip"] {
		t.Errorf("Match for user identifier = %v, want global+user", got)
	}

	got = ids(s.Match("unrelated", rctx))
	if !got["g"] || len(got) != 1 {
		t.Errorf("Match for unrelated identifier = %v, want global only", got)
	}
}

func TestStore_MatchSkipsInactive(t *testing.T) {
	s := NewEmptyStore(clock.NewVirtualClock(epoch))
	inactive := testRule("off", 1, ScopeGlobal)
	inactive.Active = false
	s.Add(inactive)

	if got := s.Match("x", RequestContext{}); len(got) != 0 {
		t.Errorf("inactive rule matched: %v", got)
	}
	if got := s.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d, want 0", got)
	}
}

func TestStore_MatchPriorityOrder(t *testing.T) {
	s := NewEmptyStore(clock.NewVirtualClock(epoch))
	s.Add(testRule("low", 1, ScopeGlobal))
	s.Add(testRule("high", 9, ScopeGlobal))
	s.Add(testRule("mid-a", 5, ScopeGlobal))
	s.Add(testRule("mid-b", 5, ScopeGlobal))

	got := s.Match("x", RequestContext{})
	want := []string{"high", "mid-a", "mid-b", "low"}
	if len(got) != len(want) {
		t.Fatalf("matched %d rules, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %q, want %q (descending priority, ties in insertion order)", i, got[i].ID, id)
		}
	}
}
