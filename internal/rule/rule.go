package rule

import (
	"fmt"
	"time"

	"github.com/wardenlimit/warden/internal/limiter"
)

// Scope is the dimension a rule's limit is partitioned by.
type Scope string

const (
	ScopeGlobal     Scope = "global"
	ScopePerUser    Scope = "per_user"
	ScopePerIP      Scope = "per_ip"
	ScopePerSession Scope = "per_session"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopePerUser, ScopePerIP, ScopePerSession:
		return true
	}
	return false
}

// RequestContext carries the caller attributes scope predicates match on.
// Which fields a caller fills also feeds limiter key derivation: varying
// the context subset for the same identifier fragments limiter state.
type RequestContext struct {
	UserID    string `json:"user_id,omitempty"`
	SourceIP  string `json:"source_ip,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// AlertThresholds are utilization fractions (0..1) at which monitoring
// collaborators raise warnings.
type AlertThresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// Config holds the admission parameters of a rule.
type Config struct {
	Algorithm     limiter.Algorithm `json:"algorithm"`
	Scope         Scope             `json:"scope"`
	MaxRequests   int               `json:"max_requests"`
	Window        time.Duration     `json:"window"`
	Burst         int               `json:"burst,omitempty"` // token bucket only, 0 = max_requests
	BlockDuration time.Duration     `json:"block_duration"`
	Adaptive      bool              `json:"adaptive"`
	LoadThreshold float64           `json:"load_threshold"`
	Alerts        AlertThresholds   `json:"alerts"`
}

// Rule is one admission-control policy. Higher priority evaluates first.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority"`
	Active      bool      `json:"active"`
	Config      Config    `json:"config"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks rule invariants.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if !r.Config.Algorithm.Valid() {
		return fmt.Errorf("unknown algorithm %q", r.Config.Algorithm)
	}
	if !r.Config.Scope.Valid() {
		return fmt.Errorf("unknown scope %q", r.Config.Scope)
	}
	if r.Config.MaxRequests < 0 {
		return fmt.Errorf("max_requests must be >= 0, got %d", r.Config.MaxRequests)
	}
	if r.Config.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", r.Config.Window)
	}
	if r.Config.LoadThreshold < 0 || r.Config.LoadThreshold > 1 {
		return fmt.Errorf("load_threshold must be in [0,1], got %v", r.Config.LoadThreshold)
	}
	return nil
}

// Matches reports whether the rule's scope applies to the identifier with
// the given request context. Global rules match every request.
func (r *Rule) Matches(identifier string, rctx RequestContext) bool {
	switch r.Config.Scope {
	case ScopeGlobal:
		return true
	case ScopePerIP:
		return rctx.SourceIP == identifier
	case ScopePerUser:
		return rctx.UserID == identifier
	case ScopePerSession:
		return rctx.SessionID == identifier
	}
	return false
}

// Defaults returns the three rules seeded at startup. They protect an
// authentication surface: a global backstop plus tight per-IP and per-user
// limits on credential attempts.
func Defaults(now time.Time) []*Rule {
	return []*Rule{
		{
			ID:          "default-global",
			Name:        "Global request ceiling",
			Description: "Backstop across all callers",
			Priority:    10,
			Active:      true,
			Config: Config{
				Algorithm:     limiter.AlgorithmSlidingWindow,
				Scope:         ScopeGlobal,
				MaxRequests:   1000,
				Window:        60 * time.Second,
				BlockDuration: 5 * time.Minute,
				Adaptive:      true,
				LoadThreshold: 0.8,
				Alerts:        AlertThresholds{Warning: 0.7, Critical: 0.9},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          "default-per-ip",
			Name:        "Per-IP auth attempts",
			Description: "Throttles repeated attempts from one address",
			Priority:    20,
			Active:      true,
			Config: Config{
				Algorithm:     limiter.AlgorithmSlidingWindow,
				Scope:         ScopePerIP,
				MaxRequests:   5,
				Window:        60 * time.Second,
				BlockDuration: 15 * time.Minute,
				Adaptive:      true,
				LoadThreshold: 0.7,
				Alerts:        AlertThresholds{Warning: 0.7, Critical: 0.9},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          "default-per-user",
			Name:        "Per-user auth attempts",
			Description: "Caps credential attempts against one account",
			Priority:    30,
			Active:      true,
			Config: Config{
				Algorithm:     limiter.AlgorithmFixedWindow,
				Scope:         ScopePerUser,
				MaxRequests:   5,
				Window:        300 * time.Second,
				BlockDuration: 30 * time.Minute,
				Adaptive:      false,
				LoadThreshold: 0.8,
				Alerts:        AlertThresholds{Warning: 0.7, Critical: 0.9},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
