package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/wardenlimit/warden/internal/limiter"
	"github.com/wardenlimit/warden/internal/rule"
	"github.com/wardenlimit/warden/internal/store"
)

// Config is the top-level configuration for a warden process.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Cleanup CleanupConfig `json:"cleanup"`
	Load    LoadConfig    `json:"load"`
	Rules   []RuleSpec    `json:"rules,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// StorageConfig selects the block-store backend.
type StorageConfig struct {
	Backend string      `json:"backend"`
	Redis   RedisConfig `json:"redis"`
}

// RedisConfig mirrors store.RedisConfig with JSON tags.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db"`
}

// CleanupConfig controls the periodic block-entry sweep.
type CleanupConfig struct {
	Interval time.Duration `json:"interval"`
}

// LoadConfig controls system-load sampling.
type LoadConfig struct {
	SampleInterval time.Duration `json:"sample_interval"`
}

// RuleSpec is the JSON-friendly rule shape with string durations. It is
// also the payload shape of the rule management API.
type RuleSpec struct {
	ID            string  `json:"id,omitempty"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Priority      int     `json:"priority"`
	Active        *bool   `json:"active,omitempty"` // nil means active
	Algorithm     string  `json:"algorithm"`
	Scope         string  `json:"scope"`
	MaxRequests   int     `json:"max_requests"`
	Window        string  `json:"window"`
	Burst         int     `json:"burst,omitempty"`
	BlockDuration string  `json:"block_duration,omitempty"`
	Adaptive      bool    `json:"adaptive,omitempty"`
	LoadThreshold float64 `json:"load_threshold,omitempty"`
}

// ToRule converts the spec into a validated rule.
func (rs RuleSpec) ToRule() (*rule.Rule, error) {
	window, err := time.ParseDuration(rs.Window)
	if err != nil {
		return nil, fmt.Errorf("parsing window: %w", err)
	}

	var blockDuration time.Duration
	if rs.BlockDuration != "" {
		blockDuration, err = time.ParseDuration(rs.BlockDuration)
		if err != nil {
			return nil, fmt.Errorf("parsing block_duration: %w", err)
		}
	}

	active := true
	if rs.Active != nil {
		active = *rs.Active
	}

	r := &rule.Rule{
		ID:          rs.ID,
		Name:        rs.Name,
		Description: rs.Description,
		Priority:    rs.Priority,
		Active:      active,
		Config: rule.Config{
			Algorithm:     limiter.Algorithm(rs.Algorithm),
			Scope:         rule.Scope(rs.Scope),
			MaxRequests:   rs.MaxRequests,
			Window:        window,
			Burst:         rs.Burst,
			BlockDuration: blockDuration,
			Adaptive:      rs.Adaptive,
			LoadThreshold: rs.LoadThreshold,
		},
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{Backend: store.BackendMemory, Redis: RedisConfig{Host: "localhost", Port: 6379}},
		Cleanup: CleanupConfig{Interval: time.Minute},
		Load:    LoadConfig{SampleInterval: 10 * time.Second},
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Storage.Backend {
	case store.BackendMemory:
	case store.BackendRedis:
		if c.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required for the redis backend")
		}
		if c.Storage.Redis.Port <= 0 {
			return fmt.Errorf("storage.redis.port must be positive, got %d", c.Storage.Redis.Port)
		}
	default:
		return fmt.Errorf("unknown storage backend %q, must be one of: memory, redis", c.Storage.Backend)
	}
	if c.Cleanup.Interval <= 0 {
		return fmt.Errorf("cleanup.interval must be positive, got %s", c.Cleanup.Interval)
	}
	if c.Load.SampleInterval <= 0 {
		return fmt.Errorf("load.sample_interval must be positive, got %s", c.Load.SampleInterval)
	}
	for i, rs := range c.Rules {
		if _, err := rs.ToRule(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	return nil
}

// LoadFile reads a JSON config file and merges it with defaults. Fields not
// specified in the file retain their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	// Raw intermediate struct so durations parse from strings.
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if raw.Server.Addr != "" {
		cfg.Server.Addr = raw.Server.Addr
	}
	if raw.Storage.Backend != "" {
		cfg.Storage.Backend = raw.Storage.Backend
	}
	if raw.Storage.Redis.Host != "" {
		cfg.Storage.Redis.Host = raw.Storage.Redis.Host
	}
	if raw.Storage.Redis.Port > 0 {
		cfg.Storage.Redis.Port = raw.Storage.Redis.Port
	}
	cfg.Storage.Redis.Password = raw.Storage.Redis.Password
	cfg.Storage.Redis.DB = raw.Storage.Redis.DB

	if raw.Cleanup.Interval != "" {
		d, err := time.ParseDuration(raw.Cleanup.Interval)
		if err != nil {
			return cfg, fmt.Errorf("parsing cleanup.interval: %w", err)
		}
		cfg.Cleanup.Interval = d
	}
	if raw.Load.SampleInterval != "" {
		d, err := time.ParseDuration(raw.Load.SampleInterval)
		if err != nil {
			return cfg, fmt.Errorf("parsing load.sample_interval: %w", err)
		}
		cfg.Load.SampleInterval = d
	}
	cfg.Rules = raw.Rules

	return cfg, nil
}

// rawConfig is the JSON representation with string durations.
type rawConfig struct {
	Server struct {
		Addr string `json:"addr"`
	} `json:"server"`
	Storage struct {
		Backend string      `json:"backend"`
		Redis   RedisConfig `json:"redis"`
	} `json:"storage"`
	Cleanup struct {
		Interval string `json:"interval"`
	} `json:"cleanup"`
	Load struct {
		SampleInterval string `json:"sample_interval"`
	} `json:"load"`
	Rules []RuleSpec `json:"rules"`
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	example := `{
  "server": {
    "addr": ":8080"
  },
  "storage": {
    "backend": "memory"
  },
  "cleanup": {
    "interval": "1m"
  },
  "load": {
    "sample_interval": "10s"
  },
  "rules": [
    {
      "name": "Login endpoint burst guard",
      "priority": 40,
      "algorithm": "token_bucket",
      "scope": "per_ip",
      "max_requests": 10,
      "window": "1m",
      "burst": 20,
      "block_duration": "10m",
      "adaptive": true,
      "load_threshold": 0.75
    }
  ]
}
`
	return os.WriteFile(path, []byte(example), 0o644)
}
