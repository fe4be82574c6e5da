package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wardenlimit/warden/internal/clock"
)

const (
	blockKeyPrefix = "warden:block:"
	scanBatchSize  = 256

	defaultRedisPoolSize    = 20
	defaultRedisMaxRetries  = 3
	defaultRedisDialTimeout = 5 * time.Second
)

// RedisConfig holds connection settings for the Redis block store.
type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	MaxRetries  int
	DialTimeout time.Duration
}

// RedisStore keeps block entries in Redis so blocks survive process
// restarts and are shared between replicas. Limiter state stays
// process-local either way; only the deny-list is externalized. Entries
// carry a PX expiry, so Redis itself handles lazy removal and Cleanup is a
// bookkeeping no-op.
type RedisStore struct {
	client redis.UniversalClient
	clock  clock.Clock

	closeOnce sync.Once
	closeErr  error
}

// NewRedisStore connects to Redis and verifies the connection. Redis
// expires keys on wall time regardless of clk, so anything other than a
// RealClock only shifts the unblock timestamps this store reports.
func NewRedisStore(cfg *RedisConfig, clk clock.Clock) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("redis host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("redis port must be positive, got %d", cfg.Port)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultRedisPoolSize
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultRedisMaxRetries
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultRedisDialTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    poolSize,
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
	})

	if clk == nil {
		clk = clock.NewRealClock()
	}
	s := &RedisStore{client: client, clock: clk}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return s, nil
}

func blockKey(identifier string) string {
	return blockKeyPrefix + identifier
}

func (s *RedisStore) Block(ctx context.Context, identifier string, d time.Duration) (time.Time, error) {
	unblockAt := s.clock.Now().Add(d)
	value := strconv.FormatInt(unblockAt.UnixMilli(), 10)

	if err := s.client.Set(ctx, blockKey(identifier), value, d).Err(); err != nil {
		return time.Time{}, fmt.Errorf("setting block entry: %w", err)
	}
	return unblockAt, nil
}

func (s *RedisStore) IsBlocked(ctx context.Context, identifier string) (bool, time.Time, error) {
	value, err := s.client.Get(ctx, blockKey(identifier)).Result()
	if err == redis.Nil {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("reading block entry: %w", err)
	}

	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("corrupt block entry for %q: %w", identifier, err)
	}

	unblockAt := time.UnixMilli(ms)
	if !unblockAt.After(s.clock.Now()) {
		// Redis expiry lags by up to a tick; treat as expired.
		_ = s.client.Del(ctx, blockKey(identifier)).Err()
		return false, time.Time{}, nil
	}
	return true, unblockAt, nil
}

func (s *RedisStore) Unblock(ctx context.Context, identifier string) (bool, error) {
	n, err := s.client.Del(ctx, blockKey(identifier)).Result()
	if err != nil {
		return false, fmt.Errorf("deleting block entry: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Blocked(ctx context.Context) ([]Entry, error) {
	var out []Entry
	iter := s.client.Scan(ctx, 0, blockKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("reading block entry %q: %w", key, err)
		}
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Identifier: strings.TrimPrefix(key, blockKeyPrefix),
			UnblockAt:  time.UnixMilli(ms),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning block entries: %w", err)
	}
	return out, nil
}

// Cleanup is a no-op for Redis: entries carry their own expiry.
func (s *RedisStore) Cleanup(_ context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, blockKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scanning block entries: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}
