package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	testcontainers "github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/wardenlimit/warden/internal/clock"
)

func newRedisStoreForTest(t *testing.T) *RedisStore {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7.2-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("container mapped port: %v", err)
	}
	p, err := strconv.Atoi(port.Port())
	if err != nil {
		t.Fatalf("parse mapped port: %v", err)
	}

	s, err := NewRedisStore(&RedisConfig{Host: host, Port: p}, clock.NewRealClock())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_BlockAndLookup(t *testing.T) {
	s := newRedisStoreForTest(t)

	unblockAt, err := s.Block(ctx, "attacker", time.Minute)
	if err != nil {
		t.Fatalf("Block: %v", err)
	}

	blocked, until, err := s.IsBlocked(ctx, "attacker")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !blocked {
		t.Fatal("should be blocked")
	}
	if until.Sub(unblockAt) > time.Millisecond || unblockAt.Sub(until) > time.Millisecond {
		t.Errorf("until = %v, want %v", until, unblockAt)
	}

	if blocked, _, _ := s.IsBlocked(ctx, "someone-else"); blocked {
		t.Error("unknown identifier should not be blocked")
	}
}

func TestRedisStore_ExpiryRemovesBlock(t *testing.T) {
	s := newRedisStoreForTest(t)

	if _, err := s.Block(ctx, "brief", 300*time.Millisecond); err != nil {
		t.Fatalf("Block: %v", err)
	}
	time.Sleep(400 * time.Millisecond)

	if blocked, _, _ := s.IsBlocked(ctx, "brief"); blocked {
		t.Error("block should expire with its TTL")
	}
}

func TestRedisStore_UnblockAndListing(t *testing.T) {
	s := newRedisStoreForTest(t)

	s.Block(ctx, "a", time.Minute)
	s.Block(ctx, "b", time.Minute)

	entries, err := s.Blocked(ctx)
	if err != nil {
		t.Fatalf("Blocked: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Blocked = %d entries, want 2", len(entries))
	}

	existed, err := s.Unblock(ctx, "a")
	if err != nil || !existed {
		t.Fatalf("Unblock = %v, %v; want existed", existed, err)
	}
	if n, _ := s.Len(ctx); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}
