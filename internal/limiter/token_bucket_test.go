package limiter

import (
	"testing"
	"time"

	"github.com/wardenlimit/warden/internal/clock"
)

var epoch = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestTokenBucket_BasicConsume(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	tb := NewTokenBucket(10, time.Minute, 10, vc)

	if !tb.Consume(1) {
		t.Error("first consume should be allowed")
	}
	if got := tb.Remaining(); got != 9 {
		t.Errorf("Remaining = %d, want 9", got)
	}
}

func TestTokenBucket_Exhaust(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	tb := NewTokenBucket(5, time.Minute, 5, vc)

	for i := 0; i < 5; i++ {
		if !tb.Consume(1) {
			t.Errorf("consume %d should be allowed", i+1)
		}
	}
	if tb.Consume(1) {
		t.Error("6th consume should be denied")
	}
	if got := tb.Remaining(); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
}

func TestTokenBucket_RemainingNeverNegative(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	tb := NewTokenBucket(3, time.Minute, 3, vc)

	for i := 0; i < 10; i++ {
		tb.Consume(1)
		if got := tb.Remaining(); got < 0 {
			t.Fatalf("Remaining = %d after %d consumes, must never be negative", got, i+1)
		}
	}
}

func TestTokenBucket_RefillOverTime(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	// 10 per minute = 1 token every 6 seconds.
	tb := NewTokenBucket(10, time.Minute, 10, vc)

	for i := 0; i < 10; i++ {
		tb.Consume(1)
	}
	if tb.Consume(1) {
		t.Fatal("should be denied after exhausting tokens")
	}

	vc.Advance(6 * time.Second)
	if !tb.Consume(1) {
		t.Error("should be allowed after one token refills")
	}
}

func TestTokenBucket_FullRefillAfterIdle(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	tb := NewTokenBucket(10, time.Minute, 10, vc)

	for i := 0; i < 10; i++ {
		tb.Consume(1)
	}

	// capacity/refillRate seconds idle refills the whole bucket.
	vc.Advance(time.Minute)
	if got := tb.Remaining(); got != 10 {
		t.Errorf("Remaining after full idle window = %d, want 10", got)
	}
}

func TestTokenBucket_RefillCappedAtCapacity(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	tb := NewTokenBucket(5, time.Minute, 5, vc)

	vc.Advance(time.Hour)
	if got := tb.Remaining(); got != 5 {
		t.Errorf("Remaining = %d, want capacity 5", got)
	}
}

func TestTokenBucket_BurstAboveRate(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	tb := NewTokenBucket(10, time.Minute, 20, vc)

	allowed := 0
	for i := 0; i < 25; i++ {
		if tb.Consume(1) {
			allowed++
		}
	}
	if allowed != 20 {
		t.Errorf("allowed %d in burst, want 20", allowed)
	}
}

func TestTokenBucket_ResetTimeIsTimeToFull(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	tb := NewTokenBucket(10, time.Minute, 10, vc)

	// Full bucket resets now.
	if got := tb.ResetTime(); !got.Equal(epoch) {
		t.Errorf("ResetTime on full bucket = %v, want %v", got, epoch)
	}

	// Consuming one token means a ~6s wait until full again.
	tb.Consume(1)
	want := epoch.Add(6 * time.Second)
	got := tb.ResetTime()
	if diff := got.Sub(want); diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("ResetTime = %v, want ~%v (time to full, not next token)", got, want)
	}
}

func TestTokenBucket_ZeroBurstDefaultsToMax(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	tb := NewTokenBucket(7, time.Minute, 0, vc)

	if got := tb.Remaining(); got != 7 {
		t.Errorf("Remaining = %d, want 7", got)
	}
}
