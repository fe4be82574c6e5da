package limiter

import (
	"testing"
	"time"

	"github.com/wardenlimit/warden/internal/clock"
)

func TestFixedWindow_AdmitUpToMax(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	fw := NewFixedWindow(3, time.Minute, vc)

	for i := 0; i < 3; i++ {
		if !fw.Consume(1) {
			t.Errorf("consume %d should be allowed", i+1)
		}
	}
	if fw.Consume(1) {
		t.Error("4th consume in the same window should be denied")
	}
}

func TestFixedWindow_ResetsExactlyAtBoundary(t *testing.T) {
	// epoch is aligned to the minute, so windows roll over on the minute.
	vc := clock.NewVirtualClock(epoch)
	fw := NewFixedWindow(2, time.Minute, vc)

	fw.Consume(1)
	fw.Consume(1)
	if fw.Consume(1) {
		t.Fatal("should be denied at the limit")
	}

	// One nanosecond before the boundary: still the same window.
	vc.Advance(time.Minute - time.Nanosecond)
	if fw.Consume(1) {
		t.Error("should still be denied just before the boundary")
	}

	// Crossing the boundary resets the counter to zero.
	vc.Advance(time.Nanosecond)
	if !fw.Consume(1) {
		t.Error("should be allowed the instant floor(now/window) advances")
	}
	if got := fw.Remaining(); got != 1 {
		t.Errorf("Remaining in new window = %d, want 1", got)
	}
}

func TestFixedWindow_ResetTimeIsNextBoundary(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	fw := NewFixedWindow(5, time.Minute, vc)

	want := epoch.Add(time.Minute)
	if got := fw.ResetTime(); !got.Equal(want) {
		t.Errorf("ResetTime = %v, want %v", got, want)
	}

	vc.Advance(30 * time.Second)
	if got := fw.ResetTime(); !got.Equal(want) {
		t.Errorf("ResetTime mid-window = %v, want %v", got, want)
	}

	vc.Advance(31 * time.Second)
	if got := fw.ResetTime(); !got.Equal(want.Add(time.Minute)) {
		t.Errorf("ResetTime after rollover = %v, want %v", got, want.Add(time.Minute))
	}
}

func TestFixedWindow_CountIsolatedPerWindow(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	fw := NewFixedWindow(2, time.Minute, vc)

	fw.Consume(1)
	vc.Advance(time.Minute)

	if got := fw.Remaining(); got != 2 {
		t.Errorf("Remaining after rollover = %d, want full 2", got)
	}
}
