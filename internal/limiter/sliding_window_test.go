package limiter

import (
	"testing"
	"time"

	"github.com/wardenlimit/warden/internal/clock"
)

func TestSlidingWindow_AdmitUpToMax(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := NewSlidingWindow(3, time.Second, vc)

	for i := 0; i < 3; i++ {
		if !sw.Consume(1) {
			t.Errorf("consume %d within window should be allowed", i+1)
		}
		vc.Advance(100 * time.Millisecond)
	}
	if sw.Consume(1) {
		t.Error("4th consume within the window should be denied")
	}
}

func TestSlidingWindow_AdmitAfterWindowElapses(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := NewSlidingWindow(3, time.Second, vc)

	for i := 0; i < 3; i++ {
		sw.Consume(1)
	}
	if sw.Consume(1) {
		t.Fatal("should be denied at the limit")
	}

	vc.Advance(time.Second + time.Millisecond)
	if !sw.Consume(1) {
		t.Error("should be allowed after the full window elapses")
	}
}

func TestSlidingWindow_SlidesGradually(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := NewSlidingWindow(2, time.Second, vc)

	sw.Consume(1) // t=0
	vc.Advance(600 * time.Millisecond)
	sw.Consume(1) // t=600ms

	if sw.Consume(1) {
		t.Fatal("third consume should be denied")
	}

	// At t=1.1s the first entry has expired but the second has not.
	vc.Advance(500 * time.Millisecond)
	if !sw.Consume(1) {
		t.Error("should be allowed once the oldest entry slides out")
	}
	if sw.Consume(1) {
		t.Error("should be denied again, window holds two entries")
	}
}

func TestSlidingWindow_Remaining(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := NewSlidingWindow(3, time.Second, vc)

	if got := sw.Remaining(); got != 3 {
		t.Errorf("Remaining empty = %d, want 3", got)
	}
	sw.Consume(1)
	sw.Consume(1)
	if got := sw.Remaining(); got != 1 {
		t.Errorf("Remaining = %d, want 1", got)
	}
	vc.Advance(2 * time.Second)
	if got := sw.Remaining(); got != 3 {
		t.Errorf("Remaining after expiry = %d, want 3", got)
	}
}

func TestSlidingWindow_ResetTime(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := NewSlidingWindow(3, time.Second, vc)

	// Empty log: one full window from now.
	if got := sw.ResetTime(); !got.Equal(epoch.Add(time.Second)) {
		t.Errorf("ResetTime empty = %v, want %v", got, epoch.Add(time.Second))
	}

	sw.Consume(1)
	vc.Advance(300 * time.Millisecond)
	sw.Consume(1)

	// Oldest retained entry + window.
	if got := sw.ResetTime(); !got.Equal(epoch.Add(time.Second)) {
		t.Errorf("ResetTime = %v, want oldest+window %v", got, epoch.Add(time.Second))
	}
}
