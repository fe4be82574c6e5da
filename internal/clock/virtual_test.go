package clock

import (
	"testing"
	"time"
)

var start = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestVirtualClock_NowAndAdvance(t *testing.T) {
	vc := NewVirtualClock(start)

	if !vc.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", vc.Now(), start)
	}

	vc.Advance(90 * time.Second)
	want := start.Add(90 * time.Second)
	if !vc.Now().Equal(want) {
		t.Errorf("Now() after advance = %v, want %v", vc.Now(), want)
	}
}

func TestVirtualClock_Since(t *testing.T) {
	vc := NewVirtualClock(start)
	vc.Advance(5 * time.Minute)

	if got := vc.Since(start); got != 5*time.Minute {
		t.Errorf("Since = %v, want 5m", got)
	}
}

func TestVirtualClock_AfterFiresOnAdvance(t *testing.T) {
	vc := NewVirtualClock(start)
	ch := vc.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before the clock advanced")
	default:
	}

	vc.Advance(10 * time.Second)

	select {
	case fired := <-ch:
		if !fired.Equal(start.Add(10 * time.Second)) {
			t.Errorf("fired at %v, want %v", fired, start.Add(10*time.Second))
		}
	default:
		t.Fatal("After did not fire after advancing past the deadline")
	}
}

func TestVirtualClock_AdvanceFiresOnlyDueTimers(t *testing.T) {
	vc := NewVirtualClock(start)
	early := vc.After(5 * time.Second)
	late := vc.After(30 * time.Second)

	vc.Advance(10 * time.Second)

	select {
	case <-early:
	default:
		t.Fatal("5s timer should have fired after a 10s advance")
	}
	select {
	case <-late:
		t.Fatal("30s timer fired early")
	default:
	}

	// The surviving timer still fires from a later advance.
	vc.Advance(20 * time.Second)
	select {
	case fired := <-late:
		if !fired.Equal(start.Add(30 * time.Second)) {
			t.Errorf("fired at %v, want %v", fired, start.Add(30*time.Second))
		}
	default:
		t.Fatal("30s timer never fired")
	}
}

func TestVirtualClock_AfterZeroFiresImmediately(t *testing.T) {
	vc := NewVirtualClock(start)

	select {
	case <-vc.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestVirtualClock_SetPastPanics(t *testing.T) {
	vc := NewVirtualClock(start)

	defer func() {
		if recover() == nil {
			t.Fatal("Set to the past should panic")
		}
	}()
	vc.Set(start.Add(-time.Second))
}
