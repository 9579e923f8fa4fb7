package globalsdk

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchdog_Expires(t *testing.T) {
	var fired atomic.Int32
	w := newWatchdog(20*time.Millisecond, func() { fired.Add(1) })

	w.Arm()
	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })

	time.Sleep(40 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("fired %d times, want 1", n)
	}
	if w.Armed() {
		t.Error("Armed() = true after expiry")
	}
}

func TestWatchdog_ArmPostpones(t *testing.T) {
	var fired atomic.Int32
	w := newWatchdog(40*time.Millisecond, func() { fired.Add(1) })

	for i := 0; i < 10; i++ {
		w.Arm()
		time.Sleep(10 * time.Millisecond)
	}
	if n := fired.Load(); n != 0 {
		t.Errorf("fired %d times while being re-armed, want 0", n)
	}
	w.Disarm()
}

func TestWatchdog_Disarm(t *testing.T) {
	var fired atomic.Int32
	w := newWatchdog(10*time.Millisecond, func() { fired.Add(1) })

	w.Arm()
	w.Disarm()
	time.Sleep(30 * time.Millisecond)

	if n := fired.Load(); n != 0 {
		t.Errorf("fired %d times after Disarm(), want 0", n)
	}
}

func TestWatchdog_StaleTimerIgnored(t *testing.T) {
	var fired atomic.Int32
	w := newWatchdog(time.Hour, func() { fired.Add(1) })

	w.Arm()
	w.mu.Lock()
	stale := w.gen
	w.mu.Unlock()
	w.Arm()

	w.fire(stale)
	if n := fired.Load(); n != 0 {
		t.Errorf("stale timer fired callback %d times, want 0", n)
	}
	w.Disarm()
}

func TestAttempt_ExpireCancelsOnce(t *testing.T) {
	a := newAttempt(context.Background(), 10*time.Millisecond)
	a.touch(time.Now())

	waitFor(t, time.Second, a.Done)
	if !a.TimedOut() {
		t.Error("TimedOut() = false after watchdog expiry")
	}

	// Activity after cancellation must not re-arm
	a.touch(time.Now())
	if a.watchdog.Armed() {
		t.Error("watchdog re-armed on a cancelled attempt")
	}
}

func TestAttempt_CancelIsNotTimeout(t *testing.T) {
	a := newAttempt(context.Background(), time.Hour)
	a.touch(time.Now())
	a.stop()

	if !a.Done() {
		t.Error("Done() = false after stop()")
	}
	if a.TimedOut() {
		t.Error("TimedOut() = true after explicit cancel")
	}
	if a.ID == "" {
		t.Error("attempt has no ID")
	}
}
