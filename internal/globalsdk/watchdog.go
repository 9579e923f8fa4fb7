package globalsdk

import (
	"sync"
	"time"
)

// watchdog calls onExpire when Arm has not been called for timeout. Each Arm
// replaces the previous timer, and a timer that was replaced or disarmed
// while firing does nothing.
type watchdog struct {
	timeout  time.Duration
	onExpire func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func newWatchdog(timeout time.Duration, onExpire func()) *watchdog {
	return &watchdog{timeout: timeout, onExpire: onExpire}
}

// Arm restarts the countdown
func (w *watchdog) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	gen := w.gen
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.timeout, func() { w.fire(gen) })
}

// Disarm stops the countdown
func (w *watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Armed reports whether a countdown is running
func (w *watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

func (w *watchdog) fire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || w.timer == nil {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	w.onExpire()
}
