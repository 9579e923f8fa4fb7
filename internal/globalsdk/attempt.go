package globalsdk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/HyphaGroup/eventsync/internal/logger"
)

// Attempt is one connection to the global event stream. It is cancelled by
// shutdown, by its liveness watchdog, or by a foreground reconnect, and is
// never reused.
type Attempt struct {
	ID string

	ctx      context.Context
	cancel   context.CancelFunc
	watchdog *watchdog

	lastEvent  atomic.Int64
	timedOut   atomic.Bool
	expireOnce sync.Once
}

func newAttempt(parent context.Context, timeout time.Duration) *Attempt {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(logger.WithAttempt(parent, id))
	a := &Attempt{
		ID:     id,
		ctx:    ctx,
		cancel: cancel,
	}
	a.watchdog = newWatchdog(timeout, a.expire)
	return a
}

// Context is cancelled when the attempt ends. It carries the attempt ID
// for logger.FromContext.
func (a *Attempt) Context() context.Context {
	return a.ctx
}

// Cancel ends the attempt. Safe to call more than once.
func (a *Attempt) Cancel() {
	a.cancel()
}

// Done reports whether the attempt has been cancelled
func (a *Attempt) Done() bool {
	return a.ctx.Err() != nil
}

// LastEventAt returns when the attempt started or last received an event
func (a *Attempt) LastEventAt() time.Time {
	return time.Unix(0, a.lastEvent.Load())
}

// TimedOut reports whether the liveness watchdog cancelled the attempt
func (a *Attempt) TimedOut() bool {
	return a.timedOut.Load()
}

// touch records activity and re-arms the watchdog
func (a *Attempt) touch(now time.Time) {
	a.lastEvent.Store(now.UnixNano())
	if !a.Done() {
		a.watchdog.Arm()
	}
}

func (a *Attempt) expire() {
	a.expireOnce.Do(func() {
		a.timedOut.Store(true)
		a.cancel()
	})
}

// stop disarms the watchdog and cancels the attempt
func (a *Attempt) stop() {
	a.watchdog.Disarm()
	a.cancel()
}
