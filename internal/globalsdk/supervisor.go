package globalsdk

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HyphaGroup/eventsync/internal/event"
	"github.com/HyphaGroup/eventsync/internal/logger"
	"github.com/HyphaGroup/eventsync/internal/metrics"
)

// Source opens the global event stream. The returned channel is closed when
// the stream ends; read and decode errors are reported through onError while
// ctx is live.
type Source interface {
	Subscribe(ctx context.Context, onError func(error)) (<-chan event.Envelope, error)
}

// supervisor keeps exactly one attempt alive until its context is cancelled
type supervisor struct {
	source Source
	queue  *Queue
	timing timing
	url    string
	log    *slog.Logger

	mu      sync.Mutex
	current *Attempt

	// errorLogged suppresses repeat logs until an event arrives
	errorLogged atomic.Bool
}

func (s *supervisor) run(ctx context.Context) {
	for ctx.Err() == nil {
		s.runAttempt(ctx)
		if ctx.Err() != nil {
			return
		}

		t := time.NewTimer(s.timing.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *supervisor) runAttempt(ctx context.Context) {
	attempt := newAttempt(ctx, s.timing.HeartbeatTimeout)
	log := logger.FromContext(attempt.Context(), s.log)

	s.mu.Lock()
	s.current = attempt
	s.mu.Unlock()
	metrics.AttemptsStarted.Inc()

	defer func() {
		attempt.stop()
		s.mu.Lock()
		if s.current == attempt {
			s.current = nil
		}
		s.mu.Unlock()

		if attempt.TimedOut() {
			metrics.LivenessTimeouts.Inc()
			log.Debug("liveness timeout", "url", s.url, "timeout", s.timing.HeartbeatTimeout)
		}
	}()

	attempt.touch(time.Now())

	events, err := s.source.Subscribe(attempt.Context(), func(err error) {
		s.reportError(attempt, log, "event stream error", err)
	})
	if err != nil {
		s.reportError(attempt, log, "event stream failed", err)
		return
	}

	s.consume(attempt, events)
}

// consume moves events from the stream into the queue until the stream ends
// or the attempt is cancelled. It yields the processor after StreamYield of
// uninterrupted work.
func (s *supervisor) consume(attempt *Attempt, events <-chan event.Envelope) {
	done := attempt.Context().Done()
	yielded := time.Now()

	for {
		select {
		case <-done:
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			// The stream may deliver one more event after cancellation
			if attempt.Done() {
				return
			}

			now := time.Now()
			attempt.touch(now)
			s.errorLogged.Store(false)
			metrics.RecordEventReceived(env.Payload.EventType())
			s.queue.Enqueue(env)

			if now.Sub(yielded) >= s.timing.StreamYield {
				runtime.Gosched()
				yielded = time.Now()
			}
		}
	}
}

func (s *supervisor) reportError(attempt *Attempt, log *slog.Logger, msg string, err error) {
	if attempt.Done() || errors.Is(err, context.Canceled) {
		return
	}

	metrics.StreamErrors.Inc()
	if s.errorLogged.Swap(true) {
		return
	}
	log.Error(msg, "url", s.url, "error", err)
}

// Current returns the live attempt, or nil between attempts
func (s *supervisor) Current() *Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
