// Package globalsdk keeps one live event stream to an opencode server and
// fans its events out to per-directory subscribers.
//
// sdk.go - SDK lifecycle
//
// This file contains:
// - SDK, which owns the supervisor, queue and router for one server
// - Start and Shutdown
// - Subscribe, URL, Client and CreateClient
//
// Events flow: Source -> supervisor -> Queue (coalesce, batch) -> Router.
// A batch is dispatched at most once per flush window.
package globalsdk

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/HyphaGroup/eventsync/internal/logger"
	"github.com/HyphaGroup/eventsync/internal/opencode"
)

const (
	// FlushWindow is the minimum spacing between batch dispatches
	FlushWindow = 16 * time.Millisecond
	// StreamYield is how long the consumption loop runs before yielding
	StreamYield = 8 * time.Millisecond
	// ReconnectDelay is the pause between the end of one attempt and the next
	ReconnectDelay = 250 * time.Millisecond
	// HeartbeatTimeout is the longest an attempt may go without an event
	HeartbeatTimeout = 15 * time.Second
)

// ErrClosed is returned when starting an SDK that was shut down
var ErrClosed = errors.New("event sdk is shut down")

type timing struct {
	FlushWindow      time.Duration
	StreamYield      time.Duration
	ReconnectDelay   time.Duration
	HeartbeatTimeout time.Duration
}

func defaultTiming() timing {
	return timing{
		FlushWindow:      FlushWindow,
		StreamYield:      StreamYield,
		ReconnectDelay:   ReconnectDelay,
		HeartbeatTimeout: HeartbeatTimeout,
	}
}

// Option configures an SDK
type Option func(*SDK)

// WithLogger sets the logger (default: logger.Slog())
func WithLogger(log *slog.Logger) Option {
	return func(s *SDK) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSource replaces the client as the event source
func WithSource(src Source) Option {
	return func(s *SDK) {
		s.source = src
	}
}

func withTiming(t timing) Option {
	return func(s *SDK) {
		s.timing = t
	}
}

// SDK is the event pipeline for one server. Create it with New, call Start
// once and Shutdown when done.
type SDK struct {
	client *opencode.Client
	source Source
	timing timing
	log    *slog.Logger

	router *Router
	queue  *Queue
	sup    *supervisor

	mu       sync.Mutex
	started  bool
	shutdown bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  chan struct{}
}

// New creates an SDK streaming from client. client may be nil when a Source
// is supplied with WithSource.
func New(client *opencode.Client, opts ...Option) *SDK {
	s := &SDK{
		client:  client,
		timing:  defaultTiming(),
		log:     logger.Slog(),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if client != nil {
		s.source = client
	}
	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With("server", s.URL())
	s.router = NewRouter(s.log)
	s.queue = NewQueue(s.timing.FlushWindow, s.router)
	s.sup = &supervisor{
		source: s.source,
		queue:  s.queue,
		timing: s.timing,
		url:    s.URL(),
		log:    s.log,
	}
	return s
}

// Start launches the supervisor. Calling it again is a no-op.
func (s *SDK) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	if s.source == nil {
		return errors.New("event sdk has no source")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	go func() {
		defer close(s.done)
		s.sup.run(ctx)
	}()

	s.log.Debug("event sdk started")
	return nil
}

// Shutdown cancels the current attempt, waits for the supervisor to exit and
// dispatches whatever is still queued. Nothing is dispatched after it
// returns. Handlers must not call it.
func (s *SDK) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		<-s.stopped
		return
	}
	s.shutdown = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	// Only the final flush below may dispatch from here on
	s.queue.Suspend()

	if started {
		cancel()
		<-s.done
	} else {
		close(s.done)
	}

	s.queue.Close()
	close(s.stopped)
	s.log.Debug("event sdk stopped")
}

// Done is closed once the supervisor has exited
func (s *SDK) Done() <-chan struct{} {
	return s.done
}

// Subscribe registers h for events of directory. Use event.GlobalDirectory
// for server-wide events.
func (s *SDK) Subscribe(directory string, h Handler) func() {
	return s.router.Subscribe(directory, h)
}

// URL returns the server URL, or "" for a custom source
func (s *SDK) URL() string {
	if s.client == nil {
		return ""
	}
	return s.client.URL()
}

// Client returns the underlying server client
func (s *SDK) Client() *opencode.Client {
	return s.client
}

// CreateClient returns a request client scoped to directory. It does not
// touch the event stream.
func (s *SDK) CreateClient(directory string) *opencode.DirectoryClient {
	if s.client == nil {
		return nil
	}
	return s.client.ForDirectory(directory)
}
