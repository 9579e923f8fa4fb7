package globalsdk

import (
	"context"
	"log/slog"
	"sync"

	"github.com/HyphaGroup/eventsync/internal/config"
	"github.com/HyphaGroup/eventsync/internal/logger"
	"github.com/HyphaGroup/eventsync/internal/opencode"
)

// Builder creates the SDK for a server
type Builder func(server config.Server) *SDK

// Manager owns the SDK of the active server. Subscriptions made through the
// manager follow it across server switches.
type Manager struct {
	ctx   context.Context
	build Builder
	log   *slog.Logger

	// switchMu serializes Switch and Shutdown
	switchMu sync.Mutex

	mu     sync.Mutex
	sdk    *SDK
	server config.Server
	subs   map[uint64]*managedSub
	nextID uint64
	closed bool
}

type managedSub struct {
	directory   string
	handler     Handler
	unsubscribe func()
}

// NewManager creates a manager whose SDKs run under ctx
func NewManager(ctx context.Context, build Builder, log *slog.Logger) *Manager {
	if log == nil {
		log = logger.Slog()
	}
	return &Manager{
		ctx:   ctx,
		build: build,
		log:   log,
		subs:  make(map[uint64]*managedSub),
	}
}

// ClientForServer builds a client with the server's credentials and the
// configured request limits
func ClientForServer(server config.Server, requests config.RequestsSection) *opencode.Client {
	opts := []opencode.Option{
		opencode.WithBasicAuth(server.Username, server.Password),
	}
	if requests.Rate > 0 {
		opts = append(opts, opencode.WithRateLimit(requests.Rate, requests.Burst))
	}
	return opencode.NewClient(server.URL, opts...)
}

// DefaultBuilder returns a Builder that streams from ClientForServer
func DefaultBuilder(requests config.RequestsSection, log *slog.Logger) Builder {
	return func(server config.Server) *SDK {
		return New(ClientForServer(server, requests), WithLogger(log))
	}
}

// Switch makes server the active server. The previous SDK is shut down
// (dispatching its queued events) before the new one starts. It returns
// false when server is already active.
func (m *Manager) Switch(server config.Server) (bool, error) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrClosed
	}
	if m.sdk != nil && m.server == server {
		m.mu.Unlock()
		return false, nil
	}

	prev := m.sdk
	next := m.build(server)
	var stale []func()
	for _, sub := range m.subs {
		if sub.unsubscribe != nil {
			stale = append(stale, sub.unsubscribe)
		}
		sub.unsubscribe = next.Subscribe(sub.directory, sub.handler)
	}
	m.sdk = next
	m.server = server
	m.mu.Unlock()

	if prev != nil {
		prev.Shutdown()
		for _, unsubscribe := range stale {
			unsubscribe()
		}
		m.log.Info("switched server", "from", prev.URL(), "to", next.URL())
	}

	if err := next.Start(m.ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Subscribe registers h on the active SDK and on every later one
func (m *Manager) Subscribe(directory string, h Handler) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	sub := &managedSub{directory: directory, handler: h}
	if m.sdk != nil {
		sub.unsubscribe = m.sdk.Subscribe(directory, h)
	}
	m.subs[id] = sub
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			unsubscribe := sub.unsubscribe
			m.mu.Unlock()
			if unsubscribe != nil {
				unsubscribe()
			}
		})
	}
}

// Current returns the active SDK, or nil before the first Switch
func (m *Manager) Current() *SDK {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sdk
}

// Server returns the active server
func (m *Manager) Server() config.Server {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.server
}

// Foreground forwards to the active SDK
func (m *Manager) Foreground() bool {
	sdk := m.Current()
	if sdk == nil {
		return false
	}
	return sdk.Foreground()
}

// Shutdown stops the active SDK. The manager cannot be reused.
func (m *Manager) Shutdown() {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sdk := m.sdk
	m.mu.Unlock()

	if sdk != nil {
		sdk.Shutdown()
	}
}
