// Package testutil provides test doubles shared across packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// EventServer is a fake opencode server. It serves /global/event as an SSE
// stream that tests push frames into, and /global/health.
type EventServer struct {
	*httptest.Server

	mu      sync.Mutex
	conns   []*eventConn
	total   int
	healthy atomic.Bool
}

type eventConn struct {
	frames    chan string
	done      chan struct{}
	closeOnce sync.Once
}

func (c *eventConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// NewEventServer starts a server that is closed when the test ends
func NewEventServer(t testing.TB) *EventServer {
	t.Helper()

	s := &EventServer{}
	s.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/global/event", s.handleEvents)
	mux.HandleFunc("/global/health", s.handleHealth)
	s.Server = httptest.NewServer(mux)

	t.Cleanup(func() {
		s.DropConnections()
		s.Close()
	})
	return s
}

func (s *EventServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	conn := &eventConn{frames: make(chan string, 64), done: make(chan struct{})}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.total++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.done:
			return
		case frame := <-conn.frames:
			_, _ = fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}
}

func (s *EventServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.healthy.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprint(w, `{"healthy":true,"version":"test"}`)
}

// Send writes one event to the newest connection
func (s *EventServer) Send(directory, eventType string, properties any) error {
	props, err := json.Marshal(properties)
	if err != nil {
		return err
	}
	data, err := json.Marshal(map[string]any{
		"directory": directory,
		"payload": map[string]any{
			"type":       eventType,
			"properties": json.RawMessage(props),
		},
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	var conn *eventConn
	if len(s.conns) > 0 {
		conn = s.conns[len(s.conns)-1]
	}
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no open event stream")
	}

	select {
	case conn.frames <- "data: " + string(data) + "\n\n":
		return nil
	case <-conn.done:
		return fmt.Errorf("event stream closed")
	}
}

// DropConnections ends every open event stream from the server side
func (s *EventServer) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// Connections returns how many event streams were ever opened
func (s *EventServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// WaitForConnections blocks until n event streams have been opened
func (s *EventServer) WaitForConnections(t testing.TB, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Connections() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("saw %d event streams, want %d", s.Connections(), n)
}

// SetHealthy controls the /global/health response
func (s *EventServer) SetHealthy(healthy bool) {
	s.healthy.Store(healthy)
}
