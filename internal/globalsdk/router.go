package globalsdk

import (
	"log/slog"
	"sync"

	"github.com/HyphaGroup/eventsync/internal/event"
	"github.com/HyphaGroup/eventsync/internal/metrics"
)

// Handler receives dispatched payloads for one directory. Handlers run on
// the flush goroutine and must not call Shutdown.
type Handler func(event.Payload)

// Subscriber is implemented by everything that can register directory
// handlers: Router, SDK and Manager.
type Subscriber interface {
	Subscribe(directory string, h Handler) (unsubscribe func())
}

// Router delivers payloads to the handlers registered for a directory.
// Directories are matched exactly.
type Router struct {
	mu     sync.Mutex
	topics map[string]*topic
	nextID uint64
	log    *slog.Logger
}

// topic holds one directory's handlers. subs is replaced, never mutated in
// place, so Publish can iterate a snapshot without holding mu.
type topic struct {
	mu   sync.Mutex
	subs []subscription
}

type subscription struct {
	id uint64
	fn Handler
}

// NewRouter creates an empty router
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		topics: make(map[string]*topic),
		log:    log,
	}
}

// Subscribe registers h for future events in directory. The returned
// function removes it and is safe to call more than once.
func (r *Router) Subscribe(directory string, h Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	t, ok := r.topics[directory]
	if !ok {
		t = &topic{}
		r.topics[directory] = t
	}
	t.mu.Lock()
	subs := make([]subscription, len(t.subs), len(t.subs)+1)
	copy(subs, t.subs)
	t.subs = append(subs, subscription{id: id, fn: h})
	t.mu.Unlock()
	r.mu.Unlock()

	metrics.Subscribers.Inc()

	var once sync.Once
	return func() {
		once.Do(func() { r.unsubscribe(directory, id) })
	}
}

func (r *Router) unsubscribe(directory string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[directory]
	if !ok {
		return
	}

	t.mu.Lock()
	subs := make([]subscription, 0, len(t.subs))
	for _, s := range t.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	removed := len(subs) != len(t.subs)
	t.subs = subs
	t.mu.Unlock()

	if removed {
		metrics.Subscribers.Dec()
	}
	if len(subs) == 0 {
		delete(r.topics, directory)
	}
}

// Publish calls every handler of directory in subscription order. It is a
// no-op when nobody is subscribed.
func (r *Router) Publish(directory string, p event.Payload) {
	r.mu.Lock()
	t, ok := r.topics[directory]
	r.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	subs := t.subs
	t.mu.Unlock()

	for _, s := range subs {
		r.deliver(directory, s.fn, p)
	}
}

// Subscribers returns the number of handlers registered for directory
func (r *Router) Subscribers(directory string) int {
	r.mu.Lock()
	t, ok := r.topics[directory]
	r.mu.Unlock()
	if !ok {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// deliver isolates the pipeline from a panicking handler
func (r *Router) deliver(directory string, fn Handler, p event.Payload) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("event handler panicked", "directory", directory, "type", p.EventType(), "panic", rec)
		}
	}()
	fn(p)
}

// On subscribes fn to payloads of type T in directory
func On[T event.Payload](s Subscriber, directory string, fn func(T)) func() {
	return s.Subscribe(directory, func(p event.Payload) {
		if v, ok := p.(T); ok {
			fn(v)
		}
	})
}
