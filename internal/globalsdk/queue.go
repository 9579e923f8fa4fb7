package globalsdk

import (
	"sync"
	"time"

	"github.com/HyphaGroup/eventsync/internal/event"
	"github.com/HyphaGroup/eventsync/internal/metrics"
)

// Publisher receives each flushed event
type Publisher interface {
	Publish(directory string, p event.Payload)
}

/*
Queue batches events between flushes.

Two slices alternate roles: events are appended to active while the other
(spare) waits. A flush swaps them, dispatches the detached slice, then
truncates it so it becomes the next spare. Events enqueued while a flush is
dispatching land in the new active slice and wait for the next flush.

Coalescing events (see event.CoalesceKey) overwrite their pending slot in
place, so dispatch order is the order each slot was first inserted and the
payload is the latest one received.

LOCKING:

	mu guards active, index, the pending timer, lastFlush and the
	suspended/closed flags.
	dispatchMu serializes flushes; it is held across dispatch so snapshots
	reach the Publisher in order, and it guards spare.
	Enqueue takes only mu, so handlers may enqueue during dispatch.
*/
type Queue struct {
	window time.Duration
	pub    Publisher

	mu        sync.Mutex
	active    []event.Envelope
	index     map[string]int
	timer     *time.Timer
	timerSeq  uint64
	lastFlush time.Time
	suspended bool
	closed    bool

	dispatchMu sync.Mutex
	spare      []event.Envelope
}

// NewQueue creates a queue that flushes to pub at most once per window
func NewQueue(window time.Duration, pub Publisher) *Queue {
	return &Queue{
		window: window,
		pub:    pub,
		index:  make(map[string]int),
	}
}

// Enqueue adds e to the pending batch, merging it into an existing slot
// when it shares a coalescing key, and makes sure a flush is scheduled.
// It returns false once the queue is closed.
func (q *Queue) Enqueue(e event.Envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if key, ok := event.CoalesceKey(e); ok {
		if i, exists := q.index[key]; exists {
			q.active[i] = e
			metrics.RecordEventCoalesced(e.Payload.EventType())
			q.scheduleLocked()
			return true
		}
		q.index[key] = len(q.active)
	}
	q.active = append(q.active, e)
	q.scheduleLocked()
	return true
}

// scheduleLocked arms the flush timer unless one is already pending
func (q *Queue) scheduleLocked() {
	if q.timer != nil || q.suspended {
		return
	}

	delay := q.window - time.Since(q.lastFlush)
	if delay < 0 {
		delay = 0
	}

	q.timerSeq++
	seq := q.timerSeq
	q.timer = time.AfterFunc(delay, func() { q.fire(seq) })
}

func (q *Queue) fire(seq uint64) {
	q.dispatchMu.Lock()
	defer q.dispatchMu.Unlock()

	q.mu.Lock()
	if q.timer == nil || q.timerSeq != seq {
		// Superseded by an explicit flush
		q.mu.Unlock()
		return
	}
	q.timer = nil
	if q.suspended || q.closed {
		q.mu.Unlock()
		return
	}
	batch := q.swapLocked()
	q.mu.Unlock()

	q.dispatch(batch)
}

// Flush dispatches everything pending now and cancels the pending timer.
// Handlers must not call it.
func (q *Queue) Flush() {
	q.dispatchMu.Lock()
	defer q.dispatchMu.Unlock()

	q.mu.Lock()
	q.stopTimerLocked()
	batch := q.swapLocked()
	q.mu.Unlock()

	q.dispatch(batch)
}

// Suspend cancels the pending timer and stops scheduling new ones. Events
// are still accepted and wait for an explicit Flush or Close.
func (q *Queue) Suspend() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.suspended = true
	q.stopTimerLocked()
}

// Close stops accepting events and timer flushes, then dispatches what is
// still pending. Later calls are no-ops.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.suspended = true
	q.stopTimerLocked()
	q.mu.Unlock()

	q.Flush()
}

// Len returns the number of pending slots
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

func (q *Queue) pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timer != nil
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// swapLocked detaches the active slice, or returns nil when it is empty.
// Callers hold both mu and dispatchMu.
func (q *Queue) swapLocked() []event.Envelope {
	if len(q.active) == 0 {
		return nil
	}

	batch := q.active
	q.active = q.spare[:0]
	q.spare = nil
	clear(q.index)
	q.lastFlush = time.Now()
	return batch
}

// dispatch delivers batch in order and recycles it as the spare buffer.
// Callers hold dispatchMu.
func (q *Queue) dispatch(batch []event.Envelope) {
	if len(batch) == 0 {
		return
	}

	for _, e := range batch {
		q.pub.Publish(e.Directory, e.Payload)
	}
	metrics.RecordFlush(len(batch))

	clear(batch)
	q.spare = batch[:0]
}
