package engine

import "sync"

// Queue is a thread-safe FIFO queue of inbound events.
//
// The queue is unbounded so that a burst of polled observations can be
// enqueued without blocking the scheduler tick that produced them.
//
// Thread-safety covers external enqueuing (schedulers, webhook handlers)
// while the Runner loop dequeues. The queue uses a channel for signaling to
// enable context-aware waiting in the Runner (prevents goroutine hangs on
// context cancellation).
type Queue struct {
	mu     sync.Mutex
	events []InboundEvent
	closed bool
	signal chan struct{} // signals event availability (buffered, size 1)
}

// NewQueue creates an empty event queue.
func NewQueue() *Queue {
	return &Queue{
		events: make([]InboundEvent, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Safe from any goroutine. Returns false if the queue is closed.
func (q *Queue) Enqueue(ev InboundEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, ev)

	// Non-blocking signal - the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (InboundEvent{}, false) if the queue is empty.
func (q *Queue) TryDequeue() (InboundEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return InboundEvent{}, false
	}
	ev := q.events[0]

	// Nil out the slot so the array does not retain the event's pointers.
	q.events[0] = InboundEvent{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return ev, true
}

// Wait returns a channel that signals when events may be available.
// Use with select alongside ctx.Done(), then TryDequeue.
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
