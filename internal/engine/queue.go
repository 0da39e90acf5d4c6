package engine

import (
	"context"
	"sync"

	"github.com/roach88/statekeep/internal/ir"
)

type requestOp int

const (
	opStart requestOp = iota + 1
	opSend
	opStop
)

// request is one unit of work for an actor's mailbox goroutine.
type request struct {
	op    requestOp
	ctx   context.Context
	event ir.Event
	reply chan reply
}

type reply struct {
	snapshot Snapshot
	ok       bool
	err      error
}

// mailbox is a thread-safe FIFO of requests for one actor.
//
// It is unbounded: capacity only pre-sizes the backing slice. Senders never
// block on enqueue; they block on their own reply channel.
//
// The signal channel (buffered, size 1) lets the mailbox goroutine wait
// without holding the lock. Close closes it, waking the goroutine so it can
// drain what is left and exit.
type mailbox struct {
	mu       sync.Mutex
	requests []request
	closed   bool
	signal   chan struct{}
}

func newMailbox(capacity int) *mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxSize
	}
	return &mailbox{
		requests: make([]request, 0, capacity),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the mailbox.
// Returns false if the mailbox is closed.
func (m *mailbox) Enqueue(r request) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	m.requests = append(m.requests, r)

	select {
	case m.signal <- struct{}{}:
	default:
	}

	return true
}

// EnqueueAndClose adds a final request and closes the mailbox in one step,
// so nothing can be enqueued behind it. Returns false if already closed.
func (m *mailbox) EnqueueAndClose(r request) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	m.requests = append(m.requests, r)
	m.closed = true
	close(m.signal)
	return true
}

// TryDequeue removes the front request without blocking.
func (m *mailbox) TryDequeue() (request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.requests) == 0 {
		return request{}, false
	}

	r := m.requests[0]
	// Clear the slot so the reply channel and context can be collected.
	m.requests[0] = request{}

	if len(m.requests) == 1 {
		m.requests = m.requests[:0]
	} else {
		m.requests = m.requests[1:]
	}

	return r, true
}

// Wait returns a channel that signals when requests may be available.
// It is closed once the mailbox is closed.
func (m *mailbox) Wait() <-chan struct{} {
	return m.signal
}

// Len returns the number of pending requests.
func (m *mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Closed reports whether the mailbox accepts no more requests.
func (m *mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
