package engine

import (
	"sync"

	"github.com/roach88/automaton/internal/ir"
)

// invocationQueue is a thread-safe FIFO of pending invocations.
//
// The queue is unbounded so a commit can hand over any number of cascaded
// invocations without blocking. Producers are commits running on worker
// goroutines and external callers; consumers are the workers.
//
// A buffered signal channel of size 1 lets workers wait with select and
// still honor context cancellation.
type invocationQueue struct {
	mu     sync.Mutex
	items  []*ir.Invocation
	closed bool
	signal chan struct{}
}

func newInvocationQueue() *invocationQueue {
	return &invocationQueue{
		items:  make([]*ir.Invocation, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an invocation to the back of the queue. Returns false once
// the queue is closed.
func (q *invocationQueue) Enqueue(inv *ir.Invocation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, inv)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front invocation without blocking.
func (q *invocationQueue) TryDequeue() (*ir.Invocation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	inv := q.items[0]
	// Drop the reference so the backing array does not pin it.
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	// Other workers may be waiting on the signal this dequeue consumed.
	if len(q.items) > 0 && !q.closed {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return inv, true
}

// Wait returns a channel that fires when invocations may be available. It
// is closed when the queue closes.
func (q *invocationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *invocationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting invocations and wakes every waiter.
func (q *invocationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *invocationQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
