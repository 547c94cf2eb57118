// Package admission holds connections that have been accepted but not yet
// registered as sessions. The queue is the overload control point: once it is
// full, the acceptor rejects new clients instead of handing them on.
package admission

import (
	"net"
	"sync"

	"github.com/eapache/queue"
)

// DefaultCapacity is the number of connections that may wait for registration.
const DefaultCapacity = 10

// Queue is a bounded FIFO of pending connections.
//
// Offer and Poll never block. The acceptor is the only producer and the
// coordinator loop the only consumer, but all methods are safe for concurrent
// use by any number of goroutines.
type Queue struct {
	mu       sync.Mutex
	items    *queue.Queue
	capacity int
}

// NewQueue creates a queue holding at most capacity connections.
// A capacity <= 0 uses DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		items:    queue.New(),
		capacity: capacity,
	}
}

// Offer appends conn and reports whether it was accepted. It returns false
// without side effects when the queue is at capacity.
func (q *Queue) Offer(conn net.Conn) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() >= q.capacity {
		return false
	}
	q.items.Add(conn)
	return true
}

// Poll removes and returns the oldest pending connection, if any.
func (q *Queue) Poll() (net.Conn, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 {
		return nil, false
	}
	return q.items.Remove().(net.Conn), true
}

// Drain removes every pending connection and returns them oldest first.
// Used on shutdown so queued clients can be closed.
func (q *Queue) Drain() []net.Conn {
	q.mu.Lock()
	defer q.mu.Unlock()

	conns := make([]net.Conn, 0, q.items.Length())
	for q.items.Length() > 0 {
		conns = append(conns, q.items.Remove().(net.Conn))
	}
	return conns
}

// Len returns the number of pending connections.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}
