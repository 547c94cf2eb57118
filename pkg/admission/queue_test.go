package admission

import (
	"net"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server
}

func TestNewQueueDefaultsCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewQueue(0).Cap())
	assert.Equal(t, DefaultCapacity, NewQueue(-3).Cap())
	assert.Equal(t, 4, NewQueue(4).Cap())
}

func TestOfferUpToCapacity(t *testing.T) {
	q := NewQueue(DefaultCapacity)

	for i := 0; i < DefaultCapacity; i++ {
		require.True(t, q.Offer(pipeConn(t)), "offer %d should succeed", i)
	}
	assert.Equal(t, DefaultCapacity, q.Len())

	// Every offer past capacity fails and leaves occupancy unchanged.
	for i := 0; i < 3; i++ {
		assert.False(t, q.Offer(pipeConn(t)))
	}
	assert.Equal(t, DefaultCapacity, q.Len())
}

func TestPollIsFIFO(t *testing.T) {
	q := NewQueue(3)
	a, b, c := pipeConn(t), pipeConn(t), pipeConn(t)
	require.True(t, q.Offer(a))
	require.True(t, q.Offer(b))
	require.True(t, q.Offer(c))

	for _, want := range []net.Conn{a, b, c} {
		got, ok := q.Poll()
		require.True(t, ok)
		assert.Same(t, want, got)
	}

	_, ok := q.Poll()
	assert.False(t, ok)
}

func TestPollFreesCapacity(t *testing.T) {
	q := NewQueue(1)
	require.True(t, q.Offer(pipeConn(t)))
	require.False(t, q.Offer(pipeConn(t)))

	_, ok := q.Poll()
	require.True(t, ok)
	assert.True(t, q.Offer(pipeConn(t)))
}

func TestDrain(t *testing.T) {
	q := NewQueue(5)
	a, b := pipeConn(t), pipeConn(t)
	q.Offer(a)
	q.Offer(b)

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Same(t, a, drained[0])
	assert.Same(t, b, drained[1])
	assert.Zero(t, q.Len())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := NewQueue(DefaultCapacity)
	const total = 200

	conns := make([]net.Conn, total)
	for i := range conns {
		conns[i] = pipeConn(t)
	}

	var wg sync.WaitGroup
	accepted := 0
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, c := range conns {
			for !q.Offer(c) {
				runtime.Gosched()
			}
			accepted++
		}
	}()

	received := 0
	for received < total {
		if _, ok := q.Poll(); ok {
			received++
		} else {
			runtime.Gosched()
		}
		assert.LessOrEqual(t, q.Len(), q.Cap())
	}
	wg.Wait()
	assert.Equal(t, total, accepted)
}
