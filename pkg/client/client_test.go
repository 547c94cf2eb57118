package client

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lockstep/pkg/adapter"
	"github.com/marmos91/lockstep/pkg/admission"
	"github.com/marmos91/lockstep/pkg/coordinator"
	"github.com/marmos91/lockstep/pkg/wire"
)

// collector records received messages.
type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func TestServeAcknowledgesEveryLine(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	col := &collector{}
	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), client, col.handle) }()

	w := bufio.NewWriter(server)
	r := bufio.NewReader(server)
	for seq := range uint64(3) {
		require.NoError(t, wire.WriteLine(w, wire.FormatMessage(seq, "10.0.0.1", 4000)))
		require.NoError(t, wire.ReadAck(r))
	}
	require.NoError(t, server.Close())
	assert.ErrorIs(t, <-done, ErrClosed)

	msgs := col.messages()
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.True(t, m.Numbered)
		assert.Equal(t, uint64(i), m.Sequence)
		assert.Equal(t, "10.0.0.1", m.Host)
		assert.Equal(t, 4000, m.Port)
	}
}

func TestServeOverloadNotice(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	col := &collector{}
	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), client, col.handle) }()

	require.NoError(t, wire.WriteLine(bufio.NewWriter(server), wire.OverloadNotice))
	require.NoError(t, wire.ReadAck(bufio.NewReader(server)))

	assert.ErrorIs(t, <-done, ErrOverloaded)
	msgs := col.messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Numbered)
	assert.Equal(t, wire.OverloadNotice, msgs[0].Line)
}

func TestServeReturnsNilOnCancel(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, client, nil) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestRunDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = Run(context.Background(), Config{Address: addr, DialTimeout: time.Second}, nil)
	assert.ErrorContains(t, err, addr)
}

// TestLockstepEndToEnd runs the acceptor, the coordinator and three clients
// over loopback TCP.
func TestLockstepEndToEnd(t *testing.T) {
	q := admission.NewQueue(admission.DefaultCapacity)
	acc := adapter.NewAcceptor(adapter.Config{BindAddress: "127.0.0.1"}, q, nil)
	coord := coordinator.New(coordinator.Config{
		PollInterval: 10 * time.Millisecond,
		MaxSendDelay: 5 * time.Millisecond,
		AckTimeout:   5 * time.Second,
	}, q, nil)

	var mu sync.Mutex
	var expected []int
	coord.SetOnCycle(func(r coordinator.CycleReport) {
		mu.Lock()
		expected = append(expected, r.Expected)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, acc.Serve(ctx))
	}()
	addr := acc.GetListenerAddr()
	go func() {
		defer wg.Done()
		assert.NoError(t, coord.Run(ctx))
	}()

	const clients = 3
	cols := make([]*collector, clients)
	for i := range cols {
		cols[i] = &collector{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Run(ctx, Config{Address: addr, DialTimeout: time.Second}, cols[i].handle)
		}()
	}

	require.Eventually(t, func() bool {
		for _, c := range cols {
			if len(c.messages()) < 5 {
				return false
			}
		}
		return true
	}, 15*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()

	for _, c := range cols {
		for i, m := range c.messages() {
			require.True(t, m.Numbered, m.Line)
			assert.Equal(t, uint64(i), m.Sequence)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(expected); i++ {
		assert.GreaterOrEqual(t, expected[i], expected[i-1], "N never shrinks without a departure")
		assert.LessOrEqual(t, expected[i], clients)
	}
}
