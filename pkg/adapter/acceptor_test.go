package adapter

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lockstep/pkg/admission"
	"github.com/marmos91/lockstep/pkg/metrics"
	"github.com/marmos91/lockstep/pkg/wire"
)

type recordingMetrics struct {
	mu         sync.Mutex
	admissions map[string]int
	handshakes []bool
}

func (m *recordingMetrics) RecordAdmission(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.admissions == nil {
		m.admissions = map[string]int{}
	}
	m.admissions[result]++
}

func (m *recordingMetrics) RecordRejectHandshake(acknowledged bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handshakes = append(m.handshakes, acknowledged)
}

func (m *recordingMetrics) handshakeResults() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.handshakes...)
}

// startAcceptor serves an acceptor on a free loopback port until the test ends.
func startAcceptor(t *testing.T, cfg Config, q *admission.Queue, m *recordingMetrics) (*Acceptor, <-chan error) {
	t.Helper()
	cfg.BindAddress = "127.0.0.1"
	var am metrics.AdmissionMetrics
	if m != nil {
		am = m
	}
	a := NewAcceptor(cfg, q, am)

	done := make(chan error, 1)
	go func() { done <- a.Serve(context.Background()) }()

	select {
	case <-a.ListenerReady:
	case err := <-done:
		t.Fatalf("acceptor failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor did not start")
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
		for _, c := range q.Drain() {
			_ = c.Close()
		}
	})
	return a, done
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// fillQueue connects until q holds n connections.
func fillQueue(t *testing.T, a *Acceptor, q *admission.Queue, n int) {
	t.Helper()
	for range n {
		dial(t, a.GetListenerAddr())
	}
	require.Eventually(t, func() bool { return q.Len() == n }, 5*time.Second, time.Millisecond)
}

func TestAcceptorQueuesConnections(t *testing.T) {
	q := admission.NewQueue(3)
	m := &recordingMetrics{}
	a, _ := startAcceptor(t, Config{}, q, m)

	fillQueue(t, a, q, 3)
	assert.Equal(t, uint64(3), a.Accepted())
	assert.Equal(t, uint64(0), a.Rejected())

	m.mu.Lock()
	assert.Equal(t, 3, m.admissions[ResultQueued])
	m.mu.Unlock()
}

func TestAcceptorOverloadHandshake(t *testing.T) {
	q := admission.NewQueue(1)
	m := &recordingMetrics{}
	a, _ := startAcceptor(t, Config{}, q, m)
	fillQueue(t, a, q, 1)

	conn := dial(t, a.GetListenerAddr())
	r := bufio.NewReader(conn)
	line, err := wire.ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, wire.OverloadNotice, line)

	// The connection stays open until the notice is acknowledged.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err = r.ReadByte()
	var ne net.Error
	require.True(t, errors.As(err, &ne) && ne.Timeout(), "expected a read timeout, got %v", err)

	// A false acknowledgement does not end the handshake either.
	_, err = conn.Write([]byte{0x00})
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err = r.ReadByte()
	require.True(t, errors.As(err, &ne) && ne.Timeout(), "expected a read timeout, got %v", err)

	require.NoError(t, wire.WriteAck(conn))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, 1, q.Len(), "rejected connection never enters the queue")
	assert.Equal(t, uint64(1), a.Rejected())
	require.Eventually(t, func() bool { return len(m.handshakeResults()) == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []bool{true}, m.handshakeResults())
}

func TestAcceptorRejectTimeout(t *testing.T) {
	q := admission.NewQueue(1)
	m := &recordingMetrics{}
	a, _ := startAcceptor(t, Config{RejectTimeout: 50 * time.Millisecond}, q, m)
	fillQueue(t, a, q, 1)

	conn := dial(t, a.GetListenerAddr())
	r := bufio.NewReader(conn)
	line, err := wire.ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, wire.OverloadNotice, line)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool { return len(m.handshakeResults()) == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []bool{false}, m.handshakeResults())
}

func TestAcceptorBindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	a := NewAcceptor(Config{BindAddress: "127.0.0.1", Port: port}, admission.NewQueue(1), nil)
	err = a.Serve(context.Background())
	assert.ErrorIs(t, err, ErrListen)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}

func TestAcceptorStopsOnContextCancel(t *testing.T) {
	a := NewAcceptor(Config{BindAddress: "127.0.0.1"}, admission.NewQueue(1), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	<-a.ListenerReady

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestAcceptorStopInterruptsHandshake(t *testing.T) {
	q := admission.NewQueue(1)
	a, done := startAcceptor(t, Config{}, q, nil)
	fillQueue(t, a, q, 1)

	conn := dial(t, a.GetListenerAddr())
	r := bufio.NewReader(conn)
	_, err := wire.ReadLine(r)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
	assert.NoError(t, <-done)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = r.ReadByte()
	assert.Error(t, err)
}

func TestStopBeforeServe(t *testing.T) {
	a := NewAcceptor(Config{BindAddress: "127.0.0.1"}, admission.NewQueue(1), nil)
	a.initiateShutdown()

	done := make(chan error, 1)
	go func() { done <- a.Serve(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve blocked after an early shutdown")
	}
}
