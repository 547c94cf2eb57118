package coordinator

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/lockstep/pkg/wire"
)

// addrConn gives a net.Pipe end a TCP remote address.
type addrConn struct {
	net.Conn
	remote net.Addr
}

func (c addrConn) RemoteAddr() net.Addr { return c.remote }

// pipeFrom returns the server and client ends of an in-memory connection
// whose server end reports addr as its remote address.
func pipeFrom(t *testing.T, addr string) (server, client net.Conn) {
	t.Helper()
	tcp, err := net.ResolveTCPAddr("tcp", addr)
	require.NoError(t, err)

	s, c := net.Pipe()
	t.Cleanup(func() {
		_ = s.Close()
		_ = c.Close()
	})
	return addrConn{Conn: s, remote: tcp}, c
}

// ackingClient reads lines from conn and acknowledges each one. Received
// lines are delivered on the returned channel, which is closed when the
// connection fails.
func ackingClient(conn net.Conn) <-chan string {
	lines := make(chan string, 256)
	go func() {
		defer close(lines)
		r := bufio.NewReader(conn)
		for {
			line, err := wire.ReadLine(r)
			if err != nil {
				return
			}
			lines <- line
			if err := wire.WriteAck(conn); err != nil {
				return
			}
		}
	}()
	return lines
}

// silentClient reads one line from conn and never acknowledges it.
func silentClient(conn net.Conn) <-chan string {
	lines := make(chan string, 1)
	go func() {
		defer close(lines)
		line, err := wire.ReadLine(bufio.NewReader(conn))
		if err == nil {
			lines <- line
		}
	}()
	return lines
}

func recv(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-lines:
		require.True(t, ok, "connection closed before a line arrived")
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
		return ""
	}
}

type recordingMetrics struct {
	mu         sync.Mutex
	outcomes   []string
	expected   []int
	messages   int
	departures []string
	sessions   int
}

func (m *recordingMetrics) RecordCycle(outcome string, expected int, _, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	m.expected = append(m.expected, expected)
}

func (m *recordingMetrics) RecordMessage(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages++
}

func (m *recordingMetrics) RecordDeparture(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departures = append(m.departures, reason)
}

func (m *recordingMetrics) SetSessions(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = count
}

func (m *recordingMetrics) snapshot() (departures []string, sessions, messages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.departures...), m.sessions, m.messages
}
