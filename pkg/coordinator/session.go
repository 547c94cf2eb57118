package coordinator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/lockstep/internal/logger"
	"github.com/marmos91/lockstep/pkg/metrics"
	"github.com/marmos91/lockstep/pkg/wire"
)

// Identity identifies a client connection by its remote host and port.
type Identity struct {
	Host string
	Port int
}

// IdentityFromAddr derives an Identity from a connection's remote address.
func IdentityFromAddr(addr net.Addr) (Identity, error) {
	if addr == nil {
		return Identity{}, ErrUnsupportedAddr
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return Identity{Host: tcp.IP.String(), Port: tcp.Port}, nil
	}

	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: %v", ErrUnsupportedAddr, addr.String(), err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: bad port", ErrUnsupportedAddr, addr.String())
	}
	return Identity{Host: host, Port: port}, nil
}

// Key returns the registry lookup key for the identity.
func (id Identity) Key() string {
	return net.JoinHostPort(id.Host, strconv.Itoa(id.Port))
}

func (id Identity) String() string {
	return id.Key()
}

// State is the position of a session worker in its per-cycle state machine.
type State int32

const (
	// StateAwaitingCycle: waiting for the cycle's barrier, arriving, then
	// waiting for send permission.
	StateAwaitingCycle State = iota
	// StateSending: writing this cycle's message.
	StateSending
	// StateAwaitingAck: blocked reading the client's acknowledgement.
	StateAwaitingAck
	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAwaitingCycle:
		return "awaiting_cycle"
	case StateSending:
		return "sending"
	case StateAwaitingAck:
		return "awaiting_ack"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Departure reasons reported by workers and the coordinator.
const (
	ReasonDisconnected   = "disconnected"
	ReasonAckTimeout     = "ack_timeout"
	ReasonArrivalTimeout = "arrival_timeout"
	ReasonShutdown       = "shutdown"
)

// departure is sent by a worker that stopped on a connection failure, so the
// coordinator can deregister it before opening the next barrier.
type departure struct {
	session *Session
	reason  string
	err     error
}

// Session is the coordinator-side state of one registered client. It is
// owned by its registry entry and by exactly one worker goroutine.
//
// The coordinator talks to the worker through two per-session channels: the
// handoff slot, which carries the readiness barrier of each cycle, and the
// send gate, which the coordinator opens once every session has arrived.
type Session struct {
	id          string
	ordinal     uint64
	identity    Identity
	conn        net.Conn
	reader      *bufio.Reader
	writer      *bufio.Writer
	ackTimeout  time.Duration
	connectedAt time.Time
	metrics     metrics.CoordinatorMetrics

	// handoff carries the current cycle's barrier. The coordinator puts a
	// barrier here only after every participant consumed the previous one,
	// so one slot is always enough.
	handoff chan *Barrier

	mu        sync.Mutex
	gate      *Gate
	lastAckAt time.Time
	err       error

	sequence     atomic.Uint64
	acknowledged atomic.Bool
	state        atomic.Int32

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newSession(ordinal uint64, id Identity, conn net.Conn, ackTimeout time.Duration, m metrics.CoordinatorMetrics) *Session {
	return &Session{
		id:          uuid.NewString(),
		ordinal:     ordinal,
		identity:    id,
		conn:        conn,
		reader:      bufio.NewReader(conn),
		writer:      bufio.NewWriter(conn),
		ackTimeout:  ackTimeout,
		connectedAt: time.Now(),
		metrics:     m,
		handoff:     make(chan *Barrier, 1),
		gate:        NewGate(),
		cancel:      func() {},
		done:        make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Identity returns the client identity the session was registered under.
func (s *Session) Identity() Identity { return s.identity }

// Key returns the registry key of the session.
func (s *Session) Key() string { return s.identity.Key() }

// Sequence returns the number of completed send/acknowledge rounds, which is
// also the sequence number of the next message.
func (s *Session) Sequence() uint64 { return s.sequence.Load() }

// Acknowledged reports whether the current round's message was acknowledged.
func (s *Session) Acknowledged() bool { return s.acknowledged.Load() }

// State returns the worker's current state.
func (s *Session) State() State { return State(s.state.Load()) }

// ConnectedAt returns when the session was registered.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// LastAckAt returns when the last acknowledgement was received.
func (s *Session) LastAckAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAckAt
}

// Err returns the error that stopped the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the worker goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// handOff gives the worker the barrier for the next cycle. It never blocks:
// if the slot is still occupied the worker has not consumed the previous
// barrier, which the coordinator only allows for sessions it is evicting.
func (s *Session) handOff(b *Barrier) bool {
	select {
	case s.handoff <- b:
		return true
	default:
		return false
	}
}

// release opens the session's current send gate.
func (s *Session) release() {
	s.mu.Lock()
	g := s.gate
	s.mu.Unlock()
	g.Open()
}

func (s *Session) currentGate() *Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate
}

// renewGate installs a fresh unopened gate for the next cycle.
func (s *Session) renewGate() {
	s.mu.Lock()
	s.gate = NewGate()
	s.mu.Unlock()
}

// Stop cancels the worker and closes the connection. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		cancel()
		_ = s.conn.Close()
	})
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// start launches the worker goroutine under a context derived from ctx.
func (s *Session) start(ctx context.Context, departures chan<- departure) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go s.run(ctx, departures)
}

// run is the worker loop. It returns when the session is cancelled or its
// connection fails; failures are reported on departures.
func (s *Session) run(ctx context.Context, departures chan<- departure) {
	lc := logger.NewLogContext(s.id, s.Key())
	defer func() {
		s.setState(StateStopped)
		s.Stop()
		close(s.done)
	}()

	for {
		// Cancellation is checked before starting a round, never mid-round.
		if ctx.Err() != nil {
			s.fail(ErrSessionStopped)
			logger.DebugCtx(logger.WithContext(ctx, lc), "Session worker cancelled", logger.Sequence(s.Sequence()))
			return
		}

		s.setState(StateAwaitingCycle)
		var barrier *Barrier
		select {
		case barrier = <-s.handoff:
		case <-ctx.Done():
			continue
		}

		cctx := logger.WithContext(ctx, lc.WithCycle(barrier.Cycle()))
		gate := s.currentGate()
		barrier.Arrive(s.Key())
		if err := gate.Wait(ctx); err != nil {
			continue
		}

		if err := s.round(cctx); err != nil {
			reason := ReasonDisconnected
			if errors.Is(err, ErrAckTimeout) {
				reason = ReasonAckTimeout
			}
			s.fail(err)
			if ctx.Err() != nil {
				// Stopped by the coordinator; it already knows.
				return
			}
			logger.WarnCtx(cctx, "Session connection failed", logger.Err(err), logger.Reason(reason))
			select {
			case departures <- departure{session: s, reason: reason, err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// round sends the current message and waits for its acknowledgement.
func (s *Session) round(ctx context.Context) error {
	s.acknowledged.Store(false)
	seq := s.sequence.Load()

	s.setState(StateSending)
	line := wire.FormatMessage(seq, s.identity.Host, s.identity.Port)
	if err := wire.WriteLine(s.writer, line); err != nil {
		return fmt.Errorf("send message %d: %w", seq, err)
	}
	sentAt := time.Now()
	logger.DebugCtx(ctx, "Message sent", logger.Sequence(seq))

	s.setState(StateAwaitingAck)
	if err := s.awaitAck(); err != nil {
		return fmt.Errorf("await ack for message %d: %w", seq, err)
	}

	latency := time.Since(sentAt)
	s.mu.Lock()
	s.lastAckAt = time.Now()
	s.mu.Unlock()
	s.acknowledged.Store(true)
	s.sequence.Add(1)
	s.renewGate()

	if s.metrics != nil {
		s.metrics.RecordMessage(latency)
	}
	logger.DebugCtx(ctx, "Message acknowledged", logger.Sequence(seq), logger.KeyDurationMs, latency.Milliseconds())
	return nil
}

func (s *Session) awaitAck() error {
	if s.ackTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.ackTimeout)); err != nil {
			return err
		}
		defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()
	}

	err := wire.ReadAck(s.reader)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrAckTimeout, s.ackTimeout, err)
	}
	return err
}
