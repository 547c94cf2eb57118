// Package adapter implements the admission endpoint: a TCP accept loop that
// feeds the admission queue and turns clients away with an overload
// handshake when the queue is full.
package adapter

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

	"github.com/marmos91/lockstep/internal/logger"
	"github.com/marmos91/lockstep/internal/telemetry"
	"github.com/marmos91/lockstep/pkg/admission"
	"github.com/marmos91/lockstep/pkg/metrics"
	"github.com/marmos91/lockstep/pkg/wire"
)

// Admission results recorded for each accepted connection.
const (
	ResultQueued   = "queued"
	ResultRejected = "rejected"
)

// Config holds the admission endpoint settings.
type Config struct {
	// BindAddress is the IP address to bind to.
	// Empty string or "0.0.0.0" binds to all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. 0 picks a free port.
	Port int

	// RejectTimeout bounds how long an overload handshake waits for the
	// client's acknowledgement. 0 waits forever.
	RejectTimeout time.Duration
}

// Acceptor accepts client connections and offers them to the admission queue.
//
// When the queue is full the acceptor itself performs the rejection
// handshake inline: it writes the overload notice, waits for the client to
// acknowledge it and closes the connection. No further connection is
// accepted while a handshake is in progress.
//
// Thread safety:
// All exported methods are safe for concurrent use. Stop may be called
// concurrently with Serve and more than once.
type Acceptor struct {
	Config Config

	queue   *admission.Queue
	metrics metrics.AdmissionMetrics

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed when the listener is ready to accept connections.
	// Used by tests to synchronize with server startup.
	ListenerReady chan struct{}

	// shutdown is closed once shutdown has been initiated.
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// served is closed when Serve returns.
	served chan struct{}

	// rejecting holds the connection of the handshake in progress, so
	// shutdown can close it.
	rejecting atomic.Pointer[net.Conn]

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewAcceptor creates an Acceptor feeding queue. m may be nil to disable metrics.
// The acceptor is created stopped; call Serve to start it.
func NewAcceptor(cfg Config, queue *admission.Queue, m metrics.AdmissionMetrics) *Acceptor {
	return &Acceptor{
		Config:        cfg,
		queue:         queue,
		metrics:       m,
		ListenerReady: make(chan struct{}),
		shutdown:      make(chan struct{}),
		served:        make(chan struct{}),
	}
}

// Serve listens on the configured address and accepts connections until ctx
// is cancelled or Stop is called.
//
// Returns:
//   - nil on shutdown
//   - an error wrapping ErrListen if the listener cannot be created
//   - an error wrapping ErrListenerClosed if the listener fails on its own
func (a *Acceptor) Serve(ctx context.Context) error {
	defer close(a.served)

	listenAddr := net.JoinHostPort(a.Config.BindAddress, strconv.Itoa(a.Config.Port))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("%w on %s: %w", ErrListen, listenAddr, err)
	}

	a.listenerMu.Lock()
	a.listener = listener
	select {
	case <-a.shutdown:
		// Stopped before the listener existed.
		_ = listener.Close()
	default:
	}
	a.listenerMu.Unlock()
	close(a.ListenerReady)

	logger.Info("Admission endpoint listening",
		"address", listener.Addr().String(),
		logger.KeyQueueCap, a.queue.Cap())

	stop := context.AfterFunc(ctx, func() {
		logger.Debug("Admission shutdown signal received", logger.Err(ctx.Err()))
		a.initiateShutdown()
	})
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-a.shutdown:
				logger.Info("Admission endpoint stopped",
					"accepted", a.accepted.Load(),
					"rejected", a.rejected.Load())
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("%w: %w", ErrListenerClosed, err)
			}
			logger.Debug("Error accepting connection", logger.Err(err))
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", logger.Err(err))
			}
		}

		a.admit(ctx, conn)
	}
}

// admit offers conn to the queue, or turns it away when the queue is full.
func (a *Acceptor) admit(ctx context.Context, conn net.Conn) {
	addr := conn.RemoteAddr().String()

	if a.queue.Offer(conn) {
		a.accepted.Add(1)
		if a.metrics != nil {
			a.metrics.RecordAdmission(ResultQueued)
		}
		logger.Debug("Connection queued for registration",
			logger.ClientAddr(addr),
			logger.KeyQueueLen, a.queue.Len(),
			logger.KeyQueueCap, a.queue.Cap())
		return
	}

	a.rejected.Add(1)
	if a.metrics != nil {
		a.metrics.RecordAdmission(ResultRejected)
	}
	logger.Warn("Can't connect client, admission queue is full",
		logger.ClientAddr(addr),
		logger.KeyQueueCap, a.queue.Cap())

	err := a.reject(ctx, conn)
	if a.metrics != nil {
		a.metrics.RecordRejectHandshake(err == nil)
	}
	if err != nil {
		logger.Debug("Overload handshake ended without acknowledgement", logger.ClientAddr(addr), logger.Err(err))
	}
}

// reject sends the overload notice on conn, waits for a true acknowledgement
// and closes the connection.
func (a *Acceptor) reject(ctx context.Context, conn net.Conn) (err error) {
	ctx, span := telemetry.StartAcceptorSpan(ctx, telemetry.SpanRejectHandshake, conn.RemoteAddr().String(),
		telemetry.QueueCap(a.queue.Cap()))
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	a.rejecting.Store(&conn)
	defer func() {
		a.rejecting.Store(nil)
		_ = conn.Close()
	}()

	select {
	case <-a.shutdown:
		return net.ErrClosed
	default:
	}

	if err := wire.WriteLine(bufio.NewWriter(conn), wire.OverloadNotice); err != nil {
		return fmt.Errorf("send overload notice: %w", err)
	}

	if a.Config.RejectTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(a.Config.RejectTimeout)); err != nil {
			return err
		}
	}
	if err := wire.ReadAck(bufio.NewReader(conn)); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrRejectTimeout, err)
		}
		return fmt.Errorf("read overload acknowledgement: %w", err)
	}
	return nil
}

// initiateShutdown closes the listener and interrupts a handshake in progress.
//
// Thread safety:
// Safe to call multiple times and from multiple goroutines.
func (a *Acceptor) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdown)

		a.listenerMu.Lock()
		if a.listener != nil {
			if err := a.listener.Close(); err != nil {
				logger.Debug("Error closing admission listener", logger.Err(err))
			}
		}
		a.listenerMu.Unlock()

		if c := a.rejecting.Load(); c != nil {
			_ = (*c).Close()
		}
	})
}

// Stop initiates shutdown and waits for Serve to return or ctx to expire.
func (a *Acceptor) Stop(ctx context.Context) error {
	a.initiateShutdown()

	select {
	case <-a.served:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetListenerAddr returns the address the acceptor is listening on.
// This method blocks until the listener is ready, making it safe for tests.
func (a *Acceptor) GetListenerAddr() string {
	<-a.ListenerReady

	a.listenerMu.RLock()
	defer a.listenerMu.RUnlock()

	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Accepted returns the number of connections queued since Serve started.
func (a *Acceptor) Accepted() uint64 { return a.accepted.Load() }

// Rejected returns the number of connections turned away with the overload notice.
func (a *Acceptor) Rejected() uint64 { return a.rejected.Load() }
