package coordinator

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/marmos91/lockstep/internal/logger"
	"github.com/marmos91/lockstep/internal/telemetry"
	"github.com/marmos91/lockstep/pkg/admission"
	"github.com/marmos91/lockstep/pkg/metrics"
)

// Admission outcomes of a cycle.
const (
	OutcomeConnected = "connected"
	OutcomeDuplicate = "duplicate"
	OutcomeIdle      = "idle"
	OutcomeRejected  = "rejected"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxSendDelay = 1000 * time.Millisecond

	hostLookupTimeout = 2 * time.Second
)

// Config controls the cycle timing of the Coordinator.
type Config struct {
	// PollInterval is the sleep at the start of every cycle.
	PollInterval time.Duration

	// MaxSendDelay bounds the random delay drawn between the barrier
	// release and the broadcast. Zero disables the delay.
	MaxSendDelay time.Duration

	// AckTimeout bounds each session's wait for an acknowledgement.
	// Zero waits forever.
	AckTimeout time.Duration

	// ArrivalTimeout bounds the readiness barrier wait. Sessions still
	// pending when it expires are evicted. Zero waits forever.
	ArrivalTimeout time.Duration

	// ResolveHostnames replaces the numeric client IP with its reverse DNS
	// name in keys and message lines. Failed lookups keep the IP.
	ResolveHostnames bool
}

// CycleReport summarizes one completed cycle.
type CycleReport struct {
	Cycle    uint64        `json:"cycle" yaml:"cycle"`
	Outcome  string        `json:"outcome" yaml:"outcome"`
	Client   string        `json:"client,omitempty" yaml:"client,omitempty"`
	Expected int           `json:"expected" yaml:"expected"`
	Arrived  int           `json:"arrived" yaml:"arrived"`
	Departed int           `json:"departed" yaml:"departed"`
	Evicted  int           `json:"evicted" yaml:"evicted"`
	Released int           `json:"released" yaml:"released"`
	Wait     time.Duration `json:"wait_ns" yaml:"wait"`
	Delay    time.Duration `json:"delay_ns" yaml:"delay"`
}

// Coordinator drives lock-step broadcast cycles over every registered session.
//
// Each cycle admits at most one queued connection, opens a readiness barrier
// sized to the number of registered sessions, waits until every session has
// arrived (which means it has finished the previous cycle's send and
// acknowledgement), sleeps a random delay and then opens every session's
// send gate at once.
type Coordinator struct {
	cfg      Config
	queue    *admission.Queue
	registry *Registry
	metrics  metrics.CoordinatorMetrics

	// departures is written by workers whose connection failed and drained
	// by the loop before each barrier and while waiting on one.
	departures chan departure

	cycle    atomic.Uint64
	expected atomic.Int64
	running  atomic.Bool

	mu      sync.RWMutex
	last    CycleReport
	onCycle func(CycleReport)

	delayFn    func(max time.Duration) time.Duration
	lookupAddr func(ctx context.Context, addr string) ([]string, error)
	workers    sync.WaitGroup
}

// New creates a Coordinator that admits connections from queue.
// m may be nil to disable metrics.
func New(cfg Config, queue *admission.Queue, m metrics.CoordinatorMetrics) *Coordinator {
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if cfg.MaxSendDelay < 0 {
		cfg.MaxSendDelay = 0
	}
	return &Coordinator{
		cfg:        cfg,
		queue:      queue,
		registry:   NewRegistry(cfg.AckTimeout, m),
		metrics:    m,
		departures: make(chan departure, queue.Cap()),
		delayFn:    randomDelay,
		lookupAddr: net.DefaultResolver.LookupAddr,
	}
}

func randomDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// SetOnCycle installs a callback invoked by the loop goroutine after every
// cycle. It must not block.
func (c *Coordinator) SetOnCycle(fn func(CycleReport)) {
	c.mu.Lock()
	c.onCycle = fn
	c.mu.Unlock()
}

// Registry returns the session registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Cycle returns the number of the last started cycle.
func (c *Coordinator) Cycle() uint64 {
	return c.cycle.Load()
}

// Expected returns N of the most recently opened barrier.
func (c *Coordinator) Expected() int {
	return int(c.expected.Load())
}

// LastCycle returns the report of the last completed cycle.
func (c *Coordinator) LastCycle() CycleReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Running reports whether Run is executing.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Run executes cycles until ctx is cancelled, then stops every session,
// closes queued connections and waits for the workers to exit.
// A cancelled context is a normal shutdown and yields a nil error.
func (c *Coordinator) Run(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)
	defer c.shutdown()

	logger.Info("Coordinator started",
		"poll_interval", c.cfg.PollInterval,
		"max_send_delay", c.cfg.MaxSendDelay,
		"ack_timeout", c.cfg.AckTimeout,
		"arrival_timeout", c.cfg.ArrivalTimeout)

	for {
		if err := sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil
		}
		if err := c.step(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// step runs one cycle after the poll sleep. Workers admitted during the
// step run under ctx, so they live exactly as long as ctx does.
func (c *Coordinator) step(ctx context.Context) error {
	base := ctx
	cycle := c.cycle.Add(1)
	ctx, span := telemetry.StartCycleSpan(ctx, cycle)
	defer span.End()
	lc := &logger.LogContext{Cycle: cycle, TraceID: telemetry.TraceID(ctx), SpanID: telemetry.SpanID(ctx)}
	ctx = logger.WithContext(ctx, lc)

	report := CycleReport{Cycle: cycle}
	report.Departed = c.drainDepartures(ctx)
	report.Outcome, report.Client = c.admit(ctx, base)

	sessions := c.registry.Sessions()
	keys := make([]string, len(sessions))
	for i, s := range sessions {
		keys[i] = s.Key()
	}
	barrier := NewBarrier(cycle, keys)
	c.expected.Store(int64(barrier.Expected()))
	report.Expected = barrier.Expected()

	for _, s := range sessions {
		if !s.handOff(barrier) {
			// The worker never consumed its previous barrier, so it is
			// stuck outside the protocol.
			barrier.Withdraw(s.Key())
			c.evict(ctx, s, ReasonArrivalTimeout)
			report.Evicted++
		}
	}

	telemetry.SetAttributes(ctx, telemetry.Outcome(report.Outcome), telemetry.Expected(report.Expected))
	logger.DebugCtx(ctx, "Readiness barrier opened", logger.Expected(report.Expected))

	waitStart := time.Now()
	departed, evicted, err := c.awaitArrivals(ctx, barrier)
	report.Departed += departed
	report.Evicted += evicted
	report.Wait = time.Since(waitStart)
	if err != nil {
		return err
	}
	report.Arrived = len(barrier.Arrived())

	report.Delay = c.delayFn(c.cfg.MaxSendDelay)
	logger.InfoCtx(ctx, "Messages will be sent with delay", logger.DelayMs(report.Delay), logger.Expected(report.Expected))
	if err := sleep(ctx, report.Delay); err != nil {
		return err
	}

	report.Released = c.broadcast(barrier)

	telemetry.SetAttributes(ctx,
		telemetry.Arrived(report.Arrived),
		telemetry.Departed(report.Departed),
		telemetry.Evicted(report.Evicted),
		telemetry.DelayMs(report.Delay.Milliseconds()))
	if report.Evicted > 0 {
		telemetry.SetStatus(ctx, codes.Error, "sessions evicted")
	}
	if c.metrics != nil {
		c.metrics.RecordCycle(report.Outcome, report.Expected, report.Wait, report.Delay)
	}

	c.mu.Lock()
	c.last = report
	onCycle := c.onCycle
	c.mu.Unlock()
	if onCycle != nil {
		onCycle(report)
	}
	return nil
}

// admit polls at most one connection from the admission queue and registers
// it. New workers run under base so they outlive the cycle's span and stop
// when base is cancelled.
func (c *Coordinator) admit(ctx, base context.Context) (outcome, client string) {
	conn, ok := c.queue.Poll()
	if !ok {
		logger.InfoCtx(ctx, "No client was connected on current iteration")
		return OutcomeIdle, ""
	}
	id, err := IdentityFromAddr(conn.RemoteAddr())
	if err != nil {
		logger.WarnCtx(ctx, "Dropping connection without usable address", logger.Err(err))
		_ = conn.Close()
		return OutcomeRejected, ""
	}
	if c.cfg.ResolveHostnames {
		id.Host = c.resolveHost(ctx, id.Host)
	}

	s, created := c.registry.Register(id, conn)
	if !created {
		logger.InfoCtx(ctx, "Client already connected, closing duplicate connection",
			logger.ClientAddr(id.Key()), logger.SessionID(s.ID()))
		_ = conn.Close()
		return OutcomeDuplicate, id.Key()
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	c.workers.Add(1)
	s.start(base, c.departures)
	go func() {
		<-s.Done()
		c.workers.Done()
	}()

	logger.InfoCtx(ctx, "Client connected",
		logger.ClientAddr(id.Key()),
		logger.SessionID(s.ID()),
		logger.Expected(c.registry.Len()))
	return OutcomeConnected, id.Key()
}

// resolveHost returns the first reverse DNS name for ip, or ip itself when
// the lookup fails or takes longer than hostLookupTimeout.
func (c *Coordinator) resolveHost(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, hostLookupTimeout)
	defer cancel()
	names, err := c.lookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		logger.DebugCtx(ctx, "Reverse lookup failed, keeping address",
			logger.ClientAddr(ip), logger.Err(err))
		return ip
	}
	return strings.TrimSuffix(names[0], ".")
}

// awaitArrivals blocks until the barrier is released, withdrawing departed
// sessions and evicting stragglers when the arrival timeout expires.
func (c *Coordinator) awaitArrivals(ctx context.Context, b *Barrier) (departed, evicted int, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanBarrierWait)
	defer span.End()

	var timeout <-chan time.Time
	if c.cfg.ArrivalTimeout > 0 {
		t := time.NewTimer(c.cfg.ArrivalTimeout)
		defer t.Stop()
		timeout = t.C
	}

	for {
		select {
		case <-b.Done():
			return departed, evicted, nil

		case d := <-c.departures:
			if c.deregister(ctx, d) {
				departed++
			}
			b.Withdraw(d.session.Key())

		case <-timeout:
			for _, key := range b.Pending() {
				b.Withdraw(key)
				if s, ok := c.registry.Get(key); ok {
					s.fail(ErrArrivalTimeout)
					c.evict(ctx, s, ReasonArrivalTimeout)
					evicted++
				}
			}
			return departed, evicted, nil

		case <-ctx.Done():
			return departed, evicted, ctx.Err()
		}
	}
}

// broadcast opens the send gate of every session that arrived at b.
func (c *Coordinator) broadcast(b *Barrier) int {
	released := 0
	for _, key := range b.Arrived() {
		s, ok := c.registry.Get(key)
		if !ok {
			continue
		}
		s.release()
		released++
	}
	return released
}

// drainDepartures deregisters every session that reported a failure since
// the last cycle.
func (c *Coordinator) drainDepartures(ctx context.Context) int {
	n := 0
	for {
		select {
		case d := <-c.departures:
			if c.deregister(ctx, d) {
				n++
			}
		default:
			return n
		}
	}
}

func (c *Coordinator) deregister(ctx context.Context, d departure) bool {
	s := d.session
	s.Stop()
	if !c.registry.Remove(s.Key(), s) {
		return false
	}
	if c.metrics != nil {
		c.metrics.RecordDeparture(d.reason)
	}
	logger.InfoCtx(ctx, "Client disconnected",
		logger.ClientAddr(s.Key()),
		logger.SessionID(s.ID()),
		logger.Sequence(s.Sequence()),
		logger.Reason(d.reason),
		logger.Err(d.err))
	return true
}

func (c *Coordinator) evict(ctx context.Context, s *Session, reason string) {
	s.Stop()
	if !c.registry.Remove(s.Key(), s) {
		return
	}
	if c.metrics != nil {
		c.metrics.RecordDeparture(reason)
	}
	logger.WarnCtx(ctx, "Client evicted",
		logger.ClientAddr(s.Key()),
		logger.SessionID(s.ID()),
		logger.KeyState, s.State().String(),
		logger.Reason(reason))
}

// shutdown stops every session and closes the connections still queued.
func (c *Coordinator) shutdown() {
	sessions := c.registry.Sessions()
	for _, s := range sessions {
		s.Stop()
	}
	for _, conn := range c.queue.Drain() {
		_ = conn.Close()
	}
	c.workers.Wait()

	for _, s := range sessions {
		if c.registry.Remove(s.Key(), s) && c.metrics != nil {
			c.metrics.RecordDeparture(ReasonShutdown)
		}
	}
	logger.Info("Coordinator stopped", logger.Cycle(c.cycle.Load()), "sessions", len(sessions))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
