package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on coordinator spans.
const (
	// Client attributes
	AttrClientAddr = "client.address"
	AttrClientHost = "client.host"
	AttrClientPort = "client.port"

	// Session attributes
	AttrSessionID = "session.id"
	AttrSequence  = "session.sequence"
	AttrState     = "session.state"

	// Cycle attributes
	AttrCycle    = "cycle.number"
	AttrExpected = "cycle.expected"
	AttrArrived  = "cycle.arrived"
	AttrEvicted  = "cycle.evicted"
	AttrDeparted = "cycle.departed"
	AttrOutcome  = "cycle.outcome"
	AttrDelayMs  = "cycle.delay_ms"

	// Admission attributes
	AttrQueueLen = "admission.queue_len"
	AttrQueueCap = "admission.queue_cap"
	AttrResult   = "admission.result"
)

// Span names.
// Format: <component>.<operation>
const (
	SpanCycle           = "coordinator.cycle"
	SpanBarrierWait     = "coordinator.barrier_wait"
	SpanBroadcast       = "coordinator.broadcast"
	SpanRegister        = "registry.register"
	SpanAdmission       = "acceptor.admit"
	SpanRejectHandshake = "acceptor.reject_handshake"
)

// ClientAddr returns an attribute for a client's host:port.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// ClientHost returns an attribute for a client's host.
func ClientHost(host string) attribute.KeyValue {
	return attribute.String(AttrClientHost, host)
}

// ClientPort returns an attribute for a client's port.
func ClientPort(port int) attribute.KeyValue {
	return attribute.Int(AttrClientPort, port)
}

// SessionID returns an attribute for a session identifier.
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// Sequence returns an attribute for a session's message sequence number.
func Sequence(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrSequence, int64(n))
}

// Cycle returns an attribute for a cycle number.
func Cycle(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrCycle, int64(n))
}

// Expected returns an attribute for the number of arrivals a barrier waits for.
func Expected(n int) attribute.KeyValue {
	return attribute.Int(AttrExpected, n)
}

// Arrived returns an attribute for the number of sessions that arrived.
func Arrived(n int) attribute.KeyValue {
	return attribute.Int(AttrArrived, n)
}

// Evicted returns an attribute for the number of sessions evicted in a cycle.
func Evicted(n int) attribute.KeyValue {
	return attribute.Int(AttrEvicted, n)
}

// Departed returns an attribute for the number of sessions that left in a cycle.
func Departed(n int) attribute.KeyValue {
	return attribute.Int(AttrDeparted, n)
}

// Outcome returns an attribute for the admission outcome of a cycle.
func Outcome(o string) attribute.KeyValue {
	return attribute.String(AttrOutcome, o)
}

// DelayMs returns an attribute for the randomized send delay.
func DelayMs(ms int64) attribute.KeyValue {
	return attribute.Int64(AttrDelayMs, ms)
}

// QueueLen returns an attribute for the admission queue occupancy.
func QueueLen(n int) attribute.KeyValue {
	return attribute.Int(AttrQueueLen, n)
}

// QueueCap returns an attribute for the admission queue capacity.
func QueueCap(n int) attribute.KeyValue {
	return attribute.Int(AttrQueueCap, n)
}

// AdmissionResult returns an attribute for the result of offering a connection.
func AdmissionResult(r string) attribute.KeyValue {
	return attribute.String(AttrResult, r)
}

// StartCycleSpan starts the root span of a coordinator cycle.
func StartCycleSpan(ctx context.Context, cycle uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, Cycle(cycle))
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanCycle, trace.WithAttributes(allAttrs...))
}

// StartAcceptorSpan starts a span for an acceptor operation on a client connection.
func StartAcceptorSpan(ctx context.Context, name, clientAddr string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{ClientAddr(clientAddr)}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...), trace.WithSpanKind(trace.SpanKindServer))
}
