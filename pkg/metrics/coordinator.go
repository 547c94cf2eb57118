package metrics

import "time"

// CoordinatorMetrics provides observability for the cycle driver and its
// session workers.
//
// Implementations must be safe for concurrent use: the coordinator loop and
// every session worker record into the same instance. Pass nil to disable
// metrics collection with zero overhead.
//
// Example usage:
//
//	m := prometheus.NewCoordinatorMetrics()
//	c := coordinator.New(cfg, queue, m)
type CoordinatorMetrics interface {
	// RecordCycle records a completed cycle.
	//
	// Parameters:
	//   - outcome: admission outcome of the tick ("connected", "duplicate", "idle")
	//   - expected: N, the number of arrivals the readiness barrier waited for
	//   - arrivalWait: time spent blocked on the readiness barrier
	//   - delay: randomized delay drawn before releasing the send gates
	RecordCycle(outcome string, expected int, arrivalWait, delay time.Duration)

	// RecordMessage records one completed send/acknowledge round of a session.
	RecordMessage(ackLatency time.Duration)

	// RecordDeparture records a session leaving the registry.
	//
	// Parameters:
	//   - reason: "disconnected", "ack_timeout", "arrival_timeout", "shutdown"
	RecordDeparture(reason string)

	// SetSessions updates the number of registered sessions.
	SetSessions(count int)
}

// AdmissionMetrics provides observability for the connection acceptor.
type AdmissionMetrics interface {
	// RecordAdmission records the result of offering a connection to the
	// admission queue ("queued" or "rejected").
	RecordAdmission(result string)

	// RecordRejectHandshake records the end of an overload handshake.
	// acknowledged is false when the client left or timed out before acking.
	RecordRejectHandshake(acknowledged bool)
}
