package coordinator

import "errors"

var (
	// ErrSessionStopped is returned by a session worker that was cancelled
	// or evicted by the coordinator.
	ErrSessionStopped = errors.New("session stopped")

	// ErrAckTimeout wraps the read error of an acknowledgement that did not
	// arrive within the configured ack timeout.
	ErrAckTimeout = errors.New("acknowledgement timed out")

	// ErrArrivalTimeout is recorded for sessions evicted because they did not
	// reach the readiness barrier within the arrival timeout.
	ErrArrivalTimeout = errors.New("readiness barrier arrival timed out")

	// ErrDuplicateIdentity is returned when a connection's identity already
	// has a registered session.
	ErrDuplicateIdentity = errors.New("identity already registered")

	// ErrUnsupportedAddr is returned when a connection's remote address has
	// no host/port form.
	ErrUnsupportedAddr = errors.New("unsupported remote address")
)
