package adapter

import "errors"

var (
	// ErrListen wraps a failure to create the admission listener. It is
	// fatal: the coordinator has no way to admit clients without it.
	ErrListen = errors.New("failed to create admission listener")

	// ErrListenerClosed is returned by Serve when the listener was closed
	// by something other than a shutdown.
	ErrListenerClosed = errors.New("admission listener closed unexpectedly")

	// ErrRejectTimeout wraps the read error of an overload handshake whose
	// acknowledgement did not arrive within the reject timeout.
	ErrRejectTimeout = errors.New("overload notice was not acknowledged in time")
)
