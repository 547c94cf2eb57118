package logger

import (
	"log/slog"
	"time"
)

// Standard field keys. Use these consistently so log lines can be queried
// across the coordinator, acceptor and workers.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Connections and sessions
	KeyClientAddr = "client_addr"
	KeyClientHost = "client_host"
	KeyClientPort = "client_port"
	KeySessionID  = "session_id"
	KeyState      = "state"
	KeySequence   = "sequence"

	// Cycle driver
	KeyCycle    = "cycle"
	KeyExpected = "expected"
	KeyArrived  = "arrived"
	KeyDelayMs  = "delay_ms"
	KeyOutcome  = "outcome"

	// Admission
	KeyQueueLen = "queue_len"
	KeyQueueCap = "queue_cap"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyReason     = "reason"
)

// Err returns a slog.Attr for an error. A nil error yields an empty attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// SessionID returns a slog.Attr for a session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ClientAddr returns a slog.Attr for a client's host:port
func ClientAddr(addr string) slog.Attr {
	return slog.String(KeyClientAddr, addr)
}

// Cycle returns a slog.Attr for a cycle number
func Cycle(n uint64) slog.Attr {
	return slog.Uint64(KeyCycle, n)
}

// Expected returns a slog.Attr for the expected-arrivals count of a cycle
func Expected(n int) slog.Attr {
	return slog.Int(KeyExpected, n)
}

// Sequence returns a slog.Attr for a session's message sequence number
func Sequence(n uint64) slog.Attr {
	return slog.Uint64(KeySequence, n)
}

// DelayMs returns a slog.Attr for a send delay in milliseconds
func DelayMs(d time.Duration) slog.Attr {
	return slog.Int64(KeyDelayMs, d.Milliseconds())
}

// Reason returns a slog.Attr explaining why something was rejected or stopped
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}
