// Package client implements the reference coordinator client: connect once,
// then read one line at a time and acknowledge each with a single true byte.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/lockstep/internal/logger"
	"github.com/marmos91/lockstep/pkg/wire"
)

var (
	// ErrOverloaded is returned when the coordinator rejected the connection
	// because its admission queue was full.
	ErrOverloaded = errors.New("coordinator is overloaded")

	// ErrClosed is returned when the coordinator closed the connection.
	ErrClosed = errors.New("connection closed by coordinator")
)

// Message is one line received from the coordinator.
type Message struct {
	Line string

	// Numbered reports whether Line is a sequence message. Sequence, Host
	// and Port are only set when it is.
	Numbered bool
	Sequence uint64
	Host     string
	Port     int

	ReceivedAt time.Time
}

// Handler is called for every received line before it is acknowledged.
type Handler func(Message)

// Config holds the client connection settings.
type Config struct {
	// Address is the coordinator's host:port.
	Address string

	// DialTimeout bounds the connection attempt. 0 means no timeout.
	DialTimeout time.Duration
}

// Run connects to the coordinator and serves the connection until ctx is
// cancelled or the connection ends.
func Run(ctx context.Context, cfg Config, handle Handler) error {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Address, err)
	}
	logger.Info("Connected to coordinator",
		"address", cfg.Address,
		"local_address", conn.LocalAddr().String())
	return Serve(ctx, conn, handle)
}

// Serve runs the read/acknowledge loop on an established connection and
// closes it on return.
//
// Returns:
//   - nil when ctx is cancelled
//   - ErrOverloaded after acknowledging the overload notice
//   - ErrClosed when the coordinator closes the connection
//   - the wrapped I/O error otherwise
func Serve(ctx context.Context, conn net.Conn, handle Handler) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	r := bufio.NewReader(conn)
	for {
		line, err := wire.ReadLine(r)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return ErrClosed
			default:
				return fmt.Errorf("read message: %w", err)
			}
		}

		msg := parse(line)
		if handle != nil {
			handle(msg)
		}

		if err := wire.WriteAck(conn); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("acknowledge message: %w", err)
		}

		if line == wire.OverloadNotice {
			return ErrOverloaded
		}
	}
}

func parse(line string) Message {
	msg := Message{Line: line, ReceivedAt: time.Now()}
	seq, host, port, err := wire.ParseMessage(line)
	if err == nil {
		msg.Numbered = true
		msg.Sequence = seq
		msg.Host = host
		msg.Port = port
	}
	return msg
}
