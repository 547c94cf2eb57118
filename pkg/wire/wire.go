// Package wire implements the line protocol spoken between the coordinator and
// its clients.
//
// Coordinator to client: one newline-terminated text line per cycle,
// "Message {n} for client {host}:{port}.", or the overload notice when the
// admission queue is full.
//
// Client to coordinator: one byte per received line. A non-zero byte means
// "message received"; a zero byte carries no acknowledgement and is skipped.
package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

// OverloadNotice is sent to a client rejected because the admission queue is full.
const OverloadNotice = "You can't connect to the server because it's overloaded."

const (
	messagePrefix = "Message "
	messageInfix  = " for client "

	ackTrue  byte = 1
	ackFalse byte = 0
)

// ErrMalformedMessage is returned by ParseMessage for lines that are not
// sequence messages.
var ErrMalformedMessage = errors.New("wire: malformed message line")

// FormatMessage renders the per-cycle message for a session.
func FormatMessage(seq uint64, host string, port int) string {
	return fmt.Sprintf("Message %d for client %s:%d.", seq, host, port)
}

// ParseMessage extracts the sequence number and client address from a line
// produced by FormatMessage.
func ParseMessage(line string) (seq uint64, host string, port int, err error) {
	rest, ok := strings.CutPrefix(line, messagePrefix)
	if !ok {
		return 0, "", 0, ErrMalformedMessage
	}
	num, addr, ok := strings.Cut(rest, messageInfix)
	if !ok {
		return 0, "", 0, ErrMalformedMessage
	}
	addr, ok = strings.CutSuffix(addr, ".")
	if !ok {
		return 0, "", 0, ErrMalformedMessage
	}

	seq, err = strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, "", 0, fmt.Errorf("%w: sequence %q", ErrMalformedMessage, num)
	}
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		// IPv6 hosts are rendered without brackets; split on the last colon.
		i := strings.LastIndexByte(addr, ':')
		if i < 0 {
			return 0, "", 0, fmt.Errorf("%w: address %q", ErrMalformedMessage, addr)
		}
		h, p = addr[:i], addr[i+1:]
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return 0, "", 0, fmt.Errorf("%w: port %q", ErrMalformedMessage, p)
	}
	return seq, h, port, nil
}

// WriteLine writes line followed by a newline and flushes it immediately.
func WriteLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// ReadLine reads one newline-terminated line and strips the terminator.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadAck blocks until a true acknowledgement byte is read. Zero bytes are
// treated as noise and skipped. Any read error, including io.EOF and
// deadline expiry, is returned as is.
func ReadAck(r io.ByteReader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != ackFalse {
			return nil
		}
	}
}

// WriteAck sends a single true acknowledgement.
func WriteAck(w io.Writer) error {
	_, err := w.Write([]byte{ackTrue})
	return err
}
