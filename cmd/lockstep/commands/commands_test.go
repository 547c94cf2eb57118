package commands

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lockstep/pkg/coordinator"
	"github.com/marmos91/lockstep/pkg/wire"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range GetRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "client", "status", "config", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestVersion(t *testing.T) {
	versionShort = false
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lockstep "+Version)
	assert.Contains(t, out, "Go version:")

	out, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
	versionShort = false
}

// serveLines accepts one connection, sends lines and waits for each ack,
// then closes the connection.
func serveLines(t *testing.T, lines ...string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		r := bufio.NewReader(conn)
		w := bufio.NewWriter(conn)
		for _, line := range lines {
			if wire.WriteLine(w, line) != nil || wire.ReadAck(r) != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestClientPrintsLines(t *testing.T) {
	clientQuiet = false
	addr := serveLines(t, wire.FormatMessage(0, "127.0.0.1", 5000), wire.FormatMessage(1, "127.0.0.1", 5000))

	out, err := execute(t, "client", "--address", addr)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, wire.FormatMessage(1, "127.0.0.1", 5000), lines[1])
}

func TestClientOverloaded(t *testing.T) {
	clientQuiet = false
	addr := serveLines(t, wire.OverloadNotice)

	out, err := execute(t, "client", "--address", addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
	assert.Contains(t, out, wire.OverloadNotice)
}

func TestClientConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = execute(t, "client", "--address", addr, "--dial-timeout", "1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/coordinator":
			_ = json.NewEncoder(w).Encode(coordinator.Status{Running: true, Cycle: 4, Sessions: 2})
		case "/api/v1/sessions":
			_ = json.NewEncoder(w).Encode([]coordinator.SessionInfo{{ID: "a", Client: "127.0.0.1:5000"}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	statusSessions = false
	_, err := execute(t, "status", "--api-url", srv.URL, "-o", "json")
	require.NoError(t, err)

	_, err = execute(t, "status", "--api-url", srv.URL, "--sessions", "-o", "yaml")
	require.NoError(t, err)
	statusSessions = false

	_, err = execute(t, "status", "--api-url", srv.URL, "-o", "xml")
	require.Error(t, err)
}

func TestStatusUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = execute(t, "status", "--api-url", url, "-o", "table", "--timeout", "2s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reach coordinator API")
}
