package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer and restores it on cleanup.
func captureOutput(t *testing.T, level, format string) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	InitWithWriter(buf, level, format, false)
	t.Cleanup(func() {
		InitWithWriter(os.Stdout, "INFO", "text", false)
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugShowsEverything", func(t *testing.T) {
		buf := captureOutput(t, "DEBUG", "text")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		for _, want := range []string{"[DEBUG] debug message", "[INFO] info message", "[WARN] warn message", "[ERROR] error message"} {
			assert.Contains(t, out, want)
		}
	})

	t.Run("WarnFiltersInfoAndDebug", func(t *testing.T) {
		buf := captureOutput(t, "WARN", "text")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("ErrorIsNeverFiltered", func(t *testing.T) {
		buf := captureOutput(t, "ERROR", "text")
		Error("boom")
		assert.Contains(t, buf.String(), "boom")
	})
}

func TestSetLevelIgnoresInvalid(t *testing.T) {
	captureOutput(t, "WARN", "text")
	SetLevel("LOUD")
	assert.Equal(t, LevelWarn, GetLevel())
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("warning")
	require.True(t, ok)
	assert.Equal(t, LevelWarn, l)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestTextFormatFields(t *testing.T) {
	buf := captureOutput(t, "INFO", "text")

	Info("client connected", KeyClientAddr, "127.0.0.1:5000", KeyExpected, 3, "note", "two words")

	out := buf.String()
	assert.Contains(t, out, "client_addr=127.0.0.1:5000")
	assert.Contains(t, out, "expected=3")
	assert.Contains(t, out, `note="two words"`)
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t, "INFO", "json")

	Info("cycle complete", Cycle(7), Expected(2))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "cycle complete", entry["msg"])
	assert.EqualValues(t, 7, entry[KeyCycle])
	assert.EqualValues(t, 2, entry[KeyExpected])
}

func TestContextFieldsArePrepended(t *testing.T) {
	buf := captureOutput(t, "DEBUG", "text")

	lc := NewLogContext("sess-1", "10.0.0.1:4000").WithCycle(3)
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "message sent", KeySequence, 2)

	out := strings.TrimSpace(buf.String())
	sessionIdx := strings.Index(out, "session_id=sess-1")
	seqIdx := strings.Index(out, "sequence=2")
	require.NotEqual(t, -1, sessionIdx)
	require.NotEqual(t, -1, seqIdx)
	assert.Less(t, sessionIdx, seqIdx)
	assert.Contains(t, out, "cycle=3")
	assert.Contains(t, out, "client_addr=10.0.0.1:4000")
}

func TestContextWithoutLogContext(t *testing.T) {
	buf := captureOutput(t, "INFO", "text")
	InfoCtx(context.Background(), "plain")
	assert.Contains(t, buf.String(), "plain")
	assert.Nil(t, FromContext(context.Background()))
}

func TestErrAttr(t *testing.T) {
	buf := captureOutput(t, "INFO", "text")
	Warn("ack failed", Err(errors.New("connection reset")))
	Warn("no error", Err(nil))

	out := buf.String()
	assert.Contains(t, out, `error="connection reset"`)
	assert.NotContains(t, strings.Split(out, "\n")[1], "error=")
}

func TestWithGroupPrefixesKeys(t *testing.T) {
	buf := new(bytes.Buffer)
	h := NewColorTextHandler(buf, nil, false).WithGroup("acceptor")

	slog.New(h).Info("rejected", "queue_len", 10)
	assert.Contains(t, buf.String(), "acceptor.queue_len=10")
}

func TestInitFileOutput(t *testing.T) {
	path := t.TempDir() + "/lockstep.log"
	require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))
	t.Cleanup(func() { InitWithWriter(os.Stdout, "INFO", "text", false) })

	Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
