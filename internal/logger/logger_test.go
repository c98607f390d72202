package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoggerLevels(t *testing.T) {
	testCases := []struct {
		name          string
		level         LogLevel
		logFunc       func(l Logger, msg string)
		shouldContain bool
	}{
		{"debug at debug", LogLevelDebug, func(l Logger, m string) { l.Debug(m) }, true},
		{"debug at info", LogLevelInfo, func(l Logger, m string) { l.Debug(m) }, false},
		{"trace at debug", LogLevelDebug, func(l Logger, m string) { l.Trace(m) }, false},
		{"trace at trace", LogLevelTrace, func(l Logger, m string) { l.Trace(m) }, true},
		{"warn at info", LogLevelInfo, func(l Logger, m string) { l.Warn(m) }, true},
		{"info at error", LogLevelError, func(l Logger, m string) { l.Info(m) }, false},
		{"error at error", LogLevelError, func(l Logger, m string) { l.Error(m) }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewSlogLogger(&buf, tc.level, time.UTC)
			tc.logFunc(l, "probe message")
			assert.Equal(t, tc.shouldContain, strings.Contains(buf.String(), "probe message"))
		})
	}
}

func TestTextHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(&buf, LogLevelDebug, time.UTC).Module("bridge").Module("consumer")

	l.With(String("bridge_id", "b1")).Info("cycle done",
		Int("frames", 128),
		Float64("level_dbfs", -12.34567),
		Duration("wait", 1500*time.Microsecond),
		String("note", "two words"),
		Error(errors.New("boom")))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "INFO  [bridge.consumer] cycle done"), out)
	assert.Contains(t, out, "bridge_id=b1")
	assert.Contains(t, out, "frames=128")
	assert.Contains(t, out, "level_dbfs=-12.346")
	assert.Contains(t, out, "wait=1.5ms")
	assert.Contains(t, out, `note="two words"`)
	assert.Contains(t, out, "error=boom")
}

func TestWithContextTraceID(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	l.WithContext(WithTraceID(t.Context(), "abc-123")).Info("traced")
	l.WithContext(t.Context()).Info("untraced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=abc-123")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")

	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"quiet": "error"},
	})
	require.NoError(t, err)

	cl.Module("rendezvous").Debug("configured", Int("user_frames", 128))
	cl.Module("quiet").Warn("suppressed")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "configured", rec["msg"])
	assert.Equal(t, "rendezvous", rec["module"])
	assert.EqualValues(t, 128, rec["user_frames"])
}

func TestNewCentralLoggerRejectsBadTimezone(t *testing.T) {
	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	assert.Error(t, err)

	_, err = NewCentralLogger(nil)
	assert.Error(t, err)
}

func TestGlobalFallback(t *testing.T) {
	assert.NotNil(t, Global().Module("test"))
}
