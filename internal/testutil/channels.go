// Package testutil provides shared test helpers for the rtbridge packages.
package testutil

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtbridge/internal/logger"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout bounds waits that should complete promptly.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second

	// QuietPeriod is how long a test waits to conclude something did not happen.
	QuietPeriod = 20 * time.Millisecond
)

// WaitForChannel waits for a signal or close on ch or fails after timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// RequireBlocked fails if ch is signalled within QuietPeriod.
func RequireBlocked(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
		require.Fail(t, msg)
	case <-time.After(QuietPeriod):
	}
}

// Go runs fn on a new goroutine and returns a channel closed when it returns.
func Go(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

// DiscardLogger returns a logger that drops everything below error level.
func DiscardLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}
