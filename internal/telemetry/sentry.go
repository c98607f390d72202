// Package telemetry provides opt-in, privacy-filtered error reporting to
// Sentry. Enhanced errors built anywhere in rtbridge are forwarded here once
// InitSentry has installed the reporter.
package telemetry

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/logger"
)

// FlushTimeout bounds how long Flush waits for queued events on exit.
const FlushTimeout = 2 * time.Second

var (
	mu          sync.Mutex
	initialized bool
	instanceID  = uuid.NewString()
)

// InitSentry initializes the Sentry SDK if settings.Sentry.Enabled is set and
// installs the enhanced-error reporter. It is a no-op when disabled.
func InitSentry(settings *conf.Settings, version string) error {
	return initSentry(settings, version, nil)
}

// initSentry lets tests substitute the transport.
func initSentry(settings *conf.Settings, version string, transport sentry.Transport) error {
	log := logger.Global().Module("telemetry")
	if !settings.Sentry.Enabled {
		log.Info("sentry telemetry is disabled (opt-in required)")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       settings.Sentry.SampleRate,
		Debug:            false,
		AttachStacktrace: false,
		Environment:      settings.Sentry.Environment,
		ServerName:       "",
		Release:          fmt.Sprintf("rtbridge@%s", version),
		BeforeSend:       beforeSend,
		Transport:        transport,
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("instance_id", instanceID)
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("host_type", settings.Host.Type)
		scope.SetContext("bridge", map[string]any{
			"user_buffer_frames": settings.Bridge.UserBufferFrames,
			"host_buffer_frames": settings.Host.BufferFrames,
			"sample_rate":        settings.Host.SampleRate,
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	mu.Lock()
	initialized = true
	mu.Unlock()

	log.Info("sentry telemetry initialized",
		logger.String("environment", settings.Sentry.Environment),
		logger.String("instance_id", instanceID))
	return nil
}

// beforeSend strips data that could identify the machine or its user.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	return event
}

// IsInitialized reports whether InitSentry enabled reporting.
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return initialized
}

// InstanceID identifies this process in reported events. It is random and
// regenerated on every start.
func InstanceID() string { return instanceID }

// Flush waits up to timeout for buffered events to be delivered and
// detaches the error reporter.
func Flush(timeout time.Duration) bool {
	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		return true
	}
	errors.SetTelemetryReporter(nil)
	initialized = false
	return sentry.Flush(timeout)
}

// CaptureMessage reports a plain message at level when reporting is enabled.
func CaptureMessage(message string, level sentry.Level, component string) {
	if !IsInitialized() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTag("component", component)
		sentry.CaptureMessage(message)
	})
}
