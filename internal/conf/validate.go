// validate.go contains setting validation
package conf

import (
	"fmt"
	"strings"

	"github.com/tphakala/rtbridge/internal/errors"
)

// Limits accepted by validation
const (
	MaxChannels     = 32
	MaxBufferFrames = 1 << 15
	MinSampleRate   = 8000
	MaxSampleRate   = 384000
	MaxGain         = 4.0
)

// ValidationError collects every problem found in one pass.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks settings and returns an enhanced validation error
// wrapping a ValidationError when anything is wrong.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateBridgeSettings(&settings.Bridge)...)
	ve.Errors = append(ve.Errors, validateHostSettings(&settings.Host)...)
	ve.Errors = append(ve.Errors, validateProcessingSettings(&settings.Processing, settings.Host.SampleRate)...)
	ve.Errors = append(ve.Errors, validateRecordingSettings(&settings.Recording)...)

	if settings.Telemetry.Enabled && settings.Telemetry.Listen == "" {
		ve.Errors = append(ve.Errors, "telemetry.listen must be set when telemetry is enabled")
	}
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn must be set when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validateBridgeSettings(b *BridgeSettings) []string {
	var errs []string
	if b.UserBufferFrames <= 0 || b.UserBufferFrames > MaxBufferFrames {
		errs = append(errs, fmt.Sprintf("bridge.userbufferframes must be between 1 and %d, got %d", MaxBufferFrames, b.UserBufferFrames))
	}
	if b.InputChannels < 0 || b.InputChannels > MaxChannels {
		errs = append(errs, fmt.Sprintf("bridge.inputchannels must be between 0 and %d, got %d", MaxChannels, b.InputChannels))
	}
	if b.OutputChannels < 0 || b.OutputChannels > MaxChannels {
		errs = append(errs, fmt.Sprintf("bridge.outputchannels must be between 0 and %d, got %d", MaxChannels, b.OutputChannels))
	}
	if b.InputChannels == 0 && b.OutputChannels == 0 {
		errs = append(errs, "bridge needs at least one input or output channel")
	}
	if b.ReadTimeout < 0 {
		errs = append(errs, "bridge.readtimeout must not be negative")
	}
	return errs
}

func validateHostSettings(h *HostSettings) []string {
	var errs []string
	switch h.Type {
	case HostMalgo, HostSimulated:
	default:
		errs = append(errs, fmt.Sprintf("host.type must be %q or %q, got %q", HostMalgo, HostSimulated, h.Type))
	}
	if h.SampleRate < MinSampleRate || h.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Sprintf("host.samplerate must be between %d and %d, got %d", MinSampleRate, MaxSampleRate, h.SampleRate))
	}
	if h.BufferFrames <= 0 || h.BufferFrames > MaxBufferFrames {
		errs = append(errs, fmt.Sprintf("host.bufferframes must be between 1 and %d, got %d", MaxBufferFrames, h.BufferFrames))
	}
	if h.Periods < 1 {
		errs = append(errs, "host.periods must be at least 1")
	}
	return errs
}

func validateProcessingSettings(p *ProcessingSettings, sampleRate int) []string {
	var errs []string
	if p.Gain < 0 || p.Gain > MaxGain {
		errs = append(errs, fmt.Sprintf("processing.gain must be between 0 and %.0f, got %g", MaxGain, p.Gain))
	}
	if !p.Equalizer.Enabled {
		return errs
	}
	nyquist := float64(sampleRate) / 2
	for i, f := range p.Equalizer.Filters {
		switch f.Type {
		case "LowPass", "HighPass", "BandPass", "Notch", "Peaking", "LowShelf", "HighShelf":
		default:
			errs = append(errs, fmt.Sprintf("processing.equalizer.filters[%d]: unknown type %q", i, f.Type))
		}
		if f.Frequency <= 0 || (nyquist > 0 && f.Frequency >= nyquist) {
			errs = append(errs, fmt.Sprintf("processing.equalizer.filters[%d]: frequency %g outside (0, %g)", i, f.Frequency, nyquist))
		}
		if f.Q <= 0 {
			errs = append(errs, fmt.Sprintf("processing.equalizer.filters[%d]: q must be positive", i))
		}
		if f.Passes < 0 {
			errs = append(errs, fmt.Sprintf("processing.equalizer.filters[%d]: passes must not be negative", i))
		}
	}
	return errs
}

func validateRecordingSettings(r *RecordingSettings) []string {
	if !r.Enabled {
		return nil
	}
	var errs []string
	if r.Path == "" {
		errs = append(errs, "recording.path must be set when recording is enabled")
	}
	if r.BitDepth != 16 && r.BitDepth != 24 {
		errs = append(errs, fmt.Sprintf("recording.bitdepth must be 16 or 24, got %d", r.BitDepth))
	}
	if r.QueueBlocks < 1 {
		errs = append(errs, "recording.queueblocks must be at least 1")
	}
	return errs
}
