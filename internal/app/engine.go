package app

import (
	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/host"
	"github.com/tphakala/rtbridge/internal/logger"
)

// Layout derives the engine buffer layout from settings.
func Layout(settings *conf.Settings) host.Layout {
	return host.Layout{
		SampleRate:     settings.Host.SampleRate,
		BufferFrames:   settings.Host.BufferFrames,
		InputChannels:  settings.Bridge.InputChannels,
		OutputChannels: settings.Bridge.OutputChannels,
	}
}

// NewEngine creates the engine selected by settings.Host.Type. source and
// sink are only used by the simulated engine and may be nil.
func NewEngine(settings *conf.Settings, source host.Source, sink host.Sink) (host.Engine, error) {
	layout := Layout(settings)

	switch settings.Host.Type {
	case conf.HostSimulated:
		return host.NewSimulated(host.SimulatedConfig{
			Layout: layout,
			Paced:  settings.Simulate.Paced,
			Source: source,
			Sink:   sink,
		})
	case conf.HostMalgo:
		return host.NewMalgo(host.MalgoConfig{
			Layout:         layout,
			Backend:        settings.Host.Backend,
			CaptureDevice:  settings.Host.CaptureDevice,
			PlaybackDevice: settings.Host.PlaybackDevice,
			Periods:        settings.Host.Periods,
		}, logger.Global().Module("host"))
	default:
		return nil, errors.Newf("unknown host type %q", settings.Host.Type).
			Component(componentApp).
			Category(errors.CategoryConfiguration).
			Context("host_type", settings.Host.Type).
			Build()
	}
}
