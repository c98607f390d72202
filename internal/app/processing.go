package app

import (
	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/dsp"
)

// BuildProcessor assembles the consumer's processing chain from settings:
// the equalizer when enabled, then gain. The chain works on the output
// channel layout. It returns a nil chain when there is no output.
func BuildProcessor(settings *conf.Settings) (*dsp.Chain, error) {
	channels := settings.Bridge.OutputChannels
	if channels == 0 {
		return nil, nil
	}

	chain := dsp.NewChain()
	if settings.Processing.Equalizer.Enabled {
		eq, err := dsp.NewEqualizer(settings.Processing.Equalizer, settings.Host.SampleRate, channels)
		if err != nil {
			return nil, err
		}
		chain.Add(eq)
	}

	chain.Add(dsp.NewGain(settings.Processing.Gain))
	return chain, nil
}
