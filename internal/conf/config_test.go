package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtbridge/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "debug: false\n")

	s, err := LoadViper(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 128, s.Bridge.UserBufferFrames)
	assert.Equal(t, 2, s.Bridge.InputChannels)
	assert.Equal(t, 2, s.Bridge.OutputChannels)
	assert.Equal(t, 2*time.Second, s.Bridge.ReadTimeout)
	assert.Equal(t, HostMalgo, s.Host.Type)
	assert.Equal(t, 48000, s.Host.SampleRate)
	assert.Equal(t, 256, s.Host.BufferFrames)
	assert.InDelta(t, 1.0, s.Processing.Gain, 1e-9)
	require.Len(t, s.Processing.Equalizer.Filters, 1)
	assert.Equal(t, "HighPass", s.Processing.Equalizer.Filters[0].Type)
	assert.Equal(t, "info", s.Logging.DefaultLevel)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
bridge:
  userbufferframes: 64
  inputchannels: 1
  outputchannels: 2
host:
  type: simulated
  bufferframes: 480
processing:
  gain: 0.5
  equalizer:
    enabled: true
    filters:
      - type: LowPass
        frequency: 8000
        q: 0.707
simulate:
  duration: 250ms
logging:
  default_level: debug
  module_levels:
    rendezvous: trace
`)

	s, err := LoadViper(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 64, s.Bridge.UserBufferFrames)
	assert.Equal(t, 1, s.Bridge.InputChannels)
	assert.Equal(t, HostSimulated, s.Host.Type)
	assert.Equal(t, 480, s.Host.BufferFrames)
	assert.Equal(t, 10*time.Millisecond, s.Host.PeriodDuration())
	assert.InDelta(t, 0.5, s.Processing.Gain, 1e-9)
	require.Len(t, s.Processing.Equalizer.Filters, 1)
	assert.Equal(t, "LowPass", s.Processing.Equalizer.Filters[0].Type)
	assert.Equal(t, 250*time.Millisecond, s.Simulate.Duration)
	assert.Equal(t, "debug", s.Logging.DefaultLevel)
	assert.Equal(t, "trace", s.Logging.ModuleLevels["rendezvous"])
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RTBRIDGE_BRIDGE_USERBUFFERFRAMES", "32")
	path := writeConfig(t, "debug: true\n")

	s, err := LoadViper(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 32, s.Bridge.UserBufferFrames)
	assert.True(t, s.Debug)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadViper(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		s, err := LoadViper(viper.New(), writeConfig(t, "debug: false\n"))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		mutate func(s *Settings)
		want   string
	}{
		{"zero user frames", func(s *Settings) { s.Bridge.UserBufferFrames = 0 }, "bridge.userbufferframes"},
		{"no channels", func(s *Settings) { s.Bridge.InputChannels, s.Bridge.OutputChannels = 0, 0 }, "at least one"},
		{"bad host type", func(s *Settings) { s.Host.Type = "jack" }, "host.type"},
		{"low sample rate", func(s *Settings) { s.Host.SampleRate = 100 }, "host.samplerate"},
		{"gain too high", func(s *Settings) { s.Processing.Gain = 10 }, "processing.gain"},
		{"filter above nyquist", func(s *Settings) {
			s.Processing.Equalizer.Enabled = true
			s.Processing.Equalizer.Filters = []EqualizerFilter{{Type: "LowPass", Frequency: 30000, Q: 1}}
		}, "frequency"},
		{"recording depth", func(s *Settings) {
			s.Recording.Enabled = true
			s.Recording.BitDepth = 8
		}, "recording.bitdepth"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)

			err := ValidateSettings(s)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
			assert.Contains(t, err.Error(), tt.want)

			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.NotEmpty(t, ve.Errors)
		})
	}
}
