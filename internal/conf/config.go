// config.go: settings struct for rtbridge and the functions that load it.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/logger"
)

// Host engine types
const (
	HostMalgo     = "malgo"
	HostSimulated = "simulated"
)

// EnvPrefix is the prefix for environment overrides, e.g. RTBRIDGE_BRIDGE_USERBUFFERFRAMES.
const EnvPrefix = "RTBRIDGE"

// BridgeSettings describes the managed side of the handoff.
type BridgeSettings struct {
	UserBufferFrames int           // frames per managed-side block
	InputChannels    int           // interleaved input channels handed to the consumer
	OutputChannels   int           // interleaved output channels produced by the consumer
	ReadTimeout      time.Duration // consumer gives up waiting for a cycle after this, 0 disables
}

// HostSettings selects and configures the real-time audio engine.
type HostSettings struct {
	Type           string // "malgo" or "simulated"
	Backend        string // malgo backend override, empty selects per OS
	CaptureDevice  string // capture device name substring, empty for default
	PlaybackDevice string // playback device name substring, empty for default
	SampleRate     int
	BufferFrames   int // frames per host callback
	Periods        int // device periods, malgo only
}

// EqualizerFilter is a struct for equalizer filter settings
type EqualizerFilter struct {
	Type      string // LowPass, HighPass, BandPass, Notch, Peaking, LowShelf, HighShelf
	Frequency float64
	Q         float64
	Gain      float64 // dB, Peaking and shelves only
	Passes    int     // extra cascaded passes for steeper slopes
}

// EqualizerSettings is a struct for audio EQ settings
type EqualizerSettings struct {
	Enabled bool
	Filters []EqualizerFilter
}

// ProcessingSettings configures the consumer's processing chain.
type ProcessingSettings struct {
	Gain      float64 // linear output gain
	Equalizer EqualizerSettings
	Level     struct {
		Enabled  bool
		Interval time.Duration // how often the meter is logged
	}
}

// RecordingSettings configures WAV capture of the managed input stream.
type RecordingSettings struct {
	Enabled     bool
	Path        string
	BitDepth    int // 16 or 24
	QueueBlocks int // blocks buffered between consumer and writer
}

// TelemetrySettings configures the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64
}

// SimulateSettings configures the simulate command.
type SimulateSettings struct {
	Duration  time.Duration
	Frequency float64 // sine frequency in Hz
	Amplitude float64
	Paced     bool // run at wall clock rate instead of as fast as possible
}

// Settings is the root configuration struct.
type Settings struct {
	Debug bool

	Bridge     BridgeSettings
	Host       HostSettings
	Processing ProcessingSettings
	Recording  RecordingSettings
	Telemetry  TelemetrySettings
	Sentry     SentrySettings
	Simulate   SimulateSettings

	Logging logger.LoggingConfig
}

// Load reads the configuration through the global viper instance, so
// flags bound by the CLI take precedence over file values.
func Load(configFile string) (*Settings, error) {
	return LoadViper(viper.GetViper(), configFile)
}

// LoadViper reads configFile (or config.yaml from the default paths when
// empty) into v, applies defaults and environment overrides, and validates.
// A missing default config file is not an error.
func LoadViper(v *viper.Viper, configFile string) (*Settings, error) {
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.New(fmt.Errorf("error reading config file: %w", err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("config_file", configFile).
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// PeriodDuration is the wall-clock length of one host callback.
func (s *HostSettings) PeriodDuration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.BufferFrames) * time.Second / time.Duration(s.SampleRate)
}
