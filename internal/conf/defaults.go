// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/rtbridge/internal/logger"
)

// setDefaultConfig sets default values for every key so that a config file is optional.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("bridge.userbufferframes", 128)
	v.SetDefault("bridge.inputchannels", 2)
	v.SetDefault("bridge.outputchannels", 2)
	v.SetDefault("bridge.readtimeout", 2*time.Second)

	v.SetDefault("host.type", HostMalgo)
	v.SetDefault("host.backend", "")
	v.SetDefault("host.capturedevice", "")
	v.SetDefault("host.playbackdevice", "")
	v.SetDefault("host.samplerate", 48000)
	v.SetDefault("host.bufferframes", 256)
	v.SetDefault("host.periods", 2)

	v.SetDefault("processing.gain", 1.0)
	v.SetDefault("processing.equalizer.enabled", false)
	v.SetDefault("processing.equalizer.filters", []map[string]any{
		{"type": "HighPass", "frequency": 80.0, "q": 0.707, "passes": 0},
	})
	v.SetDefault("processing.level.enabled", true)
	v.SetDefault("processing.level.interval", 10*time.Second)

	v.SetDefault("recording.enabled", false)
	v.SetDefault("recording.path", "recordings/input.wav")
	v.SetDefault("recording.bitdepth", 16)
	v.SetDefault("recording.queueblocks", 64)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "127.0.0.1:8090")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.samplerate", 1.0)

	v.SetDefault("simulate.duration", 5*time.Second)
	v.SetDefault("simulate.frequency", 440.0)
	v.SetDefault("simulate.amplitude", 0.5)
	v.SetDefault("simulate.paced", false)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", false)
}
