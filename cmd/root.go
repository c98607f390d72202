package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtbridge/cmd/config"
	"github.com/tphakala/rtbridge/cmd/devices"
	"github.com/tphakala/rtbridge/cmd/diag"
	"github.com/tphakala/rtbridge/cmd/run"
	"github.com/tphakala/rtbridge/cmd/simulate"
	"github.com/tphakala/rtbridge/cmd/version"
	"github.com/tphakala/rtbridge/internal/buildinfo"
	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/logger"
	"github.com/tphakala/rtbridge/internal/telemetry"
)

// centralLogger is the logger installed by initialize, closed by Shutdown.
var centralLogger *logger.CentralLogger

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Info) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "rtbridge",
		Short: "Real-time audio bridge",
		Long: "rtbridge hands audio from a real-time device callback to a managed " +
			"consumer and back, one rendezvous per callback.",
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	versionCmd := version.Command(info)
	rootCmd.AddCommand(
		run.Command(settings),
		simulate.Command(settings),
		devices.Command(settings),
		config.Command(settings),
		diag.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip setup for the version command
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings, configFile, info)
	}

	return rootCmd
}

// initialize loads settings, installs the central logger and starts error
// reporting. It runs after flags are parsed so flag values take precedence.
func initialize(settings *conf.Settings, configFile string, info *buildinfo.Info) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	centralLogger = central

	if err := telemetry.InitSentry(settings, info.GetVersion()); err != nil {
		logger.Global().Module("main").Warn("error reporting disabled", logger.Error(err))
	}
	return nil
}

// Shutdown flushes pending error reports and closes the log file. It is
// safe to call when initialize never ran.
func Shutdown() {
	telemetry.Flush(telemetry.FlushTimeout)
	if centralLogger != nil {
		_ = centralLogger.Close()
		centralLogger = nil
	}
}

// setupFlags defines flags that are global to the command line interface.
// Flags are bound to viper keys so conf.Load sees them above file values.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config file (default: config.yaml in the default config paths)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.Int("samplerate", 48000, "Sample rate in Hz")
	flags.Int("buffer", 256, "Host buffer size in frames")
	flags.Int("userbuffer", 128, "Consumer block size in frames")
	flags.Int("inputs", 2, "Input channels handed to the consumer")
	flags.Int("outputs", 2, "Output channels produced by the consumer")
	flags.Float64("gain", 1.0, "Linear output gain")
	flags.Bool("record", false, "Record the consumer input to a WAV file")
	flags.String("record-path", "recordings/input.wav", "Path of the WAV recording")
	flags.Bool("telemetry", false, "Enable the Prometheus telemetry endpoint")
	flags.String("listen", "127.0.0.1:8090", "Listen address of the telemetry endpoint")

	return conf.BindFlags(flags, map[string]string{
		"debug":       "debug",
		"samplerate":  "host.samplerate",
		"buffer":      "host.bufferframes",
		"userbuffer":  "bridge.userbufferframes",
		"inputs":      "bridge.inputchannels",
		"outputs":     "bridge.outputchannels",
		"gain":        "processing.gain",
		"record":      "recording.enabled",
		"record-path": "recording.path",
		"telemetry":   "telemetry.enabled",
		"listen":      "telemetry.listen",
	})
}
