package run

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtbridge/internal/app"
	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/logger"
)

// Command creates the command that bridges the configured audio device.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bridge the audio device through the processing chain",
		Long: "Open the configured capture and playback devices and run every " +
			"callback through the consumer until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := app.NewEngine(settings, nil, nil)
			if err != nil {
				return err
			}

			summary, err := app.Run(cmd.Context(), settings, engine)
			if summary != nil {
				logger.Global().Module("main").Info("bridge stopped", summary.Fields()...)
			}
			return err
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the run command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("capture", "", "Capture device name or substring, empty for the default device")
	cmd.Flags().String("playback", "", "Playback device name or substring, empty for the default device")
	cmd.Flags().String("backend", "", "Audio backend (alsa, pulseaudio, jack, wasapi, coreaudio)")
	cmd.Flags().Int("periods", 2, "Device periods")

	return conf.BindFlags(cmd.Flags(), map[string]string{
		"capture":  "host.capturedevice",
		"playback": "host.playbackdevice",
		"backend":  "host.backend",
		"periods":  "host.periods",
	})
}
