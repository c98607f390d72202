package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtbridge/internal/app"
	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/dsp"
	"github.com/tphakala/rtbridge/internal/host"
)

// Command creates the command that runs the bridge on a simulated engine.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the bridge on a simulated engine fed with a sine wave",
		Long: "Drive the bridge from a simulated real-time thread for a fixed " +
			"duration and print what came out. No audio hardware is needed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return simulate(cmd.Context(), cmd.OutOrStdout(), settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func simulate(ctx context.Context, w io.Writer, settings *conf.Settings) error {
	settings.Host.Type = conf.HostSimulated

	output := dsp.NewLevelMeter()
	sink := func(_ uint64, frames, channels int, buf []float32) {
		if channels > 0 {
			output.Observe(buf, channels, frames)
		}
	}
	source := host.SineSource(settings.Simulate.Frequency, settings.Simulate.Amplitude, settings.Host.SampleRate)

	engine, err := app.NewEngine(settings, source, sink)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, settings.Simulate.Duration)
	defer cancel()

	summary, err := app.Run(ctx, settings, engine)
	if summary == nil {
		return err
	}

	out := output.Current()
	fmt.Fprintf(w, "Bridge:    %s\n", summary.BridgeID)
	fmt.Fprintf(w, "Duration:  %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Cycles:    %d\n", summary.Cycles)
	fmt.Fprintf(w, "Failures:  %d\n", summary.ProcessFailures)
	fmt.Fprintf(w, "Input:     %.1f dBFS RMS, %.1f dBFS peak\n", summary.InputLevel.RMS, summary.InputLevel.Peak)
	fmt.Fprintf(w, "Output:    %.1f dBFS RMS, %.1f dBFS peak\n", out.RMS, out.Peak)
	if summary.RecordingPath != "" {
		fmt.Fprintf(w, "Recording: %s (%d frames, %d blocks dropped)\n",
			summary.RecordingPath, summary.RecordedFrames, summary.RecorderDropped)
	}
	if summary.DebugFile != "" {
		fmt.Fprintf(w, "Debug:     %s\n", summary.DebugFile)
	}
	return err
}

// setupFlags configures flags specific to the simulate command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().Duration("duration", 5*time.Second, "How long to run")
	cmd.Flags().Float64("frequency", 440, "Sine frequency in Hz")
	cmd.Flags().Float64("amplitude", 0.5, "Sine amplitude, 0 to 1")
	cmd.Flags().Bool("paced", false, "Run cycles at wall clock rate instead of back to back")

	return conf.BindFlags(cmd.Flags(), map[string]string{
		"duration":  "simulate.duration",
		"frequency": "simulate.frequency",
		"amplitude": "simulate.amplitude",
		"paced":     "simulate.paced",
	})
}
