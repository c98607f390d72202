package devices

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtbridge/internal/app"
	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/host"
	"github.com/tphakala/rtbridge/internal/logger"
)

// Command creates the command that lists audio devices.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture and playback devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := host.NewMalgo(host.MalgoConfig{
				Layout:  app.Layout(settings),
				Backend: settings.Host.Backend,
			}, logger.Global().Module("host"))
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			capture, playback, err := m.Devices()
			if err != nil {
				return err
			}
			printDevices(cmd.OutOrStdout(), "Capture devices", capture)
			printDevices(cmd.OutOrStdout(), "Playback devices", playback)
			return nil
		},
	}
}

func printDevices(w io.Writer, title string, devices []host.DeviceInfo) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for i, d := range devices {
		marker := ""
		if d.IsDefault {
			marker = " (default)"
		}
		fmt.Fprintf(w, "  %d: %s%s\n", i, d.Name, marker)
	}
}
