package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/diagnostics"
)

// Command creates the command that prints a system diagnostics snapshot.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		asJSON   bool
		sample   time.Duration
		writeDir string
	)

	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Print CPU, memory and runtime diagnostics",
		Long: "Capture a diagnostics snapshot of the host. Useful when choosing " +
			"buffer sizes or reporting audio dropouts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := diagnostics.Capture(cmd.Context(), sample)
			if err := printSnapshot(cmd.OutOrStdout(), &snap, asJSON); err != nil {
				return err
			}
			if writeDir == "" {
				return nil
			}
			path, err := diagnostics.WriteDebugFile(writeDir, "requested from command line", &snap)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Debug file written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON")
	cmd.Flags().DurationVar(&sample, "sample", 500*time.Millisecond, "CPU utilization sampling window, 0 for since last call")
	cmd.Flags().StringVar(&writeDir, "write", "", "Also write a debug file to this directory")

	return cmd
}

func printSnapshot(w io.Writer, snap *diagnostics.Snapshot, asJSON bool) error {
	if !asJSON {
		_, err := io.WriteString(w, snap.String())
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
