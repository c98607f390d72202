package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtbridge/internal/buildinfo"
)

// Command creates the command that prints build information.
func Command(info *buildinfo.Info) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of rtbridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
}
