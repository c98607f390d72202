package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/rtbridge/internal/conf"
)

// redacted replaces secrets in printed configuration.
const redacted = "[redacted]"

// Command creates the command that prints the effective configuration.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: "Print the configuration after defaults, config file, environment " +
			"and flags have been applied. Secrets are redacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := Marshal(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// Marshal encodes settings as YAML with secrets redacted.
func Marshal(settings *conf.Settings) ([]byte, error) {
	s := *settings
	if s.Sentry.DSN != "" {
		s.Sentry.DSN = redacted
	}
	data, err := yaml.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings: %w", err)
	}
	return data, nil
}
