package config

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/wildalert/internal/conf"
)

// Command prints the effective settings with secrets redacted.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Prints the merged defaults, config file and environment overrides as YAML. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := settings.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
