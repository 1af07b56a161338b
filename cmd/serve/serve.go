package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/wildalert/internal/app"
	"github.com/tphakala/wildalert/internal/conf"
)

// Command creates the serve command which runs the feed, exporter and HTTP API.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the alert service",
		Long:  "Start the simulated camera feed, the MQTT exporter and the HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(settings)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}

	cmd.Flags().Int("port", 0, "HTTP listen port (overrides webserver.port)")
	cmd.Flags().Bool("no-ingest", false, "Disable the simulated camera feed")
	cmd.Flags().Bool("no-seed", false, "Start without demo alerts")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return applyFlags(cmd, settings)
	}
	return cmd
}

// applyFlags overrides loaded settings with explicitly set flags.
func applyFlags(cmd *cobra.Command, settings *conf.Settings) error {
	if cmd.Flags().Changed("port") {
		port, err := cmd.Flags().GetInt("port")
		if err != nil {
			return err
		}
		settings.WebServer.Port = port
	}
	if off, _ := cmd.Flags().GetBool("no-ingest"); off {
		settings.Ingest.Enabled = false
	}
	if off, _ := cmd.Flags().GetBool("no-seed"); off {
		settings.Seed.Demo = false
	}
	return conf.ValidateSettings(settings)
}
