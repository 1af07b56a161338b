package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/wildalert/cmd/config"
	"github.com/tphakala/wildalert/cmd/serve"
	"github.com/tphakala/wildalert/cmd/simulate"
	"github.com/tphakala/wildalert/cmd/token"
	"github.com/tphakala/wildalert/internal/conf"
)

// RootCommand creates and returns the root command. Subcommands share
// settings, which are loaded once flags are parsed.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "wildalert",
		Short:         "Wildlife alert lifecycle and distribution service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       settings.Version,
	}

	if err := setupFlags(rootCmd, settings, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		simulate.Command(settings),
		config.Command(settings),
		token.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		version := settings.Version
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		settings.Version = version
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/wildalert, /etc/wildalert)")
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
