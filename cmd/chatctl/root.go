package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chat-gateway/internal/app"
	"chat-gateway/internal/config"
	"chat-gateway/internal/logging"
)

// cli carries the lazily wired application between the root hooks and the
// subcommands.
type cli struct {
	v   *viper.Viper
	app *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "chatctl",
		Short:         "Operator tool for the chat gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.wire(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config file (any format viper reads)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	_ = c.v.BindPFlag("CONFIG_FILE", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(
		newChatCmd(c),
		newSessionCmd(c),
		newQuotaCmd(c),
	)

	return rootCmd
}

func (c *cli) wire(cmd *cobra.Command) error {
	level, _ := cmd.Flags().GetString("log-level")
	slog.SetDefault(logging.New(cmd.ErrOrStderr(), level))

	cfg, err := config.Load(c.v)
	if err != nil {
		return err
	}
	a, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("wire chat gateway: %w", err)
	}
	c.app = a
	return nil
}
