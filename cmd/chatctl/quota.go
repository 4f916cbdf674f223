package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"chat-gateway/internal/domain"
)

func newQuotaCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Manage daily quotas",
	}

	cmd.AddCommand(
		newQuotaInitCmd(c),
		newQuotaCheckCmd(c),
	)

	return cmd
}

func newQuotaInitCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init <user> <allowance>",
		Short: "Start a daily window for a user unless one is live",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			allowance, err := strconv.Atoi(args[1])
			if err != nil || allowance < 0 {
				return fmt.Errorf("allowance must be a non-negative integer, got %q", args[1])
			}
			err = c.app.Quota.Initialize(cmd.Context(), args[0], allowance)
			if errors.Is(err, domain.ErrQuotaAlreadyInitialized) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s already has a live allowance\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d requests for %s\n", args[0], allowance, domain.QuotaWindow)
			return nil
		},
	}
}

func newQuotaCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check <user>",
		Short: "Show a user's remaining allowance without consuming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, expires, found, err := c.app.Quota.Remaining(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], domain.QuotaNotExist)
				return nil
			}
			state := domain.QuotaOK
			if n <= 0 {
				state = domain.QuotaExceeded
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, remaining %d", args[0], state, n)
			if !expires.IsZero() {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), ", resets %s", expires.Format(time.RFC3339))
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
