package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/settlement-engine/internal/bootstrap"
)

func newBankCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Bank notification mailbox",
	}

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the bank mailbox once and settle matching proformas",
		Long: `Runs a single bank reconciliation pass outside the cron schedule. Use it
after fixing a mailbox outage or after adding a notification pattern.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				job, err := app.BankJob()
				if err != nil {
					return err
				}
				if job == nil {
					return errors.New("mailbox credentials are not configured")
				}
				result, err := job.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d matched=%d unmatched=%d discarded=%d failed=%d\n",
					result.Fetched, result.Matched, result.Unmatched, result.Discarded, result.Failed)
				return nil
			})
		},
	}

	cmd.AddCommand(reconcile)
	return cmd
}
