package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/settlement-engine/internal/bootstrap"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const serviceName = "settlementctl"

// cli carries state shared by every subcommand. Config is loaded once in the
// root pre-run; the app is only opened by commands that touch the database.
type cli struct {
	cfg  *config.Config
	logg *logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Operator tooling for the settlement engine",
		Long: `settlementctl runs settlement operations by hand: allocating document
numbers, issuing and settling documents, rendering PDFs, running the bank
reconciliation once and minting API tokens.

Configuration is read from SETTLEMENT_* environment variables (and .env).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}
	root.AddCommand(
		newNumberCmd(c),
		newDocumentsCmd(c),
		newBankCmd(c),
		newTokenCmd(c),
	)
	return root
}

func (c *cli) load() error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	return nil
}

// withApp opens the shared dependencies for the duration of fn.
func (c *cli) withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	app, err := bootstrap.Open(ctx, c.cfg, c.logg, bootstrap.Options{})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			c.logg.Error(ctx, "error closing dependencies", err)
		}
	}()
	return fn(app)
}
