package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/settlement-engine/internal/bootstrap"
	"github.com/angelmondragon/settlement-engine/internal/cron"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/instance"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
)

const lockName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	app, err := bootstrap.Open(context.Background(), cfg, logg, bootstrap.Options{Redis: true})
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap cron worker", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logg.Error(context.Background(), "error closing dependencies", err)
		}
	}()

	registry, err := buildRegistry(app)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(app.Redis, app.Redis.LockKey(lockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	params := cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Interval: cfg.Cron.Interval,
	}
	if !cfg.Cron.MetricsDisabled {
		params.Metrics = metrics.NewCronJobMetrics(app.Registry)
	}
	service, err := cron.NewService(params)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
		"instance":    instance.ID("cron-0"),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildRegistry registers the recovery jobs and, when mailbox credentials are
// present, the bank reconciliation job.
func buildRegistry(app *bootstrap.App) (*cron.Registry, error) {
	cfg, logg := app.Config, app.Logger
	recovery := cron.RecoveryJobParams{
		Logger: logg,
		MinAge: cfg.Cron.RecoveryMinAge,
		Batch:  cfg.Cron.RecoveryBatch,
	}
	registry := cron.NewRegistry()

	bankJob, err := app.BankJob()
	if err != nil {
		return nil, err
	}
	if bankJob != nil {
		if err := registry.Register(bankJob); err != nil {
			return nil, err
		}
	} else {
		logg.Warn(context.Background(), "mailbox credentials not set; bank reconciliation disabled")
	}

	invoiceJob, err := cron.NewMissingInvoiceJob(recovery, app.Documents)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(invoiceJob); err != nil {
		return nil, err
	}

	pdfJob, err := cron.NewMissingPDFJob(recovery, app.Documents)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(pdfJob); err != nil {
		return nil, err
	}
	return registry, nil
}
