package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/settlement-engine/api/controllers"
	"github.com/angelmondragon/settlement-engine/api/routes"
	"github.com/angelmondragon/settlement-engine/internal/bootstrap"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/env"
	"github.com/angelmondragon/settlement-engine/pkg/instance"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	app, err := bootstrap.Open(context.Background(), cfg, logg, bootstrap.Options{Redis: true})
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap api", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logg.Error(context.Background(), "error closing dependencies", err)
		}
	}()

	params := routes.RouterParams{
		Config:    cfg,
		Logger:    logg,
		Documents: app.Documents,
		Orders:    app.Orders,
		Pingers:   pingers(app),
		Metrics:   promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}),
		FilesDir:  app.Files.Dir(),
		Location:  app.Location,
	}
	paymentService, err := app.Payments(context.Background())
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}
	if paymentService != nil {
		params.Payments = paymentService
		params.Webhooks = paymentService
	} else {
		logg.Warn(context.Background(), "square access token not set; card payment routes disabled")
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID("local"),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func pingers(app *bootstrap.App) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{
		"database": app.DB,
		"redis":    app.Redis,
	}
	if app.PubSub != nil {
		deps["pubsub"] = app.PubSub
	} else {
		deps["pubsub"] = nil
	}
	if app.Minio != nil {
		deps["storage"] = app.Minio
	} else {
		deps["storage"] = nil
	}
	return deps
}
