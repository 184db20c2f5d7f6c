package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/internal/documents"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/internal/reconciliation"
	"github.com/angelmondragon/settlement-engine/internal/renderer"
	"github.com/angelmondragon/settlement-engine/internal/sequence"
	"github.com/angelmondragon/settlement-engine/internal/vat"
	"github.com/angelmondragon/settlement-engine/pkg/alerts"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/mailer"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/migrate"
	"github.com/angelmondragon/settlement-engine/pkg/pubsub"
	"github.com/angelmondragon/settlement-engine/pkg/redis"
	"github.com/angelmondragon/settlement-engine/pkg/square"
	"github.com/angelmondragon/settlement-engine/pkg/storage"
)

// Options select the infrastructure a binary cannot start without. Pub/Sub is
// still opened for alerts when a GCP project is configured.
type Options struct {
	Redis  bool
	PubSub bool
}

// App holds the shared clients and the document orchestrator every binary
// is built from.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Location  *time.Location
	DB        *db.Client
	Redis     *redis.Client
	PubSub    *pubsub.Client
	Minio     *storage.MinioStore
	Files     *storage.LocalStore
	Mailer    *mailer.Dispatcher
	Alerts    alerts.Notifier
	Registry  *prometheus.Registry
	Metrics   *metrics.SettlementMetrics
	Numbers   *sequence.Authority
	Renderer  *renderer.Renderer
	Orders    *orders.Client
	Documents documents.Service

	alertsPublisher *pubsub.TopicPublisher
}

// Open connects every dependency and builds the orchestrator. On error the
// already-opened clients are closed.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts Options) (app *App, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	app = &App{Config: cfg, Logger: logg}
	defer func() {
		if err != nil {
			if closeErr := app.Close(); closeErr != nil {
				logg.Error(ctx, "error closing partially opened app", closeErr)
			}
			app = nil
		}
	}()

	app.Location, err = time.LoadLocation(cfg.Documents.TimeZone)
	if err != nil {
		return app, fmt.Errorf("load documents time zone: %w", err)
	}

	app.DB, err = db.New(ctx, cfg.DB, logg)
	if err != nil {
		return app, fmt.Errorf("bootstrap database: %w", err)
	}
	if err = migrate.MaybeRunDev(ctx, cfg, logg, app.DB); err != nil {
		return app, fmt.Errorf("run dev migrations: %w", err)
	}

	if opts.Redis {
		app.Redis, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return app, fmt.Errorf("bootstrap redis: %w", err)
		}
	}

	if opts.PubSub || strings.TrimSpace(cfg.GCP.ProjectID) != "" {
		app.PubSub, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return app, fmt.Errorf("bootstrap pubsub: %w", err)
		}
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.NewSettlementMetrics(app.Registry)

	sender, err := newSender(cfg.Mail, logg)
	if err != nil {
		return app, err
	}
	app.Mailer, err = mailer.NewDispatcher(sender, cfg.Mail.Workers, cfg.Mail.QueueSize, logg)
	if err != nil {
		return app, fmt.Errorf("create mail dispatcher: %w", err)
	}
	app.Alerts = app.alertChain(sender)

	store, err := app.blobStore(ctx)
	if err != nil {
		return app, err
	}

	app.Numbers, err = sequence.NewAuthority(app.DB)
	if err != nil {
		return app, fmt.Errorf("create sequence authority: %w", err)
	}

	app.Renderer, err = renderer.New(
		renderer.NewChromePrinter(cfg.Renderer.ChromiumPath, cfg.Renderer.Timeout),
		renderer.IssuerFromConfig(cfg.Company),
		app.Location,
		logg,
	)
	if err != nil {
		return app, fmt.Errorf("create renderer: %w", err)
	}

	app.Orders, err = orders.NewClient(cfg.Orders.BaseURL, cfg.Orders.APIKey, cfg.Orders.Timeout)
	if err != nil {
		return app, fmt.Errorf("create orders client: %w", err)
	}

	var validator vat.Validator
	if cfg.VAT.Enabled {
		client, vatErr := vat.NewClient(cfg.VAT.BaseURL, cfg.VAT.Timeout)
		if vatErr != nil {
			return app, fmt.Errorf("create vat client: %w", vatErr)
		}
		validator = client
	}

	app.Documents, err = documents.NewService(documents.ServiceParams{
		Repo:     documents.NewRepository(app.DB.DB()),
		Tx:       app.DB,
		Numbers:  app.Numbers,
		Orders:   app.Orders,
		VAT:      validator,
		Renderer: app.Renderer,
		Store:    store,
		Mailer:   app.Mailer,
		Alerts:   app.Alerts,
		Metrics:  app.Metrics,
		Logger:   logg,
		Config: documents.Config{
			DomesticCountry: cfg.Company.DomesticCountry,
			ProformaDueDays: cfg.Documents.ProformaDueDays,
			InvoiceDueDays:  cfg.Documents.InvoiceDueDays,
			Location:        app.Location,
		},
	})
	if err != nil {
		return app, fmt.Errorf("create document service: %w", err)
	}
	return app, nil
}

func newSender(cfg config.MailConfig, logg *logger.Logger) (mailer.Sender, error) {
	if strings.TrimSpace(cfg.SendgridAPIKey) == "" {
		logg.Warn(context.Background(), "sendgrid api key not set; e-mails are only logged")
		return mailer.NewLogSender(logg), nil
	}
	sender, err := mailer.NewSendgridSender(cfg)
	if err != nil {
		return nil, fmt.Errorf("create sendgrid sender: %w", err)
	}
	return sender, nil
}

// alertChain prefers the alert topic, then the operator mailbox, then the log.
func (a *App) alertChain(sender mailer.Sender) alerts.Notifier {
	var chain []alerts.Notifier
	if a.PubSub != nil {
		if pub := a.PubSub.AlertsPublisher(); pub != nil {
			a.alertsPublisher = pub
			chain = append(chain, alerts.NewPubSubNotifier(pub))
		}
	}
	if strings.TrimSpace(a.Config.Mail.OperatorEmail) != "" {
		chain = append(chain, alerts.NewEmailNotifier(sender, a.Config.Mail.OperatorEmail))
	}
	chain = append(chain, alerts.NewLogNotifier(a.Logger))
	return alerts.NewChain(chain...)
}

// blobStore always keeps the local directory as the fallback target so an
// object store outage never loses a rendered document.
func (a *App) blobStore(ctx context.Context) (documents.BlobStore, error) {
	local, err := storage.NewLocalStore(a.Config.Documents.LocalDir, a.Config.Documents.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create local document store: %w", err)
	}
	a.Files = local
	if !a.Config.Storage.Enabled() {
		a.Logger.Warn(ctx, "object storage not configured; documents are stored on local disk")
		return local, nil
	}
	a.Minio, err = storage.NewMinioStore(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap object storage: %w", err)
	}
	store, err := storage.NewFallbackStore(a.Minio, local, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("create fallback store: %w", err)
	}
	return store, nil
}

// Payments builds the card payment service. It returns nil when no Square
// access token is configured.
func (a *App) Payments(ctx context.Context) (*payments.Service, error) {
	if !a.Config.Square.Enabled() {
		return nil, nil
	}
	client, err := square.NewClient(ctx, a.Config.Square, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap square: %w", err)
	}
	gateway, err := payments.NewSquareGateway(payments.SquareGatewayParams{
		Client:        client,
		CheckoutURL:   a.Config.Square.CheckoutURL,
		VerifyTimeout: a.Config.Square.VerifyTimeout,
		Logger:        a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create square gateway: %w", err)
	}
	params := payments.ServiceParams{
		Gateway: gateway,
		Settler: a.Documents,
		Orders:  a.Orders,
		Alerts:  a.Alerts,
		Metrics: a.Metrics,
		Logger:  a.Logger,
	}
	if a.Redis != nil {
		guard, err := payments.NewIdempotencyGuard(a.Redis, a.Config.Square.IdempotencyTTL, a.Config.Square.IdempotencyKind)
		if err != nil {
			return nil, fmt.Errorf("create webhook idempotency guard: %w", err)
		}
		params.Guard = guard
	}
	return payments.NewService(params)
}

// BankJob builds the bank reconciliation job. It returns nil when mailbox
// credentials are missing.
func (a *App) BankJob() (*reconciliation.Job, error) {
	cfg := a.Config.Mailbox
	if !cfg.Configured() {
		return nil, nil
	}
	parser, err := reconciliation.LoadParser(cfg.PatternsFile, a.Location)
	if err != nil {
		return nil, fmt.Errorf("load bank notification patterns: %w", err)
	}
	return reconciliation.NewJob(reconciliation.JobParams{
		Mailbox:   reconciliation.NewIMAPDialer(cfg),
		Parser:    parser,
		Documents: a.Documents,
		Alerts:    a.Alerts,
		Metrics:   a.Metrics,
		Logger:    a.Logger,
		Subject:   cfg.SubjectPattern,
	})
}

// Close waits for background document publishing, drains the mail queue and
// releases every client.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs error
	if a.Documents != nil {
		a.Documents.Wait()
	}
	if a.Mailer != nil {
		a.Mailer.Close()
	}
	if a.alertsPublisher != nil {
		a.alertsPublisher.Stop()
	}
	if a.PubSub != nil {
		errs = multierr.Append(errs, a.PubSub.Close())
	}
	if a.Redis != nil {
		errs = multierr.Append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = multierr.Append(errs, a.DB.Close())
	}
	return errs
}
