package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/settlement-engine/api/controllers"
	webhookcontrollers "github.com/angelmondragon/settlement-engine/api/controllers/webhooks"
	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/storage"
)

// RouterParams carries everything the API routes are wired to. Metrics and
// FilesDir are optional. Payment and webhook routes are only mounted when
// Payments and Webhooks are set.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	Documents controllers.DocumentService
	Payments  controllers.PaymentService
	Webhooks  webhookcontrollers.WebhookHandler
	Orders    orders.Reader
	Pingers   map[string]controllers.Pinger
	Metrics   http.Handler
	FilesDir  string
	Location  *time.Location
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Pingers))
	})

	if p.Metrics != nil {
		r.Handle("/metrics", p.Metrics)
	}

	if p.FilesDir != "" {
		files := http.StripPrefix(storage.FilesPrefix, http.FileServer(http.Dir(p.FilesDir)))
		r.Handle(storage.FilesPrefix+"/documents/*", files)
	}

	if p.Webhooks != nil {
		r.Route("/api/v1/webhooks", func(r chi.Router) {
			r.Post("/square", webhookcontrollers.SquareWebhook(p.Webhooks, webhookcontrollers.SquareWebhookConfig{
				SignatureKey:    cfg.Square.WebhookSecret,
				NotificationURL: cfg.Square.WebhookURL,
			}, logg))
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRoleAdmin))

		r.Get("/orders/{orderId}/documents", controllers.CustomerOrderDocuments(p.Documents, p.Orders, logg))
		if p.Payments != nil {
			r.Route("/payments/sessions", func(r chi.Router) {
				r.Post("/", controllers.PaymentSessionStart(p.Payments, p.Orders, logg))
				r.Post("/{reference}/authorize", controllers.PaymentSessionAuthorize(p.Payments, p.Orders, logg))
			})
		}
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", controllers.AdminListDocuments(p.Documents, logg))
			r.Post("/", controllers.AdminCreateDocument(p.Documents, logg))
			r.Get("/export", controllers.AdminExportDocuments(p.Documents, p.Location, logg))
			r.Get("/{documentId}", controllers.AdminDocumentDetail(p.Documents, logg))
			r.Post("/{documentId}/mark-paid", controllers.AdminMarkPaid(p.Documents, logg))
			r.Post("/{documentId}/cancel", controllers.AdminCancelDocument(p.Documents, logg))
			r.Post("/{documentId}/regenerate-pdf", controllers.AdminRegeneratePDF(p.Documents, logg))
		})
		if p.Payments != nil {
			r.Route("/payments/{transactionId}", func(r chi.Router) {
				r.Get("/", controllers.AdminPaymentDetail(p.Payments, logg))
				r.Post("/capture", controllers.AdminPaymentCapture(p.Payments, logg))
				r.Post("/refund", controllers.AdminPaymentRefund(p.Payments, logg))
				r.Post("/cancel", controllers.AdminPaymentCancel(p.Payments, logg))
			})
		}
	})

	return r
}
