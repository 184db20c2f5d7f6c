package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const maxWebhookBody = 1 << 20

// WebhookHandler processes a normalized gateway notification.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload payments.WebhookPayload) payments.WebhookResult
}

// SquareWebhookConfig carries the signing key and the URL Square signs with.
// An empty secret disables signature checks.
type SquareWebhookConfig struct {
	SignatureKey    string
	NotificationURL string
}

// SquareWebhook verifies the signature and answers every authentic
// notification with a processed action, including payloads it cannot use.
func SquareWebhook(svc WebhookHandler, cfg SquareWebhookConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if cfg.SignatureKey != "" && !payments.VerifySignature(cfg.SignatureKey, cfg.NotificationURL, body, r.Header.Get(payments.SignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature"))
			return
		}

		payload, err := payments.NormalizePayload(r.Header.Get("Content-Type"), body)
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "unreadable square webhook payload")
			}
			responses.WriteSuccess(w, payments.WebhookResult{Action: enums.WebhookActionNotSupported, Reason: "unreadable payload"})
			return
		}

		result := svc.HandleWebhook(ctx, payload)
		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event_id":       payload.EventID,
				"transaction_id": result.TransactionID,
				"action":         string(result.Action),
			}), "square webhook processed")
		}
		responses.WriteSuccess(w, result)
	}
}
