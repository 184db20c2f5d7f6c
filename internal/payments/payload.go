package payments

import (
	"encoding/json"
	"mime"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// WebhookPayload is the single internal shape every webhook body is
// normalized into. Only the identifiers are used; embedded statuses are kept
// for logging but never acted on.
type WebhookPayload struct {
	EventID       string
	EventType     string
	TransactionID string
	ClaimedStatus string
}

type squareEnvelope struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object struct {
			Payment *struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"payment"`
			Refund *struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Status    string `json:"status"`
			} `json:"refund"`
		} `json:"object"`
	} `json:"data"`
}

var formTransactionKeys = []string{"transaction_id", "transactionId", "payment_id", "paymentId", "id"}

// NormalizePayload parses a JSON or URL-encoded webhook body.
func NormalizePayload(contentType string, body []byte) (WebhookPayload, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return WebhookPayload{}, pkgerrors.New(pkgerrors.CodeValidation, "empty webhook body")
	}
	if mediaType == "application/x-www-form-urlencoded" || (mediaType == "" && !strings.HasPrefix(trimmed, "{")) {
		return normalizeForm(trimmed)
	}
	return normalizeJSON(body)
}

func normalizeJSON(body []byte) (WebhookPayload, error) {
	var env squareEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WebhookPayload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook json")
	}
	payload := WebhookPayload{
		EventID:   strings.TrimSpace(env.EventID),
		EventType: strings.TrimSpace(env.Type),
	}
	obj := env.Data.Object
	switch {
	case obj.Payment != nil:
		payload.TransactionID = obj.Payment.ID
		payload.ClaimedStatus = obj.Payment.Status
	case obj.Refund != nil:
		payload.TransactionID = obj.Refund.PaymentID
		payload.ClaimedStatus = obj.Refund.Status
	case strings.EqualFold(env.Data.Type, "payment"):
		payload.TransactionID = env.Data.ID
	}
	payload.TransactionID = strings.TrimSpace(payload.TransactionID)
	return payload, nil
}

func normalizeForm(body string) (WebhookPayload, error) {
	values, err := url.ParseQuery(body)
	if err != nil {
		return WebhookPayload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook form body")
	}
	payload := WebhookPayload{
		EventID:       strings.TrimSpace(firstValue(values, "event_id", "eventId")),
		EventType:     strings.TrimSpace(firstValue(values, "type", "event")),
		TransactionID: strings.TrimSpace(firstValue(values, formTransactionKeys...)),
		ClaimedStatus: strings.TrimSpace(firstValue(values, "status", "state")),
	}
	return payload, nil
}

func firstValue(values url.Values, keys ...string) string {
	for _, key := range keys {
		if v := values.Get(key); v != "" {
			return v
		}
	}
	return ""
}
