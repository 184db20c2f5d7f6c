package payments

import (
	"context"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Gateway is the provider-agnostic payment state machine. Every status read
// goes through a fresh query to the provider.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*Session, error)
	Authorize(ctx context.Context, req AuthorizeRequest) (*Transaction, error)
	Capture(ctx context.Context, transactionID string) (*Transaction, error)
	Refund(ctx context.Context, req RefundRequest) (*Transaction, error)
	Cancel(ctx context.Context, transactionID string) (*Transaction, error)
	Update(ctx context.Context, session Session, req InitiateRequest) (*Session, error)
	Retrieve(ctx context.Context, transactionID string) (*Transaction, error)
	GetStatus(ctx context.Context, transactionID string) (enums.PaymentStatus, error)
	HandleWebhook(ctx context.Context, payload WebhookPayload) WebhookResult
}

// InitiateRequest carries the amount and customer hints of a new session.
type InitiateRequest struct {
	OrderID  string
	Amount   int64
	Currency string
	Email    string
}

// Session is returned to the storefront. Data never carries credentials.
type Session struct {
	Reference   string              `json:"reference"`
	OrderID     string              `json:"order_id"`
	RedirectURL string              `json:"redirect_url"`
	Status      enums.PaymentStatus `json:"status"`
	Data        map[string]string   `json:"data"`
}

// AuthorizeRequest submits a tokenized card for an initiated session.
// DelayCapture holds the funds until Capture is called.
type AuthorizeRequest struct {
	Reference    string
	OrderID      string
	SourceToken  string
	Amount       int64
	Currency     string
	DelayCapture bool
}

// RefundRequest refunds part or all of a captured transaction.
type RefundRequest struct {
	TransactionID string
	Amount        int64
	Currency      string
	Reason        string
}

// Transaction is the verified provider-side state of one payment.
type Transaction struct {
	ID          string              `json:"id"`
	ReferenceID string              `json:"reference_id,omitempty"`
	Status      enums.PaymentStatus `json:"status"`
	Amount      int64               `json:"amount"`
	Refunded    int64               `json:"refunded"`
	Currency    string              `json:"currency"`
	RawStatus   string              `json:"raw_status,omitempty"`
}

// WebhookResult is the processed outcome of one notification.
type WebhookResult struct {
	Action        enums.WebhookAction `json:"action"`
	TransactionID string              `json:"transaction_id,omitempty"`
	OrderID       string              `json:"order_id,omitempty"`
	Reason        string              `json:"reason,omitempty"`
}
