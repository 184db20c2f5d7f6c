package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/square"
)

const defaultVerifyTimeout = 5 * time.Second

const (
	squareStatusApproved  = "APPROVED"
	squareStatusCompleted = "COMPLETED"
)

// squareAPI is the subset of the Square client the gateway drives.
type squareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CancelPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error)
	LocationID() string
}

// SquareGatewayParams wires the Square adapter.
type SquareGatewayParams struct {
	Client        squareAPI
	CheckoutURL   string
	VerifyTimeout time.Duration
	Logger        *logger.Logger
}

// SquareGateway implements Gateway on top of Square card payments.
type SquareGateway struct {
	client        squareAPI
	checkoutURL   string
	verifyTimeout time.Duration
	logg          *logger.Logger
}

var _ Gateway = (*SquareGateway)(nil)

func NewSquareGateway(params SquareGatewayParams) (*SquareGateway, error) {
	if params.Client == nil {
		return nil, errors.New("square client is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	timeout := params.VerifyTimeout
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &SquareGateway{
		client:        params.Client,
		checkoutURL:   strings.TrimSpace(params.CheckoutURL),
		verifyTimeout: timeout,
		logg:          params.Logger,
	}, nil
}

// Initiate opens a payment session. The reference doubles as the idempotency
// key of the later card charge.
func (g *SquareGateway) Initiate(ctx context.Context, req InitiateRequest) (*Session, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if req.Amount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	session := &Session{
		Reference: "ps_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		OrderID:   req.OrderID,
		Status:    enums.PaymentStatusPending,
	}
	session.Data = sessionData(session, req, g.client.LocationID())
	session.RedirectURL = g.redirectURL(session.Reference)
	g.logg.Info(g.logg.WithOrderID(ctx, req.OrderID), "payment session initiated")
	return session, nil
}

// Update re-issues the session data for a changed amount. Nothing is sent to
// Square until Authorize.
func (g *SquareGateway) Update(ctx context.Context, session Session, req InitiateRequest) (*Session, error) {
	if session.Reference == "" {
		return g.Initiate(ctx, req)
	}
	if req.OrderID == "" {
		req.OrderID = session.OrderID
	}
	updated := session
	updated.OrderID = req.OrderID
	updated.Status = enums.PaymentStatusPending
	updated.Data = sessionData(&updated, req, g.client.LocationID())
	updated.RedirectURL = g.redirectURL(updated.Reference)
	return &updated, nil
}

// Authorize charges the card token. The returned state is read back through
// the verification primitive.
func (g *SquareGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Transaction, error) {
	if strings.TrimSpace(req.SourceToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card token is required")
	}
	if strings.TrimSpace(req.Reference) == "" || strings.TrimSpace(req.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session reference and order id are required")
	}
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		Amount:         req.Amount,
		Currency:       req.Currency,
		SourceID:       req.SourceToken,
		IdempotencyKey: req.Reference,
		ReferenceID:    req.OrderID,
		Note:           "order " + req.OrderID,
		DelayCapture:   req.DelayCapture,
	})
	if err != nil {
		return nil, err
	}
	id := stringValue(payment.GetID())
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned a payment without id")
	}
	return g.verify(ctx, id)
}

// Capture completes an APPROVED delayed-capture payment. Auto-captured
// payments are already COMPLETED and are returned as verified.
func (g *SquareGateway) Capture(ctx context.Context, transactionID string) (*Transaction, error) {
	current, err := g.verify(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if current.RawStatus == squareStatusCompleted {
		return current, nil
	}
	if current.RawStatus != squareStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment %s is %s and cannot be captured", current.ID, strings.ToLower(current.RawStatus)))
	}
	if _, err := g.client.CompletePayment(ctx, current.ID); err != nil {
		return nil, err
	}
	g.logg.Info(g.logg.WithTransactionID(ctx, current.ID), "square payment captured")
	return g.verify(ctx, current.ID)
}

func (g *SquareGateway) Retrieve(ctx context.Context, transactionID string) (*Transaction, error) {
	return g.verify(ctx, transactionID)
}

func (g *SquareGateway) GetStatus(ctx context.Context, transactionID string) (enums.PaymentStatus, error) {
	tx, err := g.verify(ctx, transactionID)
	if err != nil {
		return "", err
	}
	return tx.Status, nil
}

// Refund propagates every failure. A missing transaction id is a caller bug.
func (g *SquareGateway) Refund(ctx context.Context, req RefundRequest) (*Transaction, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refund requires a provider transaction id")
	}
	current, err := g.verify(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment %s is %s; nothing to refund", current.ID, current.Status))
	}
	amount := req.Amount
	if amount <= 0 {
		amount = current.Amount - current.Refunded
	}
	currency := req.Currency
	if currency == "" {
		currency = current.Currency
	}
	if _, err := g.client.RefundPayment(ctx, square.RefundParams{
		PaymentID: req.TransactionID,
		Amount:    amount,
		Currency:  currency,
		Reason:    req.Reason,
	}); err != nil {
		return nil, err
	}
	current.Refunded += amount
	if current.Refunded >= current.Amount {
		current.Status = enums.PaymentStatusRefunded
	}
	return current, nil
}

// Cancel treats provider failures as success: an expired or already voided
// payment is an acceptable end state.
func (g *SquareGateway) Cancel(ctx context.Context, transactionID string) (*Transaction, error) {
	tx := &Transaction{ID: transactionID, Status: enums.PaymentStatusCanceled}
	if strings.TrimSpace(transactionID) == "" {
		return tx, nil
	}
	payment, err := g.client.CancelPayment(ctx, transactionID)
	if err != nil {
		g.logg.Warn(g.logg.WithFields(ctx, map[string]any{
			"transaction_id": transactionID,
			"error":          err.Error(),
		}), "square cancel failed; treating payment as canceled")
		return tx, nil
	}
	if payment != nil {
		tx = transactionFromPayment(payment)
		tx.Status = enums.PaymentStatusCanceled
	}
	return tx, nil
}

// HandleWebhook trusts only the transaction id from the payload and acts on
// the status Square reports for it now.
func (g *SquareGateway) HandleWebhook(ctx context.Context, payload WebhookPayload) WebhookResult {
	if payload.TransactionID == "" {
		return WebhookResult{Action: enums.WebhookActionNotSupported, Reason: "missing transaction id"}
	}
	tx, err := g.verify(ctx, payload.TransactionID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return WebhookResult{Action: enums.WebhookActionPending, TransactionID: payload.TransactionID, Reason: "status verification timed out"}
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return WebhookResult{Action: enums.WebhookActionNotSupported, TransactionID: payload.TransactionID, Reason: "unknown transaction"}
		}
		g.logg.Error(g.logg.WithTransactionID(ctx, payload.TransactionID), "square status verification failed", err)
		return WebhookResult{Action: enums.WebhookActionFailed, TransactionID: payload.TransactionID, Reason: "status verification failed"}
	}
	return WebhookResult{
		Action:        enums.WebhookActionForStatus(tx.Status),
		TransactionID: tx.ID,
		OrderID:       tx.ReferenceID,
	}
}

// verify is the only path that reads payment state from Square.
func (g *SquareGateway) verify(ctx context.Context, transactionID string) (*Transaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	vctx, cancel := context.WithTimeout(ctx, g.verifyTimeout)
	defer cancel()

	payment, err := g.client.GetPayment(vctx, transactionID)
	if err != nil {
		if vctx.Err() != nil && errors.Is(vctx.Err(), context.DeadlineExceeded) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnavailable, context.DeadlineExceeded, "square status verification timed out")
		}
		return nil, err
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	tx := transactionFromPayment(payment)
	if tx.ID == "" {
		tx.ID = transactionID
	}
	return tx, nil
}

func transactionFromPayment(payment *sq.Payment) *Transaction {
	raw := strings.ToUpper(stringValue(payment.GetStatus()))
	tx := &Transaction{
		ID:          stringValue(payment.GetID()),
		ReferenceID: stringValue(payment.GetReferenceID()),
		Status:      mapSquareStatus(raw),
		RawStatus:   raw,
	}
	if m := payment.GetAmountMoney(); m != nil {
		if amount := m.GetAmount(); amount != nil {
			tx.Amount = *amount
		}
		if cur := m.GetCurrency(); cur != nil {
			tx.Currency = string(*cur)
		}
	}
	if m := payment.GetRefundedMoney(); m != nil {
		if amount := m.GetAmount(); amount != nil {
			tx.Refunded = *amount
		}
	}
	if tx.Amount > 0 && tx.Refunded >= tx.Amount {
		tx.Status = enums.PaymentStatusRefunded
	}
	return tx
}

func mapSquareStatus(raw string) enums.PaymentStatus {
	switch raw {
	case squareStatusCompleted, squareStatusApproved:
		return enums.PaymentStatusAuthorized
	case "CANCELED", "FAILED":
		return enums.PaymentStatusCanceled
	default:
		return enums.PaymentStatusPending
	}
}

func sessionData(session *Session, req InitiateRequest, locationID string) map[string]string {
	data := map[string]string{
		"reference": session.Reference,
		"order_id":  req.OrderID,
		"amount":    strconv.FormatInt(req.Amount, 10),
		"currency":  strings.ToUpper(strings.TrimSpace(req.Currency)),
	}
	if locationID != "" {
		data["location_id"] = locationID
	}
	if req.Email != "" {
		data["email"] = req.Email
	}
	return data
}

func (g *SquareGateway) redirectURL(reference string) string {
	if g.checkoutURL == "" {
		return ""
	}
	u, err := url.Parse(g.checkoutURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("reference", reference)
	u.RawQuery = q.Encode()
	return u.String()
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
