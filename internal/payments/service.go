package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/settlement-engine/internal/documents"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/alerts"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

// Settler is the part of the document orchestrator a confirmed card payment drives.
type Settler interface {
	SettleOrder(ctx context.Context, orderID string, source enums.PaidSource) (*models.Document, error)
}

type eventGuard interface {
	Seen(ctx context.Context, eventID string) (enums.WebhookAction, bool, error)
	Mark(ctx context.Context, eventID string, action enums.WebhookAction) (bool, error)
}

type recorder interface {
	WebhookHandled(action enums.WebhookAction)
}

// ServiceParams wires the payment service. Guard, Alerts and Metrics are optional.
type ServiceParams struct {
	Gateway Gateway
	Settler Settler
	Orders  orders.Reader
	Guard   eventGuard
	Alerts  alerts.Notifier
	Metrics recorder
	Logger  *logger.Logger
}

// Service runs payment sessions and gateway webhooks against the orchestrator.
type Service struct {
	gateway Gateway
	settler Settler
	orders  orders.Reader
	guard   eventGuard
	alerts  alerts.Notifier
	metrics recorder
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Settler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settler required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order reader required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		gateway: params.Gateway,
		settler: params.Settler,
		orders:  params.Orders,
		guard:   params.Guard,
		alerts:  params.Alerts,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// StartSession opens a card payment session for the order total.
func (s *Service) StartSession(ctx context.Context, orderID string) (*Session, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.gateway.Initiate(ctx, InitiateRequest{
		OrderID:  order.ID,
		Amount:   order.Total,
		Currency: order.CurrencyCode,
		Email:    order.Email,
	})
}

// AuthorizeSession charges the card. The amount is re-read from the order,
// never taken from the client. With delayCapture the funds stay approved
// until an operator captures them.
func (s *Service) AuthorizeSession(ctx context.Context, reference, orderID, sourceToken string, delayCapture bool) (*Transaction, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	tx, err := s.gateway.Authorize(ctx, AuthorizeRequest{
		Reference:    reference,
		OrderID:      order.ID,
		SourceToken:  sourceToken,
		Amount:       order.Total,
		Currency:     order.CurrencyCode,
		DelayCapture: delayCapture,
	})
	if err != nil {
		return nil, err
	}
	if tx.Status.Settles() {
		if _, err := s.settler.SettleOrder(ctx, order.ID, enums.PaidSourceGateway); err != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID), "settle order after card authorization", err)
		}
	}
	return tx, nil
}

func (s *Service) Retrieve(ctx context.Context, transactionID string) (*Transaction, error) {
	return s.gateway.Retrieve(ctx, transactionID)
}

// Capture takes the funds of a delayed-capture authorization.
func (s *Service) Capture(ctx context.Context, transactionID string) (*Transaction, error) {
	tx, err := s.gateway.Capture(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": tx.ID,
		"amount":         tx.Amount,
		"status":         string(tx.Status),
	}), "payment captured")
	return tx, nil
}

func (s *Service) Refund(ctx context.Context, req RefundRequest) (*Transaction, error) {
	tx, err := s.gateway.Refund(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": tx.ID,
		"refunded":       tx.Refunded,
		"status":         string(tx.Status),
	}), "payment refunded")
	return tx, nil
}

func (s *Service) Cancel(ctx context.Context, transactionID string) (*Transaction, error) {
	return s.gateway.Cancel(ctx, transactionID)
}

// HandleWebhook verifies the payload with the gateway and settles the order
// on a verified authorization. Only a failed settlement yields the failed
// action; alerting and bookkeeping problems are logged.
func (s *Service) HandleWebhook(ctx context.Context, payload WebhookPayload) WebhookResult {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":       payload.EventID,
		"event_type":     payload.EventType,
		"transaction_id": payload.TransactionID,
	})

	if s.guard != nil && payload.EventID != "" {
		action, seen, err := s.guard.Seen(ctx, payload.EventID)
		if err != nil {
			s.logg.Warn(ctx, "webhook idempotency lookup failed: "+err.Error())
		} else if seen {
			s.logg.Info(ctx, "duplicate webhook event ignored")
			return WebhookResult{Action: action, TransactionID: payload.TransactionID, Reason: "duplicate event"}
		}
	}

	result := s.gateway.HandleWebhook(ctx, payload)
	switch result.Action {
	case enums.WebhookActionNotSupported:
		if payload.TransactionID == "" {
			s.alert(ctx, alerts.Alert{
				Kind:    alerts.KindWebhookUnresolved,
				Subject: "Payment webhook without transaction id",
				Message: "A gateway webhook arrived without an identifiable transaction and was ignored.",
				Fields: map[string]string{
					"event_id":   payload.EventID,
					"event_type": payload.EventType,
				},
			})
		}
	case enums.WebhookActionAuthorized:
		result = s.settle(ctx, result)
	case enums.WebhookActionCanceled:
		s.logg.Info(s.logg.WithOrderID(ctx, result.OrderID), "gateway reported payment canceled")
	}

	if s.metrics != nil {
		s.metrics.WebhookHandled(result.Action)
	}
	if s.guard != nil && payload.EventID != "" {
		if _, err := s.guard.Mark(ctx, payload.EventID, result.Action); err != nil {
			s.logg.Warn(ctx, "webhook idempotency mark failed: "+err.Error())
		}
	}
	return result
}

func (s *Service) settle(ctx context.Context, result WebhookResult) WebhookResult {
	if result.OrderID == "" {
		s.alert(ctx, alerts.Alert{
			Kind:    alerts.KindWebhookUnresolved,
			Subject: "Authorized payment without order reference",
			Message: "The gateway confirmed a payment that carries no order reference. Settle it manually.",
			Fields:  map[string]string{"transaction_id": result.TransactionID},
		})
		return result
	}
	ctx = s.logg.WithOrderID(ctx, result.OrderID)
	// The webhook answers before the invoice PDF is rendered.
	doc, err := s.settler.SettleOrder(documents.WithDeferredArtifacts(ctx), result.OrderID, enums.PaidSourceGateway)
	if err != nil {
		s.logg.Error(ctx, "settle order from webhook", err)
		return WebhookResult{
			Action:        enums.WebhookActionFailed,
			TransactionID: result.TransactionID,
			OrderID:       result.OrderID,
			Reason:        "settlement failed",
		}
	}
	s.logg.Info(s.logg.WithDocumentNumber(ctx, doc.Number), "order settled from gateway webhook")
	return result
}

func (s *Service) loadOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.orders.RetrieveOrder(ctx, orderID)
	if err != nil {
		var typed *pkgerrors.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve order")
	}
	return order, nil
}

func (s *Service) alert(ctx context.Context, alert alerts.Alert) {
	if s.alerts == nil {
		return
	}
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	if err := s.alerts.Notify(ctx, alert); err != nil {
		s.logg.Error(ctx, "operator alert failed", err)
	}
}
