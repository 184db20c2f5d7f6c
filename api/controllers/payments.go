package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/api/validators"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

// PaymentService covers card sessions and admin payment actions.
type PaymentService interface {
	StartSession(ctx context.Context, orderID string) (*payments.Session, error)
	AuthorizeSession(ctx context.Context, reference, orderID, sourceToken string, delayCapture bool) (*payments.Transaction, error)
	Retrieve(ctx context.Context, transactionID string) (*payments.Transaction, error)
	Capture(ctx context.Context, transactionID string) (*payments.Transaction, error)
	Refund(ctx context.Context, req payments.RefundRequest) (*payments.Transaction, error)
	Cancel(ctx context.Context, transactionID string) (*payments.Transaction, error)
}

type startSessionRequest struct {
	OrderID string `json:"order_id" validate:"required,order_id"`
}

// PaymentSessionStart opens a card session for an order the caller owns.
func PaymentSessionStart(svc PaymentService, reader orders.Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeOrder(r, reader, strings.TrimSpace(req.OrderID)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.StartSession(r.Context(), req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

type authorizeSessionRequest struct {
	OrderID      string `json:"order_id" validate:"required,order_id"`
	SourceToken  string `json:"source_token" validate:"required"`
	DelayCapture bool   `json:"delay_capture"`
}

// PaymentSessionAuthorize charges the tokenized card for the session.
func PaymentSessionAuthorize(svc PaymentService, reader orders.Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session reference is required"))
			return
		}
		var req authorizeSessionRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeOrder(r, reader, strings.TrimSpace(req.OrderID)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tx, err := svc.AuthorizeSession(r.Context(), reference, req.OrderID, req.SourceToken, req.DelayCapture)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tx)
	}
}

func AdminPaymentDetail(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tx, err := svc.Retrieve(r.Context(), chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tx)
	}
}

// AdminPaymentCapture takes the funds of a delayed-capture payment.
func AdminPaymentCapture(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tx, err := svc.Capture(r.Context(), chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tx)
	}
}

type refundRequest struct {
	Amount   int64  `json:"amount" validate:"min=0"`
	Currency string `json:"currency" validate:"omitempty,currency"`
	Reason   string `json:"reason" validate:"max=192"`
}

// AdminPaymentRefund refunds a captured payment. A zero amount refunds the
// remaining balance.
func AdminPaymentRefund(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refundRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tx, err := svc.Refund(r.Context(), payments.RefundRequest{
			TransactionID: chi.URLParam(r, "transactionId"),
			Amount:        req.Amount,
			Currency:      strings.ToUpper(req.Currency),
			Reason:        validators.SanitizeString(req.Reason, 192),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tx)
	}
}

func AdminPaymentCancel(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tx, err := svc.Cancel(r.Context(), chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tx)
	}
}
