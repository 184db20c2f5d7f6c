package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/internal/documents"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

// CustomerOrderDocuments lists the documents of an order the caller owns.
// Admin tokens may read any order.
func CustomerOrderDocuments(svc DocumentService, reader orders.Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
		if err := authorizeOrder(r, reader, orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		docs, err := svc.ListForOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]documents.CustomerView, 0, len(docs))
		for _, doc := range docs {
			out = append(out, documents.ToCustomerView(doc))
		}
		responses.WriteSuccess(w, map[string]any{"documents": out})
	}
}

// authorizeOrder returns not found rather than forbidden for foreign orders
// so order ids cannot be probed.
func authorizeOrder(r *http.Request, reader orders.Reader, orderID string) error {
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if middleware.RoleFromContext(r.Context()) == enums.ActorRoleAdmin {
		return nil
	}
	order, err := reader.RetrieveOrder(r.Context(), orderID)
	if err != nil {
		return err
	}
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" || order.CustomerID != subject {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return nil
}
