package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/api/validators"
	"github.com/angelmondragon/settlement-engine/internal/documents"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

// DocumentService is the part of the orchestrator the admin endpoints drive.
type DocumentService interface {
	CreateDocument(ctx context.Context, orderID string, docType enums.DocumentType) (*models.Document, error)
	MarkPaid(ctx context.Context, id uuid.UUID, source enums.PaidSource) (*documents.MarkPaidResult, error)
	CancelDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	RegenerateDocumentPDF(ctx context.Context, id uuid.UUID) (*models.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, filters documents.ListFilters, params pagination.Params) (*documents.DocumentList, error)
	ListForOrder(ctx context.Context, orderID string) ([]models.Document, error)
}

// AdminListDocuments returns a page of documents filtered by ?status, ?type and ?order_id.
func AdminListDocuments(svc DocumentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := parseListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), filters, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, documents.ToListView(list))
	}
}

type createDocumentRequest struct {
	OrderID string `json:"order_id" validate:"required,order_id"`
	Type    string `json:"type" validate:"required,oneof=proforma invoice"`
}

// AdminCreateDocument issues a document for an order. Repeating the call
// returns the existing document.
func AdminCreateDocument(svc DocumentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDocumentRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.CreateDocument(r.Context(), req.OrderID, enums.DocumentType(req.Type))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, documents.ToView(*doc))
	}
}

func AdminDocumentDetail(svc DocumentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := documentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, documents.ToView(*doc))
	}
}

type markPaidResponse struct {
	Document documents.DocumentView  `json:"document"`
	Invoice  *documents.DocumentView `json:"invoice,omitempty"`
}

// AdminMarkPaid records a manual payment. A document that is already paid is
// reported as a conflict.
func AdminMarkPaid(svc DocumentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := documentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.MarkPaid(r.Context(), id, enums.PaidSourceManual)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !res.Changed {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAlreadyPaid, fmt.Sprintf("%s is already paid", res.Document.Number)).
				WithDetails(map[string]any{"number": res.Document.Number, "paid_at": res.Document.PaidAt}))
			return
		}
		out := markPaidResponse{Document: documents.ToView(*res.Document)}
		if res.Invoice != nil {
			view := documents.ToView(*res.Invoice)
			out.Invoice = &view
		}
		responses.WriteSuccess(w, out)
	}
}

func AdminCancelDocument(svc DocumentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := documentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.CancelDocument(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, documents.ToView(*doc))
	}
}

func AdminRegeneratePDF(svc DocumentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := documentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.RegenerateDocumentPDF(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, documents.ToView(*doc))
	}
}

// AdminExportDocuments streams the filtered document list as an XLSX workbook.
func AdminExportDocuments(svc DocumentService, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := parseListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), filters, pagination.Params{Limit: pagination.ExportLimit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		book, err := documents.ExportXLSX(list.Documents, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build export"))
			return
		}
		defer book.Close()

		filename := fmt.Sprintf("documents_%s.xlsx", time.Now().In(locOrUTC(loc)).Format("20060102"))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		if err := book.Write(w); err != nil && logg != nil {
			logg.Error(r.Context(), "write export", err)
		}
	}
}

func parseListFilters(r *http.Request) (documents.ListFilters, error) {
	var (
		filters documents.ListFilters
		err     error
	)
	if filters.Status, err = validators.ParseQueryEnum(r, "status", enums.ParseDocumentStatus); err != nil {
		return filters, err
	}
	if filters.Type, err = validators.ParseQueryEnum(r, "type", enums.ParseDocumentType); err != nil {
		return filters, err
	}
	filters.OrderID = validators.QueryString(r, "order_id", 64)
	return filters, nil
}

func documentIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "documentId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document id")
	}
	return id, nil
}

func locOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
