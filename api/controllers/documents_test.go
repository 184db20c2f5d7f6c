package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/internal/documents"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

type fakeDocuments struct {
	docs        map[uuid.UUID]*models.Document
	lastFilters documents.ListFilters
	lastParams  pagination.Params
	created     []string
}

func newFakeDocuments(docs ...models.Document) *fakeDocuments {
	f := &fakeDocuments{docs: map[uuid.UUID]*models.Document{}}
	for i := range docs {
		doc := docs[i]
		f.docs[doc.ID] = &doc
	}
	return f
}

func (f *fakeDocuments) CreateDocument(_ context.Context, orderID string, docType enums.DocumentType) (*models.Document, error) {
	f.created = append(f.created, orderID+":"+string(docType))
	return &models.Document{ID: uuid.New(), OrderID: orderID, Type: docType, Number: docType.NumberPrefix() + "2026-0001", Status: enums.DocumentStatusSent}, nil
}

func (f *fakeDocuments) MarkPaid(_ context.Context, id uuid.UUID, _ enums.PaidSource) (*documents.MarkPaidResult, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	if doc.Status == enums.DocumentStatusPaid {
		return &documents.MarkPaidResult{Document: doc}, nil
	}
	now := time.Now()
	doc.Status = enums.DocumentStatusPaid
	doc.PaidAt = &now
	invoice := &models.Document{ID: uuid.New(), OrderID: doc.OrderID, Type: enums.DocumentTypeInvoice, Number: "FV2026-0001", Status: enums.DocumentStatusPaid, PaidAt: &now}
	return &documents.MarkPaidResult{Document: doc, Invoice: invoice, Changed: true}, nil
}

func (f *fakeDocuments) CancelDocument(_ context.Context, id uuid.UUID) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	if doc.Status == enums.DocumentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "paid documents cannot be canceled")
	}
	doc.Status = enums.DocumentStatusCanceled
	return doc, nil
}

func (f *fakeDocuments) RegenerateDocumentPDF(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return f.Get(ctx, id)
}

func (f *fakeDocuments) Get(_ context.Context, id uuid.UUID) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	return doc, nil
}

func (f *fakeDocuments) List(_ context.Context, filters documents.ListFilters, params pagination.Params) (*documents.DocumentList, error) {
	f.lastFilters, f.lastParams = filters, params
	out := &documents.DocumentList{}
	for _, doc := range f.docs {
		out.Documents = append(out.Documents, *doc)
	}
	return out, nil
}

func (f *fakeDocuments) ListForOrder(_ context.Context, orderID string) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range f.docs {
		if doc.OrderID == orderID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

type fakeOrders map[string]*orders.Order

func (f fakeOrders) RetrieveOrder(_ context.Context, id string) (*orders.Order, error) {
	if order, ok := f[id]; ok {
		return order, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func proforma(orderID string, status enums.DocumentStatus) models.Document {
	return models.Document{
		ID: uuid.New(), OrderID: orderID, Type: enums.DocumentTypeProforma, Number: "ZF2026-0001",
		Status: status, CurrencyCode: "CZK", Total: 17100, VariableSymbol: orderID,
		Metadata: types.DocumentMetadata{},
	}
}

func adminRouter(svc DocumentService) http.Handler {
	r := chi.NewRouter()
	logg := logger.Nop()
	r.Get("/documents", AdminListDocuments(svc, logg))
	r.Post("/documents", AdminCreateDocument(svc, logg))
	r.Get("/documents/export", AdminExportDocuments(svc, time.UTC, logg))
	r.Get("/documents/{documentId}", AdminDocumentDetail(svc, logg))
	r.Post("/documents/{documentId}/mark-paid", AdminMarkPaid(svc, logg))
	r.Post("/documents/{documentId}/cancel", AdminCancelDocument(svc, logg))
	return r
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body responses.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}

func TestAdminListDocumentsParsesFilters(t *testing.T) {
	svc := newFakeDocuments(proforma("1042", enums.DocumentStatusSent))
	rec := httptest.NewRecorder()
	adminRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents?status=sent&type=proforma&limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastFilters.Status)
	assert.Equal(t, enums.DocumentStatusSent, *svc.lastFilters.Status)
	require.NotNil(t, svc.lastFilters.Type)
	assert.Equal(t, enums.DocumentTypeProforma, *svc.lastFilters.Type)
	assert.Equal(t, 10, svc.lastParams.Limit)

	var body struct {
		Data documents.ListView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data.Documents, 1)
	assert.Equal(t, "ZF2026-0001", body.Data.Documents[0].Number)
}

func TestAdminListDocumentsRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	adminRouter(newFakeDocuments()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents?status=overdue", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
}

func TestAdminCreateDocument(t *testing.T) {
	svc := newFakeDocuments()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"order_id":"1042","type":"proforma"}`))
	adminRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"1042:proforma"}, svc.created)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"order_id":"1042","type":"receipt"}`))
	adminRouter(svc).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminMarkPaidThenAlreadyPaid(t *testing.T) {
	doc := proforma("1042", enums.DocumentStatusSent)
	svc := newFakeDocuments(doc)
	router := adminRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/documents/"+doc.ID.String()+"/mark-paid", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data markPaidResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, enums.DocumentStatusPaid, body.Data.Document.Status)
	require.NotNil(t, body.Data.Invoice)
	assert.Equal(t, "FV2026-0001", body.Data.Invoice.Number)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/documents/"+doc.ID.String()+"/mark-paid", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeAlreadyPaid), errorCode(t, rec))
}

func TestAdminDocumentDetailErrors(t *testing.T) {
	router := adminRouter(newFakeDocuments())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCancelPaidDocumentConflicts(t *testing.T) {
	doc := proforma("1042", enums.DocumentStatusPaid)
	rec := httptest.NewRecorder()
	adminRouter(newFakeDocuments(doc)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/documents/"+doc.ID.String()+"/cancel", nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeStateConflict), errorCode(t, rec))
}

func TestAdminExportDocumentsReturnsWorkbook(t *testing.T) {
	svc := newFakeDocuments(proforma("1042", enums.DocumentStatusSent))
	rec := httptest.NewRecorder()
	adminRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/export?type=proforma", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, pagination.ExportLimit, svc.lastParams.Limit)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))
}

func customerRequest(orderID, subject string, role enums.ActorRole) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/orders/"+orderID+"/documents", nil)
	return req.WithContext(middleware.WithActor(req.Context(), subject, role))
}

func TestCustomerOrderDocumentsOwnerCheck(t *testing.T) {
	svc := newFakeDocuments(proforma("1042", enums.DocumentStatusSent))
	reader := fakeOrders{"1042": {ID: "1042", CustomerID: "cust-1"}}
	r := chi.NewRouter()
	r.Get("/orders/{orderId}/documents", CustomerOrderDocuments(svc, reader, logger.Nop()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, customerRequest("1042", "cust-1", enums.ActorRoleCustomer))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			Documents []documents.CustomerView `json:"documents"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data.Documents, 1)
	assert.Equal(t, "ZF2026-0001", body.Data.Documents[0].Number)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, customerRequest("1042", "cust-2", enums.ActorRoleCustomer))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, customerRequest("1042", "ops", enums.ActorRoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }
