package documents

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/alerts"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

// Service is the only entry point allowed to create documents or change their status.
type Service interface {
	CreateDocument(ctx context.Context, orderID string, docType enums.DocumentType) (*models.Document, error)
	MarkPaid(ctx context.Context, id uuid.UUID, source enums.PaidSource) (*MarkPaidResult, error)
	SettleOrder(ctx context.Context, orderID string, source enums.PaidSource) (*models.Document, error)
	EnsureInvoice(ctx context.Context, proforma *models.Document, source enums.PaidSource) (*models.Document, error)
	CancelDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	RegenerateDocumentPDF(ctx context.Context, id uuid.UUID) (*models.Document, error)

	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetByNumber(ctx context.Context, number string) (*models.Document, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*DocumentList, error)
	ListForOrder(ctx context.Context, orderID string) ([]models.Document, error)
	FindOpenProformaBySymbol(ctx context.Context, symbol string) (*models.Document, error)
	ListMissingPDF(ctx context.Context, olderThan time.Duration, limit int) ([]models.Document, error)
	ListPaidProformasWithoutInvoice(ctx context.Context, olderThan time.Duration, limit int) ([]models.Document, error)

	// Wait blocks until documents published in the background are done.
	Wait()
}

// Config carries issuing rules.
type Config struct {
	DomesticCountry string
	ProformaDueDays int
	InvoiceDueDays  int
	Location        *time.Location
}

// ServiceParams wires the orchestrator. VAT, Mailer, Alerts and Metrics are optional.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Numbers  NumberAllocator
	Orders   OrderReader
	VAT      VATValidator
	Renderer Renderer
	Store    BlobStore
	Mailer   Mailer
	Alerts   Alerter
	Metrics  Recorder
	Logger   *logger.Logger
	Config   Config
	Now      func() time.Time
}

type service struct {
	repo            Repository
	tx              txRunner
	numbers         NumberAllocator
	orders          OrderReader
	vat             VATValidator
	renderer        Renderer
	store           BlobStore
	mailer          Mailer
	alerts          Alerter
	metrics         Recorder
	logg            *logger.Logger
	domesticCountry string
	proformaDue     int
	invoiceDue      int
	loc             *time.Location
	now             func() time.Time
	background      sync.WaitGroup
}

// NewService builds the document lifecycle orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("documents repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("number allocator required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Renderer == nil {
		return nil, fmt.Errorf("renderer required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg := params.Config
	if cfg.ProformaDueDays <= 0 {
		cfg.ProformaDueDays = 7
	}
	if cfg.InvoiceDueDays <= 0 {
		cfg.InvoiceDueDays = 14
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &service{
		repo:            params.Repo,
		tx:              params.Tx,
		numbers:         params.Numbers,
		orders:          params.Orders,
		vat:             params.VAT,
		renderer:        params.Renderer,
		store:           params.Store,
		mailer:          params.Mailer,
		alerts:          params.Alerts,
		metrics:         params.Metrics,
		logg:            params.Logger,
		domesticCountry: strings.ToUpper(strings.TrimSpace(cfg.DomesticCountry)),
		proformaDue:     cfg.ProformaDueDays,
		invoiceDue:      cfg.InvoiceDueDays,
		loc:             cfg.Location,
		now:             now,
	}, nil
}

// CreateDocument issues a proforma or invoice for an order. It is idempotent
// per (order, type): an existing document is returned unchanged.
func (s *service) CreateDocument(ctx context.Context, orderID string, docType enums.DocumentType) (*models.Document, error) {
	doc, _, err := s.createDocument(ctx, orderID, docType)
	return doc, err
}

// createDocument reports issued=false when the document already existed.
func (s *service) createDocument(ctx context.Context, orderID string, docType enums.DocumentType) (*models.Document, bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !docType.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown document type %q", docType))
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": orderID, "document_type": string(docType)})

	existing, err := s.repo.FindByOrderAndType(ctx, orderID, docType)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup existing document")
	}

	order, err := s.orders.RetrieveOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}

	draft, err := s.buildFromOrder(ctx, order, docType)
	if err != nil {
		return nil, false, err
	}
	return s.issue(ctx, draft)
}

func (s *service) buildFromOrder(ctx context.Context, order *orders.Order, docType enums.DocumentType) (*models.Document, error) {
	symbol := VariableSymbol(order)
	if symbol == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no usable display id for a variable symbol")
	}

	vatID, vatStatus := s.resolveVATStatus(ctx, order)
	reverse := ReverseChargeEligible(vatStatus, vatID, s.domesticCountry)
	totals := ComputeTotals(order.Subtotal, order.TaxTotal, reverse)

	issuedAt := s.now().In(s.loc)
	doc := &models.Document{
		ID:             uuid.New(),
		OrderID:        order.ID,
		Type:           docType,
		VariableSymbol: symbol,
		IssuedAt:       issuedAt,
		CurrencyCode:   strings.ToUpper(order.CurrencyCode),
		CreatedAt:      issuedAt,
		UpdatedAt:      issuedAt,
		Subtotal:       totals.Subtotal,
		TaxTotal:       totals.TaxTotal,
		Total:          totals.Total,
	}

	meta := types.DocumentMetadata{
		VariableSymbol: symbol,
		ReverseCharge:  reverse,
		OrderDisplayID: strconv.FormatInt(order.DisplayID, 10),
		CustomerID:     order.CustomerID,
		CustomerEmail:  order.Email,
		CompanyID:      order.MetadataString("company_id"),
		VATID:          vatID,
		VATStatus:      vatStatus,
		PaymentMethod:  string(enums.ParsePaymentMethod(order.PaymentProvider)),
		LineItems:      LineItems(order.Items, reverse),
	}
	if addr := order.Address(); addr != nil {
		a := *addr
		meta.BillingAddress = &a
		meta.CustomerName = a.FullName()
		meta.CompanyName = a.Company
	}
	if name := order.MetadataString("company_name"); name != "" {
		meta.CompanyName = name
	}

	switch docType {
	case enums.DocumentTypeProforma:
		doc.Status = enums.DocumentStatusSent
		doc.DueAt = issuedAt.AddDate(0, 0, s.proformaDue)
	case enums.DocumentTypeInvoice:
		// invoices are only issued once payment is confirmed
		paidAt := issuedAt
		doc.Status = enums.DocumentStatusPaid
		doc.PaidAt = &paidAt
		doc.DueAt = issuedAt.AddDate(0, 0, s.invoiceDue)
	}
	doc.Metadata = meta
	return doc, nil
}

// issue allocates the number and persists the document in one transaction, then
// renders, uploads and mails outside of it. A concurrent caller that already
// issued the same (order, type) wins and its document is returned with
// issued=false. Under WithDeferredArtifacts the PDF and e-mail are produced in
// the background and the returned document has no pdf_url yet.
func (s *service) issue(ctx context.Context, doc *models.Document) (*models.Document, bool, error) {
	year := doc.IssuedAt.Year()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		number, err := s.numbers.Next(ctx, tx, doc.Type, year)
		if err != nil {
			return err
		}
		doc.Number = number
		return s.repo.WithTx(tx).Create(ctx, doc)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.FindByOrderAndType(ctx, doc.OrderID, doc.Type)
			if findErr == nil {
				s.logg.Info(s.logg.WithDocumentNumber(ctx, existing.Number), "document already issued by concurrent caller")
				return existing, false, nil
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue document")
	}

	ctx = s.logg.WithDocumentNumber(ctx, doc.Number)
	s.logg.Info(ctx, "document issued")
	if s.metrics != nil {
		s.metrics.DocumentCreated(doc.Type)
	}

	if ArtifactsDeferred(ctx) {
		published := *doc
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundPublishTimeout)
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			defer cancel()
			s.publish(bg, &published)
		}()
		return doc, true, nil
	}
	s.publish(ctx, doc)
	return doc, true, nil
}

func (s *service) Wait() {
	s.background.Wait()
}

// MarkPaid settles an open document. Settling an already paid document is a
// no-op reported through Changed=false. Paying a proforma issues its invoice;
// an invoice failure never reverts the payment.
func (s *service) MarkPaid(ctx context.Context, id uuid.UUID, source enums.PaidSource) (*MarkPaidResult, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{"document_id": id.String(), "paid_source": string(source)})

	changed, err := s.repo.MarkPaid(ctx, id, s.now().In(s.loc))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark document paid")
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !changed {
		switch doc.Status {
		case enums.DocumentStatusPaid:
			return &MarkPaidResult{Document: doc}, nil
		case enums.DocumentStatusCanceled:
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "canceled documents cannot be paid").
				WithDetails(map[string]any{"number": doc.Number, "status": doc.Status})
		default:
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "document changed concurrently, retry")
		}
	}

	ctx = s.logg.WithDocumentNumber(ctx, doc.Number)
	s.logg.Info(ctx, "document marked paid")
	if s.metrics != nil {
		s.metrics.DocumentPaid(source)
	}

	result := &MarkPaidResult{Document: doc, Changed: true}
	if doc.Type != enums.DocumentTypeProforma {
		return result, nil
	}

	invoice, err := s.EnsureInvoice(ctx, doc, source)
	if err != nil {
		s.logg.Error(ctx, "invoice creation failed after payment, manual recovery required", err)
		s.alert(ctx, alerts.Alert{
			Kind:    alerts.KindInvoiceFailed,
			Subject: "Invoice not issued for paid proforma " + doc.Number,
			Message: "The proforma is paid but its final invoice could not be issued. The missing-invoice job will retry.",
			Fields:  map[string]string{"proforma": doc.Number, "order_id": doc.OrderID, "error": err.Error()},
		})
		return result, nil
	}
	result.Invoice = invoice
	return result, nil
}

// EnsureInvoice issues the final invoice for a paid proforma unless the order
// already has one. The invoice copies the proforma amounts and customer data.
func (s *service) EnsureInvoice(ctx context.Context, proforma *models.Document, source enums.PaidSource) (*models.Document, error) {
	if proforma == nil || proforma.Type != enums.DocumentTypeProforma {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proforma required")
	}
	if proforma.Status != enums.DocumentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "proforma is not paid")
	}

	existing, err := s.repo.FindByOrderAndType(ctx, proforma.OrderID, enums.DocumentTypeInvoice)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup existing invoice")
	}

	issuedAt := s.now().In(s.loc)
	paidAt := issuedAt
	if proforma.PaidAt != nil {
		paidAt = *proforma.PaidAt
	}

	meta := proforma.Metadata
	meta.LineItems = append([]types.LineItem(nil), proforma.Metadata.LineItems...)
	if proforma.Metadata.BillingAddress != nil {
		addr := *proforma.Metadata.BillingAddress
		meta.BillingAddress = &addr
	}
	meta.ProformaNumber = proforma.Number
	meta.PaidSource = string(source)

	invoice := &models.Document{
		ID:             uuid.New(),
		OrderID:        proforma.OrderID,
		Type:           enums.DocumentTypeInvoice,
		Status:         enums.DocumentStatusPaid,
		VariableSymbol: proforma.VariableSymbol,
		IssuedAt:       issuedAt,
		DueAt:          issuedAt.AddDate(0, 0, s.invoiceDue),
		PaidAt:         &paidAt,
		CurrencyCode:   proforma.CurrencyCode,
		Subtotal:       proforma.Subtotal,
		TaxTotal:       proforma.TaxTotal,
		Total:          proforma.Total,
		Metadata:       meta,
		CreatedAt:      issuedAt,
		UpdatedAt:      issuedAt,
	}
	doc, _, err := s.issue(ctx, invoice)
	return doc, err
}

// SettleOrder is the card-payment path: an open proforma is marked paid,
// otherwise the invoice is issued directly from the order.
func (s *service) SettleOrder(ctx context.Context, orderID string, source enums.PaidSource) (*models.Document, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	invoice, err := s.repo.FindByOrderAndType(ctx, orderID, enums.DocumentTypeInvoice)
	if err == nil {
		return invoice, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup invoice")
	}

	proforma, err := s.repo.FindByOrderAndType(ctx, orderID, enums.DocumentTypeProforma)
	switch {
	case err == nil && proforma.Status != enums.DocumentStatusCanceled:
		res, err := s.MarkPaid(ctx, proforma.ID, source)
		if err != nil {
			return nil, err
		}
		if res.Invoice != nil {
			return res.Invoice, nil
		}
		return s.EnsureInvoice(ctx, res.Document, source)
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup proforma")
	}

	doc, issued, err := s.createDocument(ctx, orderID, enums.DocumentTypeInvoice)
	if err != nil {
		return nil, err
	}
	if issued && s.metrics != nil {
		s.metrics.DocumentPaid(source)
	}
	return doc, nil
}

// CancelDocument moves an unpaid document to the terminal canceled status.
func (s *service) CancelDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	changed, err := s.repo.Cancel(ctx, id, s.now().In(s.loc))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel document")
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed && doc.Status == enums.DocumentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "paid documents cannot be canceled").
			WithDetails(map[string]any{"number": doc.Number})
	}
	if changed {
		s.logg.Info(s.logg.WithDocumentNumber(ctx, doc.Number), "document canceled")
	}
	return doc, nil
}

// RegenerateDocumentPDF renders and uploads the document again.
func (s *service) RegenerateDocumentPDF(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithDocumentNumber(ctx, doc.Number)
	url, err := s.renderAndStore(ctx, doc)
	if err != nil {
		return nil, err
	}
	doc.PDFURL = &url
	return doc, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "document")
	}
	return doc, nil
}

func (s *service) GetByNumber(ctx context.Context, number string) (*models.Document, error) {
	doc, err := s.repo.FindByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return nil, lookupError(err, "document")
	}
	return doc, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*DocumentList, error) {
	list, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list documents")
	}
	return list, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID string) ([]models.Document, error) {
	docs, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order documents")
	}
	return docs, nil
}

func (s *service) FindOpenProformaBySymbol(ctx context.Context, symbol string) (*models.Document, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variable symbol is required")
	}
	doc, err := s.repo.FindOpenProformaBySymbol(ctx, symbol)
	if err != nil {
		return nil, lookupError(err, "open proforma")
	}
	return doc, nil
}

func (s *service) ListMissingPDF(ctx context.Context, olderThan time.Duration, limit int) ([]models.Document, error) {
	return s.repo.ListMissingPDF(ctx, s.now().Add(-olderThan), limit)
}

func (s *service) ListPaidProformasWithoutInvoice(ctx context.Context, olderThan time.Duration, limit int) ([]models.Document, error) {
	return s.repo.ListPaidProformasWithoutInvoice(ctx, s.now().Add(-olderThan), limit)
}

func (s *service) alert(ctx context.Context, alert alerts.Alert) {
	if s.alerts == nil {
		s.logg.Warn(ctx, "operator alert dropped, no notifier: "+alert.Subject)
		return
	}
	if err := s.alerts.Notify(ctx, alert); err != nil {
		s.logg.Error(ctx, "operator alert failed", err)
	}
}

func lookupError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load "+what)
}

// VariableSymbol derives the bank payment reference from the order display id.
func VariableSymbol(order *orders.Order) string {
	if order == nil {
		return ""
	}
	if order.DisplayID > 0 {
		return strconv.FormatInt(order.DisplayID, 10)
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, order.ID)
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return strings.TrimLeft(digits, "0")
}
