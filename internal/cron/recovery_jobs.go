package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const (
	defaultRecoveryMinAge = 10 * time.Minute
	defaultRecoveryBatch  = 50
)

type invoiceRecoverer interface {
	ListPaidProformasWithoutInvoice(ctx context.Context, olderThan time.Duration, limit int) ([]models.Document, error)
	EnsureInvoice(ctx context.Context, proforma *models.Document, source enums.PaidSource) (*models.Document, error)
}

type pdfRecoverer interface {
	ListMissingPDF(ctx context.Context, olderThan time.Duration, limit int) ([]models.Document, error)
	RegenerateDocumentPDF(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

// RecoveryJobParams configure both recovery jobs. MinAge keeps the jobs away
// from documents still being issued by a live request.
type RecoveryJobParams struct {
	Logger *logger.Logger
	MinAge time.Duration
	Batch  int
}

func (p RecoveryJobParams) normalized() (time.Duration, int) {
	minAge := p.MinAge
	if minAge <= 0 {
		minAge = defaultRecoveryMinAge
	}
	batch := p.Batch
	if batch <= 0 {
		batch = defaultRecoveryBatch
	}
	return minAge, batch
}

// NewMissingInvoiceJob issues final invoices for paid proformas whose invoice
// creation failed after the payment was recorded.
func NewMissingInvoiceJob(params RecoveryJobParams, docs invoiceRecoverer) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if docs == nil {
		return nil, fmt.Errorf("document service required")
	}
	minAge, batch := params.normalized()
	return &missingInvoiceJob{logg: params.Logger, docs: docs, minAge: minAge, batch: batch}, nil
}

type missingInvoiceJob struct {
	logg   *logger.Logger
	docs   invoiceRecoverer
	minAge time.Duration
	batch  int
}

func (j *missingInvoiceJob) Name() string { return "missing-invoice" }

func (j *missingInvoiceJob) Run(ctx context.Context) error {
	proformas, err := j.docs.ListPaidProformasWithoutInvoice(ctx, j.minAge, j.batch)
	if err != nil {
		return fmt.Errorf("list paid proformas without invoice: %w", err)
	}
	var errs error
	issued := 0
	for i := range proformas {
		proforma := proformas[i]
		docCtx := j.logg.WithDocumentNumber(ctx, proforma.Number)
		source := enums.PaidSource(proforma.Metadata.PaidSource)
		if source == "" {
			source = enums.PaidSourceManual
		}
		invoice, err := j.docs.EnsureInvoice(docCtx, &proforma, source)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invoice for %s: %w", proforma.Number, err))
			continue
		}
		issued++
		j.logg.Info(j.logg.WithField(docCtx, "invoice_number", invoice.Number), "missing invoice issued")
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(proformas),
		"issued":     issued,
	}), "missing invoice recovery complete")
	return errs
}

// NewMissingPDFJob renders and uploads documents whose PDF never got stored.
func NewMissingPDFJob(params RecoveryJobParams, docs pdfRecoverer) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if docs == nil {
		return nil, fmt.Errorf("document service required")
	}
	minAge, batch := params.normalized()
	return &missingPDFJob{logg: params.Logger, docs: docs, minAge: minAge, batch: batch}, nil
}

type missingPDFJob struct {
	logg   *logger.Logger
	docs   pdfRecoverer
	minAge time.Duration
	batch  int
}

func (j *missingPDFJob) Name() string { return "missing-pdf" }

func (j *missingPDFJob) Run(ctx context.Context) error {
	docs, err := j.docs.ListMissingPDF(ctx, j.minAge, j.batch)
	if err != nil {
		return fmt.Errorf("list documents without pdf: %w", err)
	}
	var errs error
	stored := 0
	for _, doc := range docs {
		if _, err := j.docs.RegenerateDocumentPDF(ctx, doc.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("pdf for %s: %w", doc.Number, err))
			continue
		}
		stored++
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(docs),
		"stored":     stored,
	}), "missing pdf recovery complete")
	return errs
}
