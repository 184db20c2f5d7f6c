package documents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/vat"
	"github.com/angelmondragon/settlement-engine/pkg/alerts"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

// Repository defines persistence operations for the documents table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	FindByNumber(ctx context.Context, number string) (*models.Document, error)
	FindByOrderAndType(ctx context.Context, orderID string, docType enums.DocumentType) (*models.Document, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.Document, error)
	FindOpenProformaBySymbol(ctx context.Context, symbol string) (*models.Document, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*DocumentList, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	UpdatePDFURL(ctx context.Context, id uuid.UUID, url string) error
	ListMissingPDF(ctx context.Context, createdBefore time.Time, limit int) ([]models.Document, error)
	ListPaidProformasWithoutInvoice(ctx context.Context, paidBefore time.Time, limit int) ([]models.Document, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NumberAllocator hands out document numbers inside the caller's transaction.
type NumberAllocator interface {
	Next(ctx context.Context, tx *gorm.DB, docType enums.DocumentType, year int) (string, error)
}

// Renderer turns a document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, doc *models.Document) ([]byte, error)
}

// BlobStore persists rendered files and returns their public URL.
type BlobStore interface {
	Store(ctx context.Context, path string, data []byte) (string, error)
}

// Mailer sends best-effort customer e-mail. Implementations must not block.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string)
}

// Recorder receives lifecycle counters.
type Recorder interface {
	DocumentCreated(docType enums.DocumentType)
	DocumentPaid(source enums.PaidSource)
}

type (
	OrderReader  = orders.Reader
	VATValidator = vat.Validator
	Alerter      = alerts.Notifier
)
