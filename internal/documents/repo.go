package documents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a documents repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, doc *models.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repository) FindByNumber(ctx context.Context, number string) (*models.Document, error) {
	var doc models.Document
	if err := r.db.WithContext(ctx).Where("number = ?", number).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repository) FindByOrderAndType(ctx context.Context, orderID string, docType enums.DocumentType) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND type = ?", orderID, docType).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID string) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("issued_at ASC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// FindOpenProformaBySymbol returns the oldest unpaid proforma carrying symbol.
func (r *repository) FindOpenProformaBySymbol(ctx context.Context, symbol string) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).
		Where("type = ? AND status IN ? AND variable_symbol = ?", enums.DocumentTypeProforma, enums.OpenDocumentStatuses, symbol).
		Order("issued_at ASC").
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) (*DocumentList, error) {
	limit := params.EffectiveLimit()

	query := r.db.WithContext(ctx).Model(&models.Document{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.OrderID != "" {
		query = query.Where("order_id = ?", filters.OrderID)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(issued_at < ?) OR (issued_at = ? AND id < ?)", cursor.IssuedAt, cursor.IssuedAt, cursor.ID)
	}

	var docs []models.Document
	if err := query.Order("issued_at DESC").Order("id DESC").Limit(limit + 1).Find(&docs).Error; err != nil {
		return nil, err
	}

	page, next := pagination.Trim(docs, limit, func(d models.Document) pagination.Cursor {
		return pagination.Cursor{IssuedAt: d.IssuedAt, ID: d.ID}
	})
	return &DocumentList{Documents: page, NextCursor: next}, nil
}

// MarkPaid flips an open document to paid. It reports false when another
// caller already settled or canceled the document.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND status IN ?", id, enums.OpenDocumentStatuses).
		Updates(map[string]any{
			"status":     enums.DocumentStatusPaid,
			"paid_at":    paidAt,
			"updated_at": paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Cancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND status IN ?", id, enums.OpenDocumentStatuses).
		Updates(map[string]any{
			"status":     enums.DocumentStatusCanceled,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdatePDFURL(ctx context.Context, id uuid.UUID, url string) error {
	return r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Update("pdf_url", url).Error
}

func (r *repository) ListMissingPDF(ctx context.Context, createdBefore time.Time, limit int) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Where("pdf_url IS NULL AND status <> ? AND created_at <= ?", enums.DocumentStatusCanceled, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// ListPaidProformasWithoutInvoice finds settled proformas whose invoice was never issued.
func (r *repository) ListPaidProformasWithoutInvoice(ctx context.Context, paidBefore time.Time, limit int) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND paid_at <= ?", enums.DocumentTypeProforma, enums.DocumentStatusPaid, paidBefore).
		Where("NOT EXISTS (SELECT 1 FROM documents inv WHERE inv.order_id = documents.order_id AND inv.type = ?)", enums.DocumentTypeInvoice).
		Order("paid_at ASC").
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}
