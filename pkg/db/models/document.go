package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

// Document is a proforma or final invoice issued for an order.
type Document struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        string                 `gorm:"column:order_id;not null;uniqueIndex:ux_documents_order_type,priority:1"`
	Type           enums.DocumentType     `gorm:"column:type;not null;uniqueIndex:ux_documents_order_type,priority:2"`
	Number         string                 `gorm:"column:number;not null;uniqueIndex:ux_documents_number"`
	Status         enums.DocumentStatus   `gorm:"column:status;not null;index:ix_documents_status"`
	VariableSymbol string                 `gorm:"column:variable_symbol;index:ix_documents_variable_symbol"`
	IssuedAt       time.Time              `gorm:"column:issued_at;not null"`
	DueAt          time.Time              `gorm:"column:due_at;not null"`
	PaidAt         *time.Time             `gorm:"column:paid_at"`
	CurrencyCode   string                 `gorm:"column:currency_code;not null"`
	Subtotal       int64                  `gorm:"column:subtotal;not null"`
	TaxTotal       int64                  `gorm:"column:tax_total;not null"`
	Total          int64                  `gorm:"column:total;not null"`
	PDFURL         *string                `gorm:"column:pdf_url"`
	Metadata       types.DocumentMetadata `gorm:"column:metadata;type:jsonb;serializer:json"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (Document) TableName() string { return "documents" }
