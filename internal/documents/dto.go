package documents

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/money"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

// ListFilters narrow the admin document list.
type ListFilters struct {
	Status  *enums.DocumentStatus
	Type    *enums.DocumentType
	OrderID string
}

// DocumentList wraps a page of documents plus the next cursor.
type DocumentList struct {
	Documents  []models.Document
	NextCursor string
}

// DocumentView is the API shape of a document. Amounts are major units.
type DocumentView struct {
	ID             uuid.UUID              `json:"id"`
	OrderID        string                 `json:"order_id"`
	Type           enums.DocumentType     `json:"type"`
	Number         string                 `json:"number"`
	Status         enums.DocumentStatus   `json:"status"`
	IssuedAt       time.Time              `json:"issued_at"`
	DueAt          time.Time              `json:"due_at"`
	PaidAt         *time.Time             `json:"paid_at"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	CurrencyCode   string                 `json:"currency_code"`
	Subtotal       money.Amount           `json:"subtotal"`
	TaxTotal       money.Amount           `json:"tax_total"`
	Total          money.Amount           `json:"total"`
	PDFURL         *string                `json:"pdf_url"`
	VariableSymbol string                 `json:"variable_symbol"`
	ReverseCharge  bool                   `json:"reverse_charge"`
	Metadata       types.DocumentMetadata `json:"metadata"`
}

// ListView is the API page shape.
type ListView struct {
	Documents  []DocumentView `json:"documents"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// CustomerView omits operator-only metadata.
type CustomerView struct {
	ID           uuid.UUID            `json:"id"`
	Type         enums.DocumentType   `json:"type"`
	Number       string               `json:"number"`
	Status       enums.DocumentStatus `json:"status"`
	IssuedAt     time.Time            `json:"issued_at"`
	DueAt        time.Time            `json:"due_at"`
	PaidAt       *time.Time           `json:"paid_at"`
	CurrencyCode string               `json:"currency_code"`
	Total        money.Amount         `json:"total"`
	PDFURL       *string              `json:"pdf_url"`
}

// ToView converts a stored document into its API representation.
func ToView(doc models.Document) DocumentView {
	return DocumentView{
		ID:             doc.ID,
		OrderID:        doc.OrderID,
		Type:           doc.Type,
		Number:         doc.Number,
		Status:         doc.Status,
		IssuedAt:       doc.IssuedAt,
		DueAt:          doc.DueAt,
		PaidAt:         doc.PaidAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
		CurrencyCode:   doc.CurrencyCode,
		Subtotal:       money.NewAmount(doc.Subtotal),
		TaxTotal:       money.NewAmount(doc.TaxTotal),
		Total:          money.NewAmount(doc.Total),
		PDFURL:         doc.PDFURL,
		VariableSymbol: doc.VariableSymbol,
		ReverseCharge:  doc.Metadata.ReverseCharge,
		Metadata:       doc.Metadata,
	}
}

// ToListView converts a page.
func ToListView(list *DocumentList) ListView {
	out := ListView{Documents: make([]DocumentView, 0)}
	if list == nil {
		return out
	}
	for _, doc := range list.Documents {
		out.Documents = append(out.Documents, ToView(doc))
	}
	out.NextCursor = list.NextCursor
	return out
}

// ToCustomerView converts a stored document into the customer-facing shape.
func ToCustomerView(doc models.Document) CustomerView {
	return CustomerView{
		ID:           doc.ID,
		Type:         doc.Type,
		Number:       doc.Number,
		Status:       doc.Status,
		IssuedAt:     doc.IssuedAt,
		DueAt:        doc.DueAt,
		PaidAt:       doc.PaidAt,
		CurrencyCode: doc.CurrencyCode,
		Total:        money.NewAmount(doc.Total),
		PDFURL:       doc.PDFURL,
	}
}

// MarkPaidResult reports whether the call changed the document.
type MarkPaidResult struct {
	Document *models.Document
	Invoice  *models.Document
	Changed  bool
}
