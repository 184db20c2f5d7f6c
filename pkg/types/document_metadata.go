package types

// LineItem is a denormalized order line printed on a document.
type LineItem struct {
	Title     string `json:"title"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	// TaxRate is in basis points, 2100 = 21 %.
	TaxRate  int64 `json:"tax_rate"`
	Subtotal int64 `json:"subtotal"`
	TaxTotal int64 `json:"tax_total"`
	Total    int64 `json:"total"`
}

// DocumentMetadata holds reconciliation keys and customer display fields.
type DocumentMetadata struct {
	VariableSymbol string     `json:"variable_symbol"`
	ReverseCharge  bool       `json:"reverse_charge"`
	OrderDisplayID string     `json:"order_display_id,omitempty"`
	CustomerID     string     `json:"customer_id,omitempty"`
	CustomerEmail  string     `json:"customer_email,omitempty"`
	CustomerName   string     `json:"customer_name,omitempty"`
	CompanyName    string     `json:"company_name,omitempty"`
	CompanyID      string     `json:"company_id,omitempty"`
	VATID          string     `json:"vat_id,omitempty"`
	VATStatus      string     `json:"vat_status,omitempty"`
	PaymentMethod  string     `json:"payment_method,omitempty"`
	BillingAddress *Address   `json:"billing_address,omitempty"`
	LineItems      []LineItem `json:"line_items,omitempty"`
	// ProformaNumber links an invoice back to the proforma it settles.
	ProformaNumber string `json:"proforma_number,omitempty"`
	PaidSource     string `json:"paid_source,omitempty"`
}
