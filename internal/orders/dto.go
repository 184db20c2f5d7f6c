package orders

import (
	"strings"
	"time"

	"github.com/angelmondragon/settlement-engine/pkg/types"
)

// Order is the read-only view of a storefront order.
type Order struct {
	ID              string         `json:"id"`
	DisplayID       int64          `json:"display_id"`
	Email           string         `json:"email"`
	CustomerID      string         `json:"customer_id,omitempty"`
	CurrencyCode    string         `json:"currency_code"`
	Subtotal        int64          `json:"subtotal"`
	TaxTotal        int64          `json:"tax_total"`
	Total           int64          `json:"total"`
	Items           []LineItem     `json:"items"`
	ShippingAddress *types.Address `json:"shipping_address,omitempty"`
	BillingAddress  *types.Address `json:"billing_address,omitempty"`
	PaymentProvider string         `json:"payment_provider,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// LineItem mirrors one order line. Amounts are minor units; TaxRate is basis points.
type LineItem struct {
	Title     string `json:"title"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	TaxRate   int64  `json:"tax_rate"`
	Subtotal  int64  `json:"subtotal"`
	TaxTotal  int64  `json:"tax_total"`
	Total     int64  `json:"total"`
}

// MetadataString returns a trimmed string value from the order metadata.
func (o *Order) MetadataString(key string) string {
	if o == nil || o.Metadata == nil {
		return ""
	}
	if v, ok := o.Metadata[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Address prefers the billing address and falls back to shipping.
func (o *Order) Address() *types.Address {
	if o == nil {
		return nil
	}
	if o.BillingAddress != nil {
		return o.BillingAddress
	}
	return o.ShippingAddress
}
