package enums

import "strings"

// PaymentMethod is how the storefront order is paid.
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
)

// ParsePaymentMethod normalizes provider ids used by the storefront. Unknown
// values are treated as bank transfer so a proforma is issued.
func ParsePaymentMethod(value string) PaymentMethod {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case v == string(PaymentMethodCard), strings.Contains(v, "square"), strings.Contains(v, "card"):
		return PaymentMethodCard
	default:
		return PaymentMethodBankTransfer
	}
}

// DocumentType returns the document issued when an order is placed.
func (p PaymentMethod) DocumentType() DocumentType {
	if p == PaymentMethodCard {
		return DocumentTypeInvoice
	}
	return DocumentTypeProforma
}
