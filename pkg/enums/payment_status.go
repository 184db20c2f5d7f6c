package enums

// PaymentStatus is the gateway-neutral state of a card transaction. Only
// authorized money settles a proforma.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCanceled   PaymentStatus = "canceled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusPending, PaymentStatusAuthorized, PaymentStatusCanceled, PaymentStatusRefunded:
		return true
	}
	return false
}

// Settles reports whether the payment should mark the order's proforma paid.
func (p PaymentStatus) Settles() bool {
	return p == PaymentStatusAuthorized
}

// IsTerminal reports whether the gateway will not move the transaction again
// without an explicit refund or cancel call.
func (p PaymentStatus) IsTerminal() bool {
	return p == PaymentStatusCanceled || p == PaymentStatusRefunded
}

