package enums

// WebhookAction is the processed outcome reported back for a gateway webhook.
type WebhookAction string

const (
	WebhookActionAuthorized   WebhookAction = "authorized"
	WebhookActionCanceled     WebhookAction = "canceled"
	WebhookActionPending      WebhookAction = "pending"
	WebhookActionFailed       WebhookAction = "failed"
	WebhookActionNotSupported WebhookAction = "not_supported"
)

// String implements fmt.Stringer.
func (w WebhookAction) String() string {
	return string(w)
}

// IsTerminal reports whether replaying the same event can no longer change the outcome.
func (w WebhookAction) IsTerminal() bool {
	return w == WebhookActionAuthorized || w == WebhookActionCanceled
}

// WebhookActionForStatus maps a verified payment status to the webhook action.
func WebhookActionForStatus(status PaymentStatus) WebhookAction {
	switch status {
	case PaymentStatusAuthorized:
		return WebhookActionAuthorized
	case PaymentStatusCanceled:
		return WebhookActionCanceled
	case PaymentStatusRefunded:
		return WebhookActionNotSupported
	default:
		return WebhookActionPending
	}
}
