package enums

import "fmt"

// DocumentStatus tracks the lifecycle of a financial document.
type DocumentStatus string

const (
	DocumentStatusDraft    DocumentStatus = "draft"
	DocumentStatusSent     DocumentStatus = "sent"
	DocumentStatusPaid     DocumentStatus = "paid"
	DocumentStatusCanceled DocumentStatus = "canceled"
)

var validDocumentStatuses = []DocumentStatus{
	DocumentStatusDraft,
	DocumentStatusSent,
	DocumentStatusPaid,
	DocumentStatusCanceled,
}

// OpenDocumentStatuses are the statuses a document can be settled from.
var OpenDocumentStatuses = []DocumentStatus{
	DocumentStatusDraft,
	DocumentStatusSent,
}

// String implements fmt.Stringer.
func (s DocumentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s DocumentStatus) IsValid() bool {
	for _, candidate := range validDocumentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the document still awaits payment.
func (s DocumentStatus) IsOpen() bool {
	return s == DocumentStatusDraft || s == DocumentStatusSent
}

// ParseDocumentStatus converts raw input into a DocumentStatus.
func ParseDocumentStatus(value string) (DocumentStatus, error) {
	for _, candidate := range validDocumentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document status %q", value)
}
