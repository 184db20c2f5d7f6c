package enums

import "fmt"

// DocumentType distinguishes payment requests from tax documents.
type DocumentType string

const (
	DocumentTypeProforma DocumentType = "proforma"
	DocumentTypeInvoice  DocumentType = "invoice"
)

var validDocumentTypes = []DocumentType{
	DocumentTypeProforma,
	DocumentTypeInvoice,
}

// String implements fmt.Stringer.
func (d DocumentType) String() string {
	return string(d)
}

// IsValid reports whether the value is known.
func (d DocumentType) IsValid() bool {
	for _, candidate := range validDocumentTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// NumberPrefix returns the prefix printed in front of the document number.
func (d DocumentType) NumberPrefix() string {
	switch d {
	case DocumentTypeInvoice:
		return "FV"
	case DocumentTypeProforma:
		return "ZF"
	default:
		return ""
	}
}

// Label is the human heading printed on the rendered document.
func (d DocumentType) Label() string {
	switch d {
	case DocumentTypeInvoice:
		return "Faktura - daňový doklad"
	case DocumentTypeProforma:
		return "Zálohová faktura"
	default:
		return string(d)
	}
}

// ParseDocumentType converts raw input into a DocumentType.
func ParseDocumentType(value string) (DocumentType, error) {
	for _, candidate := range validDocumentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document type %q", value)
}
