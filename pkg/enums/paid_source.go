package enums

// PaidSource records which trigger settled a document.
type PaidSource string

const (
	PaidSourceManual  PaidSource = "manual"
	PaidSourceBank    PaidSource = "bank"
	PaidSourceGateway PaidSource = "gateway"
	PaidSourceCLI     PaidSource = "cli"
)

func (p PaidSource) String() string {
	return string(p)
}
