package renderer

import (
	"html/template"
	"strings"
	"time"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/money"
)

// Issuer is the seller printed in the header of every document.
type Issuer struct {
	Name        string
	Address     string
	CompanyID   string
	VATID       string
	Email       string
	IBAN        string
	BankAccount string
}

// IssuerFromConfig maps company settings into the printed issuer block.
func IssuerFromConfig(cfg config.CompanyConfig) Issuer {
	return Issuer{
		Name:        cfg.Name,
		Address:     cfg.Address,
		CompanyID:   cfg.CompanyID,
		VATID:       cfg.VATID,
		Email:       cfg.Email,
		IBAN:        cfg.IBAN,
		BankAccount: cfg.BankAccount,
	}
}

type lineView struct {
	Title     string
	Quantity  int64
	UnitPrice string
	TaxRate   string
	Subtotal  string
	TaxTotal  string
	Total     string
}

type documentView struct {
	Label          string
	Number         string
	IsProforma     bool
	IsPaid         bool
	Issuer         Issuer
	IssuerLines    []string
	CustomerName   string
	CustomerLines  []string
	CustomerIDs    []string
	IssuedAt       string
	DueAt          string
	PaidAt         string
	VariableSymbol string
	ProformaNumber string
	Currency       string
	Lines          []lineView
	Subtotal       string
	TaxTotal       string
	Total          string
	ReverseCharge  bool
	PaymentCode    template.URL
	PaymentString  string
}

func buildView(doc *models.Document, issuer Issuer, loc *time.Location) documentView {
	meta := doc.Metadata
	cur := doc.CurrencyCode
	view := documentView{
		Label:          doc.Type.Label(),
		Number:         doc.Number,
		IsProforma:     doc.Type == enums.DocumentTypeProforma,
		IsPaid:         doc.Status == enums.DocumentStatusPaid,
		Issuer:         issuer,
		IssuedAt:       doc.IssuedAt.In(loc).Format("02.01.2006"),
		DueAt:          doc.DueAt.In(loc).Format("02.01.2006"),
		VariableSymbol: doc.VariableSymbol,
		ProformaNumber: meta.ProformaNumber,
		Currency:       cur,
		Subtotal:       money.FormatLocalized(doc.Subtotal, cur),
		TaxTotal:       money.FormatLocalized(doc.TaxTotal, cur),
		Total:          money.FormatLocalized(doc.Total, cur),
		ReverseCharge:  meta.ReverseCharge,
	}
	if doc.PaidAt != nil {
		view.PaidAt = doc.PaidAt.In(loc).Format("02.01.2006")
	}
	for _, line := range strings.Split(issuer.Address, ",") {
		if l := strings.TrimSpace(line); l != "" {
			view.IssuerLines = append(view.IssuerLines, l)
		}
	}

	view.CustomerName = meta.CompanyName
	if view.CustomerName == "" {
		view.CustomerName = meta.CustomerName
	}
	if meta.BillingAddress != nil {
		for _, l := range meta.BillingAddress.Lines() {
			if l != view.CustomerName {
				view.CustomerLines = append(view.CustomerLines, l)
			}
		}
	}
	if meta.CompanyID != "" {
		view.CustomerIDs = append(view.CustomerIDs, "IČO: "+meta.CompanyID)
	}
	if meta.VATID != "" {
		view.CustomerIDs = append(view.CustomerIDs, "DIČ: "+meta.VATID)
	}

	for _, item := range meta.LineItems {
		view.Lines = append(view.Lines, lineView{
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: money.FormatLocalized(item.UnitPrice, ""),
			TaxRate:   taxRate(item.TaxRate),
			Subtotal:  money.FormatLocalized(item.Subtotal, ""),
			TaxTotal:  money.FormatLocalized(item.TaxTotal, ""),
			Total:     money.FormatLocalized(item.Total, ""),
		})
	}
	return view
}

// taxRate prints basis points as a percentage, 2100 -> "21 %", 1250 -> "12.5 %".
func taxRate(bp int64) string {
	return money.Decimal(bp).String() + " %"
}
