package renderer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

//go:embed templates/document.html
var templateFS embed.FS

var documentTemplate = template.Must(template.ParseFS(templateFS, "templates/document.html"))

// Printer converts a self-contained HTML page into PDF bytes.
type Printer interface {
	Print(ctx context.Context, html string) ([]byte, error)
}

// Renderer produces the printable PDF for a financial document.
type Renderer struct {
	printer Printer
	issuer  Issuer
	loc     *time.Location
	logg    *logger.Logger
}

func New(printer Printer, issuer Issuer, loc *time.Location, logg *logger.Logger) (*Renderer, error) {
	if printer == nil {
		return nil, errors.New("pdf printer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{printer: printer, issuer: issuer, loc: loc, logg: logg}, nil
}

func (r *Renderer) Render(ctx context.Context, doc *models.Document) ([]byte, error) {
	html, err := r.HTML(ctx, doc)
	if err != nil {
		return nil, err
	}
	pdf, err := r.printer.Print(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("print %s: %w", doc.Number, err)
	}
	return pdf, nil
}

// HTML renders the document page. The payment QR code is only included when
// a destination account is configured; encoding failures drop the code.
func (r *Renderer) HTML(ctx context.Context, doc *models.Document) (string, error) {
	if doc == nil {
		return "", errors.New("document is required")
	}
	view := buildView(doc, r.issuer, r.loc)

	if r.issuer.IBAN != "" {
		payload, err := PaymentString(r.issuer.IBAN, doc.Total, doc.CurrencyCode, doc.VariableSymbol)
		if err == nil {
			var uri string
			uri, err = QRDataURI(payload)
			if err == nil {
				view.PaymentString = payload
				view.PaymentCode = template.URL(uri)
			}
		}
		if err != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "payment code omitted")
		}
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
