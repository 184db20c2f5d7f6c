package documents

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/money"
)

const backgroundPublishTimeout = 2 * time.Minute

type deferredArtifactsKey struct{}

// WithDeferredArtifacts marks ctx so documents issued under it are rendered,
// stored and mailed in the background.
func WithDeferredArtifacts(ctx context.Context) context.Context {
	return context.WithValue(ctx, deferredArtifactsKey{}, true)
}

// ArtifactsDeferred reports whether ctx was marked by WithDeferredArtifacts.
func ArtifactsDeferred(ctx context.Context) bool {
	deferred, _ := ctx.Value(deferredArtifactsKey{}).(bool)
	return deferred
}

// ObjectPath is the blob key a document PDF is stored under.
func ObjectPath(doc *models.Document) string {
	return fmt.Sprintf("documents/%d/%s.pdf", doc.IssuedAt.Year(), doc.Number)
}

// publish renders and stores the PDF, then mails the customer. A failed PDF
// is left to the missing-PDF job.
func (s *service) publish(ctx context.Context, doc *models.Document) {
	if url, err := s.renderAndStore(ctx, doc); err != nil {
		s.logg.Error(ctx, "document pdf not published, left for recovery", err)
	} else {
		doc.PDFURL = &url
	}
	s.notifyCustomer(ctx, doc)
}

func (s *service) renderAndStore(ctx context.Context, doc *models.Document) (string, error) {
	pdf, err := s.renderer.Render(ctx, doc)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "render document")
	}
	url, err := s.store.Store(ctx, ObjectPath(doc), pdf)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store document")
	}
	if err := s.repo.UpdatePDFURL(ctx, doc.ID, url); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save pdf url")
	}
	return url, nil
}

func (s *service) notifyCustomer(ctx context.Context, doc *models.Document) {
	to := strings.TrimSpace(doc.Metadata.CustomerEmail)
	if s.mailer == nil || to == "" {
		return
	}
	subject := fmt.Sprintf("%s %s", doc.Type.Label(), doc.Number)
	s.mailer.Send(ctx, to, subject, customerEmailHTML(doc))
}

func customerEmailHTML(doc *models.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>%s <strong>%s</strong></p>", html.EscapeString(doc.Type.Label()), html.EscapeString(doc.Number))
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(money.FormatLocalized(doc.Total, doc.CurrencyCode)))
	if doc.Status.IsOpen() {
		fmt.Fprintf(&b, "<p>Variabilní symbol: %s<br>Splatnost: %s</p>",
			html.EscapeString(doc.VariableSymbol), doc.DueAt.Format("02.01.2006"))
	}
	if doc.PDFURL != nil {
		fmt.Fprintf(&b, `<p><a href="%s">PDF</a></p>`, html.EscapeString(*doc.PDFURL))
	}
	return b.String()
}
