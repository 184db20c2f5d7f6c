package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/settlement-engine/internal/bootstrap"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/money"
)

func newDocumentsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Issue, settle and render documents",
	}
	cmd.AddCommand(
		newDocumentsCreateCmd(c),
		newDocumentsMarkPaidCmd(c),
		newDocumentsRenderCmd(c),
	)
	return cmd
}

func newDocumentsCreateCmd(c *cli) *cobra.Command {
	var orderID, docType string
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Issue a proforma or invoice for an order",
		Example: `  settlementctl documents create --order 1042 --type proforma`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := enums.ParseDocumentType(docType)
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				doc, err := app.Documents.CreateDocument(cmd.Context(), strings.TrimSpace(orderID), parsed)
				if err != nil {
					return err
				}
				printDocument(cmd.OutOrStdout(), doc)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orderID, "order", "", "storefront order id")
	cmd.Flags().StringVar(&docType, "type", "", "document type (proforma|invoice)")
	_ = cmd.MarkFlagRequired("order")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newDocumentsMarkPaidCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "mark-paid <number|id>",
		Short:   "Mark a document paid; a paid proforma also gets its final invoice",
		Example: `  settlementctl documents mark-paid ZF2026-0042`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				doc, err := resolveDocument(cmd.Context(), app, args[0])
				if err != nil {
					return err
				}
				result, err := app.Documents.MarkPaid(cmd.Context(), doc.ID, enums.PaidSourceCLI)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !result.Changed {
					fmt.Fprintf(out, "%s was already paid\n", result.Document.Number)
				}
				printDocument(out, result.Document)
				if result.Invoice != nil {
					printDocument(out, result.Invoice)
				}
				return nil
			})
		},
	}
}

func newDocumentsRenderCmd(c *cli) *cobra.Command {
	var (
		outPath string
		asHTML  bool
	)
	cmd := &cobra.Command{
		Use:   "render <number|id>",
		Short: "Render a document to a local file without uploading it",
		Example: `  settlementctl documents render FV2026-0007 --out FV2026-0007.pdf
  settlementctl documents render FV2026-0007 --html --out preview.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				doc, err := resolveDocument(cmd.Context(), app, args[0])
				if err != nil {
					return err
				}
				var data []byte
				if asHTML {
					html, err := app.Renderer.HTML(cmd.Context(), doc)
					if err != nil {
						return err
					}
					data = []byte(html)
				} else {
					data, err = app.Renderer.Render(cmd.Context(), doc)
					if err != nil {
						return err
					}
				}
				path := outPath
				if path == "" {
					path = doc.Number + ".pdf"
					if asHTML {
						path = doc.Number + ".html"
					}
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(data))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output file, defaults to <number>.pdf")
	cmd.Flags().BoolVar(&asHTML, "html", false, "write the HTML source instead of the PDF")
	return cmd
}

// resolveDocument accepts either a document number or its UUID.
func resolveDocument(ctx context.Context, app *bootstrap.App, ref string) (*models.Document, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return app.Documents.Get(ctx, id)
	}
	return app.Documents.GetByNumber(ctx, strings.ToUpper(ref))
}

func printDocument(w io.Writer, doc *models.Document) {
	if doc == nil {
		return
	}
	pdf := "-"
	if doc.PDFURL != nil {
		pdf = *doc.PDFURL
	}
	fmt.Fprintf(w, "%s\t%s\t%s\torder=%s\ttotal=%s\tpdf=%s\n",
		doc.Number, doc.Type, doc.Status, doc.OrderID,
		money.FormatLocalized(doc.Total, doc.CurrencyCode), pdf)
}
