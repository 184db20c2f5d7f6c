package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/settlement-engine/internal/bootstrap"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

func newNumberCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "number",
		Short: "Document number sequences",
	}

	var (
		docType string
		year    int
	)
	next := &cobra.Command{
		Use:   "next",
		Short: "Allocate the next document number",
		Long: `Allocates and prints the next number of a sequence. The number is
consumed: it will not be handed out again, so only use this to reserve a
number for a document issued outside the engine.`,
		Example: `  settlementctl number next --type invoice
  settlementctl number next --type proforma --year 2026`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := enums.ParseDocumentType(docType)
			if err != nil {
				return err
			}
			if year < 0 {
				return fmt.Errorf("year must be positive")
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				number, err := app.Numbers.NextNumber(cmd.Context(), parsed, year)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), number)
				return nil
			})
		},
	}
	next.Flags().StringVar(&docType, "type", "", "document type (proforma|invoice)")
	next.Flags().IntVar(&year, "year", 0, "fiscal year, defaults to the current year")
	_ = next.MarkFlagRequired("type")

	cmd.AddCommand(next)
	return cmd
}
