package documents

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/money"
)

const exportSheet = "Documents"

var exportHeaders = []string{
	"Number", "Type", "Status", "Order", "Variable symbol",
	"Issued", "Due", "Paid", "Currency", "Subtotal", "Tax", "Total", "Reverse charge", "PDF",
}

// ExportXLSX writes documents into a single-sheet workbook. The caller closes
// the returned file.
func ExportXLSX(docs []models.Document, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, h)
		_ = f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	for i, doc := range docs {
		paid := ""
		if doc.PaidAt != nil {
			paid = doc.PaidAt.In(loc).Format(time.DateOnly)
		}
		pdf := ""
		if doc.PDFURL != nil {
			pdf = *doc.PDFURL
		}
		row := []any{
			doc.Number,
			string(doc.Type),
			string(doc.Status),
			doc.OrderID,
			doc.VariableSymbol,
			doc.IssuedAt.In(loc).Format(time.DateOnly),
			doc.DueAt.In(loc).Format(time.DateOnly),
			paid,
			doc.CurrencyCode,
			money.Decimal(doc.Subtotal).InexactFloat64(),
			money.Decimal(doc.TaxTotal).InexactFloat64(),
			money.Decimal(doc.Total).InexactFloat64(),
			doc.Metadata.ReverseCharge,
			pdf,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	widths := []float64{14, 10, 10, 12, 14, 12, 12, 12, 8, 12, 12, 12, 8, 40}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(exportSheet, col, col, w)
	}
	return f, nil
}
