package documents

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

func TestExportXLSXWritesHeaderAndRows(t *testing.T) {
	issued := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	paid := issued.Add(48 * time.Hour)
	url := "https://files.example.com/documents/2026/FV2026-0001.pdf"
	docs := []models.Document{
		{
			Number: "ZF2026-0001", Type: enums.DocumentTypeProforma, Status: enums.DocumentStatusPaid,
			OrderID: "1042", VariableSymbol: "1042", IssuedAt: issued, DueAt: issued.AddDate(0, 0, 7), PaidAt: &paid,
			CurrencyCode: "CZK", Subtotal: 14132, TaxTotal: 2968, Total: 17100,
		},
		{
			Number: "FV2026-0001", Type: enums.DocumentTypeInvoice, Status: enums.DocumentStatusPaid,
			OrderID: "1042", VariableSymbol: "1042", IssuedAt: paid, DueAt: paid, PaidAt: &paid,
			CurrencyCode: "CZK", Subtotal: 14132, TaxTotal: 2968, Total: 17100, PDFURL: &url,
		},
	}

	f, err := ExportXLSX(docs, time.UTC)
	require.NoError(t, err)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	book, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeaders, rows[0])
	assert.Equal(t, "ZF2026-0001", rows[1][0])
	assert.Equal(t, "2026-03-04", rows[1][7])
	assert.Equal(t, "171", rows[1][11])
	assert.Equal(t, url, rows[2][13])
}

func TestExportXLSXEmptyList(t *testing.T) {
	f, err := ExportXLSX(nil, nil)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
