package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/internal/orders"
)

func TestReverseChargeEligible(t *testing.T) {
	cases := []struct {
		name   string
		status string
		vatID  string
		want   bool
	}{
		{name: "foreign valid", status: "valid", vatID: "SK2020000000", want: true},
		{name: "domestic valid", status: "valid", vatID: "CZ12345678", want: false},
		{name: "foreign invalid", status: "invalid", vatID: "SK2020000000", want: false},
		{name: "foreign unavailable", status: "unavailable", vatID: "DE123456789", want: false},
		{name: "no status", status: "", vatID: "DE123456789", want: false},
		{name: "malformed id", status: "valid", vatID: "12", want: false},
		{name: "case insensitive", status: "VALID", vatID: "de123456789", want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ReverseChargeEligible(tc.status, tc.vatID, "CZ"))
		})
	}
}

func TestComputeTotals(t *testing.T) {
	standard := ComputeTotals(14132, 2968, false)
	require.Equal(t, Totals{Subtotal: 14132, TaxTotal: 2968, Total: 17100}, standard)

	reverse := ComputeTotals(14132, 2968, true)
	require.Equal(t, int64(0), reverse.TaxTotal)
	require.Equal(t, reverse.Subtotal, reverse.Total)
}

func TestLineItemsReverseCharge(t *testing.T) {
	items := []orders.LineItem{{Title: "Tea", Quantity: 2, UnitPrice: 7066, TaxRate: 2100, Subtotal: 14132, TaxTotal: 2968}}

	standard := LineItems(items, false)
	require.Equal(t, int64(17100), standard[0].Total)
	require.Equal(t, int64(2100), standard[0].TaxRate)

	reverse := LineItems(items, true)
	require.Equal(t, int64(0), reverse[0].TaxRate)
	require.Equal(t, int64(0), reverse[0].TaxTotal)
	require.Equal(t, int64(14132), reverse[0].Total)
}
