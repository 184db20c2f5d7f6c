package documents

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/vat"
	"github.com/angelmondragon/settlement-engine/pkg/alerts"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

const (
	VATStatusValid       = "valid"
	VATStatusInvalid     = "invalid"
	VATStatusUnavailable = "unavailable"
)

// Totals are the document amounts in minor units.
type Totals struct {
	Subtotal int64
	TaxTotal int64
	Total    int64
}

// ReverseChargeEligible is true only for an explicitly valid, foreign VAT id.
func ReverseChargeEligible(vatStatus, vatID, domesticCountry string) bool {
	if !strings.EqualFold(strings.TrimSpace(vatStatus), VATStatusValid) {
		return false
	}
	country, _, ok := vat.SplitID(vatID)
	if !ok {
		return false
	}
	return !strings.EqualFold(country, strings.TrimSpace(domesticCountry))
}

// ComputeTotals applies the reverse-charge rule to the order amounts.
func ComputeTotals(subtotal, taxTotal int64, reverseCharge bool) Totals {
	if reverseCharge {
		return Totals{Subtotal: subtotal, TaxTotal: 0, Total: subtotal}
	}
	return Totals{Subtotal: subtotal, TaxTotal: taxTotal, Total: subtotal + taxTotal}
}

// LineItems denormalizes order lines, zeroing line tax under reverse charge.
func LineItems(items []orders.LineItem, reverseCharge bool) []types.LineItem {
	out := make([]types.LineItem, 0, len(items))
	for _, item := range items {
		line := types.LineItem{
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
			Subtotal:  item.Subtotal,
			TaxTotal:  item.TaxTotal,
			Total:     item.Subtotal + item.TaxTotal,
		}
		if reverseCharge {
			line.TaxRate = 0
			line.TaxTotal = 0
			line.Total = line.Subtotal
		}
		out = append(out, line)
	}
	return out
}

// resolveVATStatus returns the explicit validation status for the order's VAT
// id. The order metadata wins; otherwise the validator is asked. An unavailable
// validator is reported to operators and never treated as valid.
func (s *service) resolveVATStatus(ctx context.Context, order *orders.Order) (string, string) {
	vatID := order.MetadataString("vat_id")
	if vatID == "" {
		vatID = order.MetadataString("vat_number")
	}
	status := strings.ToLower(order.MetadataString("vat_status"))
	if vatID == "" || status != "" || s.vat == nil {
		return vatID, status
	}

	country, number, ok := vat.SplitID(vatID)
	if !ok {
		return vatID, VATStatusInvalid
	}
	if strings.EqualFold(country, s.domesticCountry) {
		// domestic ids never reverse-charge, no need to ask
		return vatID, ""
	}

	res, err := s.vat.Validate(ctx, country, number)
	switch {
	case errors.Is(err, vat.ErrUnavailable):
		s.logg.Warn(s.logg.WithField(ctx, "vat_id", vatID), "vat validator unavailable, issuing without reverse charge")
		s.alert(ctx, alerts.Alert{
			Kind:    alerts.KindVATUnavailable,
			Subject: "VAT validation unavailable",
			Message: "Document issued with domestic VAT because the VAT registry did not answer.",
			Fields:  map[string]string{"order_id": order.ID, "vat_id": vatID},
		})
		return vatID, VATStatusUnavailable
	case err != nil:
		s.logg.Error(ctx, "vat validation failed", err)
		return vatID, ""
	case res.Valid:
		return vatID, VATStatusValid
	default:
		return vatID, VATStatusInvalid
	}
}
