package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

func TestSettlementMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)
	m.DocumentCreated(enums.DocumentTypeProforma)
	m.DocumentCreated(enums.DocumentTypeProforma)
	m.DocumentPaid(enums.PaidSourceBank)
	m.WebhookHandled(enums.WebhookActionAuthorized)
	m.BankNotification("matched")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	cases := []struct {
		name, label, value string
		want               float64
	}{
		{"settlement_documents_created_total", "type", "proforma", 2},
		{"settlement_documents_paid_total", "source", "bank", 1},
		{"settlement_gateway_webhooks_total", "action", "authorized", 1},
		{"settlement_bank_notifications_total", "outcome", "matched", 1},
	}
	for _, tc := range cases {
		got, err := fetchCounterValue(mfs, tc.name, tc.label, tc.value)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSettlementMetricsNilSafe(t *testing.T) {
	var m *SettlementMetrics
	m.DocumentCreated(enums.DocumentTypeInvoice)
	NewSettlementMetrics(nil).DocumentPaid(enums.PaidSourceManual)
}
