package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// SettlementMetrics counts document lifecycle and payment intake events.
type SettlementMetrics struct {
	created    *prometheus.CounterVec
	paid       *prometheus.CounterVec
	webhooks   *prometheus.CounterVec
	bankEmails *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement counters. A nil registerer
// yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_documents_created_total",
		Help: "Documents issued, by type.",
	}, []string{"type"})
	paid := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_documents_paid_total",
		Help: "Documents transitioned to paid, by trigger.",
	}, []string{"source"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_gateway_webhooks_total",
		Help: "Gateway notifications handled, by resulting action.",
	}, []string{"action"})
	bankEmails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_bank_notifications_total",
		Help: "Bank notification e-mails processed, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(created, paid, webhooks, bankEmails)
	return &SettlementMetrics{
		created:    created,
		paid:       paid,
		webhooks:   webhooks,
		bankEmails: bankEmails,
	}
}

func (m *SettlementMetrics) DocumentCreated(docType enums.DocumentType) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(string(docType))).Inc()
}

func (m *SettlementMetrics) DocumentPaid(source enums.PaidSource) {
	if m == nil || m.paid == nil {
		return
	}
	m.paid.WithLabelValues(normalizeLabel(string(source))).Inc()
}

func (m *SettlementMetrics) WebhookHandled(action enums.WebhookAction) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(string(action))).Inc()
}

// BankNotification records one processed bank e-mail; outcome is matched,
// unmatched, duplicate or unparsed.
func (m *SettlementMetrics) BankNotification(outcome string) {
	if m == nil || m.bankEmails == nil {
		return
	}
	m.bankEmails.WithLabelValues(normalizeLabel(outcome)).Inc()
}
