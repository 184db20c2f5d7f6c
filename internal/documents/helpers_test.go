package documents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/sequence"
	"github.com/angelmondragon/settlement-engine/internal/vat"
	"github.com/angelmondragon/settlement-engine/pkg/alerts"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type stubOrders struct {
	mu     sync.Mutex
	orders map[string]*orders.Order
	calls  int
}

func (s *stubOrders) RetrieveOrder(_ context.Context, id string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if o, ok := s.orders[id]; ok {
		return o, nil
	}
	return nil, errors.New("order not found")
}

type stubRenderer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *stubRenderer) Render(_ context.Context, doc *models.Document) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-" + doc.Number), nil
}

type stubStore struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (s *stubStore) Store(_ context.Context, path string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.paths = append(s.paths, path)
	return "https://files.test/" + path, nil
}

type sentMail struct {
	to, subject, html string
}

type stubMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (s *stubMailer) Send(_ context.Context, to, subject, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{to: to, subject: subject, html: html})
}

type stubAlerts struct {
	mu     sync.Mutex
	alerts []alerts.Alert
}

func (s *stubAlerts) Notify(_ context.Context, a alerts.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *stubAlerts) kinds() []alerts.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alerts.Kind, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a.Kind)
	}
	return out
}

type stubVAT struct {
	result *vat.Result
	err    error
	calls  int
}

func (s *stubVAT) Validate(context.Context, string, string) (*vat.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubRecorder struct {
	mu      sync.Mutex
	created map[enums.DocumentType]int
	paid    map[enums.PaidSource]int
}

func (s *stubRecorder) DocumentCreated(t enums.DocumentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created[t]++
}

func (s *stubRecorder) DocumentPaid(src enums.PaidSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paid[src]++
}

type failingAllocator struct{}

func (failingAllocator) Next(context.Context, *gorm.DB, enums.DocumentType, int) (string, error) {
	return "", errors.New("sequence storage unavailable")
}

type harness struct {
	svc      Service
	client   *db.Client
	repo     Repository
	orders   *stubOrders
	renderer *stubRenderer
	store    *stubStore
	mailer   *stubMailer
	alerts   *stubAlerts
	vat      *stubVAT
	metrics  *stubRecorder
}

type harnessOption func(*ServiceParams)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	client, err := db.OpenSQLite(uuid.NewString())
	require.NoError(t, err)
	require.NoError(t, client.DB().AutoMigrate(&models.NumberSequence{}, &models.Document{}))
	t.Cleanup(func() { _ = client.Close() })

	authority, err := sequence.NewAuthority(client)
	require.NoError(t, err)

	h := &harness{
		client:   client,
		repo:     NewRepository(client.DB()),
		orders:   &stubOrders{orders: map[string]*orders.Order{}},
		renderer: &stubRenderer{},
		store:    &stubStore{},
		mailer:   &stubMailer{},
		alerts:   &stubAlerts{},
		vat:      &stubVAT{},
		metrics:  &stubRecorder{created: map[enums.DocumentType]int{}, paid: map[enums.PaidSource]int{}},
	}

	params := ServiceParams{
		Repo:     h.repo,
		Tx:       client,
		Numbers:  authority,
		Orders:   h.orders,
		VAT:      h.vat,
		Renderer: h.renderer,
		Store:    h.store,
		Mailer:   h.mailer,
		Alerts:   h.alerts,
		Metrics:  h.metrics,
		Logger:   logger.Nop(),
		Config:   Config{DomesticCountry: "CZ", ProformaDueDays: 7, InvoiceDueDays: 14, Location: time.UTC},
		Now:      func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&params)
	}

	svc, err := NewService(params)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) addOrder(o *orders.Order) {
	h.orders.mu.Lock()
	defer h.orders.mu.Unlock()
	h.orders.orders[o.ID] = o
}

func bankOrder(id string, displayID int64) *orders.Order {
	return &orders.Order{
		ID:           id,
		DisplayID:    displayID,
		Email:        "buyer@example.com",
		CurrencyCode: "czk",
		Subtotal:     14132,
		TaxTotal:     2968,
		Total:        17100,
		Items: []orders.LineItem{
			{Title: "Sencha", Quantity: 2, UnitPrice: 7066, TaxRate: 2100, Subtotal: 14132, TaxTotal: 2968, Total: 17100},
		},
		BillingAddress: &types.Address{
			FirstName:  "Jana",
			LastName:   "Nováková",
			Line1:      "Vinohradská 1",
			City:       "Praha",
			PostalCode: "12000",
			Country:    "cz",
		},
		PaymentProvider: "manual",
		Metadata:        map[string]any{},
	}
}

func (h *harness) countDocuments(t *testing.T, orderID string, docType enums.DocumentType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.client.DB().Model(&models.Document{}).
		Where("order_id = ? AND type = ?", orderID, docType).
		Count(&n).Error)
	return n
}
