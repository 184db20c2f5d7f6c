package reconciliation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/internal/documents"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/sequence"
	"github.com/angelmondragon/settlement-engine/pkg/alerts"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const fioBody = "Částka: 1 500,00\nMěna: CZK\nVS: 1042\nDatum: 5.3.2026\n"

type fakeMailbox struct {
	mu       sync.Mutex
	messages []Message
	read     []uint32
	listErr  error
	closed   bool
}

func (f *fakeMailbox) Unread(context.Context, string) ([]Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.messages, nil
}

func (f *fakeMailbox) MarkRead(_ context.Context, uids ...uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, uids...)
	return nil
}

func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

type fakeDialer struct {
	mailbox    *fakeMailbox
	configured bool
	dials      int
	err        error
}

func (f *fakeDialer) Dial(context.Context) (Mailbox, error) {
	f.dials++
	if f.err != nil {
		return nil, f.err
	}
	return f.mailbox, nil
}

func (f *fakeDialer) Configured() bool { return f.configured }

type fakeSettler struct {
	open    map[string]*models.Document
	paid    []uuid.UUID
	markErr error
	changed bool
}

func (f *fakeSettler) FindOpenProformaBySymbol(_ context.Context, symbol string) (*models.Document, error) {
	if doc, ok := f.open[symbol]; ok {
		return doc, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "open proforma not found")
}

func (f *fakeSettler) MarkPaid(_ context.Context, id uuid.UUID, _ enums.PaidSource) (*documents.MarkPaidResult, error) {
	if f.markErr != nil {
		return nil, f.markErr
	}
	f.paid = append(f.paid, id)
	for _, doc := range f.open {
		if doc.ID == id {
			return &documents.MarkPaidResult{
				Document: doc,
				Changed:  f.changed,
				Invoice:  &models.Document{Number: "FV2026-0001"},
			}, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []alerts.Alert
}

func (r *recordingAlerts) Notify(_ context.Context, a alerts.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerts) kinds() []alerts.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]alerts.Kind, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a.Kind)
	}
	return out
}

func newTestJob(t *testing.T, dialer Dialer, settler DocumentSettler, notifier alerts.Notifier) *Job {
	t.Helper()
	job, err := NewJob(JobParams{
		Mailbox:   dialer,
		Parser:    defaultParser(t),
		Documents: settler,
		Alerts:    notifier,
		Logger:    logger.Nop(),
		Subject:   "Příjem na kontě",
	})
	require.NoError(t, err)
	return job
}

func openProforma(symbol string, total int64) *models.Document {
	return &models.Document{
		ID:             uuid.New(),
		OrderID:        "order_" + symbol,
		Type:           enums.DocumentTypeProforma,
		Number:         "ZF2026-0001",
		Status:         enums.DocumentStatusSent,
		VariableSymbol: symbol,
		CurrencyCode:   "CZK",
		Total:          total,
	}
}

func TestRunOnceSkipsWithoutCredentials(t *testing.T) {
	dialer := &fakeDialer{configured: false}
	job := newTestJob(t, dialer, &fakeSettler{}, &recordingAlerts{})

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{}, res)
	assert.Zero(t, dialer.dials)
}

func TestRunOnceMatchesProforma(t *testing.T) {
	doc := openProforma("1042", 150000)
	mb := &fakeMailbox{messages: []Message{{UID: 7, Body: fioBody}}}
	settler := &fakeSettler{open: map[string]*models.Document{"1042": doc}, changed: true}
	notifier := &recordingAlerts{}
	job := newTestJob(t, &fakeDialer{configured: true, mailbox: mb}, settler, notifier)

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, []uuid.UUID{doc.ID}, settler.paid)
	assert.Equal(t, []uint32{7}, mb.read)
	assert.Equal(t, []alerts.Kind{alerts.KindPaymentMatched}, notifier.kinds())
	assert.Equal(t, "FV2026-0001", notifier.alerts[0].Fields["invoice"])
	assert.True(t, mb.closed)
}

func TestRunOnceUnmatchedAlertsOperator(t *testing.T) {
	mb := &fakeMailbox{messages: []Message{{UID: 3, Body: fioBody}}}
	settler := &fakeSettler{open: map[string]*models.Document{}}
	notifier := &recordingAlerts{}
	job := newTestJob(t, &fakeDialer{configured: true, mailbox: mb}, settler, notifier)

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unmatched)
	assert.Empty(t, settler.paid)
	require.Equal(t, []alerts.Kind{alerts.KindPaymentUnmatched}, notifier.kinds())
	assert.Equal(t, "1042", notifier.alerts[0].Fields["variable_symbol"])
	assert.Equal(t, "150000", notifier.alerts[0].Fields["amount_minor"])
	assert.Equal(t, "2026-03-05", notifier.alerts[0].Fields["date"])
	assert.Equal(t, []uint32{3}, mb.read)
}

func TestRunOnceDiscardsUnparseableMessages(t *testing.T) {
	mb := &fakeMailbox{messages: []Message{
		{UID: 1, Body: "newsletter"},
		{UID: 2, Body: "Částka: 0,00\nVS: 1042\n"},
	}}
	settler := &fakeSettler{open: map[string]*models.Document{"1042": openProforma("1042", 0)}}
	notifier := &recordingAlerts{}
	job := newTestJob(t, &fakeDialer{configured: true, mailbox: mb}, settler, notifier)

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Discarded)
	assert.Empty(t, settler.paid)
	assert.Empty(t, notifier.kinds())
	assert.ElementsMatch(t, []uint32{1, 2}, mb.read)
}

func TestRunOnceAlreadyPaidIsNotAlerted(t *testing.T) {
	mb := &fakeMailbox{messages: []Message{{UID: 9, Body: fioBody}}}
	settler := &fakeSettler{open: map[string]*models.Document{"1042": openProforma("1042", 150000)}, changed: false}
	notifier := &recordingAlerts{}
	job := newTestJob(t, &fakeDialer{configured: true, mailbox: mb}, settler, notifier)

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Empty(t, notifier.kinds())
}

func TestRunOnceAmountMismatchStillSettles(t *testing.T) {
	mb := &fakeMailbox{messages: []Message{{UID: 4, Body: fioBody}}}
	settler := &fakeSettler{open: map[string]*models.Document{"1042": openProforma("1042", 17100)}, changed: true}
	notifier := &recordingAlerts{}
	job := newTestJob(t, &fakeDialer{configured: true, mailbox: mb}, settler, notifier)

	_, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, settler.paid, 1)
	assert.Equal(t, []alerts.Kind{alerts.KindAmountMismatch, alerts.KindPaymentMatched}, notifier.kinds())
}

func TestRunOnceStorageErrorLeavesMessageUnread(t *testing.T) {
	mb := &fakeMailbox{messages: []Message{{UID: 5, Body: fioBody}}}
	settler := &fakeSettler{
		open:    map[string]*models.Document{"1042": openProforma("1042", 150000)},
		markErr: pkgerrors.New(pkgerrors.CodeInternal, "db down"),
	}
	job := newTestJob(t, &fakeDialer{configured: true, mailbox: mb}, settler, &recordingAlerts{})

	res, err := job.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, mb.read)
}

func TestRunOnceDialFailure(t *testing.T) {
	job := newTestJob(t, &fakeDialer{configured: true, err: errors.New("tls handshake")}, &fakeSettler{}, &recordingAlerts{})

	_, err := job.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

type stubOrders struct {
	orders map[string]*orders.Order
}

func (s *stubOrders) RetrieveOrder(_ context.Context, id string) (*orders.Order, error) {
	if o, ok := s.orders[id]; ok {
		return o, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

type pdfStub struct{}

func (pdfStub) Render(_ context.Context, doc *models.Document) ([]byte, error) {
	return []byte(doc.Number), nil
}

type blobStub struct{}

func (blobStub) Store(_ context.Context, path string, _ []byte) (string, error) {
	return "https://files.test/" + path, nil
}

func TestRunOnceSettlesStoredProformaAndIssuesOneInvoice(t *testing.T) {
	client, err := db.OpenSQLite(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&models.NumberSequence{}, &models.Document{}))

	authority, err := sequence.NewAuthority(client)
	require.NoError(t, err)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	svc, err := documents.NewService(documents.ServiceParams{
		Repo:    documents.NewRepository(client.DB()),
		Tx:      client,
		Numbers: authority,
		Orders: &stubOrders{orders: map[string]*orders.Order{
			"order_1042": {ID: "order_1042", DisplayID: 1042, CurrencyCode: "CZK", Subtotal: 123967, TaxTotal: 26033, Total: 150000},
			"order_2000": {ID: "order_2000", DisplayID: 2000, CurrencyCode: "CZK", Subtotal: 1000, TaxTotal: 210, Total: 1210},
		}},
		Renderer: pdfStub{},
		Store:    blobStub{},
		Logger:   logger.Nop(),
		Config:   documents.Config{DomesticCountry: "CZ"},
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	ctx := context.Background()
	target, err := svc.CreateDocument(ctx, "order_1042", enums.DocumentTypeProforma)
	require.NoError(t, err)
	other, err := svc.CreateDocument(ctx, "order_2000", enums.DocumentTypeProforma)
	require.NoError(t, err)

	mb := &fakeMailbox{messages: []Message{{UID: 1, Body: fioBody}, {UID: 2, Body: fioBody}}}
	notifier := &recordingAlerts{}
	job := newTestJob(t, &fakeDialer{configured: true, mailbox: mb}, svc, notifier)

	res, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Unmatched, "the duplicate notification finds no open proforma")

	paid, err := svc.Get(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	untouched, err := svc.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentStatusSent, untouched.Status)

	docs, err := svc.ListForOrder(ctx, "order_1042")
	require.NoError(t, err)
	var invoices int
	for _, d := range docs {
		if d.Type == enums.DocumentTypeInvoice {
			invoices++
			assert.Equal(t, "FV2026-0001", d.Number)
			assert.Equal(t, int64(150000), d.Total)
		}
	}
	assert.Equal(t, 1, invoices)
	assert.Equal(t, []alerts.Kind{alerts.KindPaymentMatched, alerts.KindPaymentUnmatched}, notifier.kinds())
}
