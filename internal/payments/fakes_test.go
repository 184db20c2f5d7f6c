package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/settlement-engine/internal/documents"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/alerts"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/redis"
	"github.com/angelmondragon/settlement-engine/pkg/square"
)

type fakeSquare struct {
	mu        sync.Mutex
	payments  map[string]*sq.Payment
	getErr    error
	getDelay  time.Duration
	cancelErr error
	refundErr error
	created   []square.PaymentCreateParams
	refunds   []square.RefundParams
	completed []string
	getCalls  int
}

func newFakeSquare() *fakeSquare {
	return &fakeSquare{payments: map[string]*sq.Payment{}}
}

func (f *fakeSquare) put(id, status, reference string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := sq.Currency("CZK")
	f.payments[id] = &sq.Payment{
		ID:          &id,
		Status:      &status,
		ReferenceID: &reference,
		AmountMoney: &sq.Money{Amount: &amount, Currency: &cur},
	}
}

func (f *fakeSquare) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	f.mu.Lock()
	f.created = append(f.created, params)
	f.mu.Unlock()
	id := "pay_" + params.IdempotencyKey
	status := "COMPLETED"
	if params.DelayCapture {
		status = "APPROVED"
	}
	f.put(id, status, params.ReferenceID, params.Amount)
	return &sq.Payment{ID: &id}, nil
}

func (f *fakeSquare) CompletePayment(_ context.Context, id string) (*sq.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "square complete payment failed")
	}
	f.completed = append(f.completed, id)
	status := "COMPLETED"
	p.Status = &status
	return p, nil
}

func (f *fakeSquare) GetPayment(ctx context.Context, id string) (*sq.Payment, error) {
	f.mu.Lock()
	f.getCalls++
	delay, getErr := f.getDelay, f.getErr
	p, ok := f.payments[id]
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if getErr != nil {
		return nil, getErr
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "square get payment failed")
	}
	return p, nil
}

func (f *fakeSquare) CancelPayment(_ context.Context, id string) (*sq.Payment, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, errors.New("not found")
	}
	status := "CANCELED"
	p.Status = &status
	return p, nil
}

func (f *fakeSquare) RefundPayment(_ context.Context, params square.RefundParams) (*sq.PaymentRefund, error) {
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, params)
	return &sq.PaymentRefund{}, nil
}

func (f *fakeSquare) LocationID() string { return "LOC1" }

type fakeSettler struct {
	mu       sync.Mutex
	orders   []string
	deferred []bool
	err      error
}

func (f *fakeSettler) SettleOrder(ctx context.Context, orderID string, _ enums.PaidSource) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.orders = append(f.orders, orderID)
	f.deferred = append(f.deferred, documents.ArtifactsDeferred(ctx))
	return &models.Document{OrderID: orderID, Number: "FV2026-0001"}, nil
}

func (f *fakeSettler) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.orders...)
}

type fakeOrders map[string]*orders.Order

func (f fakeOrders) RetrieveOrder(_ context.Context, id string) (*orders.Order, error) {
	if o, ok := f[id]; ok {
		return o, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []alerts.Alert
}

func (f *fakeAlerts) Notify(_ context.Context, a alerts.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "settle:idempotency:" + scope + ":" + id
}

