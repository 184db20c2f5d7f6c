package orders

import (
	"context"
	"errors"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

type issuedCall struct {
	orderID string
	docType enums.DocumentType
	source  enums.PaidSource
}

type fakeIssuer struct {
	created []issuedCall
	settled []issuedCall
	err     error
}

func (f *fakeIssuer) CreateDocument(_ context.Context, orderID string, docType enums.DocumentType) (*models.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, issuedCall{orderID: orderID, docType: docType})
	return &models.Document{Number: docType.NumberPrefix() + "2026-0001"}, nil
}

func (f *fakeIssuer) SettleOrder(_ context.Context, orderID string, source enums.PaidSource) (*models.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.settled = append(f.settled, issuedCall{orderID: orderID, source: source})
	return &models.Document{Number: "FV2026-0001"}, nil
}

type idleReceiver struct{}

func (idleReceiver) Receive(ctx context.Context, _ func(context.Context, *pubsub.Message)) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestConsumer(t *testing.T, docs *fakeIssuer) *Consumer {
	t.Helper()
	c, err := NewConsumer(docs, idleReceiver{}, logger.Nop())
	require.NoError(t, err)
	return c
}

func TestPlacedBankTransferOrderIssuesProforma(t *testing.T) {
	docs := &fakeIssuer{}
	c := newTestConsumer(t, docs)

	res := c.process(context.Background(), "m-1", map[string]string{"event_type": EventOrderPlaced},
		[]byte(`{"order_id":"1042","payment_method":"bacs"}`))

	assert.True(t, res.ack)
	require.Len(t, docs.created, 1)
	assert.Equal(t, issuedCall{orderID: "1042", docType: enums.DocumentTypeProforma}, docs.created[0])
}

func TestPlacedCardOrderWaitsForCapture(t *testing.T) {
	docs := &fakeIssuer{}
	c := newTestConsumer(t, docs)

	res := c.process(context.Background(), "m-2", nil,
		[]byte(`{"event_type":"order.placed","order_id":"1043","payment_method":"square_credit_card"}`))

	assert.True(t, res.ack)
	assert.Empty(t, docs.created)
	assert.Empty(t, docs.settled)
}

func TestPlacedCapturedCardOrderIsInvoiced(t *testing.T) {
	docs := &fakeIssuer{}
	c := newTestConsumer(t, docs)

	res := c.process(context.Background(), "m-7", map[string]string{"event_type": EventOrderPlaced},
		[]byte(`{"order_id":"1045","payment_method":"card","paid":true}`))

	assert.True(t, res.ack)
	assert.Empty(t, docs.created)
	require.Len(t, docs.settled, 1)
	assert.Equal(t, "1045", docs.settled[0].orderID)
}

func TestPaidOrderSettlesThroughGateway(t *testing.T) {
	docs := &fakeIssuer{}
	c := newTestConsumer(t, docs)

	res := c.process(context.Background(), "m-3", map[string]string{"event_type": EventOrderPaid},
		[]byte(`{"order_id":"1044"}`))

	assert.True(t, res.ack)
	require.Len(t, docs.settled, 1)
	assert.Equal(t, enums.PaidSourceGateway, docs.settled[0].source)
}

func TestMalformedEventsAreAcked(t *testing.T) {
	docs := &fakeIssuer{}
	c := newTestConsumer(t, docs)

	assert.True(t, c.process(context.Background(), "m-4", nil, []byte(`{not json`)).ack)
	assert.True(t, c.process(context.Background(), "m-5", nil, []byte(`{"event_type":"order.placed"}`)).ack)
	assert.True(t, c.process(context.Background(), "m-6", nil, []byte(`{"event_type":"order.refunded","order_id":"1"}`)).ack)
	assert.Empty(t, docs.created)
}

func TestRetryableFailuresAreNacked(t *testing.T) {
	cases := []struct {
		name string
		err  error
		nack bool
	}{
		{name: "unclassified", err: errors.New("db closed"), nack: true},
		{name: "dependency", err: pkgerrors.New(pkgerrors.CodeDependency, "orders api down"), nack: true},
		{name: "not found", err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), nack: false},
		{name: "validation", err: pkgerrors.New(pkgerrors.CodeValidation, "order has no items"), nack: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestConsumer(t, &fakeIssuer{err: tc.err})
			res := c.process(context.Background(), "m", map[string]string{"event_type": EventOrderPlaced},
				[]byte(`{"order_id":"7"}`))
			assert.Equal(t, tc.nack, res.nack)
			assert.Equal(t, !tc.nack, res.ack)
		})
	}
}

func TestNewConsumerRequiresDependencies(t *testing.T) {
	_, err := NewConsumer(nil, idleReceiver{}, logger.Nop())
	require.Error(t, err)
	_, err = NewConsumer(&fakeIssuer{}, nil, logger.Nop())
	require.Error(t, err)
	_, err = NewConsumer(&fakeIssuer{}, idleReceiver{}, nil)
	require.Error(t, err)
}
