package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const (
	EventOrderPlaced = "order.placed"
	EventOrderPaid   = "order.paid"
)

type documentIssuer interface {
	CreateDocument(ctx context.Context, orderID string, docType enums.DocumentType) (*models.Document, error)
	SettleOrder(ctx context.Context, orderID string, source enums.PaidSource) (*models.Document, error)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer turns storefront order events into settlement documents.
type Consumer struct {
	docs         documentIssuer
	subscription receiver
	logg         *logger.Logger
}

// NewConsumer builds an order event consumer.
func NewConsumer(docs documentIssuer, subscription receiver, logg *logger.Logger) (*Consumer, error) {
	if docs == nil {
		return nil, fmt.Errorf("document service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{docs: docs, subscription: subscription, logg: logg}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

// orderEvent is the storefront payload. The event type may also travel in the
// message attributes.
type orderEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	OrderID       string    `json:"order_id"`
	PaymentMethod string    `json:"payment_method"`
	Paid          bool      `json:"paid"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	logCtx := c.logg.WithField(ctx, "message_id", messageID)

	var event orderEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logg.Error(logCtx, "failed to decode order event", err)
		return processResult{ack: true}
	}
	eventType := strings.TrimSpace(attrs["event_type"])
	if eventType == "" {
		eventType = strings.TrimSpace(event.EventType)
	}
	logCtx = c.logg.WithField(logCtx, "event_type", eventType)

	if strings.TrimSpace(event.OrderID) == "" {
		c.logg.Warn(logCtx, "order event without order id dropped")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithOrderID(logCtx, event.OrderID)

	var (
		doc *models.Document
		err error
	)
	switch eventType {
	case EventOrderPlaced:
		method := enums.ParsePaymentMethod(event.PaymentMethod)
		switch {
		case method == enums.PaymentMethodCard && event.Paid:
			doc, err = c.docs.SettleOrder(logCtx, event.OrderID, enums.PaidSourceGateway)
		case method == enums.PaymentMethodCard:
			// invoiced once the gateway confirms capture
			c.logg.Info(logCtx, "card order awaits payment confirmation")
			return processResult{ack: true}
		default:
			doc, err = c.docs.CreateDocument(logCtx, event.OrderID, method.DocumentType())
		}
	case EventOrderPaid:
		doc, err = c.docs.SettleOrder(logCtx, event.OrderID, enums.PaidSourceGateway)
	default:
		c.logg.Info(logCtx, "skipping unhandled order event")
		return processResult{ack: true}
	}

	if err != nil {
		if retryable(err) {
			c.logg.Error(logCtx, "order event handling failed; will retry", err)
			return processResult{nack: true}
		}
		c.logg.Error(logCtx, "order event rejected", err)
		return processResult{ack: true}
	}
	c.logg.Info(c.logg.WithDocumentNumber(logCtx, doc.Number), "order event settled")
	return processResult{ack: true}
}

// retryable reports whether redelivery can succeed. Unclassified errors are
// retried.
func retryable(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	return pkgerrors.MetadataFor(typed.Code()).Retryable
}
