package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

// Kind classifies operator alerts.
type Kind string

const (
	KindPaymentMatched       Kind = "payment_matched"
	KindPaymentUnmatched     Kind = "payment_unmatched"
	KindAmountMismatch       Kind = "payment_amount_mismatch"
	KindInvoiceFailed        Kind = "invoice_creation_failed"
	KindVATUnavailable       Kind = "vat_validator_unavailable"
	KindWebhookUnresolved    Kind = "webhook_unresolved"
	KindNotificationUnparsed Kind = "bank_notification_unparsed"
)

// Alert is a human-facing operator notification.
type Alert struct {
	Kind    Kind              `json:"kind"`
	Subject string            `json:"subject"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	At      time.Time         `json:"at"`
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

type publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

// PubSubNotifier publishes alerts as JSON to a topic.
type PubSubNotifier struct {
	pub publisher
}

func NewPubSubNotifier(pub publisher) *PubSubNotifier {
	return &PubSubNotifier{pub: pub}
}

func (n *PubSubNotifier) Notify(ctx context.Context, alert Alert) error {
	if n == nil || n.pub == nil {
		return errors.New("pubsub alerts not configured")
	}
	alert = stamp(alert)
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return n.pub.Publish(ctx, data, map[string]string{"kind": string(alert.Kind)})
}

type emailSender interface {
	SendNow(ctx context.Context, to, subject, htmlBody string) error
}

// EmailNotifier sends alerts to the operator mailbox synchronously.
type EmailNotifier struct {
	sender emailSender
	to     string
}

func NewEmailNotifier(sender emailSender, to string) *EmailNotifier {
	return &EmailNotifier{sender: sender, to: strings.TrimSpace(to)}
}

func (n *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	if n == nil || n.sender == nil || n.to == "" {
		return errors.New("email alerts not configured")
	}
	alert = stamp(alert)
	return n.sender.SendNow(ctx, n.to, "[settlement] "+alert.Subject, RenderHTML(alert))
}

// LogNotifier writes the alert to the structured log. It never fails.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	if n == nil || n.logg == nil {
		return nil
	}
	fields := map[string]any{"alert_kind": string(alert.Kind), "alert_subject": alert.Subject}
	for k, v := range alert.Fields {
		fields["alert_"+k] = v
	}
	n.logg.Warn(n.logg.WithFields(ctx, fields), "operator alert: "+alert.Message)
	return nil
}

// Chain tries each notifier in order and stops at the first success.
type Chain struct {
	notifiers []Notifier
}

func NewChain(notifiers ...Notifier) *Chain {
	out := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return &Chain{notifiers: out}
}

func (c *Chain) Notify(ctx context.Context, alert Alert) error {
	var errs error
	for _, n := range c.notifiers {
		err := n.Notify(ctx, alert)
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, err)
	}
	if errs == nil {
		return errors.New("no alert channel configured")
	}
	return errs
}

// RenderHTML renders an alert as a minimal HTML e-mail body.
func RenderHTML(alert Alert) string {
	var b strings.Builder
	b.WriteString("<p>")
	b.WriteString(html.EscapeString(alert.Message))
	b.WriteString("</p>")
	if len(alert.Fields) > 0 {
		keys := make([]string, 0, len(alert.Fields))
		for k := range alert.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("<table>")
		for _, k := range keys {
			fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>", html.EscapeString(k), html.EscapeString(alert.Fields[k]))
		}
		b.WriteString("</table>")
	}
	return b.String()
}

func stamp(alert Alert) Alert {
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	return alert
}
