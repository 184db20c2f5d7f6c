package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/settlement-engine/pkg/config"
)

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridSender delivers HTML mail synchronously through the SendGrid API.
type SendgridSender struct {
	client sendClient
	from   *mail.Email
}

func NewSendgridSender(cfg config.MailConfig) (*SendgridSender, error) {
	key := strings.TrimSpace(cfg.SendgridAPIKey)
	if key == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("sender address is required")
	}
	return &SendgridSender{
		client: sendgrid.NewSendClient(key),
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
	}, nil
}

// SendNow sends one message and reports delivery errors to the caller.
func (s *SendgridSender) SendNow(ctx context.Context, to, subject, html string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("recipient is required")
	}
	message := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", to), plainText(html), html)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, truncate(resp.Body, 256))
	}
	return nil
}

func plainText(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
