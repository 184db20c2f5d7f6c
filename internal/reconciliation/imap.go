package reconciliation

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/angelmondragon/settlement-engine/pkg/config"
)

const maxBodyBytes = 256 << 10

var tagRe = regexp.MustCompile(`<[^>]*>`)

// IMAPDialer connects to the notification mailbox over implicit TLS.
type IMAPDialer struct {
	cfg config.MailboxConfig
}

func NewIMAPDialer(cfg config.MailboxConfig) *IMAPDialer {
	return &IMAPDialer{cfg: cfg}
}

// Configured reports whether mailbox credentials are present.
func (d *IMAPDialer) Configured() bool {
	return d != nil && strings.TrimSpace(d.cfg.Host) != "" && strings.TrimSpace(d.cfg.Username) != ""
}

func (d *IMAPDialer) Dial(ctx context.Context) (Mailbox, error) {
	if !d.Configured() {
		return nil, errors.New("mailbox not configured")
	}
	port := d.cfg.Port
	if port == 0 {
		port = 993
	}
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: d.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	c, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: d.cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}
	c.Timeout = d.cfg.Timeout
	if err := c.Login(d.cfg.Username, d.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	folder := d.cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := c.Select(folder, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select %s: %w", folder, err)
	}
	return &imapMailbox{c: c}, nil
}

type imapMailbox struct {
	c *client.Client
}

func (m *imapMailbox) Unread(ctx context.Context, subject string) ([]Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if subject != "" {
		criteria.Header.Add("Subject", subject)
	}
	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unread: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, messages)
	}()

	out := make([]Message, 0, len(uids))
	for msg := range messages {
		if msg == nil {
			continue
		}
		item := Message{UID: msg.Uid}
		if msg.Envelope != nil {
			item.Subject = msg.Envelope.Subject
			item.Date = msg.Envelope.Date
		}
		if r := msg.GetBody(section); r != nil {
			body, err := readBody(r)
			if err != nil {
				body = ""
			}
			item.Body = body
		}
		out = append(out, item)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *imapMailbox) MarkRead(_ context.Context, uids ...uint32) error {
	if len(uids) == 0 {
		return nil
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := m.c.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}

// readBody returns the text/plain part, falling back to tag-stripped HTML.
func readBody(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", err
	}
	var plain, html string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		data, err := io.ReadAll(io.LimitReader(p.Body, maxBodyBytes))
		if err != nil {
			return "", err
		}
		switch ct {
		case "text/plain":
			if plain == "" {
				plain = string(data)
			}
		case "text/html":
			if html == "" {
				html = string(data)
			}
		}
	}
	if plain != "" {
		return plain, nil
	}
	return htmlToText(html), nil
}

func htmlToText(html string) string {
	text := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n", "</tr>", "\n", "&nbsp;", " ").Replace(html)
	return tagRe.ReplaceAllString(text, " ")
}

