package reconciliation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/internal/documents"
	"github.com/angelmondragon/settlement-engine/pkg/alerts"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/money"
)

const (
	outcomeMatched   = "matched"
	outcomeUnmatched = "unmatched"
	outcomeDiscarded = "discarded"
	outcomeDuplicate = "already_paid"
)

// DocumentSettler is the orchestrator surface the job needs.
type DocumentSettler interface {
	FindOpenProformaBySymbol(ctx context.Context, symbol string) (*models.Document, error)
	MarkPaid(ctx context.Context, id uuid.UUID, source enums.PaidSource) (*documents.MarkPaidResult, error)
}

type recorder interface {
	BankNotification(outcome string)
}

// JobParams wires the bank reconciliation job. Metrics is optional.
type JobParams struct {
	Mailbox   Dialer
	Parser    *Parser
	Documents DocumentSettler
	Alerts    alerts.Notifier
	Metrics   recorder
	Logger    *logger.Logger
	Subject   string
}

// Job polls the bank notification mailbox and settles matching proformas.
type Job struct {
	mailbox   Dialer
	parser    *Parser
	documents DocumentSettler
	alerts    alerts.Notifier
	metrics   recorder
	logg      *logger.Logger
	subject   string
}

// RunResult summarizes one run.
type RunResult struct {
	Fetched   int
	Matched   int
	Unmatched int
	Discarded int
	Failed    int
}

func NewJob(params JobParams) (*Job, error) {
	if params.Mailbox == nil {
		return nil, errors.New("mailbox dialer required")
	}
	if params.Parser == nil {
		return nil, errors.New("parser required")
	}
	if params.Documents == nil {
		return nil, errors.New("document settler required")
	}
	if params.Alerts == nil {
		return nil, errors.New("alert notifier required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Job{
		mailbox:   params.Mailbox,
		parser:    params.Parser,
		documents: params.Documents,
		alerts:    params.Alerts,
		metrics:   params.Metrics,
		logg:      params.Logger,
		subject:   params.Subject,
	}, nil
}

func (j *Job) Name() string { return "bank-reconciliation" }

func (j *Job) Run(ctx context.Context) error {
	_, err := j.RunOnce(ctx)
	return err
}

// RunOnce processes every unread notification. A message is marked read once
// it was parsed and handled; messages whose settlement hit a storage error
// stay unread for the next run.
func (j *Job) RunOnce(ctx context.Context) (RunResult, error) {
	var result RunResult
	if !j.mailbox.Configured() {
		j.logg.Info(ctx, "bank mailbox not configured, skipping reconciliation")
		return result, nil
	}

	mb, err := j.mailbox.Dial(ctx)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open bank mailbox")
	}
	defer func() {
		if cerr := mb.Close(); cerr != nil {
			j.logg.Warn(ctx, "close bank mailbox: "+cerr.Error())
		}
	}()

	messages, err := mb.Unread(ctx, j.subject)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bank notifications")
	}
	result.Fetched = len(messages)

	var errs error
	for _, msg := range messages {
		mctx := j.logg.WithFields(ctx, map[string]any{"mail_uid": msg.UID, "mail_subject": msg.Subject})
		outcome, err := j.handle(mctx, msg)
		if err != nil {
			result.Failed++
			errs = multierr.Append(errs, err)
			j.logg.Error(mctx, "bank notification not settled, left unread", err)
			continue
		}
		switch outcome {
		case outcomeMatched, outcomeDuplicate:
			result.Matched++
		case outcomeUnmatched:
			result.Unmatched++
		case outcomeDiscarded:
			result.Discarded++
		}
		if j.metrics != nil {
			j.metrics.BankNotification(outcome)
		}
		if err := mb.MarkRead(mctx, msg.UID); err != nil {
			errs = multierr.Append(errs, err)
			j.logg.Error(mctx, "mark bank notification read", err)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"fetched":   result.Fetched,
		"matched":   result.Matched,
		"unmatched": result.Unmatched,
		"discarded": result.Discarded,
		"failed":    result.Failed,
	}), "bank reconciliation finished")
	return result, errs
}

func (j *Job) handle(ctx context.Context, msg Message) (string, error) {
	n, ok := j.parser.Parse(msg.Body)
	if !ok || n.VariableSymbol == "" || n.Amount <= 0 {
		j.logg.Warn(ctx, "bank notification discarded: no variable symbol or amount")
		return outcomeDiscarded, nil
	}
	if n.Date.IsZero() {
		n.Date = msg.Date
	}
	ctx = j.logg.WithFields(ctx, map[string]any{
		"variable_symbol": n.VariableSymbol,
		"amount":          n.Amount,
		"currency":        n.Currency,
		"matcher":         n.Matcher,
	})

	doc, err := j.documents.FindOpenProformaBySymbol(ctx, n.VariableSymbol)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			j.notify(ctx, alerts.Alert{
				Kind:    alerts.KindPaymentUnmatched,
				Subject: "Unmatched bank payment VS " + n.VariableSymbol,
				Message: "A bank transfer arrived that matches no open proforma. Attribute it manually.",
				Fields:  notificationFields(n),
			})
			return outcomeUnmatched, nil
		}
		return "", err
	}

	res, err := j.documents.MarkPaid(ctx, doc.ID, enums.PaidSourceBank)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			fields := notificationFields(n)
			fields["document"] = doc.Number
			j.notify(ctx, alerts.Alert{
				Kind:    alerts.KindPaymentUnmatched,
				Subject: "Bank payment for canceled proforma " + doc.Number,
				Message: "The matched proforma was canceled before the payment was processed. Resolve it manually.",
				Fields:  fields,
			})
			return outcomeUnmatched, nil
		}
		return "", err
	}
	if !res.Changed {
		j.logg.Info(ctx, "proforma already paid by another channel")
		return outcomeDuplicate, nil
	}

	if n.Amount != doc.Total || (n.Currency != "" && !strings.EqualFold(n.Currency, doc.CurrencyCode)) {
		fields := notificationFields(n)
		fields["document"] = doc.Number
		fields["expected_amount"] = money.FormatLocalized(doc.Total, doc.CurrencyCode)
		j.notify(ctx, alerts.Alert{
			Kind:    alerts.KindAmountMismatch,
			Subject: "Amount mismatch on " + doc.Number,
			Message: "The proforma was settled by variable symbol but the transferred amount differs.",
			Fields:  fields,
		})
	}

	fields := notificationFields(n)
	fields["proforma"] = doc.Number
	if res.Invoice != nil {
		fields["invoice"] = res.Invoice.Number
	}
	j.notify(ctx, alerts.Alert{
		Kind:    alerts.KindPaymentMatched,
		Subject: "Bank payment matched to " + doc.Number,
		Message: "A bank transfer settled proforma " + doc.Number + ".",
		Fields:  fields,
	})
	return outcomeMatched, nil
}

func (j *Job) notify(ctx context.Context, alert alerts.Alert) {
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	if err := j.alerts.Notify(ctx, alert); err != nil {
		j.logg.Error(ctx, "operator alert failed", err)
	}
}

func notificationFields(n Notification) map[string]string {
	fields := map[string]string{
		"variable_symbol": n.VariableSymbol,
		"amount":          money.FormatLocalized(n.Amount, n.Currency),
		"amount_minor":    strconv.FormatInt(n.Amount, 10),
		"currency":        n.Currency,
	}
	if !n.Date.IsZero() {
		fields["date"] = n.Date.Format("2006-01-02")
	}
	return fields
}
