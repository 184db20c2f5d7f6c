package sequence

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// incrementSQL is a single atomic read-modify-write. Postgres takes a row lock on
// conflict and SQLite serializes writers, so two callers never observe the same
// pre-increment value.
const incrementSQL = `
INSERT INTO number_sequences (year, type, last_number)
VALUES (?, ?, 1)
ON CONFLICT (year, type)
DO UPDATE SET last_number = number_sequences.last_number + 1
RETURNING last_number`

var numberRe = regexp.MustCompile(`^([A-Z]{2})(\d{4})-(\d{4,})$`)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Authority issues document numbers per (year, type).
type Authority struct {
	db  txRunner
	now func() time.Time
}

func NewAuthority(db txRunner) (*Authority, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Authority{db: db, now: time.Now}, nil
}

// WithClock overrides the clock used to default the fiscal year.
func (a *Authority) WithClock(now func() time.Time) *Authority {
	if now != nil {
		a.now = now
	}
	return a
}

// Next increments the counter inside tx and returns the formatted number. The
// increment is undone if tx rolls back, so callers persist the document in the
// same transaction.
func (a *Authority) Next(ctx context.Context, tx *gorm.DB, docType enums.DocumentType, year int) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("tx required")
	}
	if !docType.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown document type %q", docType))
	}
	if year <= 0 {
		year = a.now().Year()
	}

	var last int64
	res := tx.WithContext(ctx).Raw(incrementSQL, year, string(docType)).Scan(&last)
	if res.Error != nil {
		if pkgerrors.IsTransientDB(res.Error) {
			return "", pkgerrors.Wrap(pkgerrors.CodeUnavailable, res.Error, "number sequence busy")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "allocate document number")
	}
	if last <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "sequence returned no value")
	}
	return Format(docType, year, last), nil
}

// NextNumber allocates a number in its own transaction. A year of 0 means the
// current year.
func (a *Authority) NextNumber(ctx context.Context, docType enums.DocumentType, year int) (string, error) {
	var number string
	err := a.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := a.Next(ctx, tx, docType, year)
		if err != nil {
			return err
		}
		number = n
		return nil
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// Format renders e.g. FV2026-0001.
func Format(docType enums.DocumentType, year int, seq int64) string {
	return fmt.Sprintf("%s%d-%04d", docType.NumberPrefix(), year, seq)
}

// Parse splits a document number back into its parts.
func Parse(number string) (enums.DocumentType, int, int64, error) {
	m := numberRe.FindStringSubmatch(number)
	if m == nil {
		return "", 0, 0, fmt.Errorf("malformed document number %q", number)
	}
	var docType enums.DocumentType
	switch m[1] {
	case enums.DocumentTypeInvoice.NumberPrefix():
		docType = enums.DocumentTypeInvoice
	case enums.DocumentTypeProforma.NumberPrefix():
		docType = enums.DocumentTypeProforma
	default:
		return "", 0, 0, fmt.Errorf("unknown number prefix %q", m[1])
	}
	year, _ := strconv.Atoi(m[2])
	seq, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("parse sequence: %w", err)
	}
	return docType, year, seq, nil
}
