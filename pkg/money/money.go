package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	spacesRe = regexp.MustCompile(`[\s\x{00A0}\x{202F}']`)
	amountRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// Decimal converts minor units into a major-unit decimal.
func Decimal(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

// Format renders minor units with two decimals, e.g. 17100 -> "171.00".
func Format(minor int64) string {
	return Decimal(minor).StringFixed(2)
}

// FormatLocalized renders "1 710,00 CZK" style amounts for printed documents.
func FormatLocalized(minor int64, currency string) string {
	fixed := Format(minor)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteRune(' ')
		}
		grouped.WriteRune(r)
	}
	out := fmt.Sprintf("%s%s,%s", sign, grouped.String(), frac)
	if currency != "" {
		out += " " + strings.ToUpper(currency)
	}
	return out
}

// ParseMinor parses a human amount into minor units. Both "1 710,00" and
// "1,710.00" styles are accepted; the last separator followed by one or two
// digits is taken as the decimal mark.
func ParseMinor(raw string) (int64, error) {
	s := spacesRe.ReplaceAllString(strings.TrimSpace(raw), "")
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	decimalIdx := -1
	if idx := max(lastComma, lastDot); idx >= 0 && len(s)-idx-1 <= 2 && len(s)-idx-1 > 0 {
		decimalIdx = idx
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case i == decimalIdx:
			b.WriteRune('.')
		case r == ',' || r == '.':
			// thousands separator
		default:
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	if !amountRe.MatchString(normalized) {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}

// Amount is a major-unit value that marshals as a bare JSON number.
type Amount struct {
	decimal.Decimal
}

// NewAmount converts minor units into an Amount.
func NewAmount(minor int64) Amount {
	return Amount{Decimal: Decimal(minor)}
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.StringFixed(2)), nil
}
