package reconciliation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultParser(t *testing.T) *Parser {
	t.Helper()
	p, err := LoadParser("", time.UTC)
	require.NoError(t, err)
	return p
}

func TestParseFioNotification(t *testing.T) {
	body := "Příjem na kontě: 2001234567/2010\n" +
		"Částka: 1 500,00\n" +
		"Měna: CZK\n" +
		"VS: 1042\n" +
		"Datum: 5.3.2026\n"

	n, ok := defaultParser(t).Parse(body)
	require.True(t, ok)
	assert.Equal(t, int64(150000), n.Amount)
	assert.Equal(t, "CZK", n.Currency)
	assert.Equal(t, "1042", n.VariableSymbol)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), n.Date)
	assert.Equal(t, "cz-fio", n.Matcher)
}

func TestParseSentenceNotification(t *testing.T) {
	body := "Vážený kliente, na Váš účet byla dne 12.3.2026 připsána částka 171,00 EUR, variabilní symbol: 0001042."

	n, ok := defaultParser(t).Parse(body)
	require.True(t, ok)
	assert.Equal(t, int64(17100), n.Amount)
	assert.Equal(t, "EUR", n.Currency)
	assert.Equal(t, "1042", n.VariableSymbol, "leading zeros are not part of the symbol")
	assert.Equal(t, "cz-sentence", n.Matcher)
}

func TestParseEnglishNotificationDefaultsCurrency(t *testing.T) {
	body := "Incoming payment\nAmount: 1,710.00\nVariable symbol: 77\nDate: 2026-03-14\n"

	n, ok := defaultParser(t).Parse(body)
	require.True(t, ok)
	assert.Equal(t, int64(171000), n.Amount)
	assert.Equal(t, "CZK", n.Currency)
	assert.Equal(t, "77", n.VariableSymbol)
	assert.Equal(t, "en-generic", n.Matcher)
}

func TestParseNonBreakingThousandsSeparators(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		amount   int64
		currency string
		matcher  string
	}{
		{
			name:     "fio nbsp",
			body:     "Částka: 1\u00a0500,00\nMěna: CZK\nVS: 1042\n",
			amount:   150000,
			currency: "CZK",
			matcher:  "cz-fio",
		},
		{
			name:     "fio narrow nbsp",
			body:     "Částka: 12\u202f345,50\nMěna: EUR\nVS: 1042\n",
			amount:   1234550,
			currency: "EUR",
			matcher:  "cz-fio",
		},
		{
			name:     "sentence nbsp before currency",
			body:     "Na Váš účet byla dne 12.3.2026 připsána částka 1\u00a0500,00\u00a0EUR, variabilní symbol: 1042.",
			amount:   150000,
			currency: "EUR",
			matcher:  "cz-sentence",
		},
		{
			name:     "english nbsp",
			body:     "Amount: 1\u00a0500.00 EUR\nVS: 1042\n",
			amount:   150000,
			currency: "EUR",
			matcher:  "en-generic",
		},
	}
	p := defaultParser(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, ok := p.Parse(tc.body)
			require.True(t, ok)
			assert.Equal(t, tc.amount, n.Amount)
			assert.Equal(t, tc.currency, n.Currency)
			assert.Equal(t, "1042", n.VariableSymbol)
			assert.Equal(t, tc.matcher, n.Matcher)
		})
	}
}

func TestParseFirstMatcherWins(t *testing.T) {
	body := "Částka: 100,00\nVS: 1\nAmount: 999.00\nVariable symbol: 2\n"

	n, ok := defaultParser(t).Parse(body)
	require.True(t, ok)
	assert.Equal(t, "cz-fio", n.Matcher)
	assert.Equal(t, "1", n.VariableSymbol)
	assert.Equal(t, int64(10000), n.Amount)
}

func TestParseWithoutSymbolFails(t *testing.T) {
	_, ok := defaultParser(t).Parse("Částka: 1 500,00\nMěna: CZK\n")
	assert.False(t, ok)
}

func TestLoadParserFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
matchers:
  - name: custom
    amount: 'paid ([0-9.]+)'
    variable_symbol: 'ref (\d+)'
    default_currency: eur
`), 0o600))

	p, err := LoadParser(path, nil)
	require.NoError(t, err)
	n, ok := p.Parse("paid 12.50 ref 9")
	require.True(t, ok)
	assert.Equal(t, int64(1250), n.Amount)
	assert.Equal(t, "EUR", n.Currency)
	assert.Equal(t, "9", n.VariableSymbol)
}

func TestNewParserRejectsBadSpecs(t *testing.T) {
	_, err := NewParser(nil, nil)
	require.Error(t, err)

	_, err = NewParser([]MatcherSpec{{Name: "x", Amount: `(\d+)`}}, nil)
	require.ErrorContains(t, err, "variable_symbol")

	_, err = NewParser([]MatcherSpec{{Name: "x", Amount: `\d+`, VariableSymbol: `(\d+)`}}, nil)
	require.ErrorContains(t, err, "capture group")
}

func TestHTMLToText(t *testing.T) {
	text := htmlToText("<p>Částka:&nbsp;<b>10,00</b></p><p>VS: 5</p>")
	n, ok := defaultParser(t).Parse(text)
	require.True(t, ok)
	assert.Equal(t, int64(1000), n.Amount)
	assert.Equal(t, "5", n.VariableSymbol)
}
