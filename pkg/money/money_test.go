package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "171.00", Format(17100))
	require.Equal(t, "0.00", Format(0))
	require.Equal(t, "0.05", Format(5))
	require.Equal(t, "-12.34", Format(-1234))
}

func TestFormatLocalized(t *testing.T) {
	require.Equal(t, "1 500,00 CZK", FormatLocalized(150000, "czk"))
	require.Equal(t, "171,00 EUR", FormatLocalized(17100, "EUR"))
	require.Equal(t, "-1 234 567,89", FormatLocalized(-123456789, ""))
}

func TestParseMinor(t *testing.T) {
	cases := map[string]int64{
		"1 710,00":  171000,
		"1.710,00":  171000,
		"1,710.00":  171000,
		"1500":      150000,
		"171,5":     17150,
		"+1 500,00": 150000,
		"1 500":     150000,
		"0,00":      0,
	}
	for raw, want := range cases {
		got, err := ParseMinor(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "abc", "1,2,3x"} {
		_, err := ParseMinor(raw)
		require.Error(t, err, raw)
	}
}

func TestAmountMarshalsAsNumber(t *testing.T) {
	b, err := json.Marshal(map[string]Amount{"total": NewAmount(17100)})
	require.NoError(t, err)
	require.JSONEq(t, `{"total":171.00}`, string(b))
}
