package renderer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/angelmondragon/settlement-engine/pkg/money"
)

const qrSize = 220

// PaymentString builds a Short Payment Descriptor (SPAYD) for Czech banking apps,
// e.g. SPD*1.0*ACC:CZ6508000000192000145399*AM:171.00*CC:CZK*X-VS:1042.
func PaymentString(iban string, amount int64, currency, variableSymbol string) (string, error) {
	acc := normalizeIBAN(iban)
	if acc == "" {
		return "", errors.New("destination account is required")
	}
	if amount < 0 {
		return "", fmt.Errorf("negative amount %d", amount)
	}
	parts := []string{
		"SPD",
		"1.0",
		"ACC:" + acc,
		"AM:" + money.Format(amount),
	}
	if cc := strings.ToUpper(strings.TrimSpace(currency)); cc != "" {
		parts = append(parts, "CC:"+cc)
	}
	if vs := digitsOnly(variableSymbol); vs != "" {
		if len(vs) > 10 {
			vs = vs[len(vs)-10:]
		}
		parts = append(parts, "X-VS:"+vs)
	}
	return strings.Join(parts, "*"), nil
}

// QRDataURI encodes payload as a PNG data URI for inline rendering.
func QRDataURI(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func normalizeIBAN(raw string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw))
}

func digitsOnly(raw string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
}
