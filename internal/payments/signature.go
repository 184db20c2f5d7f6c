package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries Square's HMAC-SHA256 webhook signature.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// VerifySignature checks base64(HMAC-SHA256(key, notificationURL+body)).
func VerifySignature(secret, notificationURL string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, notificationURL, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the signature Square would send for body.
func Sign(secret, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
