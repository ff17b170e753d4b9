package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks a hex-encoded HMAC-SHA256 over the exact payload
// bytes, in constant time. It is payload-agnostic: the synchronous callback
// path passes CallbackPayload, the webhook path passes the raw request body.
// Any malformed input (empty header, payload or secret, bad hex) is a plain
// false, never an error.
func VerifySignature(payload []byte, signatureHeader string, secret []byte) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || len(payload) == 0 || len(secret) == 0 {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// SignPayload produces the signature VerifySignature accepts. Used by tests
// and dev tooling; the gateway computes the real ones.
func SignPayload(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// CallbackPayload is the canonical byte representation the gateway signs on
// the synchronous completion callback.
func CallbackPayload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}
