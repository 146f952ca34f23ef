// Package security implements HMAC-SHA256 request signing and
// verification, for both inbound header verification and outbound
// request signing.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Verify checks header (the raw X-Webhook-Signature-256 value, possibly
// empty) against HMAC-SHA256(secret, body).
//
// If secret is empty, verification is not required and Verify always
// returns true. Otherwise header must be present and of the form
// "sha256=<hex>"; the hex digest must match under constant-time
// comparison.
func Verify(secret string, body []byte, header string) bool {
	if secret == "" {
		return true
	}
	if header == "" {
		return false
	}
	algo, hexDigest, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(algo, "sha256") {
		return false
	}
	expected, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false
	}
	actual := sign(secret, body)
	return hmac.Equal(expected, actual)
}

// Sign returns the "sha256=<hex>" header value for body under secret.
func Sign(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(sign(secret, body))
}

func sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
