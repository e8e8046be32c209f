// Package ingress implements request authentication, replay defense, and
// payload validation for submitted applications, and the Submit/Poll
// operations that front the Job Store (spec §4.1).
package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Headers is the set of required auth headers on a Submit request.
type Headers struct {
	APIKey    string
	Timestamp string // Unix seconds, as received
	Nonce     string
	Signature string // hex-encoded HMAC-SHA256
}

// verifySignature recomputes HMAC_SHA256(secret, method || path || body ||
// timestamp || nonce) and compares it to the supplied signature using a
// constant-time comparison (spec §4.1 step 4).
func verifySignature(secret, method, path string, body []byte, timestamp, nonce, signatureHex string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(nonce))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
