package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(t *testing.T, secret, method, path string, body []byte, timestamp, nonce string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "shh-its-a-secret"
	method, path := "POST", "/v1/applications"
	body := []byte(`{"personal":{}}`)
	timestamp, nonce := "1700000000", "nonce-abc123"

	sig := sign(t, secret, method, path, body, timestamp, nonce)

	assert.True(t, verifySignature(secret, method, path, body, timestamp, nonce, sig))
	assert.False(t, verifySignature("wrong-secret", method, path, body, timestamp, nonce, sig))
	assert.False(t, verifySignature(secret, method, path, body, "1700000001", nonce, sig))
	assert.False(t, verifySignature(secret, method, path, body, timestamp, nonce, "not-hex"))
	assert.False(t, verifySignature(secret, method, path, []byte(`{"tampered":true}`), timestamp, nonce, sig))
}
