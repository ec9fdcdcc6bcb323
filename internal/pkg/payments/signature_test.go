package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	canonical, err := CanonicalizePayload(payload)
	require.NoError(t, err)
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyIPNSignature(t *testing.T) {
	secret := "ipn-secret"
	payload := []byte(`{"payment_id":123,"payment_status":"finished","price_amount":89}`)

	sig := signPayload(t, payload, secret)
	assert.True(t, VerifyIPNSignature(payload, sig, secret))

	// signature is over sorted keys, so key order in the delivery is irrelevant
	reordered := []byte(`{"price_amount":89,"payment_status":"finished","payment_id":123}`)
	assert.True(t, VerifyIPNSignature(reordered, sig, secret))

	assert.False(t, VerifyIPNSignature(payload, sig, "other-secret"))
	assert.False(t, VerifyIPNSignature([]byte(`{"payment_id":124}`), sig, secret))
	assert.False(t, VerifyIPNSignature(payload, "", secret))
	assert.False(t, VerifyIPNSignature(payload, sig, ""))
	assert.False(t, VerifyIPNSignature(payload, "not-hex!", secret))
	assert.False(t, VerifyIPNSignature([]byte("not json"), sig, secret))
}

func TestVerifyIPNSignatureCaseInsensitiveHex(t *testing.T) {
	secret := "s"
	payload := []byte(`{"a":1}`)
	sig := signPayload(t, payload, secret)

	upper := make([]byte, len(sig))
	for i := 0; i < len(sig); i++ {
		c := sig[i]
		if c >= 'a' && c <= 'f' {
			c = c - 'a' + 'A'
		}
		upper[i] = c
	}
	assert.True(t, VerifyIPNSignature(payload, string(upper), secret))
}
