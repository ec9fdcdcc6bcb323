package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// CanonicalizePayload re-serializes an IPN payload with alphabetically sorted
// keys, the form the provider signs. encoding/json sorts map keys, so a
// decode/encode round trip yields the canonical document.
func CanonicalizePayload(raw []byte) ([]byte, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

// VerifyIPNSignature checks the provider's HMAC-SHA512 signature over the
// canonicalized payload. Comparison is constant time.
func VerifyIPNSignature(rawPayload []byte, signatureHeader, ipnSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(ipnSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	canonical, err := CanonicalizePayload(rawPayload)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}
