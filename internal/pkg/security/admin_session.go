package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AdminSessionMaxAge is how long an issued admin token stays valid.
const AdminSessionMaxAge = 24 * time.Hour

var (
	ErrInvalidAdminToken = errors.New("invalid admin session token")
	ErrExpiredAdminToken = errors.New("admin session token expired")
)

// GenerateAdminToken issues a stateless admin session token of the form
// "<unix-timestamp>.<hmac-sha256-hex>" signed with the admin secret.
func GenerateAdminToken(secret string, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required for token generation")
	}
	timestamp := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	return fmt.Sprintf("%s.%s", timestamp, hex.EncodeToString(mac.Sum(nil))), nil
}

// VerifyAdminToken checks the token's signature and age. Comparison is
// constant time.
func VerifyAdminToken(token, secret string, now time.Time) error {
	if secret == "" {
		return errors.New("secret is required for token verification")
	}
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return ErrInvalidAdminToken
	}

	issued, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrInvalidAdminToken
	}
	sig, err := hex.DecodeString(parts[1])
	if err != nil {
		return ErrInvalidAdminToken
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(parts[0]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return ErrInvalidAdminToken
	}

	age := now.Sub(time.Unix(issued, 0))
	if age < 0 || age > AdminSessionMaxAge {
		return ErrExpiredAdminToken
	}
	return nil
}

// VerifyAdminPassword compares the supplied password against the configured
// one in constant time.
func VerifyAdminPassword(supplied, configured string) bool {
	if configured == "" {
		return false
	}
	return hmac.Equal([]byte(supplied), []byte(configured))
}
