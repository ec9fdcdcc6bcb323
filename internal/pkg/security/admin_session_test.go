package security

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	token, err := GenerateAdminToken("topsecret", now)
	require.NoError(t, err)
	require.Contains(t, token, ".")

	assert.NoError(t, VerifyAdminToken(token, "topsecret", now))
	assert.NoError(t, VerifyAdminToken(token, "topsecret", now.Add(23*time.Hour)))
}

func TestAdminTokenWrongSecret(t *testing.T) {
	now := time.Now()
	token, err := GenerateAdminToken("topsecret", now)
	require.NoError(t, err)

	assert.ErrorIs(t, VerifyAdminToken(token, "othersecret", now), ErrInvalidAdminToken)
}

func TestAdminTokenTampered(t *testing.T) {
	now := time.Now()
	token, err := GenerateAdminToken("topsecret", now)
	require.NoError(t, err)

	parts := strings.SplitN(token, ".", 2)
	forged := "9999999999." + parts[1]

	assert.ErrorIs(t, VerifyAdminToken(forged, "topsecret", now), ErrInvalidAdminToken)
}

func TestAdminTokenExpiry(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := GenerateAdminToken("topsecret", issued)
	require.NoError(t, err)

	assert.ErrorIs(t, VerifyAdminToken(token, "topsecret", issued.Add(25*time.Hour)), ErrExpiredAdminToken)
	// Tokens issued in the future are rejected too.
	assert.ErrorIs(t, VerifyAdminToken(token, "topsecret", issued.Add(-time.Minute)), ErrExpiredAdminToken)
}

func TestAdminTokenMalformed(t *testing.T) {
	now := time.Now()
	for _, token := range []string{"", "no-dot", "notanumber.abcdef", "123.zzzz"} {
		assert.ErrorIs(t, VerifyAdminToken(token, "topsecret", now), ErrInvalidAdminToken, token)
	}
}

func TestGenerateAdminTokenRequiresSecret(t *testing.T) {
	_, err := GenerateAdminToken("", time.Now())
	assert.Error(t, err)
}

func TestVerifyAdminPassword(t *testing.T) {
	assert.True(t, VerifyAdminPassword("hunter2", "hunter2"))
	assert.False(t, VerifyAdminPassword("hunter", "hunter2"))
	// An empty configured password never matches.
	assert.False(t, VerifyAdminPassword("", ""))
}
