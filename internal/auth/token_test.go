package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef", "spendbook", time.Hour)

	session, err := tm.Issue(42, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, int64(42), session.AccountID)

	parsed, err := tm.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), parsed.AccountID)
	assert.Equal(t, "alice", parsed.Username)
	assert.WithinDuration(t, session.ExpiresAt, parsed.ExpiresAt, time.Second)
}

func TestParseRejects(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef", "spendbook", time.Hour)
	session, err := tm.Issue(7, "bob")
	require.NoError(t, err)

	expired := NewTokenManager("0123456789abcdef", "spendbook", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(7, "bob")
	require.NoError(t, err)

	otherIssuer, err := NewTokenManager("0123456789abcdef", "someone-else", time.Hour).Issue(7, "bob")
	require.NoError(t, err)

	otherSecret, err := NewTokenManager("fedcba9876543210", "spendbook", time.Hour).Issue(7, "bob")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    "spendbook",
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(session.Token, ".")
	tampered := parts[0] + "." + parts[1] + ".c2lnbmF0dXJl"

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"tampered":     tampered,
		"expired":      old.Token,
		"other issuer": otherIssuer.Token,
		"other secret": otherSecret.Token,
		"alg none":     none,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tm.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestParseRejectsBadSubject(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef", "spendbook", time.Hour)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "spendbook",
			Subject:   "abc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("0123456789abcdef"))
	require.NoError(t, err)

	_, err = tm.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
