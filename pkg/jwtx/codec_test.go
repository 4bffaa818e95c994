package jwtx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec([]byte("0123456789abcdef0123456789abcdef"), "idverify-test")
	require.NoError(t, err)
	return c
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()
	c := testCodec(t)
	now := time.Now().UTC()

	signed, issued, err := c.Issue("user-1", "user", TypeAccess, time.Hour, now)
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)

	claims, err := c.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "user", claims.Role)
	require.Equal(t, TypeAccess, claims.TokenType)
	require.Equal(t, issued.ID, claims.ID)
	require.False(t, claims.MFARequired)
	require.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
}

func TestCodecRejectsShortSecret(t *testing.T) {
	t.Parallel()
	_, err := NewCodec([]byte("too-short"), "idverify-test")
	require.Error(t, err)
}

func TestCodecExpiry(t *testing.T) {
	t.Parallel()
	c := testCodec(t)

	// Issue a token that expired a minute ago.
	signed, _, err := c.Issue("user-1", "user", TypeAccess, time.Minute, time.Now().Add(-2*time.Minute))
	require.NoError(t, err)

	_, err = c.Verify(signed)
	require.ErrorIs(t, err, ErrExpired)
}

func TestCodecTamperedSignature(t *testing.T) {
	t.Parallel()
	c := testCodec(t)

	signed, _, err := c.Issue("user-1", "user", TypeAccess, time.Hour, time.Now())
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = c.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalidSig)
}

func TestCodecMalformed(t *testing.T) {
	t.Parallel()
	c := testCodec(t)

	_, err := c.Verify("definitely-not-a-jwt")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestCodecWrongSecret(t *testing.T) {
	t.Parallel()
	c := testCodec(t)
	other, err := NewCodec([]byte("ffffffffffffffffffffffffffffffff"), "idverify-test")
	require.NoError(t, err)

	signed, _, err := c.Issue("user-1", "user", TypeAccess, time.Hour, time.Now())
	require.NoError(t, err)

	_, err = other.Verify(signed)
	require.ErrorIs(t, err, ErrInvalidSig)
}

func TestCodecIssuerMismatch(t *testing.T) {
	t.Parallel()
	c := testCodec(t)
	other, err := NewCodec([]byte("0123456789abcdef0123456789abcdef"), "someone-else")
	require.NoError(t, err)

	signed, _, err := other.Issue("user-1", "user", TypeAccess, time.Hour, time.Now())
	require.NoError(t, err)

	_, err = c.Verify(signed)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestVerifyRefreshRejectsAccessTokens(t *testing.T) {
	t.Parallel()
	c := testCodec(t)

	access, _, err := c.Issue("user-1", "user", TypeAccess, time.Hour, time.Now())
	require.NoError(t, err)
	_, err = c.VerifyRefresh(access)
	require.ErrorIs(t, err, ErrTokenType)

	refresh, _, err := c.Issue("user-1", "user", TypeRefresh, time.Hour, time.Now())
	require.NoError(t, err)
	claims, err := c.VerifyRefresh(refresh)
	require.NoError(t, err)
	require.True(t, claims.IsRefresh())
}

func TestPreAuthTokenCarriesMFARequired(t *testing.T) {
	t.Parallel()
	c := testCodec(t)

	signed, _, err := c.IssuePreAuth("user-1", "admin", DefaultPreAuthTTL, time.Now())
	require.NoError(t, err)

	claims, err := c.Verify(signed)
	require.NoError(t, err)
	require.True(t, claims.MFARequired)
}

func TestJTIUniquePerIssuance(t *testing.T) {
	t.Parallel()
	c := testCodec(t)
	now := time.Now()

	_, a, err := c.Issue("user-1", "user", TypeAccess, time.Hour, now)
	require.NoError(t, err)
	_, b, err := c.Issue("user-1", "user", TypeAccess, time.Hour, now)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}
