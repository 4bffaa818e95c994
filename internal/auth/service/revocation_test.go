package service

import (
	"context"
	"testing"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestRevokeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.rev.Revoke(ctx, "jti-1", "user-1", domain.RevocationReasonLogout))
	require.NoError(t, h.rev.Revoke(ctx, "jti-1", "user-1", domain.RevocationReasonLogout))

	revoked, err := h.rev.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestRevokeIgnoresEmptyJTI(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.rev.Revoke(ctx, "", "user-1", domain.RevocationReasonLogout))

	revoked, err := h.rev.IsRevoked(ctx, "")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestIsRevokedUnknownJTI(t *testing.T) {
	h := newHarness(t)

	revoked, err := h.rev.IsRevoked(context.Background(), "never-seen")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevokedRetentionOutlivesRefreshTokens(t *testing.T) {
	// A jti revoked at logout must stay in the ledger until the token it
	// belongs to has expired, whatever refresh lifetime is configured.
	require.Equal(t, DefaultRevokedRetention, RevokedRetentionFor(time.Hour))
	require.Equal(t, DefaultRevokedRetention, RevokedRetentionFor(7*24*time.Hour))

	long := 30 * 24 * time.Hour
	require.Greater(t, RevokedRetentionFor(long), long)
}

func TestIsRevokedFailsClosedOnStoreError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Close())

	_, err := h.rev.IsRevoked(context.Background(), "jti-1")
	require.Error(t, err, "a broken ledger must surface as an error, not as not-revoked")
}
