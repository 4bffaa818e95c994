package service

import (
	"context"
	"fmt"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/store"
)

// DefaultRevokedRetention is how long revoked token IDs are kept after
// revocation. It must exceed the longest token lifetime so a revoked
// token can never outlive its ledger entry.
const DefaultRevokedRetention = 14 * 24 * time.Hour

// revokedRetentionSlack pads the retention window past the token lifetime
// to absorb clock drift between issuance and cleanup.
const revokedRetentionSlack = 24 * time.Hour

// RevokedRetentionFor returns the ledger retention for a deployment whose
// longest-lived token lasts maxTokenTTL. The default is the floor; a longer
// refresh lifetime stretches the window so a revoked token always expires
// before its ledger entry is pruned.
func RevokedRetentionFor(maxTokenTTL time.Duration) time.Duration {
	retention := maxTokenTTL + revokedRetentionSlack
	if retention < DefaultRevokedRetention {
		return DefaultRevokedRetention
	}
	return retention
}

// RevocationService is the deny-list for issued tokens. Lookups happen on
// every authenticated request, and callers are expected to fail closed when
// IsRevoked returns an error.
type RevocationService struct {
	Store store.Store
}

// Revoke adds a token ID to the ledger. Revoking an already-revoked token
// is a no-op, so retried logouts stay idempotent.
func (s *RevocationService) Revoke(ctx context.Context, jti, userID, reason string) error {
	if jti == "" {
		return nil
	}
	rt := domain.RevokedToken{
		JTI:       jti,
		UserID:    userID,
		Reason:    reason,
		RevokedAt: time.Now().UTC(),
	}
	if err := s.Store.RevokedTokens().InsertRevokedToken(ctx, rt); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// RevokeAllInTx revokes a batch of token IDs inside an existing transaction.
func (s *RevocationService) RevokeAllInTx(ctx context.Context, tx store.Tx, userID, reason string, jtis ...string) error {
	now := time.Now().UTC()
	for _, jti := range jtis {
		if jti == "" {
			continue
		}
		rt := domain.RevokedToken{JTI: jti, UserID: userID, Reason: reason, RevokedAt: now}
		if err := tx.RevokedTokens().InsertRevokedToken(ctx, rt); err != nil {
			return fmt.Errorf("failed to revoke token: %w", err)
		}
	}
	return nil
}

// IsRevoked reports whether a token ID is on the ledger. Errors are
// returned as-is rather than mapped to "not revoked" so transport-layer
// callers can refuse the request instead of admitting an unverifiable
// token.
func (s *RevocationService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := s.Store.RevokedTokens().IsTokenRevoked(ctx, jti)
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return revoked, nil
}
