package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/store"
	"github.com/veridianhq/idverify/pkg/cryptox"
	"github.com/veridianhq/idverify/pkg/idx"
)

// DefaultMFASessionTTL is how long an MFA challenge stays redeemable.
const DefaultMFASessionTTL = 5 * time.Minute

var (
	ErrMFASessionNotFound = errors.New("MFA session not found")
	ErrMFASessionExpired  = errors.New("MFA session expired")
	ErrMFASessionUsed     = errors.New("MFA session already used")
)

// MFASessionService issues and redeems the short-lived, single-use
// challenge tokens that bridge password verification and MFA completion.
// Only token fingerprints are persisted; the opaque token itself exists
// solely in the response to the client.
type MFASessionService struct {
	Store store.Store
	TTL   time.Duration // Zero means DefaultMFASessionTTL
}

func (s *MFASessionService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultMFASessionTTL
}

// Create opens a new challenge for the user and returns the opaque token.
// Stale challenges for the same user are swept first, so a fresh login
// attempt invalidates leftovers from abandoned ones.
func (s *MFASessionService) Create(ctx context.Context, userID string) (string, domain.MFASession, error) {
	now := time.Now().UTC()

	if err := s.Store.MFASessions().DeleteStaleForUser(ctx, userID, now); err != nil {
		return "", domain.MFASession{}, fmt.Errorf("failed to sweep stale MFA sessions: %w", err)
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.MFASession{}, fmt.Errorf("failed to generate MFA session token: %w", err)
	}

	session := domain.MFASession{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl()),
	}
	if err := s.Store.MFASessions().CreateMFASession(ctx, session); err != nil {
		return "", domain.MFASession{}, fmt.Errorf("failed to create MFA session: %w", err)
	}

	return token, session, nil
}

// Consume redeems a challenge token exactly once. The winning caller gets
// the session back; everyone else gets a sentinel describing why the token
// is no longer redeemable.
func (s *MFASessionService) Consume(ctx context.Context, token string) (domain.MFASession, error) {
	now := time.Now().UTC()
	hash := cryptox.FingerprintToken(token)

	won, err := s.Store.MFASessions().MarkUsed(ctx, hash, now)
	if err != nil {
		return domain.MFASession{}, fmt.Errorf("failed to consume MFA session: %w", err)
	}

	session, err := s.Store.MFASessions().GetMFASessionByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.MFASession{}, ErrMFASessionNotFound
		}
		return domain.MFASession{}, fmt.Errorf("failed to load MFA session: %w", err)
	}

	if won {
		return session, nil
	}

	// Losing the conditional update means the row existed but was either
	// expired or already spent; an unexpired unused row can only mean a
	// concurrent redeemer beat us, which reads the same as spent.
	if session.Expired(now) && !session.Used {
		return domain.MFASession{}, ErrMFASessionExpired
	}
	return domain.MFASession{}, ErrMFASessionUsed
}
