package sqlite

import (
	"context"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
)

type mfaSessionsRepo struct {
	q dbtx
}

func (r *mfaSessionsRepo) CreateMFASession(ctx context.Context, s domain.MFASession) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO mfa_sessions (id, user_id, token_hash, used, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.TokenHash, s.Used, s.CreatedAt, s.ExpiresAt,
	)
	return mapUniqueViolation(err)
}

func (r *mfaSessionsRepo) GetMFASessionByTokenHash(ctx context.Context, tokenHash string) (domain.MFASession, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, used, created_at, expires_at
		FROM mfa_sessions WHERE token_hash = ?`, tokenHash)

	var s domain.MFASession
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.Used, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return domain.MFASession{}, mapNotFound(err)
	}
	return s, nil
}

// MarkUsed is the single compare-and-set that makes challenge tokens
// single-use: the conditional update only matches an unused, unexpired row,
// so of two racing consumers exactly one sees a row flip.
func (r *mfaSessionsRepo) MarkUsed(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE mfa_sessions SET used = 1
		WHERE token_hash = ? AND used = 0 AND expires_at > ?`,
		tokenHash, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *mfaSessionsRepo) DeleteStaleForUser(ctx context.Context, userID string, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM mfa_sessions
		WHERE user_id = ? AND (used = 1 OR expires_at <= ?)`,
		userID, now,
	)
	return err
}

func (r *mfaSessionsRepo) DeleteExpiredMFASessions(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM mfa_sessions WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
