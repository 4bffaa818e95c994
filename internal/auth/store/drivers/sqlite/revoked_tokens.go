package sqlite

import (
	"context"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
)

type revokedTokensRepo struct {
	q dbtx
}

func (r *revokedTokensRepo) InsertRevokedToken(ctx context.Context, rt domain.RevokedToken) error {
	// OR IGNORE keeps revocation idempotent: re-revoking a jti is a no-op.
	_, err := r.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO revoked_tokens (jti, user_id, reason, revoked_at)
		VALUES (?, ?, ?, ?)`,
		rt.JTI, rt.UserID, rt.Reason, rt.RevokedAt,
	)
	return err
}

func (r *revokedTokensRepo) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM revoked_tokens WHERE jti = ?`, jti).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *revokedTokensRepo) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE revoked_at < ?`, cutoff)
	return err
}
