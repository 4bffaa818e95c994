package sqlite

import "context"

type backupCodesRepo struct {
	q dbtx
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, userID string, codeHash string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO backup_codes (user_id, code_hash) VALUES (?, ?)`,
		userID, codeHash,
	)
	return mapUniqueViolation(err)
}

// ConsumeBackupCode deletes the code row; the delete doubles as the
// single-use marker, so a replayed code affects zero rows and fails.
func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, userID string, codeHash string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM backup_codes WHERE user_id = ? AND code_hash = ?`,
		userID, codeHash,
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

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) CountUserBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM backup_codes WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}
