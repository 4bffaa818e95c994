package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, email, username, password_hash, role, active,
	mfa_enabled, mfa_verified, mfa_secret, failed_logins, locked_until,
	last_login, created_at, updated_at`

func (r *usersRepo) scanUser(row *sql.Row) (domain.User, error) {
	var (
		u           domain.User
		role        string
		mfaSecret   sql.NullString
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &role, &u.Active,
		&u.MFAEnabled, &u.MFAVerified, &mfaSecret, &u.FailedLogins,
		&lockedUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Role = domain.Role(role)
	u.MFASecret = mapNullStringPtr(mfaSecret)
	u.LockedUntil = mapNullTimePtr(lockedUntil)
	u.LastLogin = mapNullTimePtr(lastLogin)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	var mfaSecret sql.NullString
	if u.MFASecret != nil {
		mfaSecret = sql.NullString{String: *u.MFASecret, Valid: true}
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (
			id, email, username, password_hash, role, active,
			mfa_enabled, mfa_verified, mfa_secret, failed_logins,
			locked_until, last_login, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.PasswordHash, string(u.Role), u.Active,
		u.MFAEnabled, u.MFAVerified, mfaSecret, u.FailedLogins,
		mapOptionalTime(u.LockedUntil), mapOptionalTime(u.LastLogin),
		u.CreatedAt, u.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return r.execOne(ctx, `
		UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, newHash, userID)
}

func (r *usersRepo) UpdateMFASecret(ctx context.Context, userID string, sealedSecret string) error {
	return r.execOne(ctx, `
		UPDATE users SET mfa_secret = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, sealedSecret, userID)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string) error {
	return r.execOne(ctx, `
		UPDATE users SET mfa_enabled = 1, mfa_verified = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, userID)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	return r.execOne(ctx, `
		UPDATE users
		SET mfa_enabled = 0, mfa_verified = 0, mfa_secret = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, userID)
}

func (r *usersRepo) RecordLoginFailure(ctx context.Context, userID string, attempts int, lockedUntil *time.Time) error {
	return r.execOne(ctx, `
		UPDATE users
		SET failed_logins = ?, locked_until = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, attempts, mapOptionalTime(lockedUntil), userID)
}

func (r *usersRepo) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	return r.execOne(ctx, `
		UPDATE users
		SET failed_logins = 0, locked_until = NULL, last_login = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, at, userID)
}

func (r *usersRepo) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	return r.execOne(ctx, `
		UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, string(role), userID)
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool) error {
	return r.execOne(ctx, `
		UPDATE users SET active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, active, userID)
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id = ?`, userID)
}

// execOne runs a statement expected to touch exactly one user row and maps
// a zero-row result to ErrNotFound.
func (r *usersRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
