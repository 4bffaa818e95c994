package store

import (
	"context"
	"errors"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// Per-field uniqueness violations surfaced by the driver at write time.
	// These are the authoritative conflict signal; any pre-check is only a
	// fast path and can race.
	ErrDuplicateEmail    = errors.New("store: email already registered")
	ErrDuplicateUsername = errors.New("store: username already registered")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. Sub-repositories keep concerns tidy and stop
// callers from accidentally nesting transactions.
type Store interface {
	Users() Users
	MFASessions() MFASessions
	RevokedTokens() RevokedTokens
	BackupCodes() BackupCodes
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise. This is the recommended entry point
	// for multi-step operations that must be atomic.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used for email-based login lookup.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByUsername is used for username-based login lookup.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Unique-constraint violations map to ErrDuplicateEmail / ErrDuplicateUsername.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateMFASecret stores the sealed TOTP secret (enrollment started).
	UpdateMFASecret(ctx context.Context, userID string, sealedSecret string) error

	// EnableMFA marks MFA as enabled and verified after the first valid code.
	EnableMFA(ctx context.Context, userID string) error

	// DisableMFA clears the MFA state and sealed secret.
	DisableMFA(ctx context.Context, userID string) error

	// RecordLoginFailure bumps the failed-attempt counter; lockedUntil is
	// set when the attempt crossed the lockout threshold.
	RecordLoginFailure(ctx context.Context, userID string, attempts int, lockedUntil *time.Time) error

	// RecordLoginSuccess resets the failure counter, clears any lock, and
	// stamps last_login.
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error

	// SetActive flips the active flag (admin disable / enable).
	SetActive(ctx context.Context, userID string, active bool) error

	// UpdateRole assigns a new role (admin operation, never self-service).
	UpdateRole(ctx context.Context, userID string, role domain.Role) error

	// DeleteUser removes the user; mfa_sessions and backup_codes cascade
	// per schema.
	DeleteUser(ctx context.Context, userID string) error
}

type MFASessions interface {
	// CreateMFASession persists a new challenge session.
	CreateMFASession(ctx context.Context, s domain.MFASession) error

	// GetMFASessionByTokenHash looks a session up by challenge token
	// fingerprint, used or not.
	GetMFASessionByTokenHash(ctx context.Context, tokenHash string) (domain.MFASession, error)

	// MarkUsed atomically flips used from false to true for an unused,
	// unexpired session. Returns false when the session was already used
	// (or missing): of two concurrent consumers exactly one sees true.
	MarkUsed(ctx context.Context, tokenHash string, now time.Time) (bool, error)

	// DeleteStaleForUser removes the user's expired or already-used
	// sessions. Called lazily before creating a new session.
	DeleteStaleForUser(ctx context.Context, userID string, now time.Time) error

	// DeleteExpiredMFASessions removes all expired sessions (housekeeping).
	DeleteExpiredMFASessions(ctx context.Context) error
}

type RevokedTokens interface {
	// InsertRevokedToken appends a ledger entry; inserting the same jti
	// twice is a no-op (idempotent).
	InsertRevokedToken(ctx context.Context, rt domain.RevokedToken) error

	// IsTokenRevoked reports ledger membership for a jti.
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)

	// DeleteRevokedBefore prunes entries older than cutoff; safe once the
	// revoked tokens would have expired naturally anyway.
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) error
}

type BackupCodes interface {
	// CreateBackupCode stores a backup code fingerprint for a user.
	CreateBackupCode(ctx context.Context, userID string, codeHash string) error

	// ConsumeBackupCode removes the code if present, returning whether it
	// existed. Deletion doubles as the single-use marker: a second submit
	// of the same code finds nothing.
	ConsumeBackupCode(ctx context.Context, userID string, codeHash string) (bool, error)

	// DeleteAllBackupCodes removes all backup codes for a user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUserBackupCodes returns the number of unused codes remaining.
	CountUserBackupCodes(ctx context.Context, userID string) (int, error)
}

type AuditEvents interface {
	// AppendAuditEvent writes one event. Events are never mutated.
	AppendAuditEvent(ctx context.Context, ev domain.AuditEvent) error

	// ListAuditEventsForUser returns the newest events first.
	ListAuditEventsForUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error)
}
