package sqlite

import (
	"context"
	"database/sql"

	"github.com/veridianhq/idverify/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // nothing to close; caller will commit/rollback and outer DB stays open

// Ping is a no-op for transactions; the connection is already established.
func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil } // no-op; migrations run before any tx starts

func (t *txStore) Users() store.Users                 { return &usersRepo{q: t.tx} }
func (t *txStore) MFASessions() store.MFASessions     { return &mfaSessionsRepo{q: t.tx} }
func (t *txStore) RevokedTokens() store.RevokedTokens { return &revokedTokensRepo{q: t.tx} }
func (t *txStore) BackupCodes() store.BackupCodes     { return &backupCodesRepo{q: t.tx} }
func (t *txStore) AuditEvents() store.AuditEvents     { return &auditEventsRepo{q: t.tx} }
