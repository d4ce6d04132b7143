package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// querier is the subset of *sqlx.DB and *sqlx.Tx every store needs, so a
// store method can run unmodified whether or not a transaction is active.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// TxFromContext extracts the transaction a TxManager.WithinTx call opened,
// if ctx was derived from one.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

func contextWithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxManager adapts a single *sqlx.DB handle into storage.Transactor: the
// atomicity boundary ComplaintStore.Update and AuditStore.Append share so
// that a state transition is either both persisted and audited, or neither
// (§4.6).
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager creates a TxManager over db. Every ComplaintStore and
// AuditStore sharing that same db participates in transactions it opens.
func NewTxManager(db *sqlx.DB) *TxManager { return &TxManager{db: db} }

var _ storage.Transactor = (*TxManager)(nil)

// WithinTx runs fn with a transaction-carrying context. If ctx already
// carries a transaction (nested call), fn runs against the existing one
// rather than opening a second. On fn's error, the transaction is rolled
// back; otherwise it is committed.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin transaction", err)
	}
	if err := fn(contextWithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Internal, "commit transaction", err)
	}
	return nil
}

// querierFor returns the active transaction for ctx, falling back to db.
func querierFor(ctx context.Context, db *sqlx.DB) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}
