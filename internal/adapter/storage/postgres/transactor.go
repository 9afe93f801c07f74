package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Transactor implements ports.DBTransactor using pgxpool.Pool.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a new database transaction.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.pool.Begin(ctx)
}

// BeginWithLockTimeout starts a transaction with a capped row lock wait.
// A FOR UPDATE that waits longer than timeout fails with SQLSTATE 55P03,
// which the account repository maps to a retryable lock timeout error.
func (t *Transactor) BeginWithLockTimeout(ctx context.Context, timeout time.Duration) (pgx.Tx, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	ms := timeout.Milliseconds()
	if ms <= 0 {
		return tx, nil
	}

	// SET LOCAL scopes the timeout to this transaction. It does not accept
	// bind parameters, so the duration is formatted into the statement.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}
	return tx, nil
}
