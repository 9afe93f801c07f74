package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, owner_id, kind, status, balance, monthly_limit, version, created_at, updated_at`

// Create inserts a new account and fills in its generated id.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (owner_id, kind, status, balance, monthly_limit, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		a.OwnerID, a.Kind, a.Status, a.Balance, a.MonthlyLimit,
		a.Version, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// CreateTx inserts a new account inside an existing transaction.
func (r *AccountRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	query := `INSERT INTO accounts (owner_id, kind, status, balance, monthly_limit, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`

	err := tx.QueryRow(ctx, query,
		a.OwnerID, a.Kind, a.Status, a.Balance, a.MonthlyLimit,
		a.Version, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert account in tx: %w", err)
	}
	return nil
}

// GetByID fetches an account without locking.
func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, id))
}

// GetForUpdate fetches an account with a pessimistic row lock. It MUST be
// called within a transaction, and for multi-account operations callers must
// request locks in ascending account id. A lock wait that exceeds the
// transaction's lock_timeout surfaces as a retryable lock timeout error.
func (r *AccountRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	a, err := r.scanAccount(tx.QueryRow(ctx, query, id))
	if err != nil {
		if isLockNotAvailable(err) {
			return nil, apperror.ErrLockTimeout(err)
		}
		return nil, err
	}
	return a, nil
}

// ListByOwner fetches all accounts belonging to an owner.
func (r *AccountRepo) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts by owner: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(
			&a.ID, &a.OwnerID, &a.Kind, &a.Status, &a.Balance,
			&a.MonthlyLimit, &a.Version, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, nil
}

// UpdateBalance writes a new balance and bumps the version. The version
// predicate is a backstop: under the row lock it always matches, so zero
// rows affected means the locking discipline was violated.
func (r *AccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, accountID int64, balance decimal.Decimal, expectedVersion int64) error {
	query := `UPDATE accounts SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`

	tag, err := tx.Exec(ctx, query, balance, accountID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d version conflict at %d", accountID, expectedVersion)
	}
	return nil
}

// UpdateStatus changes an account's lifecycle status.
func (r *AccountRepo) UpdateStatus(ctx context.Context, accountID int64, status domain.AccountStatus) error {
	query := `UPDATE accounts SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, status, accountID)
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %d", accountID)
	}
	return nil
}

// SumBalancesByKind aggregates balances per account kind.
func (r *AccountRepo) SumBalancesByKind(ctx context.Context) (map[domain.AccountKind]decimal.Decimal, error) {
	query := `SELECT kind, COALESCE(SUM(balance), 0) FROM accounts GROUP BY kind`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sum balances by kind: %w", err)
	}
	defer rows.Close()

	sums := make(map[domain.AccountKind]decimal.Decimal)
	for rows.Next() {
		var kind domain.AccountKind
		var total decimal.Decimal
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, fmt.Errorf("scan balance sum row: %w", err)
		}
		sums[kind] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance sum rows: %w", err)
	}
	return sums, nil
}

// scanAccount is a helper to scan a single row into an Account.
func (r *AccountRepo) scanAccount(row pgx.Row) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Kind, &a.Status, &a.Balance,
		&a.MonthlyLimit, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}
