package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LoanRepo implements ports.LoanRepository.
type LoanRepo struct {
	pool Pool
}

// NewLoanRepo creates a new LoanRepo.
func NewLoanRepo(pool Pool) *LoanRepo {
	return &LoanRepo{pool: pool}
}

const loanColumns = `id, lender_account_id, borrower_account_id, loan_account_id, principal, status, created_at, closed_at`

// Create inserts a loan inside the disbursement transaction, so the loan row
// and its ledger legs commit together.
func (r *LoanRepo) Create(ctx context.Context, tx pgx.Tx, l *domain.Loan) error {
	query := `INSERT INTO loans (id, lender_account_id, borrower_account_id, loan_account_id, principal, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		l.ID, l.LenderAccountID, l.BorrowerAccountID, l.LoanAccountID,
		l.Principal, l.Status, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

// GetByID fetches a loan without locking.
func (r *LoanRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	return r.scanLoan(r.pool.QueryRow(ctx, query, id))
}

// GetByIDTx fetches a loan inside a transaction.
func (r *LoanRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	return r.scanLoan(tx.QueryRow(ctx, query, id))
}

// Close marks a loan repaid. Only open loans close; zero rows affected means
// it already closed.
func (r *LoanRepo) Close(ctx context.Context, tx pgx.Tx, id uuid.UUID, closedAt time.Time) error {
	query := `UPDATE loans SET status = $1, closed_at = $2 WHERE id = $3 AND status = $4`

	tag, err := tx.Exec(ctx, query, domain.LoanStatusRepaid, closedAt, id, domain.LoanStatusActive)
	if err != nil {
		return fmt.Errorf("close loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("loan not open: %s", id)
	}
	return nil
}

// ListByAccount fetches loans where the account lent or borrowed.
func (r *LoanRepo) ListByAccount(ctx context.Context, accountID int64) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans
		WHERE lender_account_id = $1 OR borrower_account_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		var l domain.Loan
		if err := rows.Scan(
			&l.ID, &l.LenderAccountID, &l.BorrowerAccountID, &l.LoanAccountID,
			&l.Principal, &l.Status, &l.CreatedAt, &l.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("scan loan row: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loan rows: %w", err)
	}
	return loans, nil
}

// scanLoan is a helper to scan a single row into a Loan.
func (r *LoanRepo) scanLoan(row pgx.Row) (*domain.Loan, error) {
	l := &domain.Loan{}
	err := row.Scan(
		&l.ID, &l.LenderAccountID, &l.BorrowerAccountID, &l.LoanAccountID,
		&l.Principal, &l.Status, &l.CreatedAt, &l.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan loan: %w", err)
	}
	return l, nil
}
