package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// EntryRepo implements ports.EntryRepository over the append-only ledger.
type EntryRepo struct {
	pool Pool
}

// NewEntryRepo creates a new EntryRepo.
func NewEntryRepo(pool Pool) *EntryRepo {
	return &EntryRepo{pool: pool}
}

const entryColumns = `id, account_id, delta, reason, operation_id, description, created_at`

// Create appends one ledger entry inside a transaction. The unique index on
// (operation_id, account_id) turns a racing duplicate into
// apperror.ErrDuplicateOperation instead of a second entry.
func (r *EntryRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (account_id, delta, reason, operation_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	err := tx.QueryRow(ctx, query,
		e.AccountID, e.Delta, e.Reason, e.OperationID, e.Description, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDuplicateOperation(e.OperationID)
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListByOperationID returns all entries written under one operation id.
func (r *EntryRepo) ListByOperationID(ctx context.Context, operationID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE operation_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("list entries by operation: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListByAccount fetches an account statement with filtering and pagination.
func (r *EntryRepo) ListByAccount(ctx context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("account_id = $%d", argIdx))
	args = append(args, params.AccountID)
	argIdx++

	if params.Reason != nil {
		conditions = append(conditions, fmt.Sprintf("reason = $%d", argIdx))
		args = append(args, *params.Reason)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= to_timestamp($%d)", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= to_timestamp($%d)", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM ledger_entries %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT `+entryColumns+` FROM ledger_entries %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// SumByAccount returns the signed sum of an account's entries.
func (r *EntryRepo) SumByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE account_id = $1`

	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum entries by account: %w", err)
	}
	return sum, nil
}

const spentInMonthQuery = `SELECT COALESCE(SUM(-delta), 0) FROM ledger_entries
		WHERE account_id = $1 AND delta < 0
		AND reason IN ('BUDGET_SPEND', 'SUBSCRIPTION_CHARGE')
		AND created_at >= date_trunc('month', $2::timestamptz)
		AND created_at < date_trunc('month', $2::timestamptz) + interval '1 month'`

// SpentInMonth sums limit-counted debits in ref's calendar month, as a
// positive amount.
func (r *EntryRepo) SpentInMonth(ctx context.Context, accountID int64, ref time.Time) (decimal.Decimal, error) {
	var spent decimal.Decimal
	if err := r.pool.QueryRow(ctx, spentInMonthQuery, accountID, ref).Scan(&spent); err != nil {
		return decimal.Zero, fmt.Errorf("sum month spend: %w", err)
	}
	return spent, nil
}

// SpentInMonthTx is SpentInMonth inside a transaction, for guards that hold
// the card's row lock.
func (r *EntryRepo) SpentInMonthTx(ctx context.Context, tx pgx.Tx, accountID int64, ref time.Time) (decimal.Decimal, error) {
	var spent decimal.Decimal
	if err := tx.QueryRow(ctx, spentInMonthQuery, accountID, ref).Scan(&spent); err != nil {
		return decimal.Zero, fmt.Errorf("sum month spend in tx: %w", err)
	}
	return spent, nil
}

// ExternalFlows totals money that crossed the system boundary.
func (r *EntryRepo) ExternalFlows(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	query := `SELECT
		COALESCE(SUM(delta) FILTER (WHERE reason = 'TOPUP' AND delta > 0), 0) AS inflow,
		COALESCE(SUM(-delta) FILTER (WHERE reason IN ('WITHDRAWAL', 'BUDGET_SPEND', 'SUBSCRIPTION_CHARGE') AND delta < 0), 0) AS outflow
		FROM ledger_entries`

	var in, out decimal.Decimal
	if err := r.pool.QueryRow(ctx, query).Scan(&in, &out); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sum external flows: %w", err)
	}
	return in, out, nil
}

// GetStats aggregates an account's ledger history.
func (r *EntryRepo) GetStats(ctx context.Context, accountID int64) (*ports.EntryStats, error) {
	query := `SELECT
		COUNT(*) AS entries,
		COALESCE(SUM(delta) FILTER (WHERE delta > 0), 0) AS credits,
		COALESCE(SUM(-delta) FILTER (WHERE delta < 0), 0) AS debits
		FROM ledger_entries WHERE account_id = $1`

	stats := &ports.EntryStats{}
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&stats.EntryCount, &stats.TotalCredits, &stats.TotalDebits,
	)
	if err != nil {
		return nil, fmt.Errorf("get entry stats: %w", err)
	}

	byReason := `SELECT reason, COALESCE(SUM(delta), 0) FROM ledger_entries
		WHERE account_id = $1 GROUP BY reason`

	rows, err := r.pool.Query(ctx, byReason, accountID)
	if err != nil {
		return nil, fmt.Errorf("get entry stats by reason: %w", err)
	}
	defer rows.Close()

	stats.ByReason = make(map[domain.EntryReason]decimal.Decimal)
	for rows.Next() {
		var reason domain.EntryReason
		var net decimal.Decimal
		if err := rows.Scan(&reason, &net); err != nil {
			return nil, fmt.Errorf("scan entry stats row: %w", err)
		}
		stats.ByReason[reason] = net
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry stats rows: %w", err)
	}
	return stats, nil
}

// collectEntries drains rows into a slice.
func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.Delta, &e.Reason,
			&e.OperationID, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entry rows: %w", err)
	}
	return entries, nil
}
