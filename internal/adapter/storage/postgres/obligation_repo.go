package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

// ObligationRepo implements ports.ObligationRepository.
type ObligationRepo struct {
	pool Pool
}

// NewObligationRepo creates a new ObligationRepo.
func NewObligationRepo(pool Pool) *ObligationRepo {
	return &ObligationRepo{pool: pool}
}

const obligationColumns = `id, subscription_id, account_id, amount, due_date, status, operation_id, created_at`

// Create materializes one scheduled charge. The unique index on
// (subscription_id, due_date) collapses concurrent scheduler sweeps: the
// loser gets apperror.ErrDuplicateOperation and treats the charge as
// already materialized.
func (r *ObligationRepo) Create(ctx context.Context, o *domain.ScheduledObligation) error {
	query := `INSERT INTO scheduled_obligations (subscription_id, account_id, amount, due_date, status, operation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		o.SubscriptionID, o.AccountID, o.Amount, o.DueDate,
		o.Status, o.OperationID, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDuplicateOperation(o.OperationID)
		}
		return fmt.Errorf("insert obligation: %w", err)
	}
	return nil
}

// GetBySubscriptionAndDue fetches the obligation for one due date, if any.
func (r *ObligationRepo) GetBySubscriptionAndDue(ctx context.Context, subscriptionID int64, due time.Time) (*domain.ScheduledObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM scheduled_obligations
		WHERE subscription_id = $1 AND due_date = $2`
	return r.scanObligation(r.pool.QueryRow(ctx, query, subscriptionID, due))
}

// ListDue fetches unsettled obligations due on or before asOf.
func (r *ObligationRepo) ListDue(ctx context.Context, asOf time.Time) ([]domain.ScheduledObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM scheduled_obligations
		WHERE status = $1 AND due_date <= $2 ORDER BY due_date, id`

	rows, err := r.pool.Query(ctx, query, domain.ObligationStatusScheduled, asOf)
	if err != nil {
		return nil, fmt.Errorf("list due obligations: %w", err)
	}
	defer rows.Close()

	return collectObligations(rows)
}

// ListBySubscription fetches a subscription's charge history, newest first.
func (r *ObligationRepo) ListBySubscription(ctx context.Context, subscriptionID int64) ([]domain.ScheduledObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM scheduled_obligations
		WHERE subscription_id = $1 ORDER BY due_date DESC`

	rows, err := r.pool.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list obligations by subscription: %w", err)
	}
	defer rows.Close()

	return collectObligations(rows)
}

// UpdateStatus records the settlement outcome of an obligation.
func (r *ObligationRepo) UpdateStatus(ctx context.Context, id int64, status domain.ObligationStatus) error {
	query := `UPDATE scheduled_obligations SET status = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update obligation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("obligation not found: %d", id)
	}
	return nil
}

// scanObligation is a helper to scan a single row into a ScheduledObligation.
func (r *ObligationRepo) scanObligation(row pgx.Row) (*domain.ScheduledObligation, error) {
	o := &domain.ScheduledObligation{}
	err := row.Scan(
		&o.ID, &o.SubscriptionID, &o.AccountID, &o.Amount,
		&o.DueDate, &o.Status, &o.OperationID, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan obligation: %w", err)
	}
	return o, nil
}

// collectObligations drains rows into a slice.
func collectObligations(rows pgx.Rows) ([]domain.ScheduledObligation, error) {
	var obligations []domain.ScheduledObligation
	for rows.Next() {
		var o domain.ScheduledObligation
		if err := rows.Scan(
			&o.ID, &o.SubscriptionID, &o.AccountID, &o.Amount,
			&o.DueDate, &o.Status, &o.OperationID, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan obligation row: %w", err)
		}
		obligations = append(obligations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate obligation rows: %w", err)
	}
	return obligations, nil
}
