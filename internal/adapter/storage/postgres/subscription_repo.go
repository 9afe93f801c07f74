package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// SubscriptionRepo implements ports.SubscriptionRepository.
type SubscriptionRepo struct {
	pool Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepo.
func NewSubscriptionRepo(pool Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, owner_id, card_account_id, service_name, service_category, amount, billing_cycle,
		next_billing_date, last_payment_date, active, auto_renew, created_at, cancelled_at`

// Create inserts a subscription and fills in its generated id.
func (r *SubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) error {
	query := `INSERT INTO subscriptions (owner_id, card_account_id, service_name, service_category, amount, billing_cycle,
		next_billing_date, last_payment_date, active, auto_renew, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		s.OwnerID, s.CardAccountID, s.ServiceName, s.ServiceCategory,
		s.Amount, s.BillingCycle, s.NextBillingDate, s.LastPaymentDate,
		s.Active, s.AutoRenew, s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// GetByID fetches a subscription.
func (r *SubscriptionRepo) GetByID(ctx context.Context, id int64) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return r.scanSubscription(r.pool.QueryRow(ctx, query, id))
}

// ListByOwner fetches all of an owner's subscriptions, newest first.
func (r *SubscriptionRepo) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions by owner: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// ListBillable fetches subscriptions the scheduler should sweep.
func (r *SubscriptionRepo) ListBillable(ctx context.Context) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE active AND auto_renew AND next_billing_date IS NOT NULL ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list billable subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// UpdateBillingDates advances the billing cursor after a settled charge.
func (r *SubscriptionRepo) UpdateBillingDates(ctx context.Context, id int64, lastPayment, nextBilling time.Time) error {
	query := `UPDATE subscriptions SET last_payment_date = $1, next_billing_date = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, lastPayment, nextBilling, id)
	if err != nil {
		return fmt.Errorf("update billing dates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription not found: %d", id)
	}
	return nil
}

// Cancel deactivates a subscription. Already-cancelled rows are left alone.
func (r *SubscriptionRepo) Cancel(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE subscriptions SET active = FALSE, cancelled_at = $1 WHERE id = $2 AND active`

	tag, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription not active: %d", id)
	}
	return nil
}

// scanSubscription is a helper to scan a single row into a Subscription.
func (r *SubscriptionRepo) scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	s := &domain.Subscription{}
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.CardAccountID, &s.ServiceName, &s.ServiceCategory,
		&s.Amount, &s.BillingCycle, &s.NextBillingDate, &s.LastPaymentDate,
		&s.Active, &s.AutoRenew, &s.CreatedAt, &s.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return s, nil
}

// collectSubscriptions drains rows into a slice.
func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for rows.Next() {
		var s domain.Subscription
		if err := rows.Scan(
			&s.ID, &s.OwnerID, &s.CardAccountID, &s.ServiceName, &s.ServiceCategory,
			&s.Amount, &s.BillingCycle, &s.NextBillingDate, &s.LastPaymentDate,
			&s.Active, &s.AutoRenew, &s.CreatedAt, &s.CancelledAt,
		); err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscription rows: %w", err)
	}
	return subs, nil
}
