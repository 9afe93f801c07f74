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

// EscrowRepo implements ports.EscrowRepository.
type EscrowRepo struct {
	pool Pool
}

// NewEscrowRepo creates a new EscrowRepo.
func NewEscrowRepo(pool Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `id, listing_id, buyer_account_id, seller_account_id, escrow_account_id, amount, status, created_at, resolved_at`

// Create inserts a new escrow order.
func (r *EscrowRepo) Create(ctx context.Context, o *domain.EscrowOrder) error {
	query := `INSERT INTO escrow_orders (id, listing_id, buyer_account_id, seller_account_id, escrow_account_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.ListingID, o.BuyerAccountID, o.SellerAccountID,
		o.EscrowAccountID, o.Amount, o.Status, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escrow order: %w", err)
	}
	return nil
}

// GetByID fetches an order without locking.
func (r *EscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.EscrowOrder, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_orders WHERE id = $1`
	return r.scanOrder(r.pool.QueryRow(ctx, query, id))
}

// GetByIDTx fetches an order inside a transaction. Guards call this after
// taking the escrow account row lock, which all order mutations run under.
func (r *EscrowRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.EscrowOrder, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_orders WHERE id = $1`
	return r.scanOrder(tx.QueryRow(ctx, query, id))
}

// UpdateStatus moves an order from one status to another. The from predicate
// makes the transition a compare-and-set: zero rows moved means the order
// was already resolved by a concurrent caller.
func (r *EscrowRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.EscrowStatus, resolvedAt *time.Time) (int64, error) {
	query := `UPDATE escrow_orders SET status = $1, resolved_at = $2 WHERE id = $3 AND status = $4`

	tag, err := tx.Exec(ctx, query, to, resolvedAt, id, from)
	if err != nil {
		return 0, fmt.Errorf("update escrow status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByParticipant fetches orders where the account bought or sold.
func (r *EscrowRepo) ListByParticipant(ctx context.Context, accountID int64) ([]domain.EscrowOrder, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_orders
		WHERE buyer_account_id = $1 OR seller_account_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list escrow orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.EscrowOrder
	for rows.Next() {
		var o domain.EscrowOrder
		if err := rows.Scan(
			&o.ID, &o.ListingID, &o.BuyerAccountID, &o.SellerAccountID,
			&o.EscrowAccountID, &o.Amount, &o.Status, &o.CreatedAt, &o.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan escrow order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escrow order rows: %w", err)
	}
	return orders, nil
}

// scanOrder is a helper to scan a single row into an EscrowOrder.
func (r *EscrowRepo) scanOrder(row pgx.Row) (*domain.EscrowOrder, error) {
	o := &domain.EscrowOrder{}
	err := row.Scan(
		&o.ID, &o.ListingID, &o.BuyerAccountID, &o.SellerAccountID,
		&o.EscrowAccountID, &o.Amount, &o.Status, &o.CreatedAt, &o.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan escrow order: %w", err)
	}
	return o, nil
}
