package ports

import (
	"context"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepository defines persistence operations for accounts.
// Methods accepting pgx.Tx run inside transaction blocks for pessimistic
// locking; GetForUpdate is the only way balances may be read before writing.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	CreateTx(ctx context.Context, tx pgx.Tx, account *domain.Account) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Account, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error)
	// UpdateBalance writes the new balance and bumps the version. expectedVersion
	// is the version read under the row lock; a mismatch means the locking
	// discipline was broken somewhere.
	UpdateBalance(ctx context.Context, tx pgx.Tx, accountID int64, balance decimal.Decimal, expectedVersion int64) error
	UpdateStatus(ctx context.Context, accountID int64, status domain.AccountStatus) error
	// SumBalancesByKind aggregates live balances for the conservation check.
	SumBalancesByKind(ctx context.Context) (map[domain.AccountKind]decimal.Decimal, error)
}

// EntryRepository defines persistence for the append-only ledger.
type EntryRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	// ListByOperationID returns every entry an operation wrote, in insertion
	// order. Non-empty means the operation already applied.
	ListByOperationID(ctx context.Context, operationID string) ([]domain.LedgerEntry, error)
	ListByAccount(ctx context.Context, params EntryListParams) ([]domain.LedgerEntry, int64, error)
	// SumByAccount returns the signed sum of all entries for reconciliation.
	SumByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error)
	// SpentInMonth sums debits that count against a budget card's monthly
	// limit (card spends and subscription charges) in ref's calendar month.
	SpentInMonth(ctx context.Context, accountID int64, ref time.Time) (decimal.Decimal, error)
	// SpentInMonthTx is the same read inside a transaction, used by spend
	// guards while the card row lock is held.
	SpentInMonthTx(ctx context.Context, tx pgx.Tx, accountID int64, ref time.Time) (decimal.Decimal, error)
	// ExternalFlows returns total money that entered (topups) and left
	// (withdrawals, spends, charges) the system.
	ExternalFlows(ctx context.Context) (in, out decimal.Decimal, err error)
	GetStats(ctx context.Context, accountID int64) (*EntryStats, error)
}

// EntryListParams holds filter + pagination for account statements.
type EntryListParams struct {
	AccountID int64
	Reason    *domain.EntryReason
	From      *int64 // Unix timestamp
	To        *int64 // Unix timestamp
	Page      int
	PageSize  int
}

// EntryStats aggregates an account's ledger history.
type EntryStats struct {
	EntryCount   int64
	TotalCredits decimal.Decimal
	TotalDebits  decimal.Decimal // absolute value
	ByReason     map[domain.EntryReason]decimal.Decimal
}

// EscrowRepository defines persistence for escrow orders.
type EscrowRepository interface {
	Create(ctx context.Context, order *domain.EscrowOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.EscrowOrder, error)
	// GetByIDTx reads the order inside a transaction. Order mutations only
	// happen under the escrow account row lock, so this read is stable for
	// guards holding that lock.
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.EscrowOrder, error)
	// UpdateStatus transitions the order only if it is still in from,
	// returning the number of rows moved. Zero means the order advanced
	// elsewhere first.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.EscrowStatus, resolvedAt *time.Time) (int64, error)
	ListByParticipant(ctx context.Context, accountID int64) ([]domain.EscrowOrder, error)
}

// LoanRepository defines persistence for peer loans.
type LoanRepository interface {
	Create(ctx context.Context, tx pgx.Tx, loan *domain.Loan) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Loan, error)
	Close(ctx context.Context, tx pgx.Tx, id uuid.UUID, closedAt time.Time) error
	ListByAccount(ctx context.Context, accountID int64) ([]domain.Loan, error)
}

// SubscriptionRepository defines persistence for subscriptions.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id int64) (*domain.Subscription, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Subscription, error)
	// ListBillable returns active, auto-renewing subscriptions with a next
	// billing date set.
	ListBillable(ctx context.Context) ([]domain.Subscription, error)
	UpdateBillingDates(ctx context.Context, id int64, lastPayment, nextBilling time.Time) error
	Cancel(ctx context.Context, id int64, at time.Time) error
}

// ObligationRepository defines persistence for scheduled charges.
// (subscription_id, due_date) is unique; Create surfaces a duplicate as
// apperror.ErrDuplicateOperation so callers can treat it as already-created.
type ObligationRepository interface {
	Create(ctx context.Context, obligation *domain.ScheduledObligation) error
	GetBySubscriptionAndDue(ctx context.Context, subscriptionID int64, due time.Time) (*domain.ScheduledObligation, error)
	ListDue(ctx context.Context, asOf time.Time) ([]domain.ScheduledObligation, error)
	ListBySubscription(ctx context.Context, subscriptionID int64) ([]domain.ScheduledObligation, error)
	UpdateStatus(ctx context.Context, id int64, status domain.ObligationStatus) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	// BeginWithLockTimeout starts a transaction whose row lock waits are
	// capped, so lock contention surfaces as a retryable error instead of
	// stalling a request handler.
	BeginWithLockTimeout(ctx context.Context, timeout time.Duration) (pgx.Tx, error)
}
