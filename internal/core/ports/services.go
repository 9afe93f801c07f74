package ports

import (
	"context"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TokenService handles JWT token operations. Authentication itself lives
// outside this service; tokens are how the auth boundary hands us a verified
// owner id.
type TokenService interface {
	Generate(ownerID int64) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	OwnerID int64
}

// IdempotencyCache is the Redis-layer operation result check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached result JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// OpClaimStore marks operation ids as in flight so storming duplicates are
// rejected before they queue up on row locks. It is an optimization only:
// the ledger's unique index is what actually guarantees exactly-once.
type OpClaimStore interface {
	// TryClaim returns true if this caller now owns the operation id.
	TryClaim(ctx context.Context, operationID string, ttl time.Duration) (bool, error)
	// Release frees a claim after a failed attempt so a retry can proceed.
	Release(ctx context.Context, operationID string) error
}

// ListingCatalog resolves marketplace listings. The catalog is an external
// collaborator; escrow treats its answers as authoritative at order time.
type ListingCatalog interface {
	Lookup(ctx context.Context, listingID string) (*domain.Listing, error)
}

// Event describes a committed financial operation for downstream consumers.
type Event struct {
	Kind        string          `json:"kind"` // e.g. "transfer.applied", "escrow.released"
	OperationID string          `json:"operation_id"`
	AccountIDs  []int64         `json:"account_ids"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Notifier delivers events after commit. Delivery is best effort: failures
// are logged and never roll back the operation that produced the event.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// HealthChecker checks external dependency health.
type HealthChecker interface {
	// Ping verifies connectivity. Returns nil if healthy.
	Ping(ctx context.Context) error
	// Name returns the dependency name (e.g., "postgresql", "redis").
	Name() string
}

// --- Service Ports (Business Logic) ---

// Move is one signed balance change inside an operation.
type Move struct {
	AccountID int64
	Delta     decimal.Decimal
}

// GuardFunc runs after every account row lock is held and before any balance
// changes. Guards re-check state that only stabilizes under those locks,
// like escrow order status or a card's month-to-date spend.
type GuardFunc func(ctx context.Context, tx pgx.Tx, locked map[int64]*domain.Account) error

// ApplyParams describes one atomic ledger operation.
type ApplyParams struct {
	OperationID string
	Reason      domain.EntryReason
	Description string
	Moves       []Move
	Guard       GuardFunc // optional
}

// TransferResult reports what an operation did. Replayed is true when the
// operation id had already been applied and the stored outcome was returned.
type TransferResult struct {
	OperationID string               `json:"operation_id"`
	Entries     []domain.LedgerEntry `json:"entries"`
	Replayed    bool                 `json:"replayed"`
}

// TransferService is the single path that mutates balances.
type TransferService interface {
	// Apply runs one operation in its own transaction.
	Apply(ctx context.Context, params ApplyParams) (*TransferResult, error)
	// ApplyTx composes an operation into a caller-owned transaction. The
	// caller commits; idempotency replay is not checked here.
	ApplyTx(ctx context.Context, tx pgx.Tx, params ApplyParams) (*TransferResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Topup(ctx context.Context, req TopupRequest) (*TransferResult, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*TransferResult, error)
}

// TransferRequest holds validated input for a wallet-to-wallet transfer.
type TransferRequest struct {
	OwnerID       int64
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
	OperationID   string
	Description   string
}

// TopupRequest holds validated input for an external funding topup.
type TopupRequest struct {
	OwnerID     int64
	AccountID   int64
	Amount      decimal.Decimal
	OperationID string
}

// WithdrawRequest holds validated input for moving money out of the system.
type WithdrawRequest struct {
	OwnerID     int64
	AccountID   int64
	Amount      decimal.Decimal
	OperationID string
}

// EscrowService drives the escrow order state machine.
type EscrowService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.EscrowOrder, error)
	Release(ctx context.Context, orderID uuid.UUID, callerOwnerID int64) (*domain.EscrowOrder, error)
	Refund(ctx context.Context, orderID uuid.UUID, callerOwnerID int64) (*domain.EscrowOrder, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, callerOwnerID int64) (*domain.EscrowOrder, error)
	ListOrders(ctx context.Context, callerOwnerID int64, accountID int64) ([]domain.EscrowOrder, error)
}

// CreateOrderRequest holds validated input for starting an escrow purchase.
type CreateOrderRequest struct {
	BuyerOwnerID   int64
	BuyerAccountID int64
	ListingID      string
}

// BudgetService guards budget card money.
type BudgetService interface {
	Allocate(ctx context.Context, req AllocateRequest) (*TransferResult, error)
	Spend(ctx context.Context, req SpendRequest) (*TransferResult, error)
	CanSpend(ctx context.Context, cardAccountID int64, amount decimal.Decimal) (*SpendDecision, error)
}

// AllocateRequest moves money from an owner's wallet onto their budget card.
type AllocateRequest struct {
	OwnerID         int64
	WalletAccountID int64
	CardAccountID   int64
	Amount          decimal.Decimal
	OperationID     string
}

// SpendRequest is an authorization-and-capture against a budget card.
type SpendRequest struct {
	OwnerID       int64
	CardAccountID int64
	Amount        decimal.Decimal
	OperationID   string
	Description   string
}

// SpendDecision explains whether a spend would be allowed right now.
type SpendDecision struct {
	Allowed          bool             `json:"allowed"`
	Reason           string           `json:"reason,omitempty"`
	Available        decimal.Decimal  `json:"available"`
	MonthlySpent     decimal.Decimal  `json:"monthly_spent"`
	MonthlyRemaining *decimal.Decimal `json:"monthly_remaining,omitempty"` // nil when the card has no limit
}

// LoanService manages peer-to-peer loans.
type LoanService interface {
	Disburse(ctx context.Context, req DisburseRequest) (*domain.Loan, error)
	Repay(ctx context.Context, req RepayRequest) (*domain.Loan, error)
	Get(ctx context.Context, loanID uuid.UUID, callerOwnerID int64) (*domain.Loan, error)
	ListByAccount(ctx context.Context, callerOwnerID int64, accountID int64) ([]domain.Loan, error)
}

// DisburseRequest holds validated input for lending money.
type DisburseRequest struct {
	LenderOwnerID     int64
	LenderAccountID   int64
	BorrowerAccountID int64
	Amount            decimal.Decimal
}

// RepayRequest holds validated input for paying a loan down.
type RepayRequest struct {
	CallerOwnerID int64
	LoanID        uuid.UUID
	Amount        decimal.Decimal
	OperationID   string
}

// SubscriptionService manages subscriptions and their payment schedule.
type SubscriptionService interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*domain.Subscription, error)
	Cancel(ctx context.Context, subscriptionID int64, callerOwnerID int64) error
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Subscription, error)
	// EnsureNextPayment materializes the next obligation if it is due within
	// the horizon. Safe to call any number of times.
	EnsureNextPayment(ctx context.Context, sub *domain.Subscription) (*domain.ScheduledObligation, bool, error)
	// SyncAll runs EnsureNextPayment over every billable subscription.
	SyncAll(ctx context.Context) (*SyncReport, error)
	// RunDue charges every obligation that has come due.
	RunDue(ctx context.Context, now time.Time) (*RunReport, error)
}

// CreateSubscriptionRequest holds validated input for a new subscription.
type CreateSubscriptionRequest struct {
	OwnerID          int64
	CardAccountID    int64
	ServiceName      string
	ServiceCategory  string
	Amount           decimal.Decimal
	BillingCycle     domain.BillingCycle
	FirstBillingDate time.Time
}

// SyncReport counts what a scheduler sweep did.
type SyncReport struct {
	TotalActive int `json:"total_active"`
	Synced      int `json:"synced"`
	Created     int `json:"created"`
	Skipped     int `json:"skipped"`
}

// RunReport summarizes a charge run. Failures stay visible instead of being
// retried in a loop.
type RunReport struct {
	Due      int             `json:"due"`
	Settled  int             `json:"settled"`
	Failed   int             `json:"failed"`
	Failures []ChargeFailure `json:"failures,omitempty"`
}

// ChargeFailure records one obligation that could not be charged.
type ChargeFailure struct {
	ObligationID   int64  `json:"obligation_id"`
	SubscriptionID int64  `json:"subscription_id"`
	Reason         string `json:"reason"`
}

// AccountService manages account lifecycle.
type AccountService interface {
	OpenWallet(ctx context.Context, ownerID int64) (*domain.Account, error)
	OpenBudgetCard(ctx context.Context, ownerID int64, monthlyLimit *decimal.Decimal) (*domain.Account, error)
	Get(ctx context.Context, accountID int64, callerOwnerID int64) (*domain.Account, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error)
	Freeze(ctx context.Context, accountID int64, callerOwnerID int64) error
	Unfreeze(ctx context.Context, accountID int64, callerOwnerID int64) error
	Close(ctx context.Context, accountID int64, callerOwnerID int64) error
}

// ReportingService reads balances and history; it never mutates.
type ReportingService interface {
	GetBalance(ctx context.Context, accountID int64, callerOwnerID int64) (*BalanceReport, error)
	GetStatement(ctx context.Context, callerOwnerID int64, params EntryListParams) ([]domain.LedgerEntry, int64, error)
	GetStats(ctx context.Context, accountID int64, callerOwnerID int64) (*EntryStats, error)
	// Reconcile compares an account's stored balance against the sum of its
	// ledger entries.
	Reconcile(ctx context.Context, accountID int64) (*ReconcileReport, error)
	// CheckConservation verifies cash in the system equals what entered
	// minus what left.
	CheckConservation(ctx context.Context) (*ConservationReport, error)
}

// BalanceReport is a point-in-time balance read.
type BalanceReport struct {
	AccountID int64              `json:"account_id"`
	Kind      domain.AccountKind `json:"kind"`
	Balance   decimal.Decimal    `json:"balance"`
	AsOf      time.Time          `json:"as_of"`
}

// ReconcileReport compares stored balance to the entry sum.
type ReconcileReport struct {
	AccountID     int64           `json:"account_id"`
	StoredBalance decimal.Decimal `json:"stored_balance"`
	EntrySum      decimal.Decimal `json:"entry_sum"`
	Consistent    bool            `json:"consistent"`
}

// ConservationReport is the system-wide money audit. Cash covers wallet,
// budget card and escrow balances; loan outstanding reconciles separately
// as disbursed minus repaid.
type ConservationReport struct {
	CashTotal       decimal.Decimal `json:"cash_total"`
	ExternalIn      decimal.Decimal `json:"external_in"`
	ExternalOut     decimal.Decimal `json:"external_out"`
	Expected        decimal.Decimal `json:"expected"`
	LoanOutstanding decimal.Decimal `json:"loan_outstanding"`
	Consistent      bool            `json:"consistent"`
}
