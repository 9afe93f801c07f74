package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryReason tags why a ledger entry exists.
type EntryReason string

const (
	EntryReasonTransfer           EntryReason = "TRANSFER"
	EntryReasonTopup              EntryReason = "TOPUP"
	EntryReasonWithdrawal         EntryReason = "WITHDRAWAL"
	EntryReasonBudgetAllocate     EntryReason = "BUDGET_ALLOCATE"
	EntryReasonBudgetSpend        EntryReason = "BUDGET_SPEND"
	EntryReasonEscrowHold         EntryReason = "ESCROW_HOLD"
	EntryReasonEscrowRelease      EntryReason = "ESCROW_RELEASE"
	EntryReasonEscrowRefund       EntryReason = "ESCROW_REFUND"
	EntryReasonLoanDisburse       EntryReason = "LOAN_DISBURSE"
	EntryReasonLoanRepay          EntryReason = "LOAN_REPAY"
	EntryReasonSubscriptionCharge EntryReason = "SUBSCRIPTION_CHARGE"
)

// Balanced reports whether entries with this reason must net to zero across
// cash accounts. External reasons cross the system boundary: money enters on
// topup and leaves on withdrawals, card spends and subscription charges.
func (r EntryReason) Balanced() bool {
	switch r {
	case EntryReasonTopup, EntryReasonWithdrawal, EntryReasonBudgetSpend, EntryReasonSubscriptionCharge:
		return false
	}
	return true
}

// LedgerEntry is one signed balance delta. Entries are append-only and are
// written only inside the transaction that applied them, so the sum of an
// account's entries always equals its stored balance.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	Delta       decimal.Decimal `json:"delta"`
	Reason      EntryReason     `json:"reason"`
	OperationID string          `json:"operation_id"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IsDebit returns true if this entry removed money from the account.
func (e *LedgerEntry) IsDebit() bool {
	return e.Delta.IsNegative()
}
