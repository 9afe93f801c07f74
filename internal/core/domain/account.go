package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind classifies what an account balance means.
type AccountKind string

const (
	AccountKindWallet     AccountKind = "WALLET"
	AccountKindBudgetCard AccountKind = "BUDGET_CARD"
	AccountKindEscrow     AccountKind = "ESCROW"
	AccountKindLoan       AccountKind = "LOAN"
)

// IsCash reports whether balances of this kind are spendable money counted
// by the conservation check. Loan accounts track outstanding debt instead.
func (k AccountKind) IsCash() bool {
	return k == AccountKindWallet || k == AccountKindBudgetCard || k == AccountKindEscrow
}

// AccountStatus represents the lifecycle state of an account.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "ACTIVE"
	AccountStatusFrozen AccountStatus = "FROZEN"
	AccountStatusClosed AccountStatus = "CLOSED"
)

// Account is a balance-bearing row. IDs are sequential so multi-account
// operations can lock rows in ascending id order.
type Account struct {
	ID           int64            `json:"id"`
	OwnerID      int64            `json:"owner_id"`
	Kind         AccountKind      `json:"kind"`
	Status       AccountStatus    `json:"status"`
	Balance      decimal.Decimal  `json:"balance"`
	MonthlyLimit *decimal.Decimal `json:"monthly_limit,omitempty"` // budget cards only
	Version      int64            `json:"version"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// IsActive returns true if the account accepts balance changes.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
