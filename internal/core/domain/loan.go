package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus represents the lifecycle of a peer loan.
type LoanStatus string

const (
	LoanStatusActive LoanStatus = "ACTIVE"
	LoanStatusRepaid LoanStatus = "REPAID"
)

// Loan records money lent between two wallets. The loan account (kind LOAN)
// carries the outstanding amount as its balance: disbursement raises it,
// every repayment lowers it, and the loan closes when it reaches zero.
type Loan struct {
	ID                uuid.UUID       `json:"id"`
	LenderAccountID   int64           `json:"lender_account_id"`
	BorrowerAccountID int64           `json:"borrower_account_id"`
	LoanAccountID     int64           `json:"loan_account_id"`
	Principal         decimal.Decimal `json:"principal"`
	Status            LoanStatus      `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	ClosedAt          *time.Time      `json:"closed_at,omitempty"`
}

// IsOpen returns true while the loan still has outstanding balance.
func (l *Loan) IsOpen() bool {
	return l.Status == LoanStatusActive
}

// BuildLoanDisburseOpID returns the deterministic operation id for the single
// disbursement of a loan.
func BuildLoanDisburseOpID(loanID uuid.UUID) string {
	return "loan:disburse:" + loanID.String()
}
