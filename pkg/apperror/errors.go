package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Codes that callers branch on. Other codes appear only in their
// constructors below.
const (
	CodeInsufficientFunds    = "LED_001"
	CodeDuplicateOperation   = "LED_002"
	CodeLockTimeout          = "LED_003"
	CodeMonthlyLimitExceeded = "LED_004"
	CodeInternal             = "SYS_001"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is (or wraps) an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Accounts (ACC) ----

func ErrAccountNotFound(id int64) *AppError {
	return New("ACC_001", fmt.Sprintf("Account %d not found", id), http.StatusNotFound)
}

func ErrAccountFrozen(id int64) *AppError {
	return New("ACC_002", fmt.Sprintf("Account %d is frozen", id), http.StatusForbidden)
}

func ErrAccountClosed(id int64) *AppError {
	return New("ACC_003", fmt.Sprintf("Account %d is closed", id), http.StatusForbidden)
}

func ErrAccountNotEmpty(id int64) *AppError {
	return New("ACC_004", fmt.Sprintf("Account %d still holds a balance", id), http.StatusConflict)
}

func ErrKindNotAllowed(kind string) *AppError {
	return New("ACC_005", fmt.Sprintf("Operation not allowed on %s accounts", kind), http.StatusUnprocessableEntity)
}

// ---- Ledger (LED) ----

// ErrInsufficientFunds reports the required and available amounts so the
// caller can see how far short the account is.
func ErrInsufficientFunds(required, available decimal.Decimal) *AppError {
	short := required.Sub(available)
	return New(CodeInsufficientFunds,
		fmt.Sprintf("Insufficient funds: required %s, available %s, short %s",
			required.StringFixed(2), available.StringFixed(2), short.StringFixed(2)),
		http.StatusPaymentRequired)
}

func ErrDuplicateOperation(operationID string) *AppError {
	return New(CodeDuplicateOperation, fmt.Sprintf("Operation %s already applied", operationID), http.StatusConflict)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap(CodeLockTimeout, "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

// ErrMonthlyLimitExceeded is distinct from ErrInsufficientFunds: the card may
// hold the money and still refuse the spend.
func ErrMonthlyLimitExceeded(requested, remaining decimal.Decimal) *AppError {
	return New(CodeMonthlyLimitExceeded,
		fmt.Sprintf("Spend of %s exceeds monthly limit: %s remaining this month",
			requested.StringFixed(2), remaining.StringFixed(2)),
		http.StatusUnprocessableEntity)
}

// ErrUnbalancedOperation flags a programming error: balanced ledger reasons
// must net to zero across cash accounts.
func ErrUnbalancedOperation(operationID string) *AppError {
	return New("LED_005", fmt.Sprintf("Operation %s does not balance", operationID), http.StatusInternalServerError)
}

// ---- Escrow (ESC) ----

func ErrInvalidStateTransition(from, to string) *AppError {
	return New("ESC_001", fmt.Sprintf("Invalid state transition from %s to %s", from, to), http.StatusConflict)
}

func ErrListingUnavailable(listingID string) *AppError {
	return New("ESC_002", fmt.Sprintf("Listing %s is not available", listingID), http.StatusConflict)
}

// ---- Subscriptions (SUB) ----

func ErrSubscriptionInactive(id int64) *AppError {
	return New("SUB_001", fmt.Sprintf("Subscription %d is not active", id), http.StatusConflict)
}

// ---- Loans (LOAN) ----

func ErrLoanClosed(loanID string) *AppError {
	return New("LOAN_001", fmt.Sprintf("Loan %s is already repaid", loanID), http.StatusConflict)
}

func ErrRepayExceedsOutstanding(requested, outstanding decimal.Decimal) *AppError {
	return New("LOAN_002",
		fmt.Sprintf("Repayment of %s exceeds outstanding balance of %s",
			requested.StringFixed(2), outstanding.StringFixed(2)),
		http.StatusUnprocessableEntity)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrNotOwner() *AppError {
	return New("AUTH_002", "Caller does not own this account", http.StatusForbidden)
}

// ---- Validation (VAL) ----

func ErrInvalidAmount(reason string) *AppError {
	return New("VAL_001", fmt.Sprintf("Invalid amount: %s", reason), http.StatusBadRequest)
}

func ErrAmountOutOfRange(min, max decimal.Decimal) *AppError {
	return New("VAL_002",
		fmt.Sprintf("Amount must be between %s and %s", min.StringFixed(2), max.StringFixed(2)),
		http.StatusBadRequest)
}

// Validation returns a VAL_001-style validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeInternal, "Internal database error", http.StatusInternalServerError, err)
}

func ErrNotFound(entity string) *AppError {
	return New("SYS_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
