package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowStatus represents the state of an escrow order.
type EscrowStatus string

const (
	EscrowStatusPending  EscrowStatus = "PENDING"
	EscrowStatusHeld     EscrowStatus = "HELD"
	EscrowStatusReleased EscrowStatus = "RELEASED"
	EscrowStatusRefunded EscrowStatus = "REFUNDED"
)

// IsTerminal returns true once the order can never change again.
func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusRefunded
}

// CanTransitionTo enforces the order lifecycle:
// PENDING -> HELD -> RELEASED or REFUNDED.
func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	switch s {
	case EscrowStatusPending:
		return next == EscrowStatusHeld
	case EscrowStatusHeld:
		return next == EscrowStatusReleased || next == EscrowStatusRefunded
	}
	return false
}

// EscrowOrder tracks funds held for a marketplace purchase. Each order owns a
// dedicated escrow account so the held amount stays visible on a balance.
type EscrowOrder struct {
	ID              uuid.UUID       `json:"id"`
	ListingID       string          `json:"listing_id"`
	BuyerAccountID  int64           `json:"buyer_account_id"`
	SellerAccountID int64           `json:"seller_account_id"`
	EscrowAccountID int64           `json:"escrow_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          EscrowStatus    `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// BuildEscrowHoldOpID returns the deterministic operation id for holding
// funds on an order. Retrying a hold replays instead of double-charging.
func BuildEscrowHoldOpID(orderID uuid.UUID) string {
	return "escrow:hold:" + orderID.String()
}

// BuildEscrowReleaseOpID returns the operation id for releasing an order.
func BuildEscrowReleaseOpID(orderID uuid.UUID) string {
	return "escrow:release:" + orderID.String()
}

// BuildEscrowRefundOpID returns the operation id for refunding an order.
func BuildEscrowRefundOpID(orderID uuid.UUID) string {
	return "escrow:refund:" + orderID.String()
}
