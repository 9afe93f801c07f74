package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BillingCycle is how often a subscription charges.
type BillingCycle string

const (
	BillingCycleWeekly    BillingCycle = "WEEKLY"
	BillingCycleMonthly   BillingCycle = "MONTHLY"
	BillingCycleQuarterly BillingCycle = "QUARTERLY"
	BillingCycleYearly    BillingCycle = "YEARLY"
)

// Subscription is a recurring charge against a budget card.
type Subscription struct {
	ID              int64           `json:"id"`
	OwnerID         int64           `json:"owner_id"`
	CardAccountID   int64           `json:"card_account_id"`
	ServiceName     string          `json:"service_name"`
	ServiceCategory string          `json:"service_category,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	BillingCycle    BillingCycle    `json:"billing_cycle"`
	NextBillingDate *time.Time      `json:"next_billing_date,omitempty"`
	LastPaymentDate *time.Time      `json:"last_payment_date,omitempty"`
	Active          bool            `json:"active"`
	AutoRenew       bool            `json:"auto_renew"`
	CreatedAt       time.Time       `json:"created_at"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
}

// Billable returns true if the scheduler should materialize charges for this
// subscription at all.
func (s *Subscription) Billable() bool {
	return s.Active && s.AutoRenew && s.NextBillingDate != nil
}

// NextCycleFrom computes the billing date one cycle after from. Month-based
// cycles clamp to the last day of the target month, so a Jan 31 subscription
// bills Feb 28 rather than spilling into March. Unknown cycles fall back to
// monthly.
func (s *Subscription) NextCycleFrom(from time.Time) time.Time {
	switch s.BillingCycle {
	case BillingCycleWeekly:
		return from.AddDate(0, 0, 7)
	case BillingCycleQuarterly:
		return addMonthsClamped(from, 3)
	case BillingCycleYearly:
		return addMonthsClamped(from, 12)
	default:
		return addMonthsClamped(from, 1)
	}
}

// addMonthsClamped adds months without day-of-month overflow. time.AddDate
// normalizes Jan 31 + 1 month to Mar 2/3; billing dates must clamp instead.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// ObligationStatus is the settlement outcome of one scheduled charge.
type ObligationStatus string

const (
	ObligationStatusScheduled ObligationStatus = "SCHEDULED"
	ObligationStatusSettled   ObligationStatus = "SETTLED"
	ObligationStatusFailed    ObligationStatus = "FAILED"
)

// ScheduledObligation is a materialized future charge. At most one exists per
// (subscription, due date); its operation id makes the eventual charge replay
// instead of double-bill.
type ScheduledObligation struct {
	ID             int64            `json:"id"`
	SubscriptionID int64            `json:"subscription_id"`
	AccountID      int64            `json:"account_id"`
	Amount         decimal.Decimal  `json:"amount"`
	DueDate        time.Time        `json:"due_date"`
	Status         ObligationStatus `json:"status"`
	OperationID    string           `json:"operation_id"`
	CreatedAt      time.Time        `json:"created_at"`
}

// BuildSubscriptionChargeOpID returns the deterministic operation id for a
// subscription charge on a given due date.
func BuildSubscriptionChargeOpID(subscriptionID int64, due time.Time) string {
	return fmt.Sprintf("subscription:%d:%s", subscriptionID, due.Format("2006-01-02"))
}
