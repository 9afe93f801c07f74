package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// In-memory implementations of the repository ports, backed by memDB. Each
// mirrors the real postgres repository's contract: the same orderings, the
// same nil-on-missing results, and the same apperror codes on constraint
// violations.

type memAccountRepo struct{ db *memDB }

func newMemAccountRepo(db *memDB) *memAccountRepo { return &memAccountRepo{db: db} }

func (r *memAccountRepo) Create(_ context.Context, account *domain.Account) error {
	account.ID = r.db.accountSeq()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.accounts[account.ID] = copyAccount(account)
	return nil
}

func (r *memAccountRepo) CreateTx(_ context.Context, tx pgx.Tx, account *domain.Account) error {
	account.ID = r.db.accountSeq()
	txOf(tx).newAccounts[account.ID] = copyAccount(account)
	return nil
}

func (r *memAccountRepo) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	acc, ok := r.db.accounts[id]
	if !ok {
		return nil, nil
	}
	return copyAccount(acc), nil
}

func (r *memAccountRepo) GetForUpdate(_ context.Context, tx pgx.Tx, id int64) (*domain.Account, error) {
	mtx := txOf(tx)
	if err := mtx.lockRow(id); err != nil {
		return nil, err
	}
	return mtx.accountView(id), nil
}

func (r *memAccountRepo) ListByOwner(_ context.Context, ownerID int64) ([]domain.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Account
	for _, acc := range r.db.accounts {
		if acc.OwnerID == ownerID {
			out = append(out, *copyAccount(acc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memAccountRepo) UpdateBalance(_ context.Context, tx pgx.Tx, accountID int64, balance decimal.Decimal, expectedVersion int64) error {
	mtx := txOf(tx)
	cur := mtx.accountView(accountID)
	if cur == nil {
		return fmt.Errorf("update balance: account %d not found", accountID)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("update balance: account %d version is %d, expected %d", accountID, cur.Version, expectedVersion)
	}
	mtx.balances[accountID] = balanceWrite{balance: balance, version: expectedVersion + 1}
	return nil
}

func (r *memAccountRepo) UpdateStatus(_ context.Context, accountID int64, status domain.AccountStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	acc, ok := r.db.accounts[accountID]
	if !ok {
		return fmt.Errorf("update status: account %d not found", accountID)
	}
	acc.Status = status
	acc.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memAccountRepo) SumBalancesByKind(_ context.Context) (map[domain.AccountKind]decimal.Decimal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	sums := make(map[domain.AccountKind]decimal.Decimal)
	for _, acc := range r.db.accounts {
		sums[acc.Kind] = sums[acc.Kind].Add(acc.Balance)
	}
	return sums, nil
}

type memEntryRepo struct{ db *memDB }

func newMemEntryRepo(db *memDB) *memEntryRepo { return &memEntryRepo{db: db} }

// Create enforces the (operation_id, account_id) unique key, raising the same
// duplicate error the postgres repository maps 23505 to. Both committed rows
// and rows pending in the same transaction count.
func (r *memEntryRepo) Create(_ context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	mtx := txOf(tx)

	r.db.mu.Lock()
	for i := range r.db.entries {
		e := &r.db.entries[i]
		if e.OperationID == entry.OperationID && e.AccountID == entry.AccountID {
			r.db.mu.Unlock()
			return apperror.ErrDuplicateOperation(entry.OperationID)
		}
	}
	r.db.mu.Unlock()
	for i := range mtx.newEntries {
		e := &mtx.newEntries[i]
		if e.OperationID == entry.OperationID && e.AccountID == entry.AccountID {
			return apperror.ErrDuplicateOperation(entry.OperationID)
		}
	}

	entry.ID = r.db.entrySeq()
	mtx.newEntries = append(mtx.newEntries, *entry)
	return nil
}

func (r *memEntryRepo) ListByOperationID(_ context.Context, operationID string) ([]domain.LedgerEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range r.db.entries {
		if e.OperationID == operationID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memEntryRepo) ListByAccount(_ context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var matched []domain.LedgerEntry
	for _, e := range r.db.entries {
		if e.AccountID != params.AccountID {
			continue
		}
		if params.Reason != nil && e.Reason != *params.Reason {
			continue
		}
		if params.From != nil && e.CreatedAt.Unix() < *params.From {
			continue
		}
		if params.To != nil && e.CreatedAt.Unix() > *params.To {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start >= len(matched) {
		return []domain.LedgerEntry{}, total, nil
	}
	end := start + params.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *memEntryRepo) SumByAccount(_ context.Context, accountID int64) (decimal.Decimal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	sum := decimal.Zero
	for _, e := range r.db.entries {
		if e.AccountID == accountID {
			sum = sum.Add(e.Delta)
		}
	}
	return sum, nil
}

// monthWindow returns ref's calendar month bounds in UTC.
func monthWindow(ref time.Time) (time.Time, time.Time) {
	ref = ref.UTC()
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// countsTowardLimit reports whether an entry consumes the account's monthly
// spend limit: debits booked as card spending or subscription charges.
func countsTowardLimit(e *domain.LedgerEntry, accountID int64, start, end time.Time) bool {
	if e.AccountID != accountID || !e.Delta.IsNegative() {
		return false
	}
	if e.Reason != domain.EntryReasonBudgetSpend && e.Reason != domain.EntryReasonSubscriptionCharge {
		return false
	}
	at := e.CreatedAt.UTC()
	return !at.Before(start) && at.Before(end)
}

func (r *memEntryRepo) SpentInMonth(_ context.Context, accountID int64, ref time.Time) (decimal.Decimal, error) {
	start, end := monthWindow(ref)
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	spent := decimal.Zero
	for i := range r.db.entries {
		if countsTowardLimit(&r.db.entries[i], accountID, start, end) {
			spent = spent.Add(r.db.entries[i].Delta.Neg())
		}
	}
	return spent, nil
}

func (r *memEntryRepo) SpentInMonthTx(ctx context.Context, tx pgx.Tx, accountID int64, ref time.Time) (decimal.Decimal, error) {
	spent, err := r.SpentInMonth(ctx, accountID, ref)
	if err != nil {
		return decimal.Zero, err
	}
	start, end := monthWindow(ref)
	mtx := txOf(tx)
	for i := range mtx.newEntries {
		if countsTowardLimit(&mtx.newEntries[i], accountID, start, end) {
			spent = spent.Add(mtx.newEntries[i].Delta.Neg())
		}
	}
	return spent, nil
}

func (r *memEntryRepo) ExternalFlows(_ context.Context) (decimal.Decimal, decimal.Decimal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	in, out := decimal.Zero, decimal.Zero
	for _, e := range r.db.entries {
		switch e.Reason {
		case domain.EntryReasonTopup:
			if e.Delta.IsPositive() {
				in = in.Add(e.Delta)
			}
		case domain.EntryReasonWithdrawal, domain.EntryReasonBudgetSpend, domain.EntryReasonSubscriptionCharge:
			if e.Delta.IsNegative() {
				out = out.Add(e.Delta.Neg())
			}
		}
	}
	return in, out, nil
}

func (r *memEntryRepo) GetStats(_ context.Context, accountID int64) (*ports.EntryStats, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stats := &ports.EntryStats{ByReason: make(map[domain.EntryReason]decimal.Decimal)}
	for _, e := range r.db.entries {
		if e.AccountID != accountID {
			continue
		}
		stats.EntryCount++
		if e.Delta.IsPositive() {
			stats.TotalCredits = stats.TotalCredits.Add(e.Delta)
		} else {
			stats.TotalDebits = stats.TotalDebits.Add(e.Delta.Neg())
		}
		stats.ByReason[e.Reason] = stats.ByReason[e.Reason].Add(e.Delta)
	}
	return stats, nil
}

type memEscrowRepo struct{ db *memDB }

func newMemEscrowRepo(db *memDB) *memEscrowRepo { return &memEscrowRepo{db: db} }

func (r *memEscrowRepo) Create(_ context.Context, order *domain.EscrowOrder) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.escrows[order.ID] = copyOrder(order)
	return nil
}

func (r *memEscrowRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.EscrowOrder, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.escrows[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (r *memEscrowRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.EscrowOrder, error) {
	o, err := r.GetByID(ctx, id)
	if err != nil || o == nil {
		return o, err
	}
	if mv, ok := txOf(tx).escrowMoves[id]; ok {
		o.Status = mv.to
		o.ResolvedAt = copyTimePtr(mv.resolvedAt)
	}
	return o, nil
}

// UpdateStatus answers at call time the way the conditional SQL update does;
// the write itself lands at commit. Callers hold the escrow account's row
// lock while resolving, which is what makes the answer stable.
func (r *memEscrowRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.EscrowStatus, resolvedAt *time.Time) (int64, error) {
	cur, err := r.GetByIDTx(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	if cur == nil || cur.Status != from {
		return 0, nil
	}
	txOf(tx).escrowMoves[id] = escrowMove{to: to, resolvedAt: copyTimePtr(resolvedAt)}
	return 1, nil
}

func (r *memEscrowRepo) ListByParticipant(_ context.Context, accountID int64) ([]domain.EscrowOrder, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.EscrowOrder
	for _, o := range r.db.escrows {
		if o.BuyerAccountID == accountID || o.SellerAccountID == accountID {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memLoanRepo struct{ db *memDB }

func newMemLoanRepo(db *memDB) *memLoanRepo { return &memLoanRepo{db: db} }

func (r *memLoanRepo) Create(_ context.Context, tx pgx.Tx, loan *domain.Loan) error {
	mtx := txOf(tx)
	mtx.newLoans = append(mtx.newLoans, copyLoan(loan))
	return nil
}

func (r *memLoanRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Loan, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l, ok := r.db.loans[id]
	if !ok {
		return nil, nil
	}
	return copyLoan(l), nil
}

func (r *memLoanRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Loan, error) {
	mtx := txOf(tx)
	l, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		for _, pending := range mtx.newLoans {
			if pending.ID == id {
				l = copyLoan(pending)
				break
			}
		}
	}
	if l == nil {
		return nil, nil
	}
	if at, ok := mtx.loanCloses[id]; ok {
		closedAt := at
		l.Status = domain.LoanStatusRepaid
		l.ClosedAt = &closedAt
	}
	return l, nil
}

func (r *memLoanRepo) Close(_ context.Context, tx pgx.Tx, id uuid.UUID, closedAt time.Time) error {
	txOf(tx).loanCloses[id] = closedAt
	return nil
}

func (r *memLoanRepo) ListByAccount(_ context.Context, accountID int64) ([]domain.Loan, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Loan
	for _, l := range r.db.loans {
		if l.LenderAccountID == accountID || l.BorrowerAccountID == accountID {
			out = append(out, *copyLoan(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memSubscriptionRepo struct{ db *memDB }

func newMemSubscriptionRepo(db *memDB) *memSubscriptionRepo { return &memSubscriptionRepo{db: db} }

func (r *memSubscriptionRepo) Create(_ context.Context, sub *domain.Subscription) error {
	sub.ID = r.db.subSeq()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.subs[sub.ID] = copySubscription(sub)
	return nil
}

func (r *memSubscriptionRepo) GetByID(_ context.Context, id int64) (*domain.Subscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.subs[id]
	if !ok {
		return nil, nil
	}
	return copySubscription(s), nil
}

func (r *memSubscriptionRepo) ListByOwner(_ context.Context, ownerID int64) ([]domain.Subscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Subscription
	for _, s := range r.db.subs {
		if s.OwnerID == ownerID {
			out = append(out, *copySubscription(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memSubscriptionRepo) ListBillable(_ context.Context) ([]domain.Subscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Subscription
	for _, s := range r.db.subs {
		if s.Active && s.AutoRenew && s.NextBillingDate != nil {
			out = append(out, *copySubscription(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memSubscriptionRepo) UpdateBillingDates(_ context.Context, id int64, lastPayment, nextBilling time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.subs[id]
	if !ok {
		return fmt.Errorf("update billing dates: subscription %d not found", id)
	}
	lp, nb := lastPayment, nextBilling
	s.LastPaymentDate = &lp
	s.NextBillingDate = &nb
	return nil
}

func (r *memSubscriptionRepo) Cancel(_ context.Context, id int64, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.subs[id]
	if !ok || !s.Active {
		return nil
	}
	cancelledAt := at
	s.Active = false
	s.CancelledAt = &cancelledAt
	return nil
}

type memObligationRepo struct{ db *memDB }

func newMemObligationRepo(db *memDB) *memObligationRepo { return &memObligationRepo{db: db} }

// Create enforces the (subscription_id, due_date) unique key. The loser of a
// concurrent sweep gets the duplicate error, exactly like the postgres
// repository, and the scheduler treats it as another worker winning.
func (r *memObligationRepo) Create(_ context.Context, obligation *domain.ScheduledObligation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, o := range r.db.obligations {
		if o.SubscriptionID == obligation.SubscriptionID && o.DueDate.Equal(obligation.DueDate) {
			return apperror.ErrDuplicateOperation(obligation.OperationID)
		}
	}
	r.db.nextObligID++
	obligation.ID = r.db.nextObligID
	r.db.obligations[obligation.ID] = copyObligation(obligation)
	return nil
}

func (r *memObligationRepo) GetBySubscriptionAndDue(_ context.Context, subscriptionID int64, due time.Time) (*domain.ScheduledObligation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, o := range r.db.obligations {
		if o.SubscriptionID == subscriptionID && o.DueDate.Equal(due) {
			return copyObligation(o), nil
		}
	}
	return nil, nil
}

func (r *memObligationRepo) ListDue(_ context.Context, asOf time.Time) ([]domain.ScheduledObligation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.ScheduledObligation
	for _, o := range r.db.obligations {
		if o.Status == domain.ObligationStatusScheduled && !o.DueDate.After(asOf) {
			out = append(out, *copyObligation(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memObligationRepo) ListBySubscription(_ context.Context, subscriptionID int64) ([]domain.ScheduledObligation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.ScheduledObligation
	for _, o := range r.db.obligations {
		if o.SubscriptionID == subscriptionID {
			out = append(out, *copyObligation(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.After(out[j].DueDate) })
	return out, nil
}

func (r *memObligationRepo) UpdateStatus(_ context.Context, id int64, status domain.ObligationStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.obligations[id]
	if !ok {
		return fmt.Errorf("update status: obligation %d not found", id)
	}
	o.Status = status
	return nil
}

// memCatalog is a mutable listing catalog for tests. Unlike the file-backed
// catalog it accepts listings after construction, so tests can point them at
// accounts created over the API.
type memCatalog struct {
	mu       sync.Mutex
	listings map[string]domain.Listing
}

func newMemCatalog() *memCatalog {
	return &memCatalog{listings: make(map[string]domain.Listing)}
}

func (c *memCatalog) add(listing domain.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[listing.ID] = listing
}

func (c *memCatalog) Lookup(_ context.Context, listingID string) (*domain.Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listings[listingID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}
