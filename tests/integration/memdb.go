package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// memDB is a transactional in-memory stand-in for PostgreSQL. It models the
// two properties the ledger services lean on: per-account row locks held
// until the owning transaction ends, and writes that stay invisible to other
// transactions until commit. Lock waits time out the way lock_timeout does,
// surfacing the same apperror the real store maps SQLSTATE 55P03 to, so the
// retry and deadlock behavior under test is the production code path.
type memDB struct {
	mu sync.Mutex

	accounts    map[int64]*domain.Account
	entries     []domain.LedgerEntry
	escrows     map[uuid.UUID]*domain.EscrowOrder
	loans       map[uuid.UUID]*domain.Loan
	subs        map[int64]*domain.Subscription
	obligations map[int64]*domain.ScheduledObligation

	nextAccountID int64
	nextEntryID   int64
	nextSubID     int64
	nextObligID   int64

	rowLocks map[int64]chan struct{}
}

func newMemDB() *memDB {
	return &memDB{
		accounts:    make(map[int64]*domain.Account),
		escrows:     make(map[uuid.UUID]*domain.EscrowOrder),
		loans:       make(map[uuid.UUID]*domain.Loan),
		subs:        make(map[int64]*domain.Subscription),
		obligations: make(map[int64]*domain.ScheduledObligation),
		rowLocks:    make(map[int64]chan struct{}),
	}
}

// rowLock returns the capacity-1 channel standing in for the account's row
// lock, creating it on first use.
func (db *memDB) rowLock(accountID int64) chan struct{} {
	db.mu.Lock()
	defer db.mu.Unlock()
	ch, ok := db.rowLocks[accountID]
	if !ok {
		ch = make(chan struct{}, 1)
		db.rowLocks[accountID] = ch
	}
	return ch
}

// Sequence counters hand out ids at call time, like real sequences: a rolled
// back transaction burns its ids.

func (db *memDB) accountSeq() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextAccountID++
	return db.nextAccountID
}

func (db *memDB) entrySeq() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextEntryID++
	return db.nextEntryID
}

func (db *memDB) subSeq() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextSubID++
	return db.nextSubID
}

// balanceWrite is a buffered UPDATE on accounts(balance, version).
type balanceWrite struct {
	balance decimal.Decimal
	version int64
}

// escrowMove is a buffered status transition on an escrow order.
type escrowMove struct {
	to         domain.EscrowStatus
	resolvedAt *time.Time
}

// memTx buffers writes until Commit and releases row locks on Commit or
// Rollback. Only the pgx.Tx methods the repositories call carry behavior;
// the rest exist to satisfy the interface.
type memTx struct {
	db       *memDB
	lockWait time.Duration
	done     bool

	held    []int64
	heldSet map[int64]struct{}

	newAccounts map[int64]*domain.Account
	balances    map[int64]balanceWrite
	newEntries  []domain.LedgerEntry
	newLoans    []*domain.Loan
	escrowMoves map[uuid.UUID]escrowMove
	loanCloses  map[uuid.UUID]time.Time
}

// lockRow takes the account's row lock unless this transaction already holds
// it. Re-acquisition must be a no-op or a transaction that reads the same
// account twice would deadlock against itself.
func (tx *memTx) lockRow(accountID int64) error {
	if _, ok := tx.heldSet[accountID]; ok {
		return nil
	}
	ch := tx.db.rowLock(accountID)
	select {
	case ch <- struct{}{}:
	default:
		timer := time.NewTimer(tx.lockWait)
		defer timer.Stop()
		select {
		case ch <- struct{}{}:
		case <-timer.C:
			return apperror.ErrLockTimeout(errors.New("canceling statement due to lock timeout"))
		}
	}
	tx.held = append(tx.held, accountID)
	tx.heldSet[accountID] = struct{}{}
	return nil
}

// accountView reads an account as this transaction sees it: rows created or
// rewritten here shadow committed state.
func (tx *memTx) accountView(id int64) *domain.Account {
	var acc *domain.Account
	if pending, ok := tx.newAccounts[id]; ok {
		acc = copyAccount(pending)
	} else {
		tx.db.mu.Lock()
		if committed, ok := tx.db.accounts[id]; ok {
			acc = copyAccount(committed)
		}
		tx.db.mu.Unlock()
	}
	if acc == nil {
		return nil
	}
	if w, ok := tx.balances[id]; ok {
		acc.Balance = w.balance
		acc.Version = w.version
	}
	return acc
}

func (tx *memTx) Commit(_ context.Context) error   { return tx.finish(true) }
func (tx *memTx) Rollback(_ context.Context) error { return tx.finish(false) }

func (tx *memTx) finish(apply bool) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true

	if apply {
		now := time.Now().UTC()
		tx.db.mu.Lock()
		for id, acc := range tx.newAccounts {
			tx.db.accounts[id] = acc
		}
		for id, w := range tx.balances {
			if acc, ok := tx.db.accounts[id]; ok {
				acc.Balance = w.balance
				acc.Version = w.version
				acc.UpdatedAt = now
			}
		}
		tx.db.entries = append(tx.db.entries, tx.newEntries...)
		for _, l := range tx.newLoans {
			tx.db.loans[l.ID] = l
		}
		for id, mv := range tx.escrowMoves {
			if o, ok := tx.db.escrows[id]; ok {
				o.Status = mv.to
				o.ResolvedAt = copyTimePtr(mv.resolvedAt)
			}
		}
		for id, at := range tx.loanCloses {
			if l, ok := tx.db.loans[id]; ok {
				closedAt := at
				l.Status = domain.LoanStatusRepaid
				l.ClosedAt = &closedAt
			}
		}
		tx.db.mu.Unlock()
	}

	// Row locks release only after buffered writes land, and never while
	// holding db.mu, or a blocked lockRow could never drain the channel.
	for _, id := range tx.held {
		<-tx.db.rowLock(id)
	}
	tx.held = nil
	return nil
}

// The remaining pgx.Tx surface is inert.

func (tx *memTx) Begin(_ context.Context) (pgx.Tx, error) { return tx, nil }

func (tx *memTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (tx *memTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }

func (tx *memTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (tx *memTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (tx *memTx) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}

func (tx *memTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return nil, nil }

func (tx *memTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return nil }

func (tx *memTx) Conn() *pgx.Conn { return nil }

// memTransactor hands out memDB transactions. Begin uses a generous lock
// wait so a test bug shows up as a lock timeout instead of a hang.
type memTransactor struct {
	db *memDB
}

func newMemTransactor(db *memDB) *memTransactor { return &memTransactor{db: db} }

func (t *memTransactor) Begin(_ context.Context) (pgx.Tx, error) {
	return t.newTx(5 * time.Second), nil
}

func (t *memTransactor) BeginWithLockTimeout(_ context.Context, timeout time.Duration) (pgx.Tx, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return t.newTx(timeout), nil
}

func (t *memTransactor) newTx(lockWait time.Duration) *memTx {
	return &memTx{
		db:          t.db,
		lockWait:    lockWait,
		heldSet:     make(map[int64]struct{}),
		newAccounts: make(map[int64]*domain.Account),
		balances:    make(map[int64]balanceWrite),
		escrowMoves: make(map[uuid.UUID]escrowMove),
		loanCloses:  make(map[uuid.UUID]time.Time),
	}
}

// txOf unwraps the pgx.Tx a service passes back into our transaction type.
func txOf(tx pgx.Tx) *memTx {
	m, ok := tx.(*memTx)
	if !ok {
		panic("integration: foreign pgx.Tx handed to in-memory repository")
	}
	return m
}

// Deep copies keep callers from mutating shared state through returned
// pointers, matching the row-scan semantics of the real repositories.

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	if a.MonthlyLimit != nil {
		l := *a.MonthlyLimit
		c.MonthlyLimit = &l
	}
	return &c
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyOrder(o *domain.EscrowOrder) *domain.EscrowOrder {
	c := *o
	c.ResolvedAt = copyTimePtr(o.ResolvedAt)
	return &c
}

func copyLoan(l *domain.Loan) *domain.Loan {
	c := *l
	c.ClosedAt = copyTimePtr(l.ClosedAt)
	return &c
}

func copySubscription(s *domain.Subscription) *domain.Subscription {
	c := *s
	c.NextBillingDate = copyTimePtr(s.NextBillingDate)
	c.LastPaymentDate = copyTimePtr(s.LastPaymentDate)
	c.CancelledAt = copyTimePtr(s.CancelledAt)
	return &c
}

func copyObligation(o *domain.ScheduledObligation) *domain.ScheduledObligation {
	c := *o
	return &c
}
