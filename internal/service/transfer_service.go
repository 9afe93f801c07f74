package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/config"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/lockorder"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	idempotencyTTL = 24 * time.Hour
	opClaimTTL     = 30 * time.Second
)

// TransferServiceImpl implements ports.TransferService. Every balance change
// in the system funnels through Apply or ApplyTx, so the locking discipline
// and the ledger invariants live in exactly one place.
type TransferServiceImpl struct {
	accountRepo ports.AccountRepository
	entryRepo   ports.EntryRepository
	idempCache  ports.IdempotencyCache
	claims      ports.OpClaimStore
	notifier    ports.Notifier
	transactor  ports.DBTransactor
	cfg         config.LedgerConfig
	log         zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	accountRepo ports.AccountRepository,
	entryRepo ports.EntryRepository,
	idempCache ports.IdempotencyCache,
	claims ports.OpClaimStore,
	notifier ports.Notifier,
	transactor ports.DBTransactor,
	cfg config.LedgerConfig,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		idempCache:  idempCache,
		claims:      claims,
		notifier:    notifier,
		transactor:  transactor,
		cfg:         cfg,
		log:         log,
	}
}

// Apply runs one atomic ledger operation in its own transaction with
// pessimistic locking.
func (s *TransferServiceImpl) Apply(ctx context.Context, params ports.ApplyParams) (*ports.TransferResult, error) {
	if err := s.validateParams(params); err != nil {
		return nil, err
	}

	// Layer 1: Redis result check
	cached, err := s.idempCache.Get(ctx, params.OperationID)
	if err != nil {
		s.log.Warn().Err(err).Str("operation_id", params.OperationID).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return s.unmarshalCachedResult(cached)
	}

	// Layer 2: ledger check
	existing, err := s.entryRepo.ListByOperationID(ctx, params.OperationID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if len(existing) > 0 {
		return &ports.TransferResult{OperationID: params.OperationID, Entries: existing, Replayed: true}, nil
	}

	// Claim the operation id so storming duplicates bounce here instead of
	// queueing on row locks. The ledger unique index stays the real guarantee.
	claimed, err := s.claims.TryClaim(ctx, params.OperationID, opClaimTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("operation_id", params.OperationID).Msg("operation claim failed, relying on ledger unique index")
	} else if !claimed {
		return nil, apperror.ErrDuplicateOperation(params.OperationID)
	}

	var result *ports.TransferResult
	for attempt := 0; ; attempt++ {
		result, err = s.applyOnce(ctx, params)
		if err == nil {
			break
		}
		if apperror.IsCode(err, apperror.CodeDuplicateOperation) {
			// Lost a race against a concurrent duplicate. Its committed
			// entries are this operation's outcome.
			return s.replayFromLedger(ctx, params.OperationID)
		}
		if apperror.IsCode(err, apperror.CodeLockTimeout) && attempt < s.cfg.LockRetries {
			s.log.Warn().
				Str("operation_id", params.OperationID).
				Int("attempt", attempt+1).
				Msg("row lock timeout, retrying operation")
			continue
		}
		s.releaseClaim(ctx, params.OperationID)
		return nil, err
	}

	// Post-process: cache the result in Redis (best-effort)
	if respJSON, merr := json.Marshal(result); merr != nil {
		s.log.Warn().Err(merr).Str("operation_id", params.OperationID).Msg("failed to marshal operation result")
	} else if err := s.idempCache.Set(ctx, params.OperationID, respJSON, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("operation_id", params.OperationID).Msg("failed to cache operation result in redis")
	}

	s.notify(ctx, params.Reason, result)

	s.log.Info().
		Str("operation_id", params.OperationID).
		Str("reason", string(params.Reason)).
		Int("entries", len(result.Entries)).
		Msg("operation applied")

	return result, nil
}

// ApplyTx composes an operation into a caller-owned transaction. The caller
// commits; replay checks and event delivery stay with the caller too.
func (s *TransferServiceImpl) ApplyTx(ctx context.Context, tx pgx.Tx, params ports.ApplyParams) (*ports.TransferResult, error) {
	if err := s.validateParams(params); err != nil {
		return nil, err
	}
	return s.applyLocked(ctx, tx, params)
}

// Transfer moves money between two wallet accounts.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("must be positive")
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, apperror.Validation("from and to accounts must differ")
	}

	guard := func(ctx context.Context, tx pgx.Tx, locked map[int64]*domain.Account) error {
		from := locked[req.FromAccountID]
		if from.OwnerID != req.OwnerID {
			return apperror.ErrNotOwner()
		}
		if from.Kind != domain.AccountKindWallet {
			return apperror.ErrKindNotAllowed(string(from.Kind))
		}
		if to := locked[req.ToAccountID]; to.Kind != domain.AccountKindWallet {
			return apperror.ErrKindNotAllowed(string(to.Kind))
		}
		return nil
	}

	return s.Apply(ctx, ports.ApplyParams{
		OperationID: req.OperationID,
		Reason:      domain.EntryReasonTransfer,
		Description: req.Description,
		Moves: []ports.Move{
			{AccountID: req.FromAccountID, Delta: req.Amount.Neg()},
			{AccountID: req.ToAccountID, Delta: req.Amount},
		},
		Guard: guard,
	})
}

// Topup funds a wallet from outside the system.
func (s *TransferServiceImpl) Topup(ctx context.Context, req ports.TopupRequest) (*ports.TransferResult, error) {
	minAmount, maxAmount := s.cfg.TopupMinAmount(), s.cfg.TopupMaxAmount()
	if req.Amount.LessThan(minAmount) || req.Amount.GreaterThan(maxAmount) {
		return nil, apperror.ErrAmountOutOfRange(minAmount, maxAmount)
	}

	guard := func(ctx context.Context, tx pgx.Tx, locked map[int64]*domain.Account) error {
		acc := locked[req.AccountID]
		if acc.OwnerID != req.OwnerID {
			return apperror.ErrNotOwner()
		}
		if acc.Kind != domain.AccountKindWallet {
			return apperror.ErrKindNotAllowed(string(acc.Kind))
		}
		return nil
	}

	return s.Apply(ctx, ports.ApplyParams{
		OperationID: req.OperationID,
		Reason:      domain.EntryReasonTopup,
		Moves:       []ports.Move{{AccountID: req.AccountID, Delta: req.Amount}},
		Guard:       guard,
	})
}

// Withdraw moves money out of the system from a wallet.
func (s *TransferServiceImpl) Withdraw(ctx context.Context, req ports.WithdrawRequest) (*ports.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("must be positive")
	}

	guard := func(ctx context.Context, tx pgx.Tx, locked map[int64]*domain.Account) error {
		acc := locked[req.AccountID]
		if acc.OwnerID != req.OwnerID {
			return apperror.ErrNotOwner()
		}
		if acc.Kind != domain.AccountKindWallet {
			return apperror.ErrKindNotAllowed(string(acc.Kind))
		}
		return nil
	}

	return s.Apply(ctx, ports.ApplyParams{
		OperationID: req.OperationID,
		Reason:      domain.EntryReasonWithdrawal,
		Moves:       []ports.Move{{AccountID: req.AccountID, Delta: req.Amount.Neg()}},
		Guard:       guard,
	})
}

// applyOnce runs the operation in a fresh lock-bounded transaction.
func (s *TransferServiceImpl) applyOnce(ctx context.Context, params ports.ApplyParams) (*ports.TransferResult, error) {
	dbTx, err := s.transactor.BeginWithLockTimeout(ctx, s.cfg.LockTimeout)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	result, err := s.applyLocked(ctx, dbTx, params)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return result, nil
}

// applyLocked is the core of the engine. It locks every touched account in
// ascending id order, checks the invariants, runs the guard and writes the
// balances and entries. All of it happens inside the caller's transaction.
func (s *TransferServiceImpl) applyLocked(ctx context.Context, tx pgx.Tx, params ports.ApplyParams) (*ports.TransferResult, error) {
	deltas := make(map[int64]decimal.Decimal, len(params.Moves))
	ids := make([]int64, 0, len(params.Moves))
	for _, mv := range params.Moves {
		deltas[mv.AccountID] = mv.Delta
		ids = append(ids, mv.AccountID)
	}

	// Ascending id order is the no-deadlock discipline: overlapping
	// operations always contend in the same direction.
	order := lockorder.Order(ids)
	locked := make(map[int64]*domain.Account, len(order))
	for _, id := range order {
		acc, err := s.accountRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			return nil, apperror.ErrAccountNotFound(id)
		}
		switch acc.Status {
		case domain.AccountStatusFrozen:
			return nil, apperror.ErrAccountFrozen(id)
		case domain.AccountStatusClosed:
			return nil, apperror.ErrAccountClosed(id)
		}
		locked[id] = acc
	}

	// Balanced reasons must net to zero across cash accounts. Failing here
	// means a caller built broken moves, not a user mistake.
	if params.Reason.Balanced() {
		net := decimal.Zero
		for id, delta := range deltas {
			if locked[id].Kind.IsCash() {
				net = net.Add(delta)
			}
		}
		if !net.IsZero() {
			return nil, apperror.ErrUnbalancedOperation(params.OperationID)
		}
	}

	// The guard sees final pre-write state: every row lock is already held.
	if params.Guard != nil {
		if err := params.Guard(ctx, tx, locked); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	entries := make([]domain.LedgerEntry, 0, len(order))
	for _, id := range order {
		acc := locked[id]
		delta := deltas[id]

		newBalance := acc.Balance.Add(delta)
		if newBalance.IsNegative() && acc.Kind.IsCash() {
			return nil, apperror.ErrInsufficientFunds(delta.Neg(), acc.Balance)
		}

		if err := s.accountRepo.UpdateBalance(ctx, tx, id, newBalance, acc.Version); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}

		entry := &domain.LedgerEntry{
			AccountID:   id,
			Delta:       delta,
			Reason:      params.Reason,
			OperationID: params.OperationID,
			Description: params.Description,
			CreatedAt:   now,
		}
		if err := s.entryRepo.Create(ctx, tx, entry); err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return &ports.TransferResult{OperationID: params.OperationID, Entries: entries}, nil
}

// validateParams rejects structurally broken operations before any I/O.
func (s *TransferServiceImpl) validateParams(params ports.ApplyParams) error {
	if params.OperationID == "" {
		return apperror.Validation("operation id is required")
	}
	if params.Reason == "" {
		return apperror.Validation("entry reason is required")
	}
	if len(params.Moves) == 0 {
		return apperror.Validation("operation has no moves")
	}

	maxAmount := s.cfg.MaxOperationAmount()
	seen := make(map[int64]struct{}, len(params.Moves))
	for _, mv := range params.Moves {
		if mv.Delta.IsZero() {
			return apperror.ErrInvalidAmount("zero delta")
		}
		if mv.Delta.Abs().GreaterThan(maxAmount) {
			return apperror.ErrInvalidAmount(fmt.Sprintf("exceeds single-operation cap of %s", maxAmount.StringFixed(2)))
		}
		if _, dup := seen[mv.AccountID]; dup {
			return apperror.Validation(fmt.Sprintf("account %d appears in more than one move", mv.AccountID))
		}
		seen[mv.AccountID] = struct{}{}
	}
	return nil
}

// replayFromLedger returns the committed outcome of an operation that another
// caller applied first.
func (s *TransferServiceImpl) replayFromLedger(ctx context.Context, operationID string) (*ports.TransferResult, error) {
	entries, err := s.entryRepo.ListByOperationID(ctx, operationID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("replay lookup: %w", err))
	}
	if len(entries) == 0 {
		// Claimed elsewhere but not committed yet.
		return nil, apperror.ErrDuplicateOperation(operationID)
	}
	return &ports.TransferResult{OperationID: operationID, Entries: entries, Replayed: true}, nil
}

// unmarshalCachedResult deserializes a cached operation result.
func (s *TransferServiceImpl) unmarshalCachedResult(data []byte) (*ports.TransferResult, error) {
	result := &ports.TransferResult{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached result: %w", err))
	}
	result.Replayed = true
	return result, nil
}

// releaseClaim frees the operation claim after a failed attempt so the caller
// can retry without waiting out the TTL.
func (s *TransferServiceImpl) releaseClaim(ctx context.Context, operationID string) {
	if err := s.claims.Release(ctx, operationID); err != nil {
		s.log.Warn().Err(err).Str("operation_id", operationID).Msg("failed to release operation claim")
	}
}

// notify delivers the post-commit event (best-effort).
func (s *TransferServiceImpl) notify(ctx context.Context, reason domain.EntryReason, result *ports.TransferResult) {
	accountIDs := make([]int64, 0, len(result.Entries))
	var in, out decimal.Decimal
	for _, e := range result.Entries {
		accountIDs = append(accountIDs, e.AccountID)
		if e.Delta.IsPositive() {
			in = in.Add(e.Delta)
		} else {
			out = out.Add(e.Delta.Neg())
		}
	}
	amount := in
	if out.GreaterThan(in) {
		amount = out
	}

	event := ports.Event{
		Kind:        eventKind(reason),
		OperationID: result.OperationID,
		AccountIDs:  accountIDs,
		Amount:      amount,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.notifier.Send(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("operation_id", result.OperationID).Msg("event delivery failed")
	}
}

// eventKind maps an entry reason to its event name, e.g. TRANSFER becomes
// "transfer.applied" and BUDGET_SPEND becomes "budget.spend.applied".
func eventKind(reason domain.EntryReason) string {
	return strings.ToLower(strings.ReplaceAll(string(reason), "_", ".")) + ".applied"
}
