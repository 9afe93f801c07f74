package service

import (
	"context"
	"fmt"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/config"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LoanServiceImpl implements ports.LoanService. Each loan carries a dedicated
// LOAN account whose balance is the outstanding amount; loan state changes
// only under that account's row lock.
type LoanServiceImpl struct {
	loanRepo    ports.LoanRepository
	accountRepo ports.AccountRepository
	transfers   ports.TransferService
	notifier    ports.Notifier
	transactor  ports.DBTransactor
	cfg         config.LedgerConfig
	log         zerolog.Logger
}

// NewLoanService creates a new LoanServiceImpl.
func NewLoanService(
	loanRepo ports.LoanRepository,
	accountRepo ports.AccountRepository,
	transfers ports.TransferService,
	notifier ports.Notifier,
	transactor ports.DBTransactor,
	cfg config.LedgerConfig,
	log zerolog.Logger,
) *LoanServiceImpl {
	return &LoanServiceImpl{
		loanRepo:    loanRepo,
		accountRepo: accountRepo,
		transfers:   transfers,
		notifier:    notifier,
		transactor:  transactor,
		cfg:         cfg,
		log:         log,
	}
}

// Disburse lends money from one wallet to another. The loan account, the
// money moves and the loan row all commit in one transaction.
func (s *LoanServiceImpl) Disburse(ctx context.Context, req ports.DisburseRequest) (*domain.Loan, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("must be positive")
	}
	if req.LenderAccountID == req.BorrowerAccountID {
		return nil, apperror.Validation("lender and borrower accounts must differ")
	}

	loanID := uuid.New()
	opID := domain.BuildLoanDisburseOpID(loanID)
	now := time.Now().UTC()

	dbTx, err := s.transactor.BeginWithLockTimeout(ctx, s.cfg.LockTimeout)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// The loan account belongs to the lender: it is their receivable.
	loanAcc := &domain.Account{
		OwnerID:   req.LenderOwnerID,
		Kind:      domain.AccountKindLoan,
		Status:    domain.AccountStatusActive,
		Balance:   decimal.Zero,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.accountRepo.CreateTx(ctx, dbTx, loanAcc); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create loan account: %w", err))
	}

	guard := func(ctx context.Context, tx pgx.Tx, locked map[int64]*domain.Account) error {
		lender := locked[req.LenderAccountID]
		if lender.OwnerID != req.LenderOwnerID {
			return apperror.ErrNotOwner()
		}
		if lender.Kind != domain.AccountKindWallet {
			return apperror.ErrKindNotAllowed(string(lender.Kind))
		}
		if borrower := locked[req.BorrowerAccountID]; borrower.Kind != domain.AccountKindWallet {
			return apperror.ErrKindNotAllowed(string(borrower.Kind))
		}
		return nil
	}

	if _, err := s.transfers.ApplyTx(ctx, dbTx, ports.ApplyParams{
		OperationID: opID,
		Reason:      domain.EntryReasonLoanDisburse,
		Description: "loan " + loanID.String(),
		Moves: []ports.Move{
			{AccountID: req.LenderAccountID, Delta: req.Amount.Neg()},
			{AccountID: req.BorrowerAccountID, Delta: req.Amount},
			{AccountID: loanAcc.ID, Delta: req.Amount},
		},
		Guard: guard,
	}); err != nil {
		return nil, err
	}

	loan := &domain.Loan{
		ID:                loanID,
		LenderAccountID:   req.LenderAccountID,
		BorrowerAccountID: req.BorrowerAccountID,
		LoanAccountID:     loanAcc.ID,
		Principal:         req.Amount,
		Status:            domain.LoanStatusActive,
		CreatedAt:         now,
	}
	if err := s.loanRepo.Create(ctx, dbTx, loan); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create loan: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.notifyLoan(ctx, "loan.disbursed", opID, loan, req.Amount)

	s.log.Info().
		Str("loan_id", loanID.String()).
		Str("principal", req.Amount.String()).
		Msg("loan disbursed")

	return loan, nil
}

// Repay pays a loan down from the borrower's wallet. A repayment covering the
// full outstanding balance closes the loan in the same transaction.
func (s *LoanServiceImpl) Repay(ctx context.Context, req ports.RepayRequest) (*domain.Loan, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("must be positive")
	}

	loan, err := s.loanRepo.GetByID(ctx, req.LoanID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get loan: %w", err))
	}
	if loan == nil {
		return nil, apperror.ErrNotFound("Loan")
	}
	if !loan.IsOpen() {
		return nil, apperror.ErrLoanClosed(loan.ID.String())
	}

	dbTx, err := s.transactor.BeginWithLockTimeout(ctx, s.cfg.LockTimeout)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	var outstanding decimal.Decimal
	guard := func(ctx context.Context, tx pgx.Tx, locked map[int64]*domain.Account) error {
		borrower := locked[loan.BorrowerAccountID]
		if borrower.OwnerID != req.CallerOwnerID {
			return apperror.ErrNotOwner()
		}

		// Re-read under the loan account lock in case a racing repayment
		// closed the loan after the check above.
		current, err := s.loanRepo.GetByIDTx(ctx, tx, loan.ID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("re-read loan: %w", err))
		}
		if current == nil {
			return apperror.ErrNotFound("Loan")
		}
		if !current.IsOpen() {
			return apperror.ErrLoanClosed(current.ID.String())
		}

		outstanding = locked[loan.LoanAccountID].Balance
		if req.Amount.GreaterThan(outstanding) {
			return apperror.ErrRepayExceedsOutstanding(req.Amount, outstanding)
		}
		return nil
	}

	if _, err := s.transfers.ApplyTx(ctx, dbTx, ports.ApplyParams{
		OperationID: req.OperationID,
		Reason:      domain.EntryReasonLoanRepay,
		Description: "loan " + loan.ID.String(),
		Moves: []ports.Move{
			{AccountID: loan.BorrowerAccountID, Delta: req.Amount.Neg()},
			{AccountID: loan.LenderAccountID, Delta: req.Amount},
			{AccountID: loan.LoanAccountID, Delta: req.Amount.Neg()},
		},
		Guard: guard,
	}); err != nil {
		if apperror.IsCode(err, apperror.CodeDuplicateOperation) {
			// The repayment already applied; return the loan as it stands.
			if applied, rerr := s.loanRepo.GetByID(ctx, req.LoanID); rerr == nil && applied != nil {
				return applied, nil
			}
		}
		return nil, err
	}

	now := time.Now().UTC()
	if outstanding.Equal(req.Amount) {
		if err := s.loanRepo.Close(ctx, dbTx, loan.ID, now); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("close loan: %w", err))
		}
		loan.Status = domain.LoanStatusRepaid
		loan.ClosedAt = &now
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.notifyLoan(ctx, "loan.repaid", req.OperationID, loan, req.Amount)

	s.log.Info().
		Str("loan_id", loan.ID.String()).
		Str("amount", req.Amount.String()).
		Bool("closed", loan.Status == domain.LoanStatusRepaid).
		Msg("loan repayment applied")

	return loan, nil
}

// Get returns a loan to its lender or borrower.
func (s *LoanServiceImpl) Get(ctx context.Context, loanID uuid.UUID, callerOwnerID int64) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get loan: %w", err))
	}
	if loan == nil {
		return nil, apperror.ErrNotFound("Loan")
	}

	for _, id := range []int64{loan.LenderAccountID, loan.BorrowerAccountID} {
		acc, err := s.accountRepo.GetByID(ctx, id)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
		}
		if acc != nil && acc.OwnerID == callerOwnerID {
			return loan, nil
		}
	}
	return nil, apperror.ErrNotOwner()
}

// ListByAccount returns loans where the given account lends or borrows.
func (s *LoanServiceImpl) ListByAccount(ctx context.Context, callerOwnerID int64, accountID int64) ([]domain.Loan, error) {
	acc, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if acc == nil {
		return nil, apperror.ErrAccountNotFound(accountID)
	}
	if acc.OwnerID != callerOwnerID {
		return nil, apperror.ErrNotOwner()
	}

	loans, err := s.loanRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list loans: %w", err))
	}
	return loans, nil
}

// notifyLoan delivers a loan lifecycle event (best-effort).
func (s *LoanServiceImpl) notifyLoan(ctx context.Context, kind, opID string, loan *domain.Loan, amount decimal.Decimal) {
	event := ports.Event{
		Kind:        kind,
		OperationID: opID,
		AccountIDs:  []int64{loan.LenderAccountID, loan.BorrowerAccountID, loan.LoanAccountID},
		Amount:      amount,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.notifier.Send(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("loan_id", loan.ID.String()).Msg("event delivery failed")
	}
}
