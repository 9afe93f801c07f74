package service

import (
	"context"
	"fmt"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultStatementPageSize = 20
	maxStatementPageSize     = 100
)

// ReportingServiceImpl implements ports.ReportingService. Everything here is
// read-only; balance reads outside a transaction are point-in-time snapshots.
type ReportingServiceImpl struct {
	accountRepo ports.AccountRepository
	entryRepo   ports.EntryRepository
	log         zerolog.Logger
}

// NewReportingService creates a new ReportingServiceImpl.
func NewReportingService(accountRepo ports.AccountRepository, entryRepo ports.EntryRepository, log zerolog.Logger) *ReportingServiceImpl {
	return &ReportingServiceImpl{accountRepo: accountRepo, entryRepo: entryRepo, log: log}
}

// GetBalance returns the account's current balance to its owner.
func (s *ReportingServiceImpl) GetBalance(ctx context.Context, accountID int64, callerOwnerID int64) (*ports.BalanceReport, error) {
	acc, err := s.authorize(ctx, accountID, callerOwnerID)
	if err != nil {
		return nil, err
	}
	return &ports.BalanceReport{
		AccountID: acc.ID,
		Kind:      acc.Kind,
		Balance:   acc.Balance,
		AsOf:      time.Now().UTC(),
	}, nil
}

// GetStatement returns a page of the account's ledger history.
func (s *ReportingServiceImpl) GetStatement(ctx context.Context, callerOwnerID int64, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	if _, err := s.authorize(ctx, params.AccountID, callerOwnerID); err != nil {
		return nil, 0, err
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultStatementPageSize
	}
	if params.PageSize > maxStatementPageSize {
		params.PageSize = maxStatementPageSize
	}

	entries, total, err := s.entryRepo.ListByAccount(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list entries: %w", err))
	}
	return entries, total, nil
}

// GetStats returns aggregate ledger history for the account.
func (s *ReportingServiceImpl) GetStats(ctx context.Context, accountID int64, callerOwnerID int64) (*ports.EntryStats, error) {
	if _, err := s.authorize(ctx, accountID, callerOwnerID); err != nil {
		return nil, err
	}

	stats, err := s.entryRepo.GetStats(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get entry stats: %w", err))
	}
	return stats, nil
}

// Reconcile compares the account's stored balance against the sum of its
// ledger entries. It takes no owner because it serves the ops surface, not
// account holders.
func (s *ReportingServiceImpl) Reconcile(ctx context.Context, accountID int64) (*ports.ReconcileReport, error) {
	acc, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if acc == nil {
		return nil, apperror.ErrAccountNotFound(accountID)
	}

	sum, err := s.entryRepo.SumByAccount(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum entries: %w", err))
	}

	report := &ports.ReconcileReport{
		AccountID:     accountID,
		StoredBalance: acc.Balance,
		EntrySum:      sum,
		Consistent:    acc.Balance.Equal(sum),
	}
	if !report.Consistent {
		s.log.Error().
			Int64("account_id", accountID).
			Str("stored", acc.Balance.String()).
			Str("entry_sum", sum.String()).
			Msg("account balance does not match its ledger")
	}
	return report, nil
}

// CheckConservation verifies the system-wide money equation: cash held on
// wallet, budget card and escrow accounts must equal external inflows minus
// external outflows. Loan accounts track receivables, not cash, and are
// reported separately.
func (s *ReportingServiceImpl) CheckConservation(ctx context.Context) (*ports.ConservationReport, error) {
	sums, err := s.accountRepo.SumBalancesByKind(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum balances: %w", err))
	}

	in, out, err := s.entryRepo.ExternalFlows(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("external flows: %w", err))
	}

	cash := decimal.Zero
	for kind, sum := range sums {
		if kind.IsCash() {
			cash = cash.Add(sum)
		}
	}
	expected := in.Sub(out)

	report := &ports.ConservationReport{
		CashTotal:       cash,
		ExternalIn:      in,
		ExternalOut:     out,
		Expected:        expected,
		LoanOutstanding: sums[domain.AccountKindLoan],
		Consistent:      cash.Equal(expected),
	}
	if !report.Consistent {
		s.log.Error().
			Str("cash_total", cash.String()).
			Str("expected", expected.String()).
			Msg("conservation check failed")
	}
	return report, nil
}

func (s *ReportingServiceImpl) authorize(ctx context.Context, accountID int64, callerOwnerID int64) (*domain.Account, error) {
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
	return acc, nil
}
