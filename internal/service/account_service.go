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

// AccountServiceImpl implements ports.AccountService.
type AccountServiceImpl struct {
	accountRepo ports.AccountRepository
	log         zerolog.Logger
}

// NewAccountService creates a new AccountServiceImpl.
func NewAccountService(accountRepo ports.AccountRepository, log zerolog.Logger) *AccountServiceImpl {
	return &AccountServiceImpl{accountRepo: accountRepo, log: log}
}

// OpenWallet creates a new wallet account for the owner.
func (s *AccountServiceImpl) OpenWallet(ctx context.Context, ownerID int64) (*domain.Account, error) {
	return s.open(ctx, ownerID, domain.AccountKindWallet, nil)
}

// OpenBudgetCard creates a budget card, optionally capped by a monthly spend
// limit. A nil limit means the card only answers to its balance.
func (s *AccountServiceImpl) OpenBudgetCard(ctx context.Context, ownerID int64, monthlyLimit *decimal.Decimal) (*domain.Account, error) {
	if monthlyLimit != nil && !monthlyLimit.IsPositive() {
		return nil, apperror.ErrInvalidAmount("monthly limit must be positive")
	}
	return s.open(ctx, ownerID, domain.AccountKindBudgetCard, monthlyLimit)
}

func (s *AccountServiceImpl) open(ctx context.Context, ownerID int64, kind domain.AccountKind, monthlyLimit *decimal.Decimal) (*domain.Account, error) {
	now := time.Now().UTC()
	acc := &domain.Account{
		OwnerID:      ownerID,
		Kind:         kind,
		Status:       domain.AccountStatusActive,
		Balance:      decimal.Zero,
		MonthlyLimit: monthlyLimit,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accountRepo.Create(ctx, acc); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create account: %w", err))
	}

	s.log.Info().
		Int64("account_id", acc.ID).
		Int64("owner_id", ownerID).
		Str("kind", string(kind)).
		Msg("account opened")

	return acc, nil
}

// Get returns an account to its owner.
func (s *AccountServiceImpl) Get(ctx context.Context, accountID int64, callerOwnerID int64) (*domain.Account, error) {
	acc, err := s.owned(ctx, accountID, callerOwnerID)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// ListByOwner returns every account the owner holds.
func (s *AccountServiceImpl) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	accounts, err := s.accountRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list accounts: %w", err))
	}
	return accounts, nil
}

// Freeze blocks an account from participating in operations. Freezing a
// frozen account is a no-op.
func (s *AccountServiceImpl) Freeze(ctx context.Context, accountID int64, callerOwnerID int64) error {
	acc, err := s.owned(ctx, accountID, callerOwnerID)
	if err != nil {
		return err
	}
	if acc.Status == domain.AccountStatusClosed {
		return apperror.ErrAccountClosed(accountID)
	}
	if acc.Status == domain.AccountStatusFrozen {
		return nil
	}
	return s.setStatus(ctx, accountID, domain.AccountStatusFrozen)
}

// Unfreeze returns a frozen account to service.
func (s *AccountServiceImpl) Unfreeze(ctx context.Context, accountID int64, callerOwnerID int64) error {
	acc, err := s.owned(ctx, accountID, callerOwnerID)
	if err != nil {
		return err
	}
	if acc.Status == domain.AccountStatusClosed {
		return apperror.ErrAccountClosed(accountID)
	}
	if acc.Status == domain.AccountStatusActive {
		return nil
	}
	return s.setStatus(ctx, accountID, domain.AccountStatusActive)
}

// Close permanently retires an account. Only empty accounts close; money on
// the books must be withdrawn or transferred out first. The balance is read
// outside any lock, so an operation racing the close can still land once; the
// engine rejects the account from then on and the funds stay on the ledger.
func (s *AccountServiceImpl) Close(ctx context.Context, accountID int64, callerOwnerID int64) error {
	acc, err := s.owned(ctx, accountID, callerOwnerID)
	if err != nil {
		return err
	}
	if acc.Status == domain.AccountStatusClosed {
		return nil
	}
	if !acc.Balance.IsZero() {
		return apperror.ErrAccountNotEmpty(accountID)
	}
	return s.setStatus(ctx, accountID, domain.AccountStatusClosed)
}

// owned loads an account and verifies the caller owns it.
func (s *AccountServiceImpl) owned(ctx context.Context, accountID int64, callerOwnerID int64) (*domain.Account, error) {
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

func (s *AccountServiceImpl) setStatus(ctx context.Context, accountID int64, status domain.AccountStatus) error {
	if err := s.accountRepo.UpdateStatus(ctx, accountID, status); err != nil {
		return apperror.InternalError(fmt.Errorf("update account status: %w", err))
	}
	s.log.Info().Int64("account_id", accountID).Str("status", string(status)).Msg("account status changed")
	return nil
}
