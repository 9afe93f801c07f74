package service

import (
	"context"
	"fmt"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BudgetServiceImpl implements ports.BudgetService. Card money is ordinary
// ledger money; what makes a card a card is the spend guard that runs under
// the card's row lock.
type BudgetServiceImpl struct {
	accountRepo ports.AccountRepository
	entryRepo   ports.EntryRepository
	transfers   ports.TransferService
	log         zerolog.Logger
}

// NewBudgetService creates a new BudgetServiceImpl.
func NewBudgetService(
	accountRepo ports.AccountRepository,
	entryRepo ports.EntryRepository,
	transfers ports.TransferService,
	log zerolog.Logger,
) *BudgetServiceImpl {
	return &BudgetServiceImpl{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		transfers:   transfers,
		log:         log,
	}
}

// Allocate moves money from an owner's wallet onto their budget card.
func (s *BudgetServiceImpl) Allocate(ctx context.Context, req ports.AllocateRequest) (*ports.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("must be positive")
	}

	guard := func(ctx context.Context, tx pgx.Tx, locked map[int64]*domain.Account) error {
		wallet := locked[req.WalletAccountID]
		card := locked[req.CardAccountID]
		if wallet.OwnerID != req.OwnerID || card.OwnerID != req.OwnerID {
			return apperror.ErrNotOwner()
		}
		if wallet.Kind != domain.AccountKindWallet {
			return apperror.ErrKindNotAllowed(string(wallet.Kind))
		}
		if card.Kind != domain.AccountKindBudgetCard {
			return apperror.ErrKindNotAllowed(string(card.Kind))
		}
		return nil
	}

	return s.transfers.Apply(ctx, ports.ApplyParams{
		OperationID: req.OperationID,
		Reason:      domain.EntryReasonBudgetAllocate,
		Moves: []ports.Move{
			{AccountID: req.WalletAccountID, Delta: req.Amount.Neg()},
			{AccountID: req.CardAccountID, Delta: req.Amount},
		},
		Guard: guard,
	})
}

// Spend charges a budget card. The guard re-checks balance and month-to-date
// spend under the card's row lock, so two racing spends cannot both squeeze
// under the monthly limit.
func (s *BudgetServiceImpl) Spend(ctx context.Context, req ports.SpendRequest) (*ports.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("must be positive")
	}

	return s.transfers.Apply(ctx, ports.ApplyParams{
		OperationID: req.OperationID,
		Reason:      domain.EntryReasonBudgetSpend,
		Description: req.Description,
		Moves:       []ports.Move{{AccountID: req.CardAccountID, Delta: req.Amount.Neg()}},
		Guard:       cardSpendGuard(s.entryRepo, req.OwnerID, req.CardAccountID, req.Amount),
	})
}

// CanSpend previews a spend without locking anything. The answer can go stale
// immediately; Spend re-checks everything under lock.
func (s *BudgetServiceImpl) CanSpend(ctx context.Context, cardAccountID int64, amount decimal.Decimal) (*ports.SpendDecision, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("must be positive")
	}

	card, err := s.accountRepo.GetByID(ctx, cardAccountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get card account: %w", err))
	}
	if card == nil {
		return nil, apperror.ErrAccountNotFound(cardAccountID)
	}
	if card.Kind != domain.AccountKindBudgetCard {
		return nil, apperror.ErrKindNotAllowed(string(card.Kind))
	}

	spent, err := s.entryRepo.SpentInMonth(ctx, cardAccountID, time.Now().UTC())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("month-to-date spend: %w", err))
	}

	decision := &ports.SpendDecision{
		Allowed:      true,
		Available:    card.Balance,
		MonthlySpent: spent,
	}
	if card.MonthlyLimit != nil {
		remaining := card.MonthlyLimit.Sub(spent)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		decision.MonthlyRemaining = &remaining
	}

	switch {
	case !card.IsActive():
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("card is %s", card.Status)
	case card.Balance.LessThan(amount):
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("insufficient funds: %s available", card.Balance.StringFixed(2))
	case decision.MonthlyRemaining != nil && decision.MonthlyRemaining.LessThan(amount):
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("monthly limit exceeded: %s remaining this month", decision.MonthlyRemaining.StringFixed(2))
	}

	return decision, nil
}

// cardSpendGuard builds the guard shared by card spends and subscription
// charges. An ownerID of 0 skips the ownership check for scheduler-triggered
// charges. Balance is checked before the limit so a spend failing both
// reports insufficient funds, deterministically.
func cardSpendGuard(entryRepo ports.EntryRepository, ownerID, cardAccountID int64, amount decimal.Decimal) ports.GuardFunc {
	return func(ctx context.Context, tx pgx.Tx, locked map[int64]*domain.Account) error {
		card := locked[cardAccountID]
		if ownerID != 0 && card.OwnerID != ownerID {
			return apperror.ErrNotOwner()
		}
		if card.Kind != domain.AccountKindBudgetCard {
			return apperror.ErrKindNotAllowed(string(card.Kind))
		}
		if card.Balance.LessThan(amount) {
			return apperror.ErrInsufficientFunds(amount, card.Balance)
		}
		if card.MonthlyLimit == nil {
			return nil
		}

		spent, err := entryRepo.SpentInMonthTx(ctx, tx, cardAccountID, time.Now().UTC())
		if err != nil {
			return apperror.InternalError(fmt.Errorf("month-to-date spend: %w", err))
		}
		remaining := card.MonthlyLimit.Sub(spent)
		if remaining.LessThan(amount) {
			if remaining.IsNegative() {
				remaining = decimal.Zero
			}
			return apperror.ErrMonthlyLimitExceeded(amount, remaining)
		}
		return nil
	}
}
