package service

import (
	"context"
	"testing"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type accountTestDeps struct {
	svc         *AccountServiceImpl
	accountRepo *mocks.MockAccountRepository
}

func setupAccountService(t *testing.T) *accountTestDeps {
	ctrl := gomock.NewController(t)
	d := &accountTestDeps{accountRepo: mocks.NewMockAccountRepository(ctrl)}
	d.svc = NewAccountService(d.accountRepo, zerolog.Nop())
	return d
}

// ==================== Open Tests ====================

func TestAccountService_OpenWallet(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()

	d.accountRepo.EXPECT().Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, acc *domain.Account) error {
			assert.Equal(t, domain.AccountKindWallet, acc.Kind)
			assert.Equal(t, domain.AccountStatusActive, acc.Status)
			assert.True(t, acc.Balance.IsZero())
			assert.Equal(t, int64(1), acc.Version)
			assert.Nil(t, acc.MonthlyLimit)
			acc.ID = 1
			return nil
		})

	acc, err := d.svc.OpenWallet(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.ID)
	assert.Equal(t, int64(10), acc.OwnerID)
}

func TestAccountService_OpenBudgetCard_WithLimit(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()
	limit := dec("200.00")

	d.accountRepo.EXPECT().Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, acc *domain.Account) error {
			assert.Equal(t, domain.AccountKindBudgetCard, acc.Kind)
			require.NotNil(t, acc.MonthlyLimit)
			assert.True(t, acc.MonthlyLimit.Equal(limit))
			acc.ID = 3
			return nil
		})

	acc, err := d.svc.OpenBudgetCard(ctx, 10, &limit)

	require.NoError(t, err)
	assert.Equal(t, int64(3), acc.ID)
}

func TestAccountService_OpenBudgetCard_NonPositiveLimit(t *testing.T) {
	d := setupAccountService(t)
	limit := dec("-5.00")

	_, err := d.svc.OpenBudgetCard(context.Background(), 10, &limit)
	assertAppError(t, err, "VAL_001")
}

// ==================== Get Tests ====================

func TestAccountService_Get_NotOwner(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()

	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(testAccount(1, 10, domain.AccountKindWallet, "50.00"), nil)

	_, err := d.svc.Get(ctx, 1, 99)
	assertAppError(t, err, "AUTH_002")
}

func TestAccountService_Get_Missing(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()

	d.accountRepo.EXPECT().GetByID(ctx, int64(404)).Return(nil, nil)

	_, err := d.svc.Get(ctx, 404, 10)
	assertAppError(t, err, "ACC_001")
}

// ==================== Freeze / Unfreeze Tests ====================

func TestAccountService_Freeze_Active(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()

	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(testAccount(1, 10, domain.AccountKindWallet, "50.00"), nil)
	d.accountRepo.EXPECT().UpdateStatus(ctx, int64(1), domain.AccountStatusFrozen).Return(nil)

	require.NoError(t, d.svc.Freeze(ctx, 1, 10))
}

func TestAccountService_Freeze_AlreadyFrozen(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()

	acc := testAccount(1, 10, domain.AccountKindWallet, "50.00")
	acc.Status = domain.AccountStatusFrozen
	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(acc, nil)

	// Idempotent: no status write.
	require.NoError(t, d.svc.Freeze(ctx, 1, 10))
}

func TestAccountService_Freeze_Closed(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()

	acc := testAccount(1, 10, domain.AccountKindWallet, "0")
	acc.Status = domain.AccountStatusClosed
	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(acc, nil)

	err := d.svc.Freeze(ctx, 1, 10)
	assertAppError(t, err, "ACC_003")
}

func TestAccountService_Unfreeze_Frozen(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()

	acc := testAccount(1, 10, domain.AccountKindWallet, "50.00")
	acc.Status = domain.AccountStatusFrozen
	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(acc, nil)
	d.accountRepo.EXPECT().UpdateStatus(ctx, int64(1), domain.AccountStatusActive).Return(nil)

	require.NoError(t, d.svc.Unfreeze(ctx, 1, 10))
}

// ==================== Close Tests ====================

func TestAccountService_Close_Empty(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()

	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(testAccount(1, 10, domain.AccountKindWallet, "0"), nil)
	d.accountRepo.EXPECT().UpdateStatus(ctx, int64(1), domain.AccountStatusClosed).Return(nil)

	require.NoError(t, d.svc.Close(ctx, 1, 10))
}

func TestAccountService_Close_NonZeroBalance(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()

	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(testAccount(1, 10, domain.AccountKindWallet, "0.01"), nil)

	err := d.svc.Close(ctx, 1, 10)
	assertAppError(t, err, "ACC_004")
}

func TestAccountService_Close_AlreadyClosed(t *testing.T) {
	d := setupAccountService(t)
	ctx := context.Background()

	acc := testAccount(1, 10, domain.AccountKindWallet, "0")
	acc.Status = domain.AccountStatusClosed
	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(acc, nil)

	require.NoError(t, d.svc.Close(ctx, 1, 10))
}
