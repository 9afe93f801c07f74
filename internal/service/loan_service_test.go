package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports/mocks"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type loanTestDeps struct {
	svc         *LoanServiceImpl
	loanRepo    *mocks.MockLoanRepository
	accountRepo *mocks.MockAccountRepository
	transfers   *mocks.MockTransferService
	notifier    *mocks.MockNotifier
	transactor  *mocks.MockDBTransactor
}

func setupLoanService(t *testing.T) *loanTestDeps {
	ctrl := gomock.NewController(t)
	d := &loanTestDeps{
		loanRepo:    mocks.NewMockLoanRepository(ctrl),
		accountRepo: mocks.NewMockAccountRepository(ctrl),
		transfers:   mocks.NewMockTransferService(ctrl),
		notifier:    mocks.NewMockNotifier(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
	}
	d.svc = NewLoanService(
		d.loanRepo, d.accountRepo, d.transfers, d.notifier, d.transactor,
		testLedgerConfig(), zerolog.Nop(),
	)
	return d
}

func activeLoan(lenderID, borrowerID, loanAccID int64, principal string) *domain.Loan {
	return &domain.Loan{
		ID:                uuid.New(),
		LenderAccountID:   lenderID,
		BorrowerAccountID: borrowerID,
		LoanAccountID:     loanAccID,
		Principal:         dec(principal),
		Status:            domain.LoanStatusActive,
		CreatedAt:         time.Now().UTC(),
	}
}

// ==================== Disburse Tests ====================

func TestLoanService_Disburse_Success(t *testing.T) {
	d := setupLoanService(t)
	ctx := context.Background()

	tx := &mockTx{}
	d.transactor.EXPECT().BeginWithLockTimeout(ctx, testLedgerConfig().LockTimeout).Return(tx, nil)

	d.accountRepo.EXPECT().CreateTx(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, acc *domain.Account) error {
			assert.Equal(t, domain.AccountKindLoan, acc.Kind)
			assert.Equal(t, int64(10), acc.OwnerID)
			acc.ID = 7
			return nil
		})

	d.transfers.EXPECT().ApplyTx(ctx, tx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, tx pgx.Tx, params ports.ApplyParams) (*ports.TransferResult, error) {
			assert.True(t, strings.HasPrefix(params.OperationID, "loan:disburse:"))
			assert.Equal(t, domain.EntryReasonLoanDisburse, params.Reason)
			require.Len(t, params.Moves, 3)
			assert.Equal(t, int64(1), params.Moves[0].AccountID)
			assert.True(t, params.Moves[0].Delta.Equal(dec("-100.00")))
			assert.Equal(t, int64(2), params.Moves[1].AccountID)
			assert.True(t, params.Moves[1].Delta.Equal(dec("100.00")))
			assert.Equal(t, int64(7), params.Moves[2].AccountID)
			assert.True(t, params.Moves[2].Delta.Equal(dec("100.00")))

			locked := map[int64]*domain.Account{
				1: testAccount(1, 10, domain.AccountKindWallet, "250.00"),
				2: testAccount(2, 20, domain.AccountKindWallet, "0.00"),
				7: testAccount(7, 10, domain.AccountKindLoan, "0.00"),
			}
			require.NoError(t, params.Guard(ctx, tx, locked))
			return &ports.TransferResult{OperationID: params.OperationID}, nil
		})

	d.loanRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, loan *domain.Loan) error {
			assert.Equal(t, domain.LoanStatusActive, loan.Status)
			assert.Equal(t, int64(7), loan.LoanAccountID)
			assert.True(t, loan.Principal.Equal(dec("100.00")))
			return nil
		})

	var event ports.Event
	d.notifier.EXPECT().Send(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, e ports.Event) { event = e }).
		Return(nil)

	loan, err := d.svc.Disburse(ctx, ports.DisburseRequest{
		LenderOwnerID:     10,
		LenderAccountID:   1,
		BorrowerAccountID: 2,
		Amount:            dec("100.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, loan.Status)
	assert.Equal(t, int64(7), loan.LoanAccountID)
	assert.Equal(t, "loan.disbursed", event.Kind)
	assert.Equal(t, []int64{1, 2, 7}, event.AccountIDs)
}

func TestLoanService_Disburse_NotPositive(t *testing.T) {
	d := setupLoanService(t)

	_, err := d.svc.Disburse(context.Background(), ports.DisburseRequest{
		LenderOwnerID: 10, LenderAccountID: 1, BorrowerAccountID: 2,
		Amount: dec("-5.00"),
	})
	assertAppError(t, err, "VAL_001")
}

func TestLoanService_Disburse_SelfLoan(t *testing.T) {
	d := setupLoanService(t)

	_, err := d.svc.Disburse(context.Background(), ports.DisburseRequest{
		LenderOwnerID: 10, LenderAccountID: 1, BorrowerAccountID: 1,
		Amount: dec("100.00"),
	})
	assertAppError(t, err, "VAL_001")
}

func TestLoanService_Disburse_LenderNotOwned(t *testing.T) {
	d := setupLoanService(t)
	ctx := context.Background()

	tx := &mockTx{}
	d.transactor.EXPECT().BeginWithLockTimeout(ctx, gomock.Any()).Return(tx, nil)
	d.accountRepo.EXPECT().CreateTx(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, acc *domain.Account) error { acc.ID = 7; return nil })

	d.transfers.EXPECT().ApplyTx(ctx, tx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, tx pgx.Tx, params ports.ApplyParams) (*ports.TransferResult, error) {
			locked := map[int64]*domain.Account{
				1: testAccount(1, 99, domain.AccountKindWallet, "250.00"), // not the caller's
				2: testAccount(2, 20, domain.AccountKindWallet, "0.00"),
				7: testAccount(7, 10, domain.AccountKindLoan, "0.00"),
			}
			if err := params.Guard(ctx, tx, locked); err != nil {
				return nil, err
			}
			return &ports.TransferResult{}, nil
		})

	_, err := d.svc.Disburse(ctx, ports.DisburseRequest{
		LenderOwnerID: 10, LenderAccountID: 1, BorrowerAccountID: 2,
		Amount: dec("100.00"),
	})
	assertAppError(t, err, "AUTH_002")
}

// ==================== Repay Tests ====================

func TestLoanService_Repay_Partial(t *testing.T) {
	d := setupLoanService(t)
	ctx := context.Background()
	loan := activeLoan(1, 2, 7, "100.00")

	d.loanRepo.EXPECT().GetByID(ctx, loan.ID).Return(loan, nil)

	tx := &mockTx{}
	d.transactor.EXPECT().BeginWithLockTimeout(ctx, gomock.Any()).Return(tx, nil)

	d.transfers.EXPECT().ApplyTx(ctx, tx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, tx pgx.Tx, params ports.ApplyParams) (*ports.TransferResult, error) {
			assert.Equal(t, domain.EntryReasonLoanRepay, params.Reason)
			require.Len(t, params.Moves, 3)
			assert.Equal(t, int64(2), params.Moves[0].AccountID)
			assert.True(t, params.Moves[0].Delta.Equal(dec("-40.00")))
			assert.Equal(t, int64(1), params.Moves[1].AccountID)
			assert.True(t, params.Moves[1].Delta.Equal(dec("40.00")))
			assert.Equal(t, int64(7), params.Moves[2].AccountID)
			assert.True(t, params.Moves[2].Delta.Equal(dec("-40.00")))

			d.loanRepo.EXPECT().GetByIDTx(ctx, tx, loan.ID).Return(loan, nil)
			locked := map[int64]*domain.Account{
				1: testAccount(1, 10, domain.AccountKindWallet, "150.00"),
				2: testAccount(2, 20, domain.AccountKindWallet, "60.00"),
				7: testAccount(7, 10, domain.AccountKindLoan, "100.00"),
			}
			require.NoError(t, params.Guard(ctx, tx, locked))
			return &ports.TransferResult{OperationID: params.OperationID}, nil
		})

	// Partial repayment: no Close call.
	var event ports.Event
	d.notifier.EXPECT().Send(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, e ports.Event) { event = e }).
		Return(nil)

	got, err := d.svc.Repay(ctx, ports.RepayRequest{
		CallerOwnerID: 20, LoanID: loan.ID, Amount: dec("40.00"), OperationID: "op-repay-1",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, got.Status)
	assert.Nil(t, got.ClosedAt)
	assert.Equal(t, "loan.repaid", event.Kind)
}

func TestLoanService_Repay_FullClosesLoan(t *testing.T) {
	d := setupLoanService(t)
	ctx := context.Background()
	loan := activeLoan(1, 2, 7, "100.00")

	d.loanRepo.EXPECT().GetByID(ctx, loan.ID).Return(loan, nil)

	tx := &mockTx{}
	d.transactor.EXPECT().BeginWithLockTimeout(ctx, gomock.Any()).Return(tx, nil)

	d.transfers.EXPECT().ApplyTx(ctx, tx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, tx pgx.Tx, params ports.ApplyParams) (*ports.TransferResult, error) {
			d.loanRepo.EXPECT().GetByIDTx(ctx, tx, loan.ID).Return(loan, nil)
			locked := map[int64]*domain.Account{
				1: testAccount(1, 10, domain.AccountKindWallet, "150.00"),
				2: testAccount(2, 20, domain.AccountKindWallet, "120.00"),
				7: testAccount(7, 10, domain.AccountKindLoan, "100.00"),
			}
			require.NoError(t, params.Guard(ctx, tx, locked))
			return &ports.TransferResult{OperationID: params.OperationID}, nil
		})

	d.loanRepo.EXPECT().Close(ctx, tx, loan.ID, gomock.Any()).Return(nil)
	d.notifier.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)

	got, err := d.svc.Repay(ctx, ports.RepayRequest{
		CallerOwnerID: 20, LoanID: loan.ID, Amount: dec("100.00"), OperationID: "op-repay-2",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusRepaid, got.Status)
	require.NotNil(t, got.ClosedAt)
}

func TestLoanService_Repay_ExceedsOutstanding(t *testing.T) {
	d := setupLoanService(t)
	ctx := context.Background()
	loan := activeLoan(1, 2, 7, "100.00")

	d.loanRepo.EXPECT().GetByID(ctx, loan.ID).Return(loan, nil)

	tx := &mockTx{}
	d.transactor.EXPECT().BeginWithLockTimeout(ctx, gomock.Any()).Return(tx, nil)

	// 60 already repaid elsewhere: outstanding is 40, and 50 must not pass.
	d.transfers.EXPECT().ApplyTx(ctx, tx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, tx pgx.Tx, params ports.ApplyParams) (*ports.TransferResult, error) {
			d.loanRepo.EXPECT().GetByIDTx(ctx, tx, loan.ID).Return(loan, nil)
			locked := map[int64]*domain.Account{
				1: testAccount(1, 10, domain.AccountKindWallet, "150.00"),
				2: testAccount(2, 20, domain.AccountKindWallet, "60.00"),
				7: testAccount(7, 10, domain.AccountKindLoan, "40.00"),
			}
			if err := params.Guard(ctx, tx, locked); err != nil {
				return nil, err
			}
			return &ports.TransferResult{}, nil
		})

	_, err := d.svc.Repay(ctx, ports.RepayRequest{
		CallerOwnerID: 20, LoanID: loan.ID, Amount: dec("50.00"), OperationID: "op-repay-3",
	})
	assertAppError(t, err, "LOAN_002")
}

func TestLoanService_Repay_ClosedLoan(t *testing.T) {
	d := setupLoanService(t)
	ctx := context.Background()
	loan := activeLoan(1, 2, 7, "100.00")
	loan.Status = domain.LoanStatusRepaid

	d.loanRepo.EXPECT().GetByID(ctx, loan.ID).Return(loan, nil)

	_, err := d.svc.Repay(ctx, ports.RepayRequest{
		CallerOwnerID: 20, LoanID: loan.ID, Amount: dec("10.00"), OperationID: "op-repay-4",
	})
	assertAppError(t, err, "LOAN_001")
}

func TestLoanService_Repay_DuplicateReplays(t *testing.T) {
	d := setupLoanService(t)
	ctx := context.Background()
	loan := activeLoan(1, 2, 7, "100.00")

	gomock.InOrder(
		d.loanRepo.EXPECT().GetByID(ctx, loan.ID).Return(loan, nil),
		d.loanRepo.EXPECT().GetByID(ctx, loan.ID).Return(loan, nil),
	)

	tx := &mockTx{}
	d.transactor.EXPECT().BeginWithLockTimeout(ctx, gomock.Any()).Return(tx, nil)

	// The operation id already applied; the retried repayment reads back the
	// loan instead of erroring.
	d.transfers.EXPECT().ApplyTx(ctx, tx, gomock.Any()).
		Return(nil, apperror.ErrDuplicateOperation("op-repay-5"))

	got, err := d.svc.Repay(ctx, ports.RepayRequest{
		CallerOwnerID: 20, LoanID: loan.ID, Amount: dec("40.00"), OperationID: "op-repay-5",
	})

	require.NoError(t, err)
	assert.Equal(t, loan.ID, got.ID)
}

// ==================== Get / List Tests ====================

func TestLoanService_Get_Borrower(t *testing.T) {
	d := setupLoanService(t)
	ctx := context.Background()
	loan := activeLoan(1, 2, 7, "100.00")

	d.loanRepo.EXPECT().GetByID(ctx, loan.ID).Return(loan, nil)
	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(testAccount(1, 10, domain.AccountKindWallet, "0"), nil)
	d.accountRepo.EXPECT().GetByID(ctx, int64(2)).Return(testAccount(2, 20, domain.AccountKindWallet, "0"), nil)

	got, err := d.svc.Get(ctx, loan.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, got.ID)
}

func TestLoanService_Get_Stranger(t *testing.T) {
	d := setupLoanService(t)
	ctx := context.Background()
	loan := activeLoan(1, 2, 7, "100.00")

	d.loanRepo.EXPECT().GetByID(ctx, loan.ID).Return(loan, nil)
	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(testAccount(1, 10, domain.AccountKindWallet, "0"), nil)
	d.accountRepo.EXPECT().GetByID(ctx, int64(2)).Return(testAccount(2, 20, domain.AccountKindWallet, "0"), nil)

	_, err := d.svc.Get(ctx, loan.ID, 99)
	assertAppError(t, err, "AUTH_002")
}

func TestLoanService_ListByAccount_OwnAccountOnly(t *testing.T) {
	d := setupLoanService(t)
	ctx := context.Background()

	d.accountRepo.EXPECT().GetByID(ctx, int64(1)).Return(testAccount(1, 10, domain.AccountKindWallet, "0"), nil)

	_, err := d.svc.ListByAccount(ctx, 99, 1)
	assertAppError(t, err, "AUTH_002")
}
