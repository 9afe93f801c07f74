package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/dto"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/middleware"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports/mocks"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(t *testing.T, method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		c.Request = httptest.NewRequest(method, target, bytes.NewReader(raw))
		c.Request.Header.Set("Content-Type", "application/json")
	} else {
		c.Request = httptest.NewRequest(method, target, nil)
	}
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

// --- Auth Handler Tests ---

func TestIssueToken_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockToken := mocks.NewMockTokenService(ctrl)
	h := NewAuthHandler(mockToken)

	expiry := time.Now().Add(24 * time.Hour)
	mockToken.EXPECT().Generate(int64(42)).Return("jwt-token-123", expiry, nil)

	c, w := newTestContext(t, http.MethodPost, "/api/v1/auth/token", dto.TokenRequest{OwnerID: 42})

	h.IssueToken(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "jwt-token-123", data["token"])
	assert.Equal(t, float64(expiry.Unix()), data["expiry"])
}

func TestIssueToken_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockToken := mocks.NewMockTokenService(ctrl)
	h := NewAuthHandler(mockToken)

	// Empty body => binding error
	c, w := newTestContext(t, http.MethodPost, "/api/v1/auth/token", map[string]interface{}{})

	h.IssueToken(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VAL_001", errorCode(t, w))
}

// --- Account Handler Tests ---

func TestOpenWallet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(mockAccount, nil)

	now := time.Now()
	mockAccount.EXPECT().OpenWallet(gomock.Any(), int64(7)).Return(&domain.Account{
		ID:        1,
		OwnerID:   7,
		Kind:      domain.AccountKindWallet,
		Status:    domain.AccountStatusActive,
		Balance:   decimal.Zero,
		CreatedAt: now,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))

	h.OpenWallet(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["id"])
	assert.Equal(t, "WALLET", data["kind"])
	assert.Equal(t, "ACTIVE", data["status"])
	assert.Equal(t, "0", data["balance"])
}

func TestOpenWallet_MissingOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(mockAccount, nil)

	c, w := newTestContext(t, http.MethodPost, "/", nil)

	h.OpenWallet(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOpenBudgetCard_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(mockAccount, nil)

	limit := decimal.RequireFromString("500.00")
	now := time.Now()
	mockAccount.EXPECT().OpenBudgetCard(gomock.Any(), int64(7), gomock.Any()).Return(&domain.Account{
		ID:           2,
		OwnerID:      7,
		Kind:         domain.AccountKindBudgetCard,
		Status:       domain.AccountStatusActive,
		Balance:      decimal.Zero,
		MonthlyLimit: &limit,
		CreatedAt:    now,
	}, nil)

	monthlyLimit := "500.00"
	c, w := newTestContext(t, http.MethodPost, "/", dto.OpenBudgetCardRequest{MonthlyLimit: &monthlyLimit})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.OpenBudgetCard(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "BUDGET_CARD", data["kind"])
	assert.Equal(t, "500", data["monthly_limit"])
}

func TestOpenBudgetCard_InvalidLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(mockAccount, nil)

	monthlyLimit := "-5"
	c, w := newTestContext(t, http.MethodPost, "/", dto.OpenBudgetCardRequest{MonthlyLimit: &monthlyLimit})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.OpenBudgetCard(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAccount_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(mockAccount, nil)

	mockAccount.EXPECT().Get(gomock.Any(), int64(5), int64(7)).Return(&domain.Account{
		ID:      5,
		OwnerID: 7,
		Kind:    domain.AccountKindWallet,
		Status:  domain.AccountStatusActive,
		Balance: decimal.RequireFromString("120.5"),
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.Get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "120.5", data["balance"])
}

func TestGetAccount_InvalidID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(mockAccount, nil)

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAccount_NotOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(mockAccount, nil)

	mockAccount.EXPECT().Get(gomock.Any(), int64(5), int64(99)).Return(nil, apperror.ErrNotOwner())

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(99))
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.Get(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "AUTH_002", errorCode(t, w))
}

func TestListAccounts_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(mockAccount, nil)

	mockAccount.EXPECT().ListByOwner(gomock.Any(), int64(7)).Return([]domain.Account{
		{ID: 1, OwnerID: 7, Kind: domain.AccountKindWallet, Status: domain.AccountStatusActive, Balance: decimal.NewFromInt(100)},
		{ID: 2, OwnerID: 7, Kind: domain.AccountKindBudgetCard, Status: domain.AccountStatusActive, Balance: decimal.NewFromInt(40)},
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	items := resp["data"].([]interface{})
	assert.Len(t, items, 2)
}

func TestFreezeAccount_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(mockAccount, nil)

	mockAccount.EXPECT().Freeze(gomock.Any(), int64(5), int64(7)).Return(nil)

	c, w := newTestContext(t, http.MethodPost, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.Freeze(c)
	// gin defers header writes; flush so the recorder sees the 204.
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCloseAccount_NotEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewAccountHandler(mockAccount, nil)

	mockAccount.EXPECT().Close(gomock.Any(), int64(5), int64(7)).Return(apperror.ErrAccountNotEmpty(5))

	c, w := newTestContext(t, http.MethodPost, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.Close(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ACC_004", errorCode(t, w))
}

func TestGetBalance_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewAccountHandler(nil, mockReporting)

	asOf := time.Now()
	mockReporting.EXPECT().GetBalance(gomock.Any(), int64(5), int64(7)).Return(&ports.BalanceReport{
		AccountID: 5,
		Kind:      domain.AccountKindWallet,
		Balance:   decimal.RequireFromString("99.95"),
		AsOf:      asOf,
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "99.95", data["balance"])
	assert.Equal(t, "WALLET", data["kind"])
}

func TestGetStatement_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewAccountHandler(nil, mockReporting)

	now := time.Now()
	mockReporting.EXPECT().GetStatement(gomock.Any(), int64(7), ports.EntryListParams{
		AccountID: 5,
		Page:      1,
		PageSize:  20,
	}).Return([]domain.LedgerEntry{
		{ID: 11, AccountID: 5, Delta: decimal.RequireFromString("-60"), Reason: domain.EntryReasonTransfer, OperationID: "op-1", CreatedAt: now},
	}, int64(1), nil)

	c, w := newTestContext(t, http.MethodGet, "/?page=1&page_size=20", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.GetStatement(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	items := data["items"].([]interface{})
	assert.Len(t, items, 1)
	entry := items[0].(map[string]interface{})
	assert.Equal(t, "-60", entry["delta"])
	assert.Equal(t, "TRANSFER", entry["reason"])
	assert.Equal(t, float64(1), data["total"])
	assert.Equal(t, float64(1), data["total_pages"])
}

func TestGetStatement_ClampsPagination(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewAccountHandler(nil, mockReporting)

	// page=0 and page_size=9999 fall back to defaults before the service
	// ever sees them.
	mockReporting.EXPECT().GetStatement(gomock.Any(), int64(7), ports.EntryListParams{
		AccountID: 5,
		Page:      1,
		PageSize:  20,
	}).Return(nil, int64(0), nil)

	c, w := newTestContext(t, http.MethodGet, "/?page=0&page_size=9999", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.GetStatement(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetStats_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewAccountHandler(nil, mockReporting)

	mockReporting.EXPECT().GetStats(gomock.Any(), int64(5), int64(7)).Return(&ports.EntryStats{
		EntryCount:   12,
		TotalCredits: decimal.RequireFromString("300"),
		TotalDebits:  decimal.RequireFromString("120"),
		ByReason: map[domain.EntryReason]decimal.Decimal{
			domain.EntryReasonTransfer: decimal.RequireFromString("180"),
		},
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.GetStats(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(12), data["entry_count"])
	assert.Equal(t, "300", data["total_credits"])
	byReason := data["by_reason"].(map[string]interface{})
	assert.Equal(t, "180", byReason["TRANSFER"])
}

// --- Transfer Handler Tests ---

func TestTransfer_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransfer := mocks.NewMockTransferService(ctrl)
	h := NewTransferHandler(mockTransfer)

	now := time.Now()
	mockTransfer.EXPECT().Transfer(gomock.Any(), ports.TransferRequest{
		OwnerID:       7,
		FromAccountID: 1,
		ToAccountID:   2,
		Amount:        decimal.RequireFromString("60.00"),
		OperationID:   "op-001",
		Description:   "rent share",
	}).Return(&ports.TransferResult{
		OperationID: "op-001",
		Entries: []domain.LedgerEntry{
			{ID: 10, AccountID: 1, Delta: decimal.RequireFromString("-60"), Reason: domain.EntryReasonTransfer, OperationID: "op-001", CreatedAt: now},
			{ID: 11, AccountID: 2, Delta: decimal.RequireFromString("60"), Reason: domain.EntryReasonTransfer, OperationID: "op-001", CreatedAt: now},
		},
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.TransferRequest{
		FromAccountID: 1,
		ToAccountID:   2,
		Amount:        "60.00",
		OperationID:   "op-001",
		Description:   "rent share",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Transfer(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "op-001", data["operation_id"])
	assert.Equal(t, false, data["replayed"])
	entries := data["entries"].([]interface{})
	assert.Len(t, entries, 2)
}

func TestTransfer_Replayed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransfer := mocks.NewMockTransferService(ctrl)
	h := NewTransferHandler(mockTransfer)

	mockTransfer.EXPECT().Transfer(gomock.Any(), gomock.Any()).Return(&ports.TransferResult{
		OperationID: "op-001",
		Replayed:    true,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.TransferRequest{
		FromAccountID: 1,
		ToAccountID:   2,
		Amount:        "60.00",
		OperationID:   "op-001",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Transfer(c)

	// Replays answer 200, not 201: nothing new was created.
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["replayed"])
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransfer := mocks.NewMockTransferService(ctrl)
	h := NewTransferHandler(mockTransfer)

	mockTransfer.EXPECT().Transfer(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInsufficientFunds(decimal.RequireFromString("60"), decimal.RequireFromString("10")))

	c, w := newTestContext(t, http.MethodPost, "/", dto.TransferRequest{
		FromAccountID: 1,
		ToAccountID:   2,
		Amount:        "60.00",
		OperationID:   "op-001",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Transfer(c)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "LED_001", errorCode(t, w))
}

func TestTransfer_InvalidAmount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransfer := mocks.NewMockTransferService(ctrl)
	h := NewTransferHandler(mockTransfer)

	c, w := newTestContext(t, http.MethodPost, "/", dto.TransferRequest{
		FromAccountID: 1,
		ToAccountID:   2,
		Amount:        "-60.00",
		OperationID:   "op-001",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Transfer(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTopup_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransfer := mocks.NewMockTransferService(ctrl)
	h := NewTransferHandler(mockTransfer)

	mockTransfer.EXPECT().Topup(gomock.Any(), ports.TopupRequest{
		OwnerID:     7,
		AccountID:   1,
		Amount:      decimal.RequireFromString("100.00"),
		OperationID: "topup-001",
	}).Return(&ports.TransferResult{OperationID: "topup-001"}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.TopupRequest{
		AccountID:   1,
		Amount:      "100.00",
		OperationID: "topup-001",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Topup(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestWithdraw_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransfer := mocks.NewMockTransferService(ctrl)
	h := NewTransferHandler(mockTransfer)

	mockTransfer.EXPECT().Withdraw(gomock.Any(), ports.WithdrawRequest{
		OwnerID:     7,
		AccountID:   1,
		Amount:      decimal.RequireFromString("25.00"),
		OperationID: "wd-001",
	}).Return(&ports.TransferResult{OperationID: "wd-001"}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.WithdrawRequest{
		AccountID:   1,
		Amount:      "25.00",
		OperationID: "wd-001",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Withdraw(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

// --- Escrow Handler Tests ---

func TestCreateOrder_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	orderID := uuid.New()
	now := time.Now()
	mockEscrow.EXPECT().CreateOrder(gomock.Any(), ports.CreateOrderRequest{
		BuyerOwnerID:   7,
		BuyerAccountID: 10,
		ListingID:      "lst-1",
	}).Return(&domain.EscrowOrder{
		ID:              orderID,
		ListingID:       "lst-1",
		BuyerAccountID:  10,
		SellerAccountID: 20,
		EscrowAccountID: 30,
		Amount:          decimal.RequireFromString("59.99"),
		Status:          domain.EscrowStatusHeld,
		CreatedAt:       now,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.CreateOrderRequest{
		BuyerAccountID: 10,
		ListingID:      "lst-1",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.CreateOrder(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, orderID.String(), data["id"])
	assert.Equal(t, "HELD", data["status"])
	assert.Equal(t, "59.99", data["amount"])
	assert.Equal(t, float64(30), data["escrow_account_id"])
}

func TestCreateOrder_ListingUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	mockEscrow.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrListingUnavailable("lst-1"))

	c, w := newTestContext(t, http.MethodPost, "/", dto.CreateOrderRequest{
		BuyerAccountID: 10,
		ListingID:      "lst-1",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.CreateOrder(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ESC_002", errorCode(t, w))
}

func TestReleaseOrder_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	orderID := uuid.New()
	now := time.Now()
	mockEscrow.EXPECT().Release(gomock.Any(), orderID, int64(7)).Return(&domain.EscrowOrder{
		ID:         orderID,
		Status:     domain.EscrowStatusReleased,
		Amount:     decimal.RequireFromString("59.99"),
		CreatedAt:  now,
		ResolvedAt: &now,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: orderID.String()}}

	h.Release(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "RELEASED", data["status"])
	assert.NotEmpty(t, data["resolved_at"])
}

func TestRefundOrder_AlreadyResolved(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	orderID := uuid.New()
	mockEscrow.EXPECT().Refund(gomock.Any(), orderID, int64(7)).
		Return(nil, apperror.ErrInvalidStateTransition("RELEASED", "REFUNDED"))

	c, w := newTestContext(t, http.MethodPost, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: orderID.String()}}

	h.Refund(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ESC_001", errorCode(t, w))
}

func TestGetOrder_InvalidUUID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	h.GetOrder(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListOrders_MissingAccountID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockEscrow := mocks.NewMockEscrowService(ctrl)
	h := NewEscrowHandler(mockEscrow)

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))

	h.ListOrders(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Budget Handler Tests ---

func TestAllocate_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockBudget := mocks.NewMockBudgetService(ctrl)
	h := NewBudgetHandler(mockBudget, nil)

	mockBudget.EXPECT().Allocate(gomock.Any(), ports.AllocateRequest{
		OwnerID:         7,
		WalletAccountID: 1,
		CardAccountID:   2,
		Amount:          decimal.RequireFromString("200.00"),
		OperationID:     "alloc-001",
	}).Return(&ports.TransferResult{OperationID: "alloc-001"}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.AllocateRequest{
		WalletAccountID: 1,
		CardAccountID:   2,
		Amount:          "200.00",
		OperationID:     "alloc-001",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Allocate(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSpend_MonthlyLimitExceeded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockBudget := mocks.NewMockBudgetService(ctrl)
	h := NewBudgetHandler(mockBudget, nil)

	mockBudget.EXPECT().Spend(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrMonthlyLimitExceeded(decimal.RequireFromString("80"), decimal.RequireFromString("20")))

	c, w := newTestContext(t, http.MethodPost, "/", dto.SpendRequest{
		CardAccountID: 2,
		Amount:        "80.00",
		OperationID:   "spend-001",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Spend(c)

	// Limit failures are 422, not 402: the card may hold the money and
	// still refuse the spend.
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "LED_004", errorCode(t, w))
}

func TestSpend_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockBudget := mocks.NewMockBudgetService(ctrl)
	h := NewBudgetHandler(mockBudget, nil)

	mockBudget.EXPECT().Spend(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInsufficientFunds(decimal.RequireFromString("80"), decimal.RequireFromString("50")))

	c, w := newTestContext(t, http.MethodPost, "/", dto.SpendRequest{
		CardAccountID: 2,
		Amount:        "80.00",
		OperationID:   "spend-002",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Spend(c)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "LED_001", errorCode(t, w))
}

func TestCanSpend_Allowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockBudget := mocks.NewMockBudgetService(ctrl)
	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewBudgetHandler(mockBudget, mockAccount)

	mockAccount.EXPECT().Get(gomock.Any(), int64(2), int64(7)).Return(&domain.Account{ID: 2, OwnerID: 7}, nil)
	mockBudget.EXPECT().CanSpend(gomock.Any(), int64(2), gomock.Any()).Return(&ports.SpendDecision{
		Allowed:      true,
		Available:    decimal.RequireFromString("40"),
		MonthlySpent: decimal.RequireFromString("160"),
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/?amount=25.00", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "2"}}

	h.CanSpend(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["allowed"])
	assert.Equal(t, "40", data["available"])
}

func TestCanSpend_NotOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockBudget := mocks.NewMockBudgetService(ctrl)
	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewBudgetHandler(mockBudget, mockAccount)

	// Ownership is checked before the decision; CanSpend is never called.
	mockAccount.EXPECT().Get(gomock.Any(), int64(2), int64(99)).Return(nil, apperror.ErrNotOwner())

	c, w := newTestContext(t, http.MethodGet, "/?amount=25.00", nil)
	c.Set(middleware.CtxOwnerID, int64(99))
	c.Params = gin.Params{{Key: "id", Value: "2"}}

	h.CanSpend(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCanSpend_InvalidAmount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockBudget := mocks.NewMockBudgetService(ctrl)
	mockAccount := mocks.NewMockAccountService(ctrl)
	h := NewBudgetHandler(mockBudget, mockAccount)

	c, w := newTestContext(t, http.MethodGet, "/?amount=-5", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "2"}}

	h.CanSpend(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Loan Handler Tests ---

func TestDisburseLoan_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLoan := mocks.NewMockLoanService(ctrl)
	h := NewLoanHandler(mockLoan)

	loanID := uuid.New()
	now := time.Now()
	mockLoan.EXPECT().Disburse(gomock.Any(), ports.DisburseRequest{
		LenderOwnerID:     7,
		LenderAccountID:   1,
		BorrowerAccountID: 9,
		Amount:            decimal.RequireFromString("500.00"),
	}).Return(&domain.Loan{
		ID:                loanID,
		LenderAccountID:   1,
		BorrowerAccountID: 9,
		LoanAccountID:     33,
		Principal:         decimal.RequireFromString("500"),
		Status:            domain.LoanStatusActive,
		CreatedAt:         now,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.DisburseRequest{
		LenderAccountID:   1,
		BorrowerAccountID: 9,
		Amount:            "500.00",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Disburse(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, loanID.String(), data["id"])
	assert.Equal(t, "ACTIVE", data["status"])
	assert.Equal(t, "500", data["principal"])
}

func TestRepayLoan_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLoan := mocks.NewMockLoanService(ctrl)
	h := NewLoanHandler(mockLoan)

	loanID := uuid.New()
	now := time.Now()
	mockLoan.EXPECT().Repay(gomock.Any(), ports.RepayRequest{
		CallerOwnerID: 9,
		LoanID:        loanID,
		Amount:        decimal.RequireFromString("500.00"),
		OperationID:   "repay-001",
	}).Return(&domain.Loan{
		ID:        loanID,
		Principal: decimal.RequireFromString("500"),
		Status:    domain.LoanStatusRepaid,
		CreatedAt: now,
		ClosedAt:  &now,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.RepayRequest{
		Amount:      "500.00",
		OperationID: "repay-001",
	})
	c.Set(middleware.CtxOwnerID, int64(9))
	c.Params = gin.Params{{Key: "id", Value: loanID.String()}}

	h.Repay(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "REPAID", data["status"])
	assert.NotEmpty(t, data["closed_at"])
}

func TestRepayLoan_ExceedsOutstanding(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLoan := mocks.NewMockLoanService(ctrl)
	h := NewLoanHandler(mockLoan)

	loanID := uuid.New()
	mockLoan.EXPECT().Repay(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrRepayExceedsOutstanding(decimal.RequireFromString("600"), decimal.RequireFromString("500")))

	c, w := newTestContext(t, http.MethodPost, "/", dto.RepayRequest{
		Amount:      "600.00",
		OperationID: "repay-002",
	})
	c.Set(middleware.CtxOwnerID, int64(9))
	c.Params = gin.Params{{Key: "id", Value: loanID.String()}}

	h.Repay(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "LOAN_002", errorCode(t, w))
}

func TestListLoans_MissingAccountID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLoan := mocks.NewMockLoanService(ctrl)
	h := NewLoanHandler(mockLoan)

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Subscription Handler Tests ---

func TestCreateSubscription_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSub := mocks.NewMockSubscriptionService(ctrl)
	h := NewSubscriptionHandler(mockSub)

	next := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mockSub.EXPECT().Create(gomock.Any(), gomock.Any()).Return(&domain.Subscription{
		ID:              4,
		OwnerID:         7,
		CardAccountID:   2,
		ServiceName:     "StreamFlix",
		Amount:          decimal.RequireFromString("15.99"),
		BillingCycle:    domain.BillingCycleMonthly,
		NextBillingDate: &next,
		Active:          true,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", dto.CreateSubscriptionRequest{
		CardAccountID: 2,
		ServiceName:   "StreamFlix",
		Amount:        "15.99",
		BillingCycle:  "MONTHLY",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "StreamFlix", data["service_name"])
	assert.Equal(t, "MONTHLY", data["billing_cycle"])
	assert.Equal(t, true, data["active"])
}

func TestCreateSubscription_BadFirstBillingDate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSub := mocks.NewMockSubscriptionService(ctrl)
	h := NewSubscriptionHandler(mockSub)

	c, w := newTestContext(t, http.MethodPost, "/", dto.CreateSubscriptionRequest{
		CardAccountID:    2,
		ServiceName:      "StreamFlix",
		Amount:           "15.99",
		BillingCycle:     "MONTHLY",
		FirstBillingDate: "03/01/2025",
	})
	c.Set(middleware.CtxOwnerID, int64(7))

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelSubscription_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSub := mocks.NewMockSubscriptionService(ctrl)
	h := NewSubscriptionHandler(mockSub)

	mockSub.EXPECT().Cancel(gomock.Any(), int64(4), int64(7)).Return(nil)

	c, w := newTestContext(t, http.MethodDelete, "/", nil)
	c.Set(middleware.CtxOwnerID, int64(7))
	c.Params = gin.Params{{Key: "id", Value: "4"}}

	h.Cancel(c)
	// gin defers header writes; flush so the recorder sees the 204.
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSubscriptionSync_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSub := mocks.NewMockSubscriptionService(ctrl)
	h := NewSubscriptionHandler(mockSub)

	mockSub.EXPECT().SyncAll(gomock.Any()).Return(&ports.SyncReport{
		TotalActive: 5,
		Synced:      5,
		Created:     2,
		Skipped:     3,
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", nil)

	h.Sync(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(2), data["created"])
	assert.Equal(t, float64(3), data["skipped"])
}

func TestSubscriptionRunDue_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSub := mocks.NewMockSubscriptionService(ctrl)
	h := NewSubscriptionHandler(mockSub)

	mockSub.EXPECT().RunDue(gomock.Any(), gomock.Any()).Return(&ports.RunReport{
		Due:     3,
		Settled: 2,
		Failed:  1,
		Failures: []ports.ChargeFailure{
			{ObligationID: 9, SubscriptionID: 4, Reason: "LED_001"},
		},
	}, nil)

	c, w := newTestContext(t, http.MethodPost, "/", nil)

	h.RunDue(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(3), data["due"])
	assert.Equal(t, float64(2), data["settled"])
	failures := data["failures"].([]interface{})
	assert.Len(t, failures, 1)
}

// --- Ops Handler Tests ---

func TestReconcile_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewOpsHandler(mockReporting)

	mockReporting.EXPECT().Reconcile(gomock.Any(), int64(5)).Return(&ports.ReconcileReport{
		AccountID:     5,
		StoredBalance: decimal.RequireFromString("100"),
		EntrySum:      decimal.RequireFromString("100"),
		Consistent:    true,
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.Reconcile(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["consistent"])
	assert.Equal(t, "100", data["entry_sum"])
}

func TestConservation_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewOpsHandler(mockReporting)

	mockReporting.EXPECT().CheckConservation(gomock.Any()).Return(&ports.ConservationReport{
		CashTotal:   decimal.RequireFromString("1000"),
		ExternalIn:  decimal.RequireFromString("1200"),
		ExternalOut: decimal.RequireFromString("200"),
		Expected:    decimal.RequireFromString("1000"),
		Consistent:  true,
	}, nil)

	c, w := newTestContext(t, http.MethodGet, "/", nil)

	h.Conservation(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["consistent"])
	assert.Equal(t, "1000", data["cash_total"])
}

func TestConservation_ServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewOpsHandler(mockReporting)

	mockReporting.EXPECT().CheckConservation(gomock.Any()).Return(nil, errors.New("db down"))

	c, w := newTestContext(t, http.MethodGet, "/", nil)

	h.Conservation(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- Health Check Test ---

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck()(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockChecker := mocks.NewMockHealthChecker(ctrl)
	mockChecker.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))
	mockChecker.EXPECT().Name().Return("postgresql")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(mockChecker)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
}

func TestSwaggerUI(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger", nil)

	SwaggerUI(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "swagger-ui")
	assert.Contains(t, w.Body.String(), "/swagger/spec")
}

func TestSwaggerSpec_Loaded(t *testing.T) {
	SetSwaggerSpec([]byte("openapi: '3.0.0'\ninfo:\n  title: Test"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger/spec", nil)

	SwaggerSpec(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi")
}

func TestSwaggerSpec_NotLoaded(t *testing.T) {
	SetSwaggerSpec(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger/spec", nil)

	SwaggerSpec(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
