package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/dto"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/middleware"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AccountHandler handles account lifecycle and read endpoints.
type AccountHandler struct {
	accountSvc   ports.AccountService
	reportingSvc ports.ReportingService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc ports.AccountService, reportingSvc ports.ReportingService) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc, reportingSvc: reportingSvc}
}

// OpenWallet handles POST /api/v1/accounts/wallets.
func (h *AccountHandler) OpenWallet(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	acc, err := h.accountSvc.OpenWallet(c.Request.Context(), ownerID.(int64))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toAccountResponse(acc))
}

// OpenBudgetCard handles POST /api/v1/accounts/budget-cards.
func (h *AccountHandler) OpenBudgetCard(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.OpenBudgetCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var monthlyLimit *decimal.Decimal
	if req.MonthlyLimit != nil {
		limit := dto.Amount(*req.MonthlyLimit)
		monthlyLimit = &limit
	}

	acc, err := h.accountSvc.OpenBudgetCard(c.Request.Context(), ownerID.(int64), monthlyLimit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toAccountResponse(acc))
}

// Get handles GET /api/v1/accounts/:id.
func (h *AccountHandler) Get(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	accountID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	acc, err := h.accountSvc.Get(c.Request.Context(), accountID, ownerID.(int64))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toAccountResponse(acc))
}

// List handles GET /api/v1/accounts.
func (h *AccountHandler) List(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	accounts, err := h.accountSvc.ListByOwner(c.Request.Context(), ownerID.(int64))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.AccountResponse, 0, len(accounts))
	for i := range accounts {
		items = append(items, toAccountResponse(&accounts[i]))
	}
	response.OK(c, items)
}

// Freeze handles POST /api/v1/accounts/:id/freeze.
func (h *AccountHandler) Freeze(c *gin.Context) {
	h.setStatus(c, h.accountSvc.Freeze)
}

// Unfreeze handles POST /api/v1/accounts/:id/unfreeze.
func (h *AccountHandler) Unfreeze(c *gin.Context) {
	h.setStatus(c, h.accountSvc.Unfreeze)
}

// Close handles POST /api/v1/accounts/:id/close.
func (h *AccountHandler) Close(c *gin.Context) {
	h.setStatus(c, h.accountSvc.Close)
}

func (h *AccountHandler) setStatus(c *gin.Context, op func(ctx context.Context, accountID, callerOwnerID int64) error) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	accountID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := op(c.Request.Context(), accountID, ownerID.(int64)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// GetBalance handles GET /api/v1/accounts/:id/balance.
func (h *AccountHandler) GetBalance(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	accountID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	report, err := h.reportingSvc.GetBalance(c.Request.Context(), accountID, ownerID.(int64))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		AccountID: report.AccountID,
		Kind:      string(report.Kind),
		Balance:   report.Balance.String(),
		AsOf:      report.AsOf.Format(time.RFC3339),
	})
}

// GetStatement handles GET /api/v1/accounts/:id/statement.
func (h *AccountHandler) GetStatement(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	accountID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	params := ports.EntryListParams{
		AccountID: accountID,
		Page:      page,
		PageSize:  pageSize,
	}

	if r := c.Query("reason"); r != "" {
		reason := domain.EntryReason(r)
		params.Reason = &reason
	}
	if f := c.Query("from"); f != "" {
		if v, err := strconv.ParseInt(f, 10, 64); err == nil {
			params.From = &v
		}
	}
	if t := c.Query("to"); t != "" {
		if v, err := strconv.ParseInt(t, 10, 64); err == nil {
			params.To = &v
		}
	}

	entries, total, err := h.reportingSvc.GetStatement(c.Request.Context(), ownerID.(int64), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.EntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, toEntryResponse(&entries[i]))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	response.OK(c, dto.StatementResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// GetStats handles GET /api/v1/accounts/:id/stats.
func (h *AccountHandler) GetStats(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	accountID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.reportingSvc.GetStats(c.Request.Context(), accountID, ownerID.(int64))
	if err != nil {
		response.Error(c, err)
		return
	}

	byReason := make(map[string]string, len(stats.ByReason))
	for reason, sum := range stats.ByReason {
		byReason[string(reason)] = sum.String()
	}

	response.OK(c, dto.StatsResponse{
		EntryCount:   stats.EntryCount,
		TotalCredits: stats.TotalCredits.String(),
		TotalDebits:  stats.TotalDebits.String(),
		ByReason:     byReason,
	})
}

// toAccountResponse converts domain.Account to DTO.
func toAccountResponse(acc *domain.Account) dto.AccountResponse {
	resp := dto.AccountResponse{
		ID:        acc.ID,
		OwnerID:   acc.OwnerID,
		Kind:      string(acc.Kind),
		Status:    string(acc.Status),
		Balance:   acc.Balance.String(),
		CreatedAt: acc.CreatedAt.Format(time.RFC3339),
	}
	if acc.MonthlyLimit != nil {
		s := acc.MonthlyLimit.String()
		resp.MonthlyLimit = &s
	}
	return resp
}

// toEntryResponse converts domain.LedgerEntry to DTO.
func toEntryResponse(e *domain.LedgerEntry) dto.EntryResponse {
	return dto.EntryResponse{
		ID:          e.ID,
		AccountID:   e.AccountID,
		Delta:       e.Delta.String(),
		Reason:      string(e.Reason),
		OperationID: e.OperationID,
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

// parseIDParam parses a numeric path parameter, writing the error response
// itself so callers can just return.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperror.Validation("invalid "+name+" path parameter"))
		return 0, false
	}
	return id, true
}
