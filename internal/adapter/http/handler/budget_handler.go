package handler

import (
	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/dto"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/middleware"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// BudgetHandler handles budget card endpoints.
type BudgetHandler struct {
	budgetSvc  ports.BudgetService
	accountSvc ports.AccountService
}

// NewBudgetHandler creates a new BudgetHandler.
func NewBudgetHandler(budgetSvc ports.BudgetService, accountSvc ports.AccountService) *BudgetHandler {
	return &BudgetHandler{budgetSvc: budgetSvc, accountSvc: accountSvc}
}

// Allocate handles POST /api/v1/budget/allocate.
func (h *BudgetHandler) Allocate(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.budgetSvc.Allocate(c.Request.Context(), ports.AllocateRequest{
		OwnerID:         ownerID.(int64),
		WalletAccountID: req.WalletAccountID,
		CardAccountID:   req.CardAccountID,
		Amount:          dto.Amount(req.Amount),
		OperationID:     req.OperationID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransferResponse(result))
}

// Spend handles POST /api/v1/budget/spend.
func (h *BudgetHandler) Spend(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.budgetSvc.Spend(c.Request.Context(), ports.SpendRequest{
		OwnerID:       ownerID.(int64),
		CardAccountID: req.CardAccountID,
		Amount:        dto.Amount(req.Amount),
		OperationID:   req.OperationID,
		Description:   req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransferResponse(result))
}

// CanSpend handles GET /api/v1/budget/cards/:id/can-spend?amount=X. The service
// method itself is unauthenticated (the scheduler uses it too), so ownership
// is checked here before asking.
func (h *BudgetHandler) CanSpend(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil || !amount.IsPositive() {
		response.Error(c, apperror.Validation("amount query parameter must be a positive decimal"))
		return
	}

	if _, err := h.accountSvc.Get(c.Request.Context(), cardID, ownerID.(int64)); err != nil {
		response.Error(c, err)
		return
	}

	decision, err := h.budgetSvc.CanSpend(c.Request.Context(), cardID, amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, decision)
}
