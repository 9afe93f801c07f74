package handler

import (
	"strconv"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/dto"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/middleware"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/response"

	"github.com/gin-gonic/gin"
)

// LoanHandler handles peer-to-peer loan endpoints.
type LoanHandler struct {
	loanSvc ports.LoanService
}

// NewLoanHandler creates a new LoanHandler.
func NewLoanHandler(loanSvc ports.LoanService) *LoanHandler {
	return &LoanHandler{loanSvc: loanSvc}
}

// Disburse handles POST /api/v1/loans.
func (h *LoanHandler) Disburse(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DisburseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	loan, err := h.loanSvc.Disburse(c.Request.Context(), ports.DisburseRequest{
		LenderOwnerID:     ownerID.(int64),
		LenderAccountID:   req.LenderAccountID,
		BorrowerAccountID: req.BorrowerAccountID,
		Amount:            dto.Amount(req.Amount),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toLoanResponse(loan))
}

// Repay handles POST /api/v1/loans/:id/repay.
func (h *LoanHandler) Repay(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.RepayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	loan, err := h.loanSvc.Repay(c.Request.Context(), ports.RepayRequest{
		CallerOwnerID: ownerID.(int64),
		LoanID:        loanID,
		Amount:        dto.Amount(req.Amount),
		OperationID:   req.OperationID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toLoanResponse(loan))
}

// Get handles GET /api/v1/loans/:id.
func (h *LoanHandler) Get(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	loan, err := h.loanSvc.Get(c.Request.Context(), loanID, ownerID.(int64))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toLoanResponse(loan))
}

// List handles GET /api/v1/loans?account_id=N.
func (h *LoanHandler) List(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	accountID, err := strconv.ParseInt(c.Query("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		response.Error(c, apperror.Validation("account_id query parameter is required"))
		return
	}

	loans, err := h.loanSvc.ListByAccount(c.Request.Context(), ownerID.(int64), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.LoanResponse, 0, len(loans))
	for i := range loans {
		items = append(items, toLoanResponse(&loans[i]))
	}
	response.OK(c, items)
}

// toLoanResponse converts domain.Loan to DTO.
func toLoanResponse(loan *domain.Loan) dto.LoanResponse {
	resp := dto.LoanResponse{
		ID:                loan.ID.String(),
		LenderAccountID:   loan.LenderAccountID,
		BorrowerAccountID: loan.BorrowerAccountID,
		LoanAccountID:     loan.LoanAccountID,
		Principal:         loan.Principal.String(),
		Status:            string(loan.Status),
		CreatedAt:         loan.CreatedAt.Format(time.RFC3339),
	}
	if loan.ClosedAt != nil {
		s := loan.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &s
	}
	return resp
}
