package handler

import (
	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/dto"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/middleware"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/response"

	"github.com/gin-gonic/gin"
)

// TransferHandler handles the money-moving endpoints.
type TransferHandler struct {
	transferSvc ports.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transferSvc ports.TransferService) *TransferHandler {
	return &TransferHandler{transferSvc: transferSvc}
}

// Transfer handles POST /api/v1/transfers.
func (h *TransferHandler) Transfer(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.transferSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		OwnerID:       ownerID.(int64),
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        dto.Amount(req.Amount),
		OperationID:   req.OperationID,
		Description:   req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.respond(c, result)
}

// Topup handles POST /api/v1/wallets/topup.
func (h *TransferHandler) Topup(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.transferSvc.Topup(c.Request.Context(), ports.TopupRequest{
		OwnerID:     ownerID.(int64),
		AccountID:   req.AccountID,
		Amount:      dto.Amount(req.Amount),
		OperationID: req.OperationID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.respond(c, result)
}

// Withdraw handles POST /api/v1/wallets/withdraw.
func (h *TransferHandler) Withdraw(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.transferSvc.Withdraw(c.Request.Context(), ports.WithdrawRequest{
		OwnerID:     ownerID.(int64),
		AccountID:   req.AccountID,
		Amount:      dto.Amount(req.Amount),
		OperationID: req.OperationID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.respond(c, result)
}

// respond returns 201 for fresh operations and 200 for idempotent replays.
func (h *TransferHandler) respond(c *gin.Context, result *ports.TransferResult) {
	if result.Replayed {
		response.OK(c, toTransferResponse(result))
		return
	}
	response.Created(c, toTransferResponse(result))
}

// toTransferResponse converts a ports.TransferResult to DTO.
func toTransferResponse(result *ports.TransferResult) dto.TransferResponse {
	entries := make([]dto.EntryResponse, 0, len(result.Entries))
	for i := range result.Entries {
		entries = append(entries, toEntryResponse(&result.Entries[i]))
	}
	return dto.TransferResponse{
		OperationID: result.OperationID,
		Replayed:    result.Replayed,
		Entries:     entries,
	}
}
