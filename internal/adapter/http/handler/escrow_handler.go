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
	"github.com/google/uuid"
)

// EscrowHandler handles escrow order endpoints.
type EscrowHandler struct {
	escrowSvc ports.EscrowService
}

// NewEscrowHandler creates a new EscrowHandler.
func NewEscrowHandler(escrowSvc ports.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrowSvc: escrowSvc}
}

// CreateOrder handles POST /api/v1/escrow/orders.
func (h *EscrowHandler) CreateOrder(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	order, err := h.escrowSvc.CreateOrder(c.Request.Context(), ports.CreateOrderRequest{
		BuyerOwnerID:   ownerID.(int64),
		BuyerAccountID: req.BuyerAccountID,
		ListingID:      req.ListingID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toOrderResponse(order))
}

// Release handles POST /api/v1/escrow/orders/:id/release.
func (h *EscrowHandler) Release(c *gin.Context) {
	h.resolve(c, h.escrowSvc.Release)
}

// Refund handles POST /api/v1/escrow/orders/:id/refund.
func (h *EscrowHandler) Refund(c *gin.Context) {
	h.resolve(c, h.escrowSvc.Refund)
}

func (h *EscrowHandler) resolve(c *gin.Context, op func(ctx context.Context, orderID uuid.UUID, callerOwnerID int64) (*domain.EscrowOrder, error)) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	orderID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	order, err := op(c.Request.Context(), orderID, ownerID.(int64))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toOrderResponse(order))
}

// GetOrder handles GET /api/v1/escrow/orders/:id.
func (h *EscrowHandler) GetOrder(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	orderID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.escrowSvc.GetOrder(c.Request.Context(), orderID, ownerID.(int64))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toOrderResponse(order))
}

// ListOrders handles GET /api/v1/escrow/orders?account_id=N.
func (h *EscrowHandler) ListOrders(c *gin.Context) {
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

	orders, err := h.escrowSvc.ListOrders(c.Request.Context(), ownerID.(int64), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}
	response.OK(c, items)
}

// toOrderResponse converts domain.EscrowOrder to DTO.
func toOrderResponse(order *domain.EscrowOrder) dto.OrderResponse {
	resp := dto.OrderResponse{
		ID:              order.ID.String(),
		ListingID:       order.ListingID,
		BuyerAccountID:  order.BuyerAccountID,
		SellerAccountID: order.SellerAccountID,
		EscrowAccountID: order.EscrowAccountID,
		Amount:          order.Amount.String(),
		Status:          string(order.Status),
		CreatedAt:       order.CreatedAt.Format(time.RFC3339),
	}
	if order.ResolvedAt != nil {
		s := order.ResolvedAt.Format(time.RFC3339)
		resp.ResolvedAt = &s
	}
	return resp
}

// parseUUIDParam parses a UUID path parameter, writing the error response
// itself so callers can just return.
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.Validation("invalid "+name+" path parameter"))
		return uuid.Nil, false
	}
	return id, true
}
