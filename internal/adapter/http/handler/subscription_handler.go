package handler

import (
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/dto"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/http/middleware"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/response"

	"github.com/gin-gonic/gin"
)

// SubscriptionHandler handles subscription endpoints, including the
// scheduler's on-demand triggers.
type SubscriptionHandler struct {
	subscriptionSvc ports.SubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subscriptionSvc ports.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionSvc: subscriptionSvc}
}

// Create handles POST /api/v1/subscriptions.
func (h *SubscriptionHandler) Create(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	var first time.Time
	if req.FirstBillingDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.FirstBillingDate)
		if err != nil {
			response.Error(c, apperror.Validation("first_billing_date must be RFC3339"))
			return
		}
		first = parsed
	}

	sub, err := h.subscriptionSvc.Create(c.Request.Context(), ports.CreateSubscriptionRequest{
		OwnerID:          ownerID.(int64),
		CardAccountID:    req.CardAccountID,
		ServiceName:      req.ServiceName,
		ServiceCategory:  req.ServiceCategory,
		Amount:           dto.Amount(req.Amount),
		BillingCycle:     domain.BillingCycle(req.BillingCycle),
		FirstBillingDate: first,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toSubscriptionResponse(sub))
}

// List handles GET /api/v1/subscriptions.
func (h *SubscriptionHandler) List(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	subs, err := h.subscriptionSvc.ListByOwner(c.Request.Context(), ownerID.(int64))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.SubscriptionResponse, 0, len(subs))
	for i := range subs {
		items = append(items, toSubscriptionResponse(&subs[i]))
	}
	response.OK(c, items)
}

// Cancel handles DELETE /api/v1/subscriptions/:id.
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	ownerID, ok := c.Get(middleware.CtxOwnerID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	subID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.subscriptionSvc.Cancel(c.Request.Context(), subID, ownerID.(int64)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Sync handles POST /api/v1/subscriptions/sync. It materializes upcoming
// obligations; safe to trigger any number of times.
func (h *SubscriptionHandler) Sync(c *gin.Context) {
	report, err := h.subscriptionSvc.SyncAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, report)
}

// RunDue handles POST /api/v1/subscriptions/run-due. It charges everything
// that has come due; replays settle instead of double-charging.
func (h *SubscriptionHandler) RunDue(c *gin.Context) {
	report, err := h.subscriptionSvc.RunDue(c.Request.Context(), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, report)
}

// toSubscriptionResponse converts domain.Subscription to DTO.
func toSubscriptionResponse(sub *domain.Subscription) dto.SubscriptionResponse {
	resp := dto.SubscriptionResponse{
		ID:              sub.ID,
		CardAccountID:   sub.CardAccountID,
		ServiceName:     sub.ServiceName,
		ServiceCategory: sub.ServiceCategory,
		Amount:          sub.Amount.String(),
		BillingCycle:    string(sub.BillingCycle),
		Active:          sub.Active,
	}
	if sub.NextBillingDate != nil {
		s := sub.NextBillingDate.Format(time.RFC3339)
		resp.NextBillingDate = &s
	}
	if sub.LastPaymentDate != nil {
		s := sub.LastPaymentDate.Format(time.RFC3339)
		resp.LastPaymentDate = &s
	}
	return resp
}
