package handler

import (
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/response"

	"github.com/gin-gonic/gin"
)

// OpsHandler exposes the audit endpoints: per-account reconciliation and the
// system-wide conservation check. These serve operators, not account holders.
type OpsHandler struct {
	reportingSvc ports.ReportingService
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(reportingSvc ports.ReportingService) *OpsHandler {
	return &OpsHandler{reportingSvc: reportingSvc}
}

// Reconcile handles GET /api/v1/ops/accounts/:id/reconcile.
func (h *OpsHandler) Reconcile(c *gin.Context) {
	accountID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	report, err := h.reportingSvc.Reconcile(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, report)
}

// Conservation handles GET /api/v1/ops/conservation.
func (h *OpsHandler) Conservation(c *gin.Context) {
	report, err := h.reportingSvc.CheckConservation(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, report)
}
