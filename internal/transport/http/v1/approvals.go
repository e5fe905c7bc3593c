package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/finagent/orchestrator/internal/approval"
)

// ListPendingApprovals returns a tenant's approvals awaiting decision.
func (h *Handler) ListPendingApprovals(c echo.Context) error {
	tenantID := c.QueryParam("tenant_id")
	if tenantID == "" {
		return errorJSON(c, http.StatusBadRequest, "tenant_id is required")
	}
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	ctx := c.Request().Context()
	approvals, err := h.deps.Approvals.ListPending(ctx, tenantID, limit)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"approvals": approvals,
		"count":     len(approvals),
	})
}

// ProcessApprovalAction applies one reviewer action to an approval.
func (h *Handler) ProcessApprovalAction(c echo.Context) error {
	approvalID := c.Param("approval_id")
	var req approval.Request
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	res := h.deps.Approvals.ProcessApproval(ctx, approvalID, req)
	return resultJSON(c, res)
}
