// Package v1 provides the versioned admin HTTP handlers.
package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/finagent/orchestrator/internal/approval"
	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/ledger"
	"github.com/finagent/orchestrator/internal/tools"
)

// EventLister reads a run's event history.
type EventLister interface {
	ListEvents(ctx context.Context, runID string, limit int) ([]domain.Event, error)
}

// Dependencies are the services the handler fronts.
type Dependencies struct {
	Approvals *approval.Service
	Journal   *ledger.JournalService
	Periods   *ledger.PeriodService
	Registry  *tools.Registry
	Events    EventLister
}

// Handler handles HTTP requests.
type Handler struct {
	deps Dependencies
}

// NewHandler creates a new handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps}
}

// RegisterRoutes registers admin routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Approval inbox
	e.GET("/v1/approvals/pending", h.ListPendingApprovals)
	e.POST("/v1/approvals/:approval_id/actions", h.ProcessApprovalAction)

	// Run history
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)

	// Tool catalog
	e.GET("/v1/tools", h.ListTools)

	// Ledger
	e.POST("/v1/journal-entries", h.CreateJournalEntry)
	e.GET("/v1/journal-entries/:entry_id", h.GetJournalEntry)
	e.POST("/v1/journal-entries/:entry_id/actions", h.ProcessJournalAction)
	e.POST("/v1/periods", h.OpenPeriod)
	e.POST("/v1/periods/:period_id/actions", h.ProcessPeriodAction)
	e.POST("/v1/close-tasks", h.CreateCloseTask)
	e.POST("/v1/close-tasks/:task_id/actions", h.ProcessCloseTaskAction)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// resultJSON maps an OperationResult onto the wire: validation failures
// are 400s, other failures 409s (the entry exists but refused the action).
func resultJSON(c echo.Context, res domain.OperationResult) error {
	if res.Success {
		return c.JSON(http.StatusOK, res)
	}
	if len(res.ValidationErrors) > 0 {
		return c.JSON(http.StatusBadRequest, res)
	}
	return c.JSON(http.StatusConflict, res)
}
