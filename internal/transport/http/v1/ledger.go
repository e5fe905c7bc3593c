package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/ledger"
)

// CreateJournalEntry creates a Draft journal entry.
func (h *Handler) CreateJournalEntry(c echo.Context) error {
	var req struct {
		TenantID    string               `json:"tenant_id"`
		EntityCode  string               `json:"entity_code"`
		Description string               `json:"description"`
		PeriodID    string               `json:"period_id"`
		CreatedBy   string               `json:"created_by"`
		Lines       []domain.JournalLine `json:"lines"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	entry, res := h.deps.Journal.CreateEntry(ctx, ledger.CreateEntryInput{
		TenantID:    req.TenantID,
		EntityCode:  req.EntityCode,
		Description: req.Description,
		PeriodID:    req.PeriodID,
		CreatedBy:   req.CreatedBy,
		Lines:       req.Lines,
	})
	if !res.Success {
		return resultJSON(c, res)
	}
	return c.JSON(http.StatusCreated, entry)
}

// GetJournalEntry returns one entry with its lines.
func (h *Handler) GetJournalEntry(c echo.Context) error {
	entryID := c.Param("entry_id")
	ctx := c.Request().Context()

	entry, err := h.deps.Journal.GetEntry(ctx, entryID)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	if entry == nil {
		return errorJSON(c, http.StatusNotFound, "journal entry not found")
	}
	return c.JSON(http.StatusOK, entry)
}

// ProcessJournalAction applies one lifecycle action to a journal entry.
func (h *Handler) ProcessJournalAction(c echo.Context) error {
	entryID := c.Param("entry_id")
	var req struct {
		Action  string `json:"action"`
		ActorID string `json:"actor_id"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	switch req.Action {
	case "submit":
		return resultJSON(c, h.deps.Journal.SubmitEntry(ctx, entryID))
	case "approve":
		return resultJSON(c, h.deps.Journal.ApproveEntry(ctx, entryID, req.ActorID))
	case "post":
		return resultJSON(c, h.deps.Journal.PostEntry(ctx, entryID, req.ActorID))
	case "cancel":
		return resultJSON(c, h.deps.Journal.CancelEntry(ctx, entryID))
	case "return_to_draft":
		return resultJSON(c, h.deps.Journal.ReturnToDraft(ctx, entryID))
	case "reverse":
		reversal, res := h.deps.Journal.ReverseEntry(ctx, entryID, req.ActorID)
		if !res.Success {
			return resultJSON(c, res)
		}
		return c.JSON(http.StatusCreated, reversal)
	default:
		return errorJSON(c, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}

// OpenPeriod creates a new fiscal period.
func (h *Handler) OpenPeriod(c echo.Context) error {
	var req struct {
		TenantID   string    `json:"tenant_id"`
		EntityCode string    `json:"entity_code"`
		Name       string    `json:"name"`
		StartDate  time.Time `json:"start_date"`
		EndDate    time.Time `json:"end_date"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	period, res := h.deps.Periods.OpenPeriod(ctx, req.TenantID, req.EntityCode, req.Name, req.StartDate, req.EndDate)
	if !res.Success {
		return resultJSON(c, res)
	}
	return c.JSON(http.StatusCreated, period)
}

// ProcessPeriodAction applies one lifecycle action to a fiscal period.
func (h *Handler) ProcessPeriodAction(c echo.Context) error {
	periodID := c.Param("period_id")
	var req struct {
		Action  string `json:"action"`
		ActorID string `json:"actor_id"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	switch req.Action {
	case "begin_close":
		return resultJSON(c, h.deps.Periods.BeginClose(ctx, periodID))
	case "close":
		return resultJSON(c, h.deps.Periods.ClosePeriod(ctx, periodID, req.ActorID))
	case "lock":
		return resultJSON(c, h.deps.Periods.LockPeriod(ctx, periodID, req.ActorID))
	case "reopen":
		return resultJSON(c, h.deps.Periods.ReopenPeriod(ctx, periodID))
	default:
		return errorJSON(c, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}

// CreateCloseTask adds a checklist item to a period close.
func (h *Handler) CreateCloseTask(c echo.Context) error {
	var req struct {
		TenantID   string `json:"tenant_id"`
		EntityCode string `json:"entity_code"`
		PeriodID   string `json:"period_id"`
		Title      string `json:"title"`
		AssignedTo string `json:"assigned_to"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	task, res := h.deps.Periods.CreateCloseTask(ctx, req.TenantID, req.EntityCode, req.PeriodID, req.Title, req.AssignedTo)
	if !res.Success {
		return resultJSON(c, res)
	}
	return c.JSON(http.StatusCreated, task)
}

// ProcessCloseTaskAction applies one lifecycle action to a close task.
func (h *Handler) ProcessCloseTaskAction(c echo.Context) error {
	taskID := c.Param("task_id")
	var req struct {
		Action  string `json:"action"`
		ActorID string `json:"actor_id"`
		Reason  string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	switch req.Action {
	case "start":
		return resultJSON(c, h.deps.Periods.StartTask(ctx, taskID))
	case "complete":
		return resultJSON(c, h.deps.Periods.CompleteTask(ctx, taskID, req.ActorID))
	case "block":
		return resultJSON(c, h.deps.Periods.BlockTask(ctx, taskID, req.Reason))
	case "cancel":
		return resultJSON(c, h.deps.Periods.CancelTask(ctx, taskID))
	default:
		return errorJSON(c, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}
