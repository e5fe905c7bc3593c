package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/finagent/orchestrator/internal/approval"
	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/ledger"
	"github.com/finagent/orchestrator/internal/queue"
	"github.com/finagent/orchestrator/internal/sequence"
	"github.com/finagent/orchestrator/internal/store"
	"github.com/finagent/orchestrator/internal/tools"
	"github.com/finagent/orchestrator/tests/helpers"
)

func newTestHandler(t *testing.T) (*Handler, *store.SQLiteStore, *queue.MemoryQueue) {
	t.Helper()

	s := helpers.NewTestSQLiteStore(t)
	q := queue.NewMemoryQueue()
	t.Cleanup(q.Close)

	registry, err := tools.NewRegistry(tools.BuiltinCatalog())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	seq := sequence.NewIssuer(s)

	deps := Dependencies{
		Approvals: approval.New(s, seq, q),
		Journal:   ledger.NewJournalService(s, seq),
		Periods:   ledger.NewPeriodService(s),
		Registry:  registry,
		Events:    s,
	}
	return NewHandler(deps), s, q
}

func doJSON(e *echo.Echo, h echo.HandlerFunc, method, path, body string, params map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestListToolsFilters(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	rec := doJSON(e, h.ListTools, http.MethodGet, "/v1/tools?category=ledger", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tools []domain.ToolDefinition `json:"tools"`
		Count int                     `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, len(body.Tools), body.Count)
	assert.NotZero(t, body.Count)
	for _, def := range body.Tools {
		assert.Equal(t, "ledger", def.Category)
	}
}

func TestListPendingApprovalsRequiresTenant(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	rec := doJSON(e, h.ListPendingApprovals, http.MethodGet, "/v1/approvals/pending", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprovalActionFlow(t *testing.T) {
	e := echo.New()
	h, s, q := newTestHandler(t)
	ctx := context.Background()

	item := domain.RunWorkItem{
		WorkItemID: "wi1",
		RunID:      "run1",
		TenantID:   "t1",
		Type:       domain.WorkTypeExecuteLlmCall,
		Payload:    domain.LlmCallPayload{Model: "m"},
	}
	call := domain.AssembledCall{ToolCallID: "tc1", ToolName: "gl.post_journal_entry", Args: json.RawMessage(`{}`)}
	opened, err := h.deps.Approvals.OpenForToolCall(ctx, item, call, domain.RiskTierHigh)
	assert.NoError(t, err)

	rec := doJSON(e, h.ListPendingApprovals, http.MethodGet, "/v1/approvals/pending?tenant_id=t1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var listBody struct {
		Count int `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	assert.Equal(t, 1, listBody.Count)

	rec = doJSON(e, h.ProcessApprovalAction, http.MethodPost,
		"/v1/approvals/"+opened.ApprovalID+"/actions",
		`{"action":"APPROVE","actor_id":"casey"}`,
		map[string]string{"approval_id": opened.ApprovalID})
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := s.GetApproval(ctx, opened.ApprovalID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusApproved, got.Status)
	assert.Equal(t, 1, q.Depth(queue.QueueToolExec))

	// A second decision hits the precondition and conflicts.
	rec = doJSON(e, h.ProcessApprovalAction, http.MethodPost,
		"/v1/approvals/"+opened.ApprovalID+"/actions",
		`{"action":"REJECT","actor_id":"drew"}`,
		map[string]string{"approval_id": opened.ApprovalID})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetRunEvents(t *testing.T) {
	e := echo.New()
	h, s, _ := newTestHandler(t)
	ctx := context.Background()

	events := []domain.Event{
		{EventID: "evt_1", RunID: "run1", TenantID: "t1", Ts: 1, Seq: 0, DedupeKey: "wi1:0", Type: domain.EventTypeModelDelta, Payload: json.RawMessage(`{"text":"hi"}`)},
		{EventID: "evt_2", RunID: "run1", TenantID: "t1", Ts: 2, Seq: 1, DedupeKey: "wi1:1", Type: domain.EventTypeModelCompleted, Payload: json.RawMessage(`{}`)},
	}
	assert.NoError(t, s.Append(ctx, "run1", events))

	rec := doJSON(e, h.GetRunEvents, http.MethodGet, "/v1/runs/run1/events", "", map[string]string{"run_id": "run1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		RunID  string         `json:"run_id"`
		Events []domain.Event `json:"events"`
		Count  int            `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run1", body.RunID)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, domain.EventTypeModelDelta, body.Events[0].Type)
}

func TestJournalEntryEndpoints(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	body := `{
		"tenant_id": "t1",
		"entity_code": "us-corp",
		"description": "accrual",
		"created_by": "alex",
		"lines": [
			{"account_code": "1000", "debit": 100},
			{"account_code": "4000", "credit": 100}
		]
	}`
	rec := doJSON(e, h.CreateJournalEntry, http.MethodPost, "/v1/journal-entries", body, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var entry domain.JournalEntry
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, domain.JournalEntryStatusDraft, entry.Status)

	// Posting from Draft violates the transition table.
	rec = doJSON(e, h.ProcessJournalAction, http.MethodPost,
		"/v1/journal-entries/"+entry.EntryID+"/actions",
		`{"action":"post","actor_id":"alex"}`,
		map[string]string{"entry_id": entry.EntryID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(e, h.GetJournalEntry, http.MethodGet,
		"/v1/journal-entries/"+entry.EntryID, "",
		map[string]string{"entry_id": entry.EntryID})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Unbalanced entries are validation failures.
	bad := `{"tenant_id":"t1","created_by":"alex","lines":[{"account_code":"1000","debit":100},{"account_code":"4000","credit":50}]}`
	rec = doJSON(e, h.CreateJournalEntry, http.MethodPost, "/v1/journal-entries", bad, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	rec := doJSON(e, h.Health, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
