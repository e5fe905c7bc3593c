package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/llm"
	"github.com/finagent/orchestrator/internal/store"
	"github.com/finagent/orchestrator/internal/tools"
	"github.com/finagent/orchestrator/internal/worker"
	"github.com/finagent/orchestrator/tests/helpers"
)

// fakeOpener records opened approvals without touching storage.
type fakeOpener struct {
	opened []domain.AssembledCall
}

func (f *fakeOpener) OpenForToolCall(_ context.Context, item domain.RunWorkItem, call domain.AssembledCall, tier domain.RiskTier) (*domain.Approval, error) {
	f.opened = append(f.opened, call)
	return &domain.Approval{
		ApprovalID:     "ap_test",
		ApprovalNumber: "APR-000001",
		TenantID:       item.TenantID,
		RunID:          item.RunID,
		LinkedType:     "tool_call",
		LinkedID:       call.ToolCallID,
		Status:         domain.ApprovalStatusPending,
		Level:          1,
	}, nil
}

// countingExecutor counts invocations per idempotency key.
type countingExecutor struct {
	mu    sync.Mutex
	calls map[string]int
}

func (e *countingExecutor) Execute(_ context.Context, toolName string, _ json.RawMessage, key string) (*worker.ExecutionResult, error) {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = map[string]int{}
	}
	e.calls[key]++
	e.mu.Unlock()
	return &worker.ExecutionResult{Success: true, Result: json.RawMessage(fmt.Sprintf(`{"tool":%q}`, toolName))}, nil
}

func (e *countingExecutor) count(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[key]
}

// scriptedExecutor returns canned results in order (the last one repeats),
// counting invocations per idempotency key.
type scriptedExecutor struct {
	mu      sync.Mutex
	calls   map[string]int
	results []*worker.ExecutionResult
	next    int
}

func (e *scriptedExecutor) Execute(_ context.Context, _ string, _ json.RawMessage, key string) (*worker.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.calls == nil {
		e.calls = map[string]int{}
	}
	e.calls[key]++
	res := e.results[e.next]
	if e.next < len(e.results)-1 {
		e.next++
	}
	return res, nil
}

func (e *scriptedExecutor) count(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[key]
}

// failingLog refuses every append.
type failingLog struct{ err error }

func (f failingLog) Append(context.Context, string, []domain.Event) error { return f.err }

type testHarness struct {
	worker   *worker.Worker
	store    *store.SQLiteStore
	opener   *fakeOpener
	executor *countingExecutor
}

func newHarness(t *testing.T, client llm.Client) *testHarness {
	t.Helper()

	registry, err := tools.NewRegistry(tools.BuiltinCatalog())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	db := helpers.NewTestSQLiteStore(t)
	opener := &fakeOpener{}
	executor := &countingExecutor{}
	w := worker.New(registry, client, db, db, executor, opener, nil)
	return &testHarness{worker: w, store: db, opener: opener, executor: executor}
}

func llmItem(runID string) domain.RunWorkItem {
	return domain.RunWorkItem{
		WorkItemID: "wi_" + runID,
		RunID:      runID,
		TenantID:   "t1",
		Type:       domain.WorkTypeExecuteLlmCall,
		Payload: domain.LlmCallPayload{
			Model:     "test-model",
			Messages:  []domain.ChatTurn{{Role: "user", Content: "hello"}},
			ToolNames: []string{"kb.search", "gl.post_journal_entry"},
		},
	}
}

func eventsOfType(events []domain.Event, et domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range events {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

func TestLlmCallTextOnlyStream(t *testing.T) {
	ctx := context.Background()
	client := llm.NewScriptedClient([]*llm.StreamChunk{
		llm.TextChunk("Hel"),
		llm.TextChunk("lo "),
		llm.TextChunk("world"),
		llm.FinishChunk("stop"),
	}, &llm.Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8})
	h := newHarness(t, client)

	result := h.worker.Process(ctx, llmItem("run1"))
	if !result.Success {
		t.Fatalf("process failed: %s", result.Error)
	}
	if len(result.FollowUps) != 0 {
		t.Fatalf("expected zero follow-ups, got %d", len(result.FollowUps))
	}

	events, err := h.store.ListEvents(ctx, "run1", 100)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}

	deltas := eventsOfType(events, domain.EventTypeModelDelta)
	if len(deltas) != 3 {
		t.Fatalf("expected 3 model_delta events, got %d", len(deltas))
	}
	wantText := []string{"Hel", "lo ", "world"}
	for i, evt := range deltas {
		var p domain.ModelDeltaPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			t.Fatalf("bad delta payload: %v", err)
		}
		if p.TokenIndex != i {
			t.Fatalf("delta %d: expected token index %d, got %d", i, i, p.TokenIndex)
		}
		if p.Text != wantText[i] {
			t.Fatalf("delta %d: expected %q, got %q", i, wantText[i], p.Text)
		}
	}

	completed := eventsOfType(events, domain.EventTypeModelCompleted)
	if len(completed) != 1 {
		t.Fatalf("expected 1 model_completed event, got %d", len(completed))
	}
	var cp domain.ModelCompletedPayload
	if err := json.Unmarshal(completed[0].Payload, &cp); err != nil {
		t.Fatalf("bad completed payload: %v", err)
	}
	if cp.Content != "Hello world" {
		t.Fatalf("expected content %q, got %q", "Hello world", cp.Content)
	}
	if cp.FinishReason != "stop" {
		t.Fatalf("expected finish reason stop, got %q", cp.FinishReason)
	}

	if n := len(eventsOfType(events, domain.EventTypeAssistantMessageCreated)); n != 1 {
		t.Fatalf("expected 1 assistant_message_created event, got %d", n)
	}
	if n := len(eventsOfType(events, domain.EventTypeRunWaitingForInput)); n != 1 {
		t.Fatalf("expected 1 run_waiting_for_input event, got %d", n)
	}
}

func TestLlmCallLowTierToolAutoExecutes(t *testing.T) {
	ctx := context.Background()
	client := llm.NewScriptedClient([]*llm.StreamChunk{
		llm.ToolCallChunk(0, "call_1", "kb.search", `{"query":`),
		llm.ToolCallChunk(0, "", "", `"invoices"}`),
		llm.FinishChunk("tool_calls"),
	}, nil)
	h := newHarness(t, client)

	result := h.worker.Process(ctx, llmItem("run2"))
	if !result.Success {
		t.Fatalf("process failed: %s", result.Error)
	}
	if len(result.FollowUps) != 1 {
		t.Fatalf("expected exactly one follow-up, got %d", len(result.FollowUps))
	}

	followUp := result.FollowUps[0]
	if followUp.Type != domain.WorkTypeExecuteToolCall {
		t.Fatalf("expected ExecuteToolCall follow-up, got %s", followUp.Type)
	}
	tc, err := followUp.ToolCall()
	if err != nil {
		t.Fatalf("follow-up payload: %v", err)
	}
	if tc.IdempotencyKey != "run2:call_1" {
		t.Fatalf("expected idempotency key run2:call_1, got %q", tc.IdempotencyKey)
	}
	if tc.ToolName != "kb.search" {
		t.Fatalf("expected kb.search, got %q", tc.ToolName)
	}

	events, err := h.store.ListEvents(ctx, "run2", 100)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	requested := eventsOfType(events, domain.EventTypeToolCallRequested)
	if len(requested) != 1 {
		t.Fatalf("expected 1 tool_call_requested event, got %d", len(requested))
	}
	var rp domain.ToolCallRequestedPayload
	if err := json.Unmarshal(requested[0].Payload, &rp); err != nil {
		t.Fatalf("bad requested payload: %v", err)
	}
	if rp.RequiresApproval {
		t.Fatal("Low tier tool must not require approval")
	}
	if string(rp.Args) != `{"query":"invoices"}` {
		t.Fatalf("fragments not reassembled: %s", rp.Args)
	}
	if n := len(eventsOfType(events, domain.EventTypeApprovalRequested)); n != 0 {
		t.Fatalf("expected no approval_requested events, got %d", n)
	}
}

func TestLlmCallHighTierToolParksForApproval(t *testing.T) {
	ctx := context.Background()
	client := llm.NewScriptedClient([]*llm.StreamChunk{
		llm.ToolCallChunk(0, "call_9", "gl.post_journal_entry", `{"entry_id":"je_1"}`),
		llm.FinishChunk("tool_calls"),
	}, nil)
	h := newHarness(t, client)

	result := h.worker.Process(ctx, llmItem("run3"))
	if !result.Success {
		t.Fatalf("process failed: %s", result.Error)
	}
	if len(result.FollowUps) != 0 {
		t.Fatalf("expected zero follow-ups for gated tool, got %d", len(result.FollowUps))
	}
	if len(h.opener.opened) != 1 {
		t.Fatalf("expected one approval opened, got %d", len(h.opener.opened))
	}

	events, err := h.store.ListEvents(ctx, "run3", 100)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	requested := eventsOfType(events, domain.EventTypeToolCallRequested)
	if len(requested) != 1 {
		t.Fatalf("expected 1 tool_call_requested event, got %d", len(requested))
	}
	var rp domain.ToolCallRequestedPayload
	if err := json.Unmarshal(requested[0].Payload, &rp); err != nil {
		t.Fatalf("bad requested payload: %v", err)
	}
	if !rp.RequiresApproval {
		t.Fatal("High tier tool must require approval")
	}
	if n := len(eventsOfType(events, domain.EventTypeApprovalRequested)); n != 1 {
		t.Fatalf("expected 1 approval_requested event, got %d", n)
	}
}

func TestToolCallExecutesAtMostOncePerKey(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, llm.NewMockClient())

	item := domain.RunWorkItem{
		WorkItemID: "wi_tool1",
		RunID:      "run4",
		TenantID:   "t1",
		Type:       domain.WorkTypeExecuteToolCall,
		Payload: domain.ToolCallPayload{
			ToolCallID:     "call_1",
			ToolName:       "kb.search",
			Args:           json.RawMessage(`{"query":"x"}`),
			IdempotencyKey: "run4:call_1",
		},
	}

	first := h.worker.Process(ctx, item)
	if !first.Success {
		t.Fatalf("first delivery failed: %s", first.Error)
	}

	// A second work item carrying the same idempotency key (the shape a
	// double-published approval resume takes) must not re-execute.
	duplicate := item
	duplicate.WorkItemID = "wi_tool1b"
	second := h.worker.Process(ctx, duplicate)
	if !second.Success {
		t.Fatalf("duplicate delivery failed: %s", second.Error)
	}

	if got := h.executor.count("run4:call_1"); got != 1 {
		t.Fatalf("expected exactly one execution, got %d", got)
	}

	events, err := h.store.ListEvents(ctx, "run4", 100)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	completed := eventsOfType(events, domain.EventTypeToolCallCompleted)
	if len(completed) < 1 {
		t.Fatal("expected at least one tool_call_completed event")
	}
	var dup bool
	for _, evt := range completed {
		var p domain.ToolCallResultPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			t.Fatalf("bad result payload: %v", err)
		}
		if p.Duplicate {
			dup = true
		}
	}
	if !dup {
		t.Fatal("duplicate delivery should acknowledge as duplicate")
	}
}

func TestToolCallMissingIdempotencyKeyFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, llm.NewMockClient())

	item := domain.RunWorkItem{
		WorkItemID: "wi_tool2",
		RunID:      "run5",
		TenantID:   "t1",
		Type:       domain.WorkTypeExecuteToolCall,
		Payload: domain.ToolCallPayload{
			ToolCallID: "call_2",
			ToolName:   "kb.search",
		},
	}

	result := h.worker.Process(ctx, item)
	if result.Success {
		t.Fatal("expected failure for missing idempotency key")
	}
	if result.Retryable {
		t.Fatal("missing key is a terminal validation failure, not retryable")
	}
}

func TestLlmCallIncompleteFragmentDropped(t *testing.T) {
	ctx := context.Background()
	// Index 1 never receives a name, so only the complete call survives.
	client := llm.NewScriptedClient([]*llm.StreamChunk{
		llm.ToolCallChunk(0, "call_a", "kb.search", `{}`),
		llm.ToolCallChunk(1, "call_b", "", `{"partial":`),
		llm.FinishChunk("tool_calls"),
	}, nil)
	h := newHarness(t, client)

	result := h.worker.Process(ctx, llmItem("run6"))
	if !result.Success {
		t.Fatalf("process failed: %s", result.Error)
	}
	if len(result.FollowUps) != 1 {
		t.Fatalf("expected one follow-up from the complete call, got %d", len(result.FollowUps))
	}
}

func TestRedeliveryDoesNotDuplicateEvents(t *testing.T) {
	ctx := context.Background()
	client := llm.NewScriptedClient([]*llm.StreamChunk{
		llm.TextChunk("hi"),
		llm.FinishChunk("stop"),
	}, nil)
	h := newHarness(t, client)

	item := llmItem("run7")
	if res := h.worker.Process(ctx, item); !res.Success {
		t.Fatalf("first delivery failed: %s", res.Error)
	}
	if res := h.worker.Process(ctx, item); !res.Success {
		t.Fatalf("redelivery failed: %s", res.Error)
	}

	events, err := h.store.ListEvents(ctx, "run7", 100)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	// Same work item id means same dedupe keys, so re-appends are no-ops.
	if n := len(eventsOfType(events, domain.EventTypeModelDelta)); n != 1 {
		t.Fatalf("expected 1 model_delta after redelivery, got %d", n)
	}
	if n := len(eventsOfType(events, domain.EventTypeModelCompleted)); n != 1 {
		t.Fatalf("expected 1 model_completed after redelivery, got %d", n)
	}
}

func newToolHarness(t *testing.T, executor worker.ToolExecutor) (*worker.Worker, *store.SQLiteStore) {
	t.Helper()
	registry, err := tools.NewRegistry(tools.BuiltinCatalog())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	db := helpers.NewTestSQLiteStore(t)
	return worker.New(registry, llm.NewMockClient(), db, db, executor, &fakeOpener{}, nil), db
}

func toolItem(workItemID, runID, callID string) domain.RunWorkItem {
	return domain.RunWorkItem{
		WorkItemID: workItemID,
		RunID:      runID,
		TenantID:   "t1",
		Type:       domain.WorkTypeExecuteToolCall,
		Payload: domain.ToolCallPayload{
			ToolCallID:     callID,
			ToolName:       "kb.search",
			Args:           json.RawMessage(`{"query":"x"}`),
			IdempotencyKey: runID + ":" + callID,
		},
	}
}

func TestEventAppendFailureFailsItem(t *testing.T) {
	ctx := context.Background()
	client := llm.NewScriptedClient([]*llm.StreamChunk{
		llm.TextChunk("hi"),
		llm.FinishChunk("stop"),
	}, nil)
	registry, err := tools.NewRegistry(tools.BuiltinCatalog())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	db := helpers.NewTestSQLiteStore(t)
	w := worker.New(registry, client, failingLog{err: errors.New("disk full")}, db, &countingExecutor{}, &fakeOpener{}, nil)

	result := w.Process(ctx, llmItem("run8"))
	if result.Success {
		t.Fatal("item must not succeed when its events were not persisted")
	}
	if !result.Retryable {
		t.Fatal("store failure must be retryable")
	}
}

func TestToolCallRetryableFailureReExecutes(t *testing.T) {
	ctx := context.Background()
	executor := &scriptedExecutor{results: []*worker.ExecutionResult{
		{Success: false, Error: "gateway timeout", Retryable: true},
		{Success: true, Result: json.RawMessage(`{"hits":[]}`)},
	}}
	w, db := newToolHarness(t, executor)
	item := toolItem("wi_retry1", "run9", "call_1")

	first := w.Process(ctx, item)
	if first.Success {
		t.Fatal("first delivery should fail")
	}
	if !first.Retryable {
		t.Fatal("transient executor failure must be retryable")
	}

	second := w.Process(ctx, item)
	if !second.Success {
		t.Fatalf("redelivery should execute again and succeed: %s", second.Error)
	}
	if got := executor.count("run9:call_1"); got != 2 {
		t.Fatalf("expected the retry to re-execute, got %d executions", got)
	}

	events, err := db.ListEvents(ctx, "run9", 100)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	completed := eventsOfType(events, domain.EventTypeToolCallCompleted)
	if len(completed) != 1 {
		t.Fatalf("expected 1 tool_call_completed event, got %d", len(completed))
	}
	var cp domain.ToolCallResultPayload
	if err := json.Unmarshal(completed[0].Payload, &cp); err != nil {
		t.Fatalf("bad result payload: %v", err)
	}
	if cp.Duplicate {
		t.Fatal("a genuine re-execution must not be reported as a duplicate")
	}
}

func TestToolCallTerminalFailureNotReportedCompleted(t *testing.T) {
	ctx := context.Background()
	executor := &scriptedExecutor{results: []*worker.ExecutionResult{
		{Success: false, Error: "account not found"},
	}}
	w, db := newToolHarness(t, executor)
	item := toolItem("wi_term1", "run11", "call_2")

	first := w.Process(ctx, item)
	if first.Success || first.Retryable {
		t.Fatalf("terminal failure expected, got %+v", first)
	}

	// A duplicate delivery under a fresh work item must report the
	// recorded failure, not a completion, and must not re-run the tool.
	duplicate := item
	duplicate.WorkItemID = "wi_term1b"
	second := w.Process(ctx, duplicate)
	if second.Success {
		t.Fatal("redelivery of a failed execution must not succeed")
	}
	if second.Retryable {
		t.Fatal("recorded terminal failure must not be retried")
	}
	if got := executor.count("run11:call_2"); got != 1 {
		t.Fatalf("expected exactly one execution, got %d", got)
	}

	events, err := db.ListEvents(ctx, "run11", 100)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if n := len(eventsOfType(events, domain.EventTypeToolCallCompleted)); n != 0 {
		t.Fatalf("a failed tool call must never be recorded completed, got %d completed events", n)
	}
	failed := eventsOfType(events, domain.EventTypeToolCallFailed)
	if len(failed) != 2 {
		t.Fatalf("expected a failed event per delivery, got %d", len(failed))
	}
	var dup *domain.ToolCallResultPayload
	for _, evt := range failed {
		var p domain.ToolCallResultPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			t.Fatalf("bad result payload: %v", err)
		}
		if p.Duplicate {
			dup = &p
		}
	}
	if dup == nil {
		t.Fatal("the duplicate delivery's failure should be marked a duplicate")
	}
	if dup.Error != "account not found" {
		t.Fatalf("duplicate must carry the recorded error, got %q", dup.Error)
	}
}
