// Package worker implements the run orchestrator: it converts one queued
// work item into model/tool execution, durable events, and follow-up work
// items for the caller to publish.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/eventlog"
	"github.com/finagent/orchestrator/internal/llm"
	"github.com/finagent/orchestrator/internal/tools"
	"github.com/finagent/orchestrator/policy"
)

// ToolExecutor runs one tool's side effect, keyed by idempotency key. Out
// of core scope; the worker only guarantees it is never asked to run the
// same key twice.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, args json.RawMessage, idempotencyKey string) (*ExecutionResult, error)
}

// ExecutionResult is the executor's outcome for one tool call.
type ExecutionResult struct {
	Success   bool
	Result    json.RawMessage
	Error     string
	Retryable bool
}

// ExecutionGuard claims idempotency keys and records each key's outcome.
// A key is claimed exactly once; a retryable failure releases the claim so
// redelivery can execute again, while a recorded outcome (completed or
// terminally failed) sticks to the key forever.
type ExecutionGuard interface {
	BeginExecution(ctx context.Context, idempotencyKey, runID, toolName string) (domain.ExecutionClaim, error)
	FinishExecution(ctx context.Context, idempotencyKey string, status domain.ExecutionStatus, execErr string) error
	ReleaseExecution(ctx context.Context, idempotencyKey string) error
}

// ApprovalOpener creates the pending approval for a gated tool call.
type ApprovalOpener interface {
	OpenForToolCall(ctx context.Context, item domain.RunWorkItem, call domain.AssembledCall, tier domain.RiskTier) (*domain.Approval, error)
}

// Worker processes run work items. Safe for concurrent use; all per-item
// state is scoped to a single Process invocation.
type Worker struct {
	registry  *tools.Registry
	llmClient llm.Client
	eventLog  eventlog.Log
	guard     ExecutionGuard
	executor  ToolExecutor
	approvals ApprovalOpener
	policy    *policy.Engine
}

// New creates a worker. The policy engine is optional; without one every
// non-gated call is allowed.
func New(registry *tools.Registry, llmClient llm.Client, eventLog eventlog.Log, guard ExecutionGuard, executor ToolExecutor, approvals ApprovalOpener, policyEngine *policy.Engine) *Worker {
	return &Worker{
		registry:  registry,
		llmClient: llmClient,
		eventLog:  eventLog,
		guard:     guard,
		executor:  executor,
		approvals: approvals,
		policy:    policyEngine,
	}
}

// Process handles one work item to completion and returns the result
// contract for the queue harness. It never panics across the boundary: an
// unhandled fault becomes a run_failed event plus a failed result.
func (w *Worker) Process(ctx context.Context, item domain.RunWorkItem) (result *domain.WorkItemResult) {
	em := newEmitter(w.eventLog, item)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: panic processing work item %s: %v", item.WorkItemID, r)
			if err := em.emit(ctx, domain.EventTypeRunFailed, domain.RunFailedPayload{
				Code:    "internal_error",
				Message: fmt.Sprintf("panic: %v", r),
			}); err != nil {
				log.Printf("ERROR: failed to record panic for run %s: %v", item.RunID, err)
			}
			result = &domain.WorkItemResult{Success: false, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	switch p := item.Payload.(type) {
	case domain.LlmCallPayload:
		return w.handleLlmCall(ctx, item, p, em)
	case domain.ToolCallPayload:
		return w.handleToolCall(ctx, item, p, em)
	default:
		// A payload outside the sealed set cannot be processed; fail the
		// item rather than guessing.
		return &domain.WorkItemResult{
			Success: false,
			Error:   fmt.Sprintf("work item %s: unhandled payload type %T", item.WorkItemID, item.Payload),
		}
	}
}

// fail emits run_failed (unless the fault is a cancellation, which must
// propagate as unacknowledged work) and returns the failed result. The
// run_failed append is best effort: the item is failing either way and a
// retry regenerates the event under the same dedupe key.
func (w *Worker) fail(ctx context.Context, em *emitter, code string, err error, retryable bool) *domain.WorkItemResult {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.WorkItemResult{Success: false, Error: err.Error(), Retryable: true}
	}
	if emitErr := em.emit(ctx, domain.EventTypeRunFailed, domain.RunFailedPayload{Code: code, Message: err.Error()}); emitErr != nil {
		log.Printf("ERROR: failed to append run_failed for run %s: %v", em.item.RunID, emitErr)
	}
	return &domain.WorkItemResult{Success: false, Error: err.Error(), Retryable: retryable}
}

// emitter appends events for one handler invocation, stamping each with a
// monotonically increasing seq and a deterministic dedupe key so redelivery
// re-appends as a no-op.
type emitter struct {
	log  eventlog.Log
	item domain.RunWorkItem
	seq  int
}

func newEmitter(log eventlog.Log, item domain.RunWorkItem) *emitter {
	return &emitter{log: log, item: item}
}

// emit appends one event. A returned error means the event is not durable;
// handlers must convert it into a failed, retryable result rather than
// acknowledge the item with its record lost.
func (e *emitter) emit(ctx context.Context, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	event := domain.Event{
		EventID:   "evt_" + uuid.New().String()[:8],
		RunID:     e.item.RunID,
		TenantID:  e.item.TenantID,
		Ts:        time.Now().UnixMilli(),
		Seq:       e.seq,
		DedupeKey: eventlog.DedupeKey(e.item.WorkItemID, e.seq, eventType),
		Type:      eventType,
		Payload:   payloadBytes,
	}
	e.seq++

	if err := e.log.Append(ctx, e.item.RunID, []domain.Event{event}); err != nil {
		return fmt.Errorf("failed to append %s event for run %s: %w", eventType, e.item.RunID, err)
	}
	return nil
}
