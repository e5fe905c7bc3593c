package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/finagent/orchestrator/internal/domain"
)

func (w *Worker) handleToolCall(ctx context.Context, item domain.RunWorkItem, p domain.ToolCallPayload, em *emitter) *domain.WorkItemResult {
	if p.IdempotencyKey == "" {
		return w.fail(ctx, em, "invalid_payload", fmt.Errorf("tool call %s has no idempotency key", p.ToolCallID), false)
	}

	// Claim the key before touching the executor. A redelivered item sees
	// an already-claimed key and must not re-run the side effect; what it
	// reports depends on the recorded outcome of the prior attempt.
	claim, err := w.guard.BeginExecution(ctx, p.IdempotencyKey, item.RunID, p.ToolName)
	if err != nil {
		return w.fail(ctx, em, "guard_error", fmt.Errorf("failed to claim idempotency key: %w", err), true)
	}
	if !claim.First {
		switch claim.Status {
		case domain.ExecutionStatusCompleted:
			if err := em.emit(ctx, domain.EventTypeToolCallCompleted, domain.ToolCallResultPayload{
				ToolCallID:     p.ToolCallID,
				ToolName:       p.ToolName,
				IdempotencyKey: p.IdempotencyKey,
				Duplicate:      true,
			}); err != nil {
				return w.fail(ctx, em, "event_log_error", err, true)
			}
			return &domain.WorkItemResult{Success: true}
		case domain.ExecutionStatusFailed:
			// The prior attempt failed terminally; report that, never a
			// completion it did not have.
			if err := em.emit(ctx, domain.EventTypeToolCallFailed, domain.ToolCallResultPayload{
				ToolCallID:     p.ToolCallID,
				ToolName:       p.ToolName,
				IdempotencyKey: p.IdempotencyKey,
				Error:          claim.Error,
				Duplicate:      true,
			}); err != nil {
				return w.fail(ctx, em, "event_log_error", err, true)
			}
			return &domain.WorkItemResult{Success: false, Error: claim.Error}
		default:
			// Still RUNNING: a concurrent consumer holds the claim, or a
			// crashed one left it behind. Never re-execute; let the queue
			// retry until an outcome is recorded or attempts run out.
			return &domain.WorkItemResult{
				Success:   false,
				Error:     fmt.Sprintf("execution for key %s is already in flight", p.IdempotencyKey),
				Retryable: true,
			}
		}
	}

	res, err := w.executor.Execute(ctx, p.ToolName, p.Args, p.IdempotencyKey)
	if err != nil {
		w.releaseClaim(ctx, p.IdempotencyKey)
		if emitErr := em.emit(ctx, domain.EventTypeToolCallFailed, domain.ToolCallResultPayload{
			ToolCallID:     p.ToolCallID,
			ToolName:       p.ToolName,
			IdempotencyKey: p.IdempotencyKey,
			Error:          err.Error(),
		}); emitErr != nil {
			return w.fail(ctx, em, "event_log_error", emitErr, true)
		}
		return w.fail(ctx, em, "executor_error", fmt.Errorf("tool %s execution failed: %w", p.ToolName, err), true)
	}

	if !res.Success {
		if res.Retryable {
			// Release the claim so a redelivered item executes again
			// instead of acknowledging the failure as a duplicate success.
			w.releaseClaim(ctx, p.IdempotencyKey)
		} else if err := w.guard.FinishExecution(ctx, p.IdempotencyKey, domain.ExecutionStatusFailed, res.Error); err != nil {
			log.Printf("WARN: failed to record failed execution for key %s: %v", p.IdempotencyKey, err)
		}
		if err := em.emit(ctx, domain.EventTypeToolCallFailed, domain.ToolCallResultPayload{
			ToolCallID:     p.ToolCallID,
			ToolName:       p.ToolName,
			IdempotencyKey: p.IdempotencyKey,
			Error:          res.Error,
		}); err != nil {
			return w.fail(ctx, em, "event_log_error", err, true)
		}
		return &domain.WorkItemResult{Success: false, Error: res.Error, Retryable: res.Retryable}
	}

	if err := w.guard.FinishExecution(ctx, p.IdempotencyKey, domain.ExecutionStatusCompleted, ""); err != nil {
		log.Printf("WARN: failed to record completed execution for key %s: %v", p.IdempotencyKey, err)
	}
	if err := em.emit(ctx, domain.EventTypeToolCallCompleted, domain.ToolCallResultPayload{
		ToolCallID:     p.ToolCallID,
		ToolName:       p.ToolName,
		IdempotencyKey: p.IdempotencyKey,
		Result:         res.Result,
	}); err != nil {
		return w.fail(ctx, em, "event_log_error", err, true)
	}
	return &domain.WorkItemResult{Success: true}
}

// releaseClaim frees a key after a retryable fault. Failure to release is
// survivable: the stale RUNNING claim makes later deliveries retry until
// the queue dead-letters them, which never re-runs the side effect.
func (w *Worker) releaseClaim(ctx context.Context, idempotencyKey string) {
	if err := w.guard.ReleaseExecution(ctx, idempotencyKey); err != nil {
		log.Printf("WARN: failed to release idempotency key %s: %v", idempotencyKey, err)
	}
}
