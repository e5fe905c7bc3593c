// Package eventlog defines the append-only run log contract.
package eventlog

import (
	"context"
	"fmt"

	"github.com/finagent/orchestrator/internal/domain"
)

// Log is the append-only, per-run ordered record of everything that
// happened. Events carry a deterministic dedupe key so implementations can
// make redelivered appends a no-op; this core never mutates or deletes.
type Log interface {
	Append(ctx context.Context, runID string, events []domain.Event) error
}

// DedupeKey derives the deterministic per-emission key from the work item
// that generated the event, the event's position within that handler
// invocation and its type. The type keeps a retried item that legitimately
// takes a different path (a released execution claim succeeding after a
// transient failure) from colliding with the prior attempt's events.
func DedupeKey(workItemID string, seq int, eventType domain.EventType) string {
	return fmt.Sprintf("%s:%d:%s", workItemID, seq, eventType)
}
