package store_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/eventlog"
	"github.com/finagent/orchestrator/tests/helpers"
)

func event(id, runID, workItemID string, seq int, et domain.EventType) domain.Event {
	return domain.Event{
		EventID:   id,
		RunID:     runID,
		TenantID:  "t1",
		Ts:        int64(1000 + seq),
		Seq:       seq,
		DedupeKey: eventlog.DedupeKey(workItemID, seq, et),
		Type:      et,
		Payload:   json.RawMessage(`{}`),
	}
}

func TestAppendIsDedupedByKey(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	first := []domain.Event{
		event("evt_1", "run1", "wi1", 0, domain.EventTypeModelDelta),
		event("evt_2", "run1", "wi1", 1, domain.EventTypeModelCompleted),
	}
	if err := s.Append(ctx, "run1", first); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	// A redelivered work item regenerates the same dedupe keys under new
	// event ids; the append must be a no-op.
	replay := []domain.Event{
		event("evt_3", "run1", "wi1", 0, domain.EventTypeModelDelta),
		event("evt_4", "run1", "wi1", 1, domain.EventTypeModelCompleted),
	}
	if err := s.Append(ctx, "run1", replay); err != nil {
		t.Fatalf("replay append failed: %v", err)
	}

	events, err := s.ListEvents(ctx, "run1", 100)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after replay, got %d", len(events))
	}
	if events[0].EventID != "evt_1" || events[1].EventID != "evt_2" {
		t.Fatalf("replay overwrote originals: %s, %s", events[0].EventID, events[1].EventID)
	}
}

func TestListEventsOrderedBySeq(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	// Append out of order; the listing must come back in (ts, seq) order.
	events := []domain.Event{
		event("evt_b", "run2", "wi2", 1, domain.EventTypeModelDelta),
		event("evt_a", "run2", "wi2", 0, domain.EventTypeModelDelta),
		event("evt_c", "run2", "wi2", 2, domain.EventTypeModelCompleted),
	}
	if err := s.Append(ctx, "run2", events); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	got, err := s.ListEvents(ctx, "run2", 100)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, evt := range got {
		if evt.Seq != i {
			t.Fatalf("position %d holds seq %d", i, evt.Seq)
		}
	}
}

func TestBeginExecutionClaimsKeyOnce(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	first, err := s.BeginExecution(ctx, "run1:tc1", "run1", "kb.search")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if !first.First {
		t.Fatal("first claim must succeed")
	}

	again, err := s.BeginExecution(ctx, "run1:tc1", "run1", "kb.search")
	if err != nil {
		t.Fatalf("second begin failed: %v", err)
	}
	if again.First {
		t.Fatal("second claim on the same key must report already-claimed")
	}
	if again.Status != domain.ExecutionStatusRunning {
		t.Fatalf("unfinished claim should read RUNNING, got %s", again.Status)
	}

	other, err := s.BeginExecution(ctx, "run1:tc2", "run1", "kb.search")
	if err != nil {
		t.Fatalf("other begin failed: %v", err)
	}
	if !other.First {
		t.Fatal("a different key must claim independently")
	}
}

func TestFinishExecutionRecordsOutcome(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	if _, err := s.BeginExecution(ctx, "run2:tc1", "run2", "kb.search"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := s.FinishExecution(ctx, "run2:tc1", domain.ExecutionStatusFailed, "account not found"); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	claim, err := s.BeginExecution(ctx, "run2:tc1", "run2", "kb.search")
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if claim.First {
		t.Fatal("a finished key must stay claimed")
	}
	if claim.Status != domain.ExecutionStatusFailed {
		t.Fatalf("expected FAILED outcome, got %s", claim.Status)
	}
	if claim.Error != "account not found" {
		t.Fatalf("expected recorded error, got %q", claim.Error)
	}
}

func TestReleaseExecutionFreesOnlyRunningClaims(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	if _, err := s.BeginExecution(ctx, "run3:tc1", "run3", "kb.search"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := s.ReleaseExecution(ctx, "run3:tc1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	claim, err := s.BeginExecution(ctx, "run3:tc1", "run3", "kb.search")
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if !claim.First {
		t.Fatal("a released key must be claimable again")
	}

	if err := s.FinishExecution(ctx, "run3:tc1", domain.ExecutionStatusCompleted, ""); err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if err := s.ReleaseExecution(ctx, "run3:tc1"); err != nil {
		t.Fatalf("release of a finished key failed: %v", err)
	}
	claim, err = s.BeginExecution(ctx, "run3:tc1", "run3", "kb.search")
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if claim.First || claim.Status != domain.ExecutionStatusCompleted {
		t.Fatalf("a recorded outcome must never be released, got %+v", claim)
	}
}

func TestNextSequenceIsMonotonicPerScope(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextSequence(ctx, "t1", "journal_entry")
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}

	// Other tenants and scopes count independently.
	if got, err := s.NextSequence(ctx, "t2", "journal_entry"); err != nil || got != 1 {
		t.Fatalf("tenant isolation broken: got=%d err=%v", got, err)
	}
	if got, err := s.NextSequence(ctx, "t1", "approval"); err != nil || got != 1 {
		t.Fatalf("scope isolation broken: got=%d err=%v", got, err)
	}
}
