// Package approval implements the approval action dispatcher: human
// decisions on parked tool calls (and any other gated object), recorded
// with a full audit history.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/queue"
	"github.com/finagent/orchestrator/internal/sequence"
	"github.com/finagent/orchestrator/internal/statemachine"
	"github.com/finagent/orchestrator/internal/worker"
)

// linkedTypeToolCall marks approvals opened for gated tool calls.
const linkedTypeToolCall = "tool_call"

// decisionMachine guards reviewer actions. Reassign keeps the current
// status and is allowed from any non-terminal one; a status absent from
// the table is terminal and accepts no further actions.
var decisionMachine = statemachine.New("approval", map[domain.ApprovalStatus][]domain.ApprovalStatus{
	domain.ApprovalStatusPending: {
		domain.ApprovalStatusApproved,
		domain.ApprovalStatusRejected,
		domain.ApprovalStatusEscalated,
	},
	domain.ApprovalStatusEscalated: {
		domain.ApprovalStatusApproved,
		domain.ApprovalStatusRejected,
		domain.ApprovalStatusEscalated,
	},
})

// Store is the approval persistence surface. Conflicting concurrent
// transitions on the same approval are serialized by the store.
type Store interface {
	CreateApproval(ctx context.Context, a *domain.Approval) error
	GetApproval(ctx context.Context, approvalID string) (*domain.Approval, error)
	GetApprovalByLink(ctx context.Context, runID, linkedType, linkedID string) (*domain.Approval, error)
	UpdateApproval(ctx context.Context, a *domain.Approval, entry domain.ApprovalHistoryEntry) error
	ListPendingApprovals(ctx context.Context, tenantID string, limit int) ([]domain.Approval, error)
}

// Service dispatches approval actions and opens approvals for gated tool
// calls.
type Service struct {
	store Store
	seq   *sequence.Issuer
	queue queue.Queue
}

// New creates the service. The queue is used to re-enter approved tool
// calls into the pipeline; it may be nil in read-only contexts.
func New(store Store, seq *sequence.Issuer, q queue.Queue) *Service {
	return &Service{store: store, seq: seq, queue: q}
}

// OpenForToolCall creates the pending approval for a gated tool call,
// parking the follow-up work item until a reviewer decides. Idempotent
// under redelivery: the approval already opened for this run's tool call
// is returned instead of a second one.
func (s *Service) OpenForToolCall(ctx context.Context, item domain.RunWorkItem, call domain.AssembledCall, tier domain.RiskTier) (*domain.Approval, error) {
	existing, err := s.store.GetApprovalByLink(ctx, item.RunID, linkedTypeToolCall, call.ToolCallID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	number, err := s.seq.ApprovalNumber(ctx, item.TenantID)
	if err != nil {
		return nil, err
	}

	parked := domain.RunWorkItem{
		WorkItemID:    "wi_" + uuid.New().String()[:8],
		RunID:         item.RunID,
		TenantID:      item.TenantID,
		CorrelationID: item.CorrelationID,
		Type:          domain.WorkTypeExecuteToolCall,
		Payload: domain.ToolCallPayload{
			ToolCallID:     call.ToolCallID,
			ToolName:       call.ToolName,
			Args:           call.Args,
			IdempotencyKey: fmt.Sprintf("%s:%s", item.RunID, call.ToolCallID),
		},
	}
	payload, err := json.Marshal(parked)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parked work item: %w", err)
	}

	approval := &domain.Approval{
		ApprovalID:     "ap_" + uuid.New().String()[:8],
		ApprovalNumber: number,
		TenantID:       item.TenantID,
		RunID:          item.RunID,
		LinkedType:     linkedTypeToolCall,
		LinkedID:       call.ToolCallID,
		RequestedBy:    "orchestrator",
		RequestedAt:    time.Now(),
		Status:         domain.ApprovalStatusPending,
		Level:          1,
		RequestPayload: payload,
	}
	if err := s.store.CreateApproval(ctx, approval); err != nil {
		// Lost the race with a concurrent redelivery; the unique link
		// index kept a single row, return it.
		if existing, lookupErr := s.store.GetApprovalByLink(ctx, item.RunID, linkedTypeToolCall, call.ToolCallID); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return approval, nil
}

// Request carries one reviewer action against an approval.
type Request struct {
	Action     domain.ApprovalAction `json:"action"`
	ActorID    string                `json:"actor_id"`
	Comments   string                `json:"comments,omitempty"`
	ReassignTo string                `json:"reassign_to,omitempty"`
}

// ProcessApproval applies one action to an approval. State mutates only
// when the approval is Pending or Escalated and the action is recognized;
// every successful action appends exactly one history entry.
func (s *Service) ProcessApproval(ctx context.Context, approvalID string, req Request) domain.OperationResult {
	approval, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return domain.Fail(fmt.Sprintf("failed to load approval: %v", err))
	}
	if approval == nil {
		return domain.Fail(fmt.Sprintf("approval %s not found", approvalID))
	}

	if decisionMachine.Terminal(approval.Status) {
		return domain.Fail(fmt.Sprintf("approval %s is not in pending state (status %s)", approvalID, approval.Status))
	}
	if req.ActorID == "" {
		return domain.Invalid("actor is required", "actor_id is required")
	}

	prev := approval.Status
	now := time.Now()

	switch req.Action {
	case domain.ApprovalActionApprove:
		approval.Status = domain.ApprovalStatusApproved
		approval.DecidedBy = req.ActorID
		approval.DecidedAt = &now
		approval.Comments = req.Comments
	case domain.ApprovalActionReject:
		approval.Status = domain.ApprovalStatusRejected
		approval.DecidedBy = req.ActorID
		approval.DecidedAt = &now
		approval.Comments = req.Comments
	case domain.ApprovalActionEscalate:
		approval.Status = domain.ApprovalStatusEscalated
		approval.Level++
		approval.EscalationReason = req.Comments
		approval.EscalatedAt = &now
	case domain.ApprovalActionReassign:
		if req.ReassignTo == "" {
			return domain.Invalid("reassign requires a target actor", "reassign_to is required")
		}
		approval.AssignedTo = req.ReassignTo
	default:
		return domain.Fail(fmt.Sprintf("unknown approval action %q", req.Action))
	}

	entry := domain.ApprovalHistoryEntry{
		EntryID:    "apv_" + uuid.New().String()[:8],
		ApprovalID: approval.ApprovalID,
		Action:     req.Action,
		Actor:      req.ActorID,
		Ts:         now,
		PrevStatus: prev,
		NewStatus:  approval.Status,
		Comments:   req.Comments,
	}
	if err := s.store.UpdateApproval(ctx, approval, entry); err != nil {
		return domain.Fail(fmt.Sprintf("failed to update approval: %v", err))
	}

	if approval.Status == domain.ApprovalStatusApproved {
		if err := s.resumeParkedWork(ctx, approval); err != nil {
			// The decision is recorded; resumption failure is surfaced but
			// does not roll back the approval.
			log.Printf("ERROR: approval %s granted but work item not resumed: %v", approval.ApprovalID, err)
			return domain.Fail(fmt.Sprintf("approval recorded but execution not resumed: %v", err))
		}
	}

	return domain.Ok(fmt.Sprintf("approval %s: %s", approval.ApprovalNumber, approval.Status))
}

// resumeParkedWork publishes the parked work item so the approved tool
// call re-enters the pipeline.
func (s *Service) resumeParkedWork(ctx context.Context, approval *domain.Approval) error {
	if len(approval.RequestPayload) == 0 {
		return nil // nothing parked (e.g. a ledger approval)
	}
	if s.queue == nil {
		return fmt.Errorf("no queue configured")
	}

	var item domain.RunWorkItem
	if err := json.Unmarshal(approval.RequestPayload, &item); err != nil {
		return fmt.Errorf("failed to unmarshal parked work item: %w", err)
	}
	return s.queue.Publish(ctx, worker.QueueFor(item.Type), item)
}

// ListPending returns a tenant's approvals awaiting decision.
func (s *Service) ListPending(ctx context.Context, tenantID string, limit int) ([]domain.Approval, error) {
	return s.store.ListPendingApprovals(ctx, tenantID, limit)
}
