// Package domain defines the core domain models for the orchestrator.
package domain

// RiskTier is a tool's declared sensitivity.
type RiskTier string

const (
	RiskTierLow      RiskTier = "LOW"
	RiskTierMedium   RiskTier = "MEDIUM"
	RiskTierHigh     RiskTier = "HIGH"
	RiskTierCritical RiskTier = "CRITICAL"
)

// riskTierRank defines the total order Low < Medium < High < Critical.
var riskTierRank = map[RiskTier]int{
	RiskTierLow:      0,
	RiskTierMedium:   1,
	RiskTierHigh:     2,
	RiskTierCritical: 3,
}

// Rank returns the tier's position in the total order. Unknown tiers rank
// below Low so they never force an approval by accident.
func (t RiskTier) Rank() int {
	if r, ok := riskTierRank[t]; ok {
		return r
	}
	return -1
}

// Valid reports whether the tier is one of the four known tiers.
func (t RiskTier) Valid() bool {
	_, ok := riskTierRank[t]
	return ok
}

// WorkType identifies the kind of work a RunWorkItem carries.
type WorkType string

const (
	WorkTypeExecuteLlmCall  WorkType = "EXECUTE_LLM_CALL"
	WorkTypeExecuteToolCall WorkType = "EXECUTE_TOOL_CALL"
)

// EventType is the closed set of event kinds appended to the run log.
type EventType string

const (
	EventTypeModelDelta              EventType = "model_delta"
	EventTypeModelCompleted          EventType = "model_completed"
	EventTypeToolCallRequested       EventType = "tool_call_requested"
	EventTypeApprovalRequested       EventType = "approval_requested"
	EventTypeAssistantMessageCreated EventType = "assistant_message_created"
	EventTypeRunWaitingForInput      EventType = "run_waiting_for_input"
	EventTypeRunFailed               EventType = "run_failed"
	EventTypeToolCallCompleted       EventType = "tool_call_completed"
	EventTypeToolCallFailed          EventType = "tool_call_failed"
)

// ExecutionStatus is the guard-recorded state of one idempotency key.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
)

// ExecutionClaim reports a claim attempt on an idempotency key. First is
// true exactly once per key; otherwise Status and Error describe the prior
// attempt's recorded outcome.
type ExecutionClaim struct {
	First  bool
	Status ExecutionStatus
	Error  string
}

// ApprovalStatus represents the status of an approval.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "PENDING"
	ApprovalStatusApproved  ApprovalStatus = "APPROVED"
	ApprovalStatusRejected  ApprovalStatus = "REJECTED"
	ApprovalStatusCancelled ApprovalStatus = "CANCELLED"
	ApprovalStatusEscalated ApprovalStatus = "ESCALATED"
)

// ApprovalAction is a reviewer action dispatched against a pending approval.
type ApprovalAction string

const (
	ApprovalActionApprove  ApprovalAction = "APPROVE"
	ApprovalActionReject   ApprovalAction = "REJECT"
	ApprovalActionEscalate ApprovalAction = "ESCALATE"
	ApprovalActionReassign ApprovalAction = "REASSIGN"
)

// JournalEntryStatus represents the status of a journal entry.
type JournalEntryStatus string

const (
	JournalEntryStatusDraft           JournalEntryStatus = "DRAFT"
	JournalEntryStatusPendingApproval JournalEntryStatus = "PENDING_APPROVAL"
	JournalEntryStatusApproved        JournalEntryStatus = "APPROVED"
	JournalEntryStatusPosted          JournalEntryStatus = "POSTED"
	JournalEntryStatusReversed        JournalEntryStatus = "REVERSED"
	JournalEntryStatusCancelled       JournalEntryStatus = "CANCELLED"
)

// FiscalPeriodStatus represents the status of a fiscal period.
type FiscalPeriodStatus string

const (
	FiscalPeriodStatusOpen         FiscalPeriodStatus = "OPEN"
	FiscalPeriodStatusPendingClose FiscalPeriodStatus = "PENDING_CLOSE"
	FiscalPeriodStatusClosed       FiscalPeriodStatus = "CLOSED"
	FiscalPeriodStatusLocked       FiscalPeriodStatus = "LOCKED"
)

// CloseTaskStatus represents the status of a close task.
type CloseTaskStatus string

const (
	CloseTaskStatusPending    CloseTaskStatus = "PENDING"
	CloseTaskStatusInProgress CloseTaskStatus = "IN_PROGRESS"
	CloseTaskStatusCompleted  CloseTaskStatus = "COMPLETED"
	CloseTaskStatusBlocked    CloseTaskStatus = "BLOCKED"
	CloseTaskStatusCancelled  CloseTaskStatus = "CANCELLED"
)
