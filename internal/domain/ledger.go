package domain

import "time"

// JournalLine is one debit/credit line of a journal entry.
type JournalLine struct {
	LineID      string  `json:"line_id"`
	AccountCode string  `json:"account_code"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Memo        string  `json:"memo,omitempty"`
}

// JournalEntry is a double-entry ledger record owned by one (tenant, entity)
// scope. Lines are immutable after creation; status changes only through the
// journal state machine.
type JournalEntry struct {
	EntryID     string             `json:"entry_id"`
	EntryNumber string             `json:"entry_number"`
	TenantID    string             `json:"tenant_id"`
	EntityCode  string             `json:"entity_code"`
	Description string             `json:"description,omitempty"`
	PeriodID    string             `json:"period_id,omitempty"`
	Status      JournalEntryStatus `json:"status"`
	Lines       []JournalLine      `json:"lines"`

	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	PostedBy   string     `json:"posted_by,omitempty"`
	PostedAt   *time.Time `json:"posted_at,omitempty"`
	ReversedBy string     `json:"reversed_by,omitempty"`
	ReversedAt *time.Time `json:"reversed_at,omitempty"`

	// Bidirectional reversal links.
	ReversalOfID string `json:"reversal_of_id,omitempty"` // set on the reversing entry
	ReversedByID string `json:"reversed_by_id,omitempty"` // set on the original entry
}

// FiscalPeriod is a tenant-scoped accounting period.
type FiscalPeriod struct {
	PeriodID   string             `json:"period_id"`
	TenantID   string             `json:"tenant_id"`
	EntityCode string             `json:"entity_code"`
	Name       string             `json:"name"` // e.g. 2026-08
	StartDate  time.Time          `json:"start_date"`
	EndDate    time.Time          `json:"end_date"`
	Status     FiscalPeriodStatus `json:"status"`
	ClosedBy   string             `json:"closed_by,omitempty"`
	ClosedAt   *time.Time         `json:"closed_at,omitempty"`
	LockedBy   string             `json:"locked_by,omitempty"`
	LockedAt   *time.Time         `json:"locked_at,omitempty"`
}

// CloseTask is one checklist item of a period close.
type CloseTask struct {
	TaskID        string          `json:"task_id"`
	TenantID      string          `json:"tenant_id"`
	EntityCode    string          `json:"entity_code"`
	PeriodID      string          `json:"period_id"`
	Title         string          `json:"title"`
	AssignedTo    string          `json:"assigned_to,omitempty"`
	Status        CloseTaskStatus `json:"status"`
	BlockedReason string          `json:"blocked_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedBy   string          `json:"completed_by,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// OperationResult is the structured outcome returned across every
// tool-facing and ledger boundary; callers branch on Success rather than
// catching faults.
type OperationResult struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message,omitempty"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

// Ok returns a successful result with an optional message.
func Ok(message string) OperationResult {
	return OperationResult{Success: true, Message: message}
}

// Fail returns a failed result with a message.
func Fail(message string) OperationResult {
	return OperationResult{Success: false, Message: message}
}

// Invalid returns a failed result carrying validation errors.
func Invalid(message string, errs ...string) OperationResult {
	return OperationResult{Success: false, Message: message, ValidationErrors: errs}
}
