package domain

import (
	"encoding/json"
	"time"
)

// Approval is a pending human decision gating a high-risk tool call (or any
// other linked object). Terminal approvals are retained for audit, never
// deleted.
type Approval struct {
	ApprovalID       string         `json:"approval_id"`
	ApprovalNumber   string         `json:"approval_number"`
	TenantID         string         `json:"tenant_id"`
	EntityCode       string         `json:"entity_code,omitempty"`
	RunID            string         `json:"run_id,omitempty"`
	LinkedType       string         `json:"linked_type"` // e.g. tool_call, journal_entry
	LinkedID         string         `json:"linked_id"`
	Amount           *float64       `json:"amount,omitempty"`
	Currency         string         `json:"currency,omitempty"`
	RequestedBy      string         `json:"requested_by"`
	RequestedAt      time.Time      `json:"requested_at"`
	AssignedTo       string         `json:"assigned_to,omitempty"`
	Status           ApprovalStatus `json:"status"`
	Level            int            `json:"level"`
	DecidedBy        string         `json:"decided_by,omitempty"`
	DecidedAt        *time.Time     `json:"decided_at,omitempty"`
	Comments         string         `json:"comments,omitempty"`
	EscalationReason string         `json:"escalation_reason,omitempty"`
	EscalatedAt      *time.Time     `json:"escalated_at,omitempty"`

	// RequestPayload holds the parked work item that re-enters the
	// pipeline if this approval is granted.
	RequestPayload json.RawMessage `json:"request_payload,omitempty"`

	History []ApprovalHistoryEntry `json:"history,omitempty"`
}

// ApprovalHistoryEntry is one immutable record of a state transition on an
// approval.
type ApprovalHistoryEntry struct {
	EntryID    string         `json:"entry_id"`
	ApprovalID string         `json:"approval_id"`
	Action     ApprovalAction `json:"action"`
	Actor      string         `json:"actor"`
	Ts         time.Time      `json:"ts"`
	PrevStatus ApprovalStatus `json:"prev_status"`
	NewStatus  ApprovalStatus `json:"new_status"`
	Comments   string         `json:"comments,omitempty"`
}
