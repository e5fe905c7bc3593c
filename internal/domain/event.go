package domain

import "encoding/json"

// Event is an immutable fact appended to the per-run log.
type Event struct {
	EventID  string `json:"event_id"`
	RunID    string `json:"run_id"`
	TenantID string `json:"tenant_id,omitempty"`
	Ts       int64  `json:"ts"` // Unix milliseconds
	Seq      int    `json:"seq"`
	// DedupeKey is deterministic per (work item, emission index) so a
	// redelivered work item re-appends as a no-op.
	DedupeKey string          `json:"dedupe_key,omitempty"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ModelDeltaPayload is the payload for model_delta events.
type ModelDeltaPayload struct {
	Text       string `json:"text"`
	TokenIndex int    `json:"token_index"`
}

// ModelCompletedPayload is the payload for model_completed events.
type ModelCompletedPayload struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// ToolCallRequestedPayload is the payload for tool_call_requested events.
type ToolCallRequestedPayload struct {
	ToolCallID       string          `json:"tool_call_id"`
	ToolName         string          `json:"tool_name"`
	Args             json.RawMessage `json:"args"`
	RiskTier         RiskTier        `json:"risk_tier"`
	IdempotencyKey   string          `json:"idempotency_key"`
	RequiresApproval bool            `json:"requires_approval"`
}

// ApprovalRequestedPayload is the payload for approval_requested events.
type ApprovalRequestedPayload struct {
	ApprovalID     string          `json:"approval_id"`
	ApprovalNumber string          `json:"approval_number,omitempty"`
	ToolCallID     string          `json:"tool_call_id"`
	ToolName       string          `json:"tool_name"`
	Args           json.RawMessage `json:"args,omitempty"`
	RiskTier       RiskTier        `json:"risk_tier"`
}

// AssistantMessagePayload is the payload for assistant_message_created events.
type AssistantMessagePayload struct {
	Content string `json:"content"`
}

// RunFailedPayload is the payload for run_failed events.
type RunFailedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToolCallResultPayload is the payload for tool_call_completed and
// tool_call_failed events.
type ToolCallResultPayload struct {
	ToolCallID     string          `json:"tool_call_id"`
	ToolName       string          `json:"tool_name"`
	IdempotencyKey string          `json:"idempotency_key"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	Duplicate      bool            `json:"duplicate,omitempty"`
}
