package domain

import (
	"encoding/json"
	"fmt"
)

// WorkPayload is the sealed set of payload shapes a RunWorkItem can carry.
// The concrete shape must match the item's WorkType; consumers switch on the
// concrete type and fail the item on a mismatch rather than guessing.
type WorkPayload interface {
	workType() WorkType
}

// LlmCallPayload asks the worker to run one model turn.
type LlmCallPayload struct {
	Model     string       `json:"model"`
	Messages  []ChatTurn   `json:"messages"`
	ToolNames []string     `json:"tool_names,omitempty"`
	StepID    string       `json:"step_id,omitempty"`
	Options   ModelOptions `json:"options,omitempty"`
}

// ModelOptions carries per-call sampling settings.
type ModelOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

func (LlmCallPayload) workType() WorkType { return WorkTypeExecuteLlmCall }

// ToolCallPayload asks the worker to execute one tool call.
type ToolCallPayload struct {
	ToolCallID     string          `json:"tool_call_id"`
	ToolName       string          `json:"tool_name"`
	Args           json.RawMessage `json:"args"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (ToolCallPayload) workType() WorkType { return WorkTypeExecuteToolCall }

// RunWorkItem is one queued unit of orchestration work.
type RunWorkItem struct {
	WorkItemID    string      `json:"work_item_id"`
	RunID         string      `json:"run_id"`
	TenantID      string      `json:"tenant_id"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Type          WorkType    `json:"type"`
	Payload       WorkPayload `json:"-"`
}

// workItemEnvelope is the wire shape; payload dispatch is keyed on Type.
type workItemEnvelope struct {
	WorkItemID    string          `json:"work_item_id"`
	RunID         string          `json:"run_id"`
	TenantID      string          `json:"tenant_id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Type          WorkType        `json:"type"`
	Payload       json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the item with its payload under the type tag.
func (w RunWorkItem) MarshalJSON() ([]byte, error) {
	if w.Payload == nil {
		return nil, fmt.Errorf("work item %s has no payload", w.WorkItemID)
	}
	if got := w.Payload.workType(); got != w.Type {
		return nil, fmt.Errorf("work item %s payload is %s but type is %s", w.WorkItemID, got, w.Type)
	}
	payload, err := json.Marshal(w.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(workItemEnvelope{
		WorkItemID:    w.WorkItemID,
		RunID:         w.RunID,
		TenantID:      w.TenantID,
		CorrelationID: w.CorrelationID,
		Type:          w.Type,
		Payload:       payload,
	})
}

// UnmarshalJSON decodes the payload shape dictated by the type tag. An
// unknown type or a payload that does not parse as the expected shape is an
// error; the caller fails the item.
func (w *RunWorkItem) UnmarshalJSON(data []byte) error {
	var env workItemEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to unmarshal work item envelope: %w", err)
	}

	var payload WorkPayload
	switch env.Type {
	case WorkTypeExecuteLlmCall:
		var p LlmCallPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("work item %s: invalid llm call payload: %w", env.WorkItemID, err)
		}
		payload = p
	case WorkTypeExecuteToolCall:
		var p ToolCallPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("work item %s: invalid tool call payload: %w", env.WorkItemID, err)
		}
		payload = p
	default:
		return fmt.Errorf("work item %s: unknown work type %q", env.WorkItemID, env.Type)
	}

	w.WorkItemID = env.WorkItemID
	w.RunID = env.RunID
	w.TenantID = env.TenantID
	w.CorrelationID = env.CorrelationID
	w.Type = env.Type
	w.Payload = payload
	return nil
}

// LlmCall returns the payload as an LlmCallPayload, or an error when the
// item carries something else.
func (w *RunWorkItem) LlmCall() (LlmCallPayload, error) {
	p, ok := w.Payload.(LlmCallPayload)
	if !ok {
		return LlmCallPayload{}, fmt.Errorf("work item %s: expected %s payload, got %T", w.WorkItemID, WorkTypeExecuteLlmCall, w.Payload)
	}
	return p, nil
}

// ToolCall returns the payload as a ToolCallPayload, or an error when the
// item carries something else.
func (w *RunWorkItem) ToolCall() (ToolCallPayload, error) {
	p, ok := w.Payload.(ToolCallPayload)
	if !ok {
		return ToolCallPayload{}, fmt.Errorf("work item %s: expected %s payload, got %T", w.WorkItemID, WorkTypeExecuteToolCall, w.Payload)
	}
	return p, nil
}

// WorkItemResult is the return contract between worker and queue harness.
// It is never persisted.
type WorkItemResult struct {
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Retryable bool          `json:"retryable,omitempty"`
	FollowUps []RunWorkItem `json:"follow_ups,omitempty"`
}
