package domain

import "encoding/json"

// ToolDefinition describes one registered tool. Definitions are loaded once
// at process start and never mutated.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Parameters is a JSON-Schema-shaped document, opaque to the
	// orchestrator beyond required-field checks.
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Category   string          `json:"category"`
	RiskTier   RiskTier        `json:"risk_tier"`
	Tags       []string        `json:"tags,omitempty"`
}

// ChatTurn is one message of the conversation handed to the model.
type ChatTurn struct {
	Role       string          `json:"role"` // user, assistant, system, tool
	Content    string          `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"` // set on tool-result turns
	ToolCalls  []AssembledCall `json:"tool_calls,omitempty"`   // set on assistant turns that called tools
}

// AssembledCall is a complete tool call extracted from a model response.
type AssembledCall struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args"`
}
