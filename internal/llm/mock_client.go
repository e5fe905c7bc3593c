package llm

import (
	"context"
	"fmt"
	"time"
)

// MockClient replays a scripted stream. With no script it echoes the last
// user message, split into small chunks, the way a streaming provider would.
// Used in tests and in mock mode.
type MockClient struct {
	script []*StreamChunk
	usage  *Usage
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a mock client with default echo behavior.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// NewScriptedClient creates a mock client that replays exactly the given
// chunks and reports the given usage.
func NewScriptedClient(script []*StreamChunk, usage *Usage) *MockClient {
	return &MockClient{script: script, usage: usage}
}

// TextChunk builds a stream chunk carrying one content fragment.
func TextChunk(text string) *StreamChunk {
	return &StreamChunk{
		Object:  "chat.completion.chunk",
		Choices: []Choice{{Delta: &Delta{Content: text}}},
	}
}

// ToolCallChunk builds a stream chunk carrying one tool-call fragment.
func ToolCallChunk(index int, id, name, argsFragment string) *StreamChunk {
	return &StreamChunk{
		Object: "chat.completion.chunk",
		Choices: []Choice{{Delta: &Delta{ToolCalls: []ToolCallDelta{{
			Index:    index,
			ID:       id,
			Type:     "function",
			Function: ToolCallFunction{Name: name, Arguments: argsFragment},
		}}}}},
	}
}

// FinishChunk builds the closing chunk with the provider's finish reason.
func FinishChunk(reason string) *StreamChunk {
	return &StreamChunk{
		Object:  "chat.completion.chunk",
		Choices: []Choice{{Delta: &Delta{}, FinishReason: reason}},
	}
}

// CreateChatCompletion returns the scripted (or echoed) response whole.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	var content string
	err := m.replay(ctx, req, func(chunk *StreamChunk) error {
		for _, ch := range chunk.Choices {
			if ch.Delta != nil {
				content += ch.Delta.Content
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: m.usageFor(req, content),
	}, nil
}

// CreateChatCompletionStream replays the script through the callback.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	var content string
	err := m.replay(ctx, req, func(chunk *StreamChunk) error {
		for _, ch := range chunk.Choices {
			if ch.Delta != nil {
				content += ch.Delta.Content
			}
		}
		return callback(chunk)
	})
	if err != nil {
		return nil, err
	}
	return m.usageFor(req, content), nil
}

func (m *MockClient) replay(ctx context.Context, req *ChatCompletionRequest, emit StreamCallback) error {
	chunks := m.script
	if chunks == nil {
		chunks = m.defaultScript(req)
	}
	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockClient) defaultScript(req *ChatCompletionRequest) []*StreamChunk {
	var lastUser string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = req.Messages[i].Content
			break
		}
	}
	text := "[MOCK] This is a mock response."
	if lastUser != "" {
		text = fmt.Sprintf("[MOCK] Received your message: %q.", truncate(lastUser, 100))
	}

	var chunks []*StreamChunk
	for i := 0; i < len(text); i += 10 {
		end := i + 10
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, TextChunk(text[i:end]))
	}
	return append(chunks, FinishChunk("stop"))
}

func (m *MockClient) usageFor(req *ChatCompletionRequest, content string) *Usage {
	if m.usage != nil {
		return m.usage
	}
	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(msg.Content) / 4
	}
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: len(content) / 4,
		TotalTokens:      prompt + len(content)/4,
	}
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
