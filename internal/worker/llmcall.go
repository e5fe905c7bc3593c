package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/llm"
	"github.com/finagent/orchestrator/policy"
)

// callBuilder accumulates the fragments of one in-flight tool call, keyed
// by the provider-assigned index. It exists only for the duration of one
// handleLlmCall invocation.
type callBuilder struct {
	id   string
	name string
	args []byte
}

func (b *callBuilder) complete() bool { return b.name != "" }

func (w *Worker) handleLlmCall(ctx context.Context, item domain.RunWorkItem, p domain.LlmCallPayload, em *emitter) *domain.WorkItemResult {
	req := &llm.ChatCompletionRequest{
		Model:       p.Model,
		Messages:    translateMessages(p.Messages),
		Tools:       w.resolveTools(p.ToolNames),
		Temperature: p.Options.Temperature,
		MaxTokens:   p.Options.MaxTokens,
	}

	var (
		fullText       string
		tokenIndex     int
		builders       = map[int]*callBuilder{}
		providerFinish string
	)

	usage, err := w.llmClient.CreateChatCompletionStream(ctx, req, func(chunk *llm.StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				providerFinish = choice.FinishReason
			}
			if choice.Delta == nil {
				continue
			}
			if choice.Delta.Content != "" {
				if err := em.emit(ctx, domain.EventTypeModelDelta, domain.ModelDeltaPayload{
					Text:       choice.Delta.Content,
					TokenIndex: tokenIndex,
				}); err != nil {
					return err
				}
				tokenIndex++
				fullText += choice.Delta.Content
			}
			for _, tc := range choice.Delta.ToolCalls {
				b := builders[tc.Index]
				if b == nil {
					b = &callBuilder{}
					builders[tc.Index] = b
				}
				if tc.ID != "" {
					b.id = tc.ID
				}
				if tc.Function.Name != "" {
					b.name = tc.Function.Name
				}
				b.args = append(b.args, tc.Function.Arguments...)
			}
		}
		return nil
	})
	if err != nil {
		return w.fail(ctx, em, "model_error", fmt.Errorf("model call failed: %w", err), true)
	}

	calls := assembleCalls(item.RunID, builders)

	finishReason := providerFinish
	if finishReason == "" {
		finishReason = "stop"
	}
	if len(calls) > 0 {
		finishReason = "tool_calls"
	}

	completed := domain.ModelCompletedPayload{
		Content:      fullText,
		FinishReason: finishReason,
	}
	if usage != nil {
		completed.InputTokens = usage.PromptTokens
		completed.OutputTokens = usage.CompletionTokens
	}
	if err := em.emit(ctx, domain.EventTypeModelCompleted, completed); err != nil {
		return w.fail(ctx, em, "event_log_error", err, true)
	}

	if len(calls) == 0 {
		// The run pauses for a human turn; it does not auto-continue.
		if err := em.emit(ctx, domain.EventTypeAssistantMessageCreated, domain.AssistantMessagePayload{Content: fullText}); err != nil {
			return w.fail(ctx, em, "event_log_error", err, true)
		}
		if err := em.emit(ctx, domain.EventTypeRunWaitingForInput, struct{}{}); err != nil {
			return w.fail(ctx, em, "event_log_error", err, true)
		}
		return &domain.WorkItemResult{Success: true}
	}

	var followUps []domain.RunWorkItem
	for _, call := range calls {
		items, err := w.routeToolCall(ctx, item, call, em)
		if err != nil {
			// Routing faults are store-shaped (event append, approval
			// insert); redelivery is deduped, so retry is safe.
			return w.fail(ctx, em, "tool_routing_error", err, true)
		}
		followUps = append(followUps, items...)
	}

	return &domain.WorkItemResult{Success: true, FollowUps: followUps}
}

// routeToolCall decides one assembled call's path: blocked, parked for
// approval, or queued for execution.
func (w *Worker) routeToolCall(ctx context.Context, item domain.RunWorkItem, call domain.AssembledCall, em *emitter) ([]domain.RunWorkItem, error) {
	tier := domain.RiskTierLow
	if def, ok := w.registry.Get(call.ToolName); ok {
		tier = def.RiskTier
	}
	idempotencyKey := fmt.Sprintf("%s:%s", item.RunID, call.ToolCallID)
	requiresApproval := policy.RequiresApproval(tier)

	if err := em.emit(ctx, domain.EventTypeToolCallRequested, domain.ToolCallRequestedPayload{
		ToolCallID:       call.ToolCallID,
		ToolName:         call.ToolName,
		Args:             call.Args,
		RiskTier:         tier,
		IdempotencyKey:   idempotencyKey,
		RequiresApproval: requiresApproval,
	}); err != nil {
		return nil, err
	}

	if blocked, reason := w.policyBlocks(ctx, item, call, tier); blocked {
		if err := em.emit(ctx, domain.EventTypeToolCallFailed, domain.ToolCallResultPayload{
			ToolCallID:     call.ToolCallID,
			ToolName:       call.ToolName,
			IdempotencyKey: idempotencyKey,
			Error:          fmt.Sprintf("blocked by policy: %s", reason),
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if requiresApproval {
		approval, err := w.approvals.OpenForToolCall(ctx, item, call, tier)
		if err != nil {
			return nil, fmt.Errorf("failed to open approval for %s: %w", call.ToolCallID, err)
		}
		if err := em.emit(ctx, domain.EventTypeApprovalRequested, domain.ApprovalRequestedPayload{
			ApprovalID:     approval.ApprovalID,
			ApprovalNumber: approval.ApprovalNumber,
			ToolCallID:     call.ToolCallID,
			ToolName:       call.ToolName,
			Args:           call.Args,
			RiskTier:       tier,
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	followUp := domain.RunWorkItem{
		WorkItemID:    "wi_" + uuid.New().String()[:8],
		RunID:         item.RunID,
		TenantID:      item.TenantID,
		CorrelationID: item.CorrelationID,
		Type:          domain.WorkTypeExecuteToolCall,
		Payload: domain.ToolCallPayload{
			ToolCallID:     call.ToolCallID,
			ToolName:       call.ToolName,
			Args:           call.Args,
			IdempotencyKey: idempotencyKey,
		},
	}
	return []domain.RunWorkItem{followUp}, nil
}

func (w *Worker) policyBlocks(ctx context.Context, item domain.RunWorkItem, call domain.AssembledCall, tier domain.RiskTier) (bool, string) {
	if w.policy == nil {
		return false, ""
	}

	input := policy.PolicyInput{
		ToolName: call.ToolName,
		TenantID: item.TenantID,
		RiskTier: string(tier),
		Args:     map[string]interface{}{},
	}
	if len(call.Args) > 0 {
		var args map[string]interface{}
		if err := json.Unmarshal(call.Args, &args); err == nil {
			input.Args = args
		}
	}

	decision, reason, err := w.policy.Evaluate(ctx, input)
	if err != nil {
		log.Printf("WARN: policy evaluation failed for %s: %v", call.ToolName, err)
		return false, ""
	}
	return decision == "block", reason
}

// resolveTools maps requested tool names to wire definitions. An absent
// tool is dropped with a warning, not fatal.
func (w *Worker) resolveTools(names []string) []llm.Tool {
	var out []llm.Tool
	for _, name := range names {
		def, ok := w.registry.Get(name)
		if !ok {
			log.Printf("WARN: tool %q not in registry, dropping from model call", name)
			continue
		}
		var params interface{}
		if len(def.Parameters) > 0 {
			params = json.RawMessage(def.Parameters)
		}
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// translateMessages converts conversation turns into the wire shape: tool
// results keep their tool-call-id back-reference, assistant turns keep
// their call records attached.
func translateMessages(turns []domain.ChatTurn) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(turns))
	for _, turn := range turns {
		msg := llm.ChatMessage{
			Role:    normalizeRole(turn.Role),
			Content: turn.Content,
		}
		if turn.ToolCallID != "" {
			msg.Role = "tool"
			msg.ToolCallID = turn.ToolCallID
		}
		for _, call := range turn.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:   call.ToolCallID,
				Type: "function",
				Function: llm.ToolCallFunction{
					Name:      call.ToolName,
					Arguments: string(call.Args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func normalizeRole(role string) string {
	switch role {
	case "user", "assistant", "system", "tool":
		return role
	case "":
		return "user"
	default:
		return "user"
	}
}

// assembleCalls finalizes in-progress builders into immutable tool-call
// records, in provider index order. A call is complete only once a name was
// observed for its index.
func assembleCalls(runID string, builders map[int]*callBuilder) []domain.AssembledCall {
	indexes := make([]int, 0, len(builders))
	for idx := range builders {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var calls []domain.AssembledCall
	for _, idx := range indexes {
		b := builders[idx]
		if !b.complete() {
			log.Printf("WARN: run %s: dropping incomplete tool call fragment at index %d", runID, idx)
			continue
		}
		id := b.id
		if id == "" {
			id = "tc_" + uuid.New().String()[:8]
		}
		args := b.args
		if len(args) == 0 {
			args = []byte("{}")
		}
		calls = append(calls, domain.AssembledCall{
			ToolCallID: id,
			ToolName:   b.name,
			Args:       json.RawMessage(args),
		})
	}
	return calls
}
