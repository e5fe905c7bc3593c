package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine evaluates the tool-call rego policy. It decides allow vs block;
// approval routing is the risk gate's job, not the policy's.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy.decision"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// PolicyInput is the document handed to the rego query.
type PolicyInput struct {
	ToolName string                 `json:"tool_name"`
	TenantID string                 `json:"tenant_id"`
	RiskTier string                 `json:"risk_tier"`
	Args     map[string]interface{} `json:"args"`
}

// Evaluate returns the policy decision ("allow" or "block") and an optional
// reason. An absent result defaults to allow; the shipped policies always
// define a default.
func (e *Engine) Evaluate(ctx context.Context, input PolicyInput) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "allow", "default", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]interface{}:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			decision = "allow"
		}
		return decision, reason, nil
	default:
		return "allow", "unexpected return type", nil
	}
}

// DefaultPolicy allows every tool call; blocking is opt-in per deployment.
const DefaultPolicy = `
package tool_policy

default decision = "allow"

# Example: refuse period close outside business hours
# decision = "block" {
# 	input.tool_name == "period.close"
# }
`
