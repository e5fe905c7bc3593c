package tools

import (
	"encoding/json"

	"github.com/finagent/orchestrator/internal/domain"
)

// BuiltinCatalog is the fixed in-process tool catalog. Risk tiers decide
// whether a call auto-executes or waits for a reviewer.
func BuiltinCatalog() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        "kb.search",
			Description: "Search the tenant knowledge base for relevant passages.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"top_k":{"type":"integer"}},"required":["query"]}`),
			Category:    "knowledge",
			RiskTier:    domain.RiskTierLow,
			Tags:        []string{"read-only"},
		},
		{
			Name:        "gl.query",
			Description: "Query general-ledger balances and transactions.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"account_code":{"type":"string"},"period":{"type":"string"}},"required":["account_code"]}`),
			Category:    "ledger",
			RiskTier:    domain.RiskTierLow,
			Tags:        []string{"read-only", "finance"},
		},
		{
			Name:        "spreadsheet.generate",
			Description: "Generate a spreadsheet artifact from tabular data.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"},"rows":{"type":"array"}},"required":["rows"]}`),
			Category:    "artifacts",
			RiskTier:    domain.RiskTierLow,
			Tags:        []string{"artifact"},
		},
		{
			Name:        "gl.create_journal_entry",
			Description: "Create a draft journal entry in the general ledger.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"description":{"type":"string"},"lines":{"type":"array"}},"required":["lines"]}`),
			Category:    "ledger",
			RiskTier:    domain.RiskTierMedium,
			Tags:        []string{"write", "finance"},
		},
		{
			Name:        "gl.post_journal_entry",
			Description: "Post an approved journal entry to the ledger.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"entry_id":{"type":"string"}},"required":["entry_id"]}`),
			Category:    "ledger",
			RiskTier:    domain.RiskTierHigh,
			Tags:        []string{"write", "finance"},
		},
		{
			Name:        "period.close",
			Description: "Initiate close for a fiscal period.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"period_id":{"type":"string"}},"required":["period_id"]}`),
			Category:    "ledger",
			RiskTier:    domain.RiskTierCritical,
			Tags:        []string{"write", "finance"},
		},
	}
}
