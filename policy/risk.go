// Package policy decides how a requested tool call may proceed: the risk
// gate maps a tool's declared tier to auto-execute vs approval-required, and
// the rego engine can refuse a call outright.
package policy

import "github.com/finagent/orchestrator/internal/domain"

// RequiresApproval reports whether a tool call at the given tier must be
// approved by a person before it runs. Medium and above always require
// approval; Low never does. Pure and stateless, callable from the worker and
// from any approval-inbox viewer.
func RequiresApproval(tier domain.RiskTier) bool {
	return tier.Rank() >= domain.RiskTierMedium.Rank()
}
