package policy

import (
	"testing"

	"github.com/finagent/orchestrator/internal/domain"
)

func TestRequiresApproval(t *testing.T) {
	cases := []struct {
		tier domain.RiskTier
		want bool
	}{
		{domain.RiskTierLow, false},
		{domain.RiskTierMedium, true},
		{domain.RiskTierHigh, true},
		{domain.RiskTierCritical, true},
		{domain.RiskTier("BOGUS"), false},
		{domain.RiskTier(""), false},
	}
	for _, tc := range cases {
		if got := RequiresApproval(tc.tier); got != tc.want {
			t.Errorf("RequiresApproval(%q) = %v, want %v", tc.tier, got, tc.want)
		}
	}
}
