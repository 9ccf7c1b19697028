package boundary

import (
	"fmt"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/google/uuid"
)

// mandateDefaults is a deterministic lookup table keyed by mandate.
// Preservation-style mandates get strictly tighter limits than growth
// mandates on every axis: single-day loss, drawdown, position size, and
// leverage.
type mandateDefaults struct {
	maxDailyLoss   float64 // fraction of capital
	maxDrawdown    float64 // fraction of capital
	maxPosition    float64 // fraction of capital in one asset
	maxLeverage    float64
	perOrderLimit  float64 // account currency; 0 = no extra cap
	allowedClasses string
}

var defaultsByMandate = map[domain.Mandate]mandateDefaults{
	domain.MandateAggressiveGrowth: {
		maxDailyLoss:   0.05,
		maxDrawdown:    0.30,
		maxPosition:    0.20,
		maxLeverage:    2.0,
		allowedClasses: "equity,crypto,forex,options,futures,commodities",
	},
	domain.MandateBalancedGrowth: {
		maxDailyLoss:   0.03,
		maxDrawdown:    0.20,
		maxPosition:    0.15,
		maxLeverage:    1.5,
		allowedClasses: "equity,crypto,commodities",
	},
	domain.MandateWealthBuilding: {
		maxDailyLoss:   0.03,
		maxDrawdown:    0.20,
		maxPosition:    0.12,
		maxLeverage:    1.5,
		allowedClasses: "equity,crypto,commodities",
	},
	domain.MandateIncomeGeneration: {
		maxDailyLoss:   0.02,
		maxDrawdown:    0.15,
		maxPosition:    0.10,
		maxLeverage:    1.0,
		allowedClasses: "equity,commodities",
	},
	domain.MandateRetirement: {
		maxDailyLoss:   0.015,
		maxDrawdown:    0.12,
		maxPosition:    0.08,
		maxLeverage:    1.0,
		allowedClasses: "equity,commodities",
	},
	domain.MandateCapitalPreservation: {
		maxDailyLoss:   0.01,
		maxDrawdown:    0.08,
		maxPosition:    0.05,
		maxLeverage:    1.0,
		allowedClasses: "equity",
	},
	domain.MandateCustom: {
		maxDailyLoss:   0.03,
		maxDrawdown:    0.20,
		maxPosition:    0.15,
		maxLeverage:    1.5,
		allowedClasses: "equity,crypto,commodities",
	},
}

// DefaultsForMandate returns the seed boundary set for a mandate.
// Unknown mandates fall back to the custom row.
func DefaultsForMandate(mandate domain.Mandate) []domain.AgentBoundary {
	d, ok := defaultsByMandate[mandate]
	if !ok {
		d = defaultsByMandate[domain.MandateCustom]
	}

	return []domain.AgentBoundary{
		{
			ID:        newBoundaryID("max-daily-loss"),
			Kind:      domain.BoundaryHard,
			Category:  domain.BoundaryRisk,
			Condition: "daily loss as fraction of capital below threshold",
			Threshold: d.maxDailyLoss,
			Enabled:   true,
		},
		{
			ID:        newBoundaryID("max-drawdown"),
			Kind:      domain.BoundaryHard,
			Category:  domain.BoundaryRisk,
			Condition: "drawdown as fraction of capital below threshold",
			Threshold: d.maxDrawdown,
			Enabled:   true,
		},
		{
			ID:        newBoundaryID("max-leverage"),
			Kind:      domain.BoundaryHard,
			Category:  domain.BoundaryRisk,
			Condition: "leverage below threshold",
			Threshold: d.maxLeverage,
			Enabled:   true,
		},
		{
			ID:        newBoundaryID("max-position-weight"),
			Kind:      domain.BoundaryHard,
			Category:  domain.BoundaryAllocation,
			Condition: "position size as fraction of capital below threshold",
			Threshold: d.maxPosition,
			Enabled:   true,
		},
		{
			ID:        newBoundaryID("allowed-asset-classes"),
			Kind:      domain.BoundaryHard,
			Category:  domain.BoundaryAsset,
			Condition: d.allowedClasses,
			Enabled:   true,
		},
		{
			ID:        newBoundaryID("active-hours"),
			Kind:      domain.BoundarySoft,
			Category:  domain.BoundaryTiming,
			Condition: "inside the agent's active-hours window",
			Enabled:   true,
		},
		{
			ID:        newBoundaryID("order-sanity"),
			Kind:      domain.BoundaryHard,
			Category:  domain.BoundaryExecution,
			Condition: "order amount positive and covered by available cash",
			Threshold: d.perOrderLimit,
			Enabled:   true,
		},
	}
}

// MergeOverrides replaces default boundaries with operator-supplied ones
// that share the same category and condition, and appends the rest.
func MergeOverrides(defaults, overrides []domain.AgentBoundary) []domain.AgentBoundary {
	merged := make([]domain.AgentBoundary, len(defaults))
	copy(merged, defaults)

	for _, o := range overrides {
		if o.ID == "" {
			o.ID = newBoundaryID(string(o.Category))
		}
		replaced := false
		for i := range merged {
			if merged[i].Category == o.Category && merged[i].Condition == o.Condition {
				merged[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, o)
		}
	}

	return merged
}

// CarryViolations copies violation counters from a previous boundary set
// onto a freshly merged one, matched on category and condition. An operator
// update replaces boundary definitions but never resets the audit trail.
func CarryViolations(merged, previous []domain.AgentBoundary) {
	for i := range merged {
		for _, p := range previous {
			if p.Category != merged[i].Category || p.Condition != merged[i].Condition {
				continue
			}
			merged[i].Violations = p.Violations
			if p.LastViolation != nil {
				at := *p.LastViolation
				merged[i].LastViolation = &at
			}
			break
		}
	}
}

func newBoundaryID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}
