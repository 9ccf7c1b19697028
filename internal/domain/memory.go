package domain

import "time"

// Short-term and log window bounds.
const (
	ShortTermObservationLimit = 100
	ShortTermDecisionLimit    = 100
	ObservationLogLimit       = 1000
)

// LearnedPattern is a named outcome pattern with running statistics.
type LearnedPattern struct {
	Name          string    `json:"name"`
	Occurrences   int       `json:"occurrences"`
	AvgReturn     float64   `json:"avg_return"`
	AvgConfidence float64   `json:"avg_confidence"`
	LastSeen      time.Time `json:"last_seen"`
}

// RegimeStats accumulates per-regime decision results.
type RegimeStats struct {
	Observations int     `json:"observations"`
	Decisions    int     `json:"decisions"`
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
	AvgStrength  float64 `json:"avg_strength"`
}

// AssetStats accumulates per-asset decision results.
type AssetStats struct {
	Decisions  int       `json:"decisions"`
	Successes  int       `json:"successes"`
	Failures   int       `json:"failures"`
	NetReturn  float64   `json:"net_return"`
	LastTraded time.Time `json:"last_traded"`
}

// ShortTermMemory is the rolling working set of one agent.
type ShortTermMemory struct {
	Observations []Observation     `json:"observations"`
	DecisionIDs  []string          `json:"decision_ids"`
	Context      map[string]string `json:"context,omitempty"`
	Alerts       []string          `json:"alerts,omitempty"`
}

// LongTermMemory is the durable learned state of one agent.
// Never reset except on agent deletion.
type LongTermMemory struct {
	TotalDecisions   int                     `json:"total_decisions"`
	Successes        int                     `json:"successes"`
	Failures         int                     `json:"failures"`
	PositivePatterns []LearnedPattern        `json:"positive_patterns,omitempty"`
	NegativePatterns []LearnedPattern        `json:"negative_patterns,omitempty"`
	Regimes          map[string]*RegimeStats `json:"regimes,omitempty"`
	Assets           map[string]*AssetStats  `json:"assets,omitempty"`

	// Running mean confidence behind the success and failure counters.
	// Pattern extraction triggers on these, not on individual decisions.
	SuccessConfidenceAvg float64 `json:"success_confidence_avg,omitempty"`
	FailureConfidenceAvg float64 `json:"failure_confidence_avg,omitempty"`
}

// AgentMemory is the full memory of one agent: short-term window,
// long-term statistics, and the capped observation log.
type AgentMemory struct {
	AgentID        string          `json:"agent_id"`
	ShortTerm      ShortTermMemory `json:"short_term"`
	LongTerm       LongTermMemory  `json:"long_term"`
	ObservationLog []Observation   `json:"observation_log,omitempty"`
}

// SuccessRate returns the fraction of classified decisions that succeeded.
// Partial results are excluded from both sides by the learning engine's
// counter updates, so this stays a simple ratio.
func (m *LongTermMemory) SuccessRate() float64 {
	classified := m.Successes + m.Failures
	if classified == 0 {
		return 0
	}
	return float64(m.Successes) / float64(classified)
}

// AgentPerformance is the derived rollup recomputed from memory and the
// decision history. Safe to discard and recompute at any time.
type AgentPerformance struct {
	AgentID         string    `json:"agent_id"`
	TotalReturn     float64   `json:"total_return"`
	MeanReturn      float64   `json:"mean_return"`
	Volatility      float64   `json:"volatility"`
	SharpeRatio     float64   `json:"sharpe_ratio"`
	WinRate         float64   `json:"win_rate"`
	DecisionCount   int       `json:"decision_count"`
	ExecutedCount   int       `json:"executed_count"`
	AdaptationScore float64   `json:"adaptation_score"`
	ComputedAt      time.Time `json:"computed_at"`
}
