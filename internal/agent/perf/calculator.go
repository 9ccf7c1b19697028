// Package perf recomputes the derived performance rollup from decision
// history. The rollup carries no state of its own and can be rebuilt at
// any time.
package perf

import (
	"sort"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Calculator derives AgentPerformance from a decision history. Stateless.
type Calculator struct{}

// NewCalculator creates a new performance calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute builds the rollup for one agent from its full decision history.
// Only executed decisions contribute returns; only classified ones count
// toward the win rate.
func (c *Calculator) Compute(agentID string, decisions []*domain.AgentDecision, asOf time.Time) domain.AgentPerformance {
	perf := domain.AgentPerformance{
		AgentID:    agentID,
		ComputedAt: asOf,
	}

	ordered := make([]*domain.AgentDecision, 0, len(decisions))
	for _, d := range decisions {
		if d.AgentID != agentID {
			continue
		}
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	perf.DecisionCount = len(ordered)

	var returns []float64
	var wins, classified int
	var outcomes []float64 // 1 win, 0 loss, in chronological order

	for _, d := range ordered {
		if d.Status != domain.DecisionExecuted || d.Execution == nil {
			continue
		}
		perf.ExecutedCount++

		if n := len(d.Outcome.Checkpoints); n > 0 {
			returns = append(returns, d.Outcome.Checkpoints[n-1].Value)
		}

		switch d.Outcome.Final {
		case domain.OutcomeSuccess, domain.OutcomePartialSuccess:
			classified++
			wins++
			outcomes = append(outcomes, 1)
		case domain.OutcomeNeutral, domain.OutcomePartialFailure, domain.OutcomeFailure:
			classified++
			outcomes = append(outcomes, 0)
		}
	}

	for _, r := range returns {
		perf.TotalReturn += r
	}
	if len(returns) > 0 {
		perf.MeanReturn = stat.Mean(returns, nil)
	}
	if len(returns) > 1 {
		perf.Volatility = stat.StdDev(returns, nil)
	}
	if perf.Volatility > 0 {
		perf.SharpeRatio = perf.MeanReturn / perf.Volatility
	}
	if classified > 0 {
		perf.WinRate = float64(wins) / float64(classified)
	}
	perf.AdaptationScore = adaptationScore(outcomes)

	return perf
}

// adaptationScore compares the win rate of the recent half of classified
// decisions against the early half, mapped onto 0-100 with 50 meaning no
// change. An agent that learns should drift above 50.
func adaptationScore(outcomes []float64) float64 {
	if len(outcomes) < 4 {
		return 50
	}
	mid := len(outcomes) / 2
	early := stat.Mean(outcomes[:mid], nil)
	recent := stat.Mean(outcomes[mid:], nil)

	score := 50 + (recent-early)*50
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
