package decide

import (
	"strings"
	"testing"

	"github.com/aristath/helmsman/internal/agent/boundary"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(autonomy domain.AutonomyLevel) *domain.AgentConfig {
	return &domain.AgentConfig{
		ID:       "agent-1",
		Name:     "test agent",
		Mandate:  domain.MandateBalancedGrowth,
		Autonomy: autonomy,
		Personality: domain.PersonalityProfile{
			RiskTolerance: 50,
			Patience:      50,
			Contrarianism: 50,
			Adaptability:  50,
		},
		Limits: domain.OperatingLimits{
			MaxCapitalPerDecision: 0.10,
			MinConfidenceToAct:    40,
			MaxDecisionsPerDay:    10,
			MaxDrawdown:           0.25,
		},
		RequireApprovalAbove: 5000,
		Boundaries:           boundary.DefaultsForMandate(domain.MandateBalancedGrowth),
	}
}

func testPortfolio() domain.PortfolioState {
	return domain.PortfolioState{
		TotalCapital:  100_000,
		CashAvailable: 60_000,
		PositionWeights: map[string]float64{
			"AAPL": 0.10,
			"MSFT": 0.04,
		},
		DailyLoss: 0.0,
		Drawdown:  0.02,
		Leverage:  1.0,
	}
}

func entryRecommendation(confidence float64) domain.Recommendation {
	return domain.Recommendation{
		Kind:       domain.RecommendEntry,
		Priority:   60,
		Confidence: confidence,
		Opportunity: &domain.OpportunitySignal{
			Asset:          "NVDA",
			Kind:           domain.SignalMomentum,
			Direction:      domain.DirectionLong,
			Strength:       80,
			Confidence:     confidence,
			Timeframe:      "3d",
			ExpectedReturn: 0.04,
			ExpectedRisk:   0.02,
			Source:         "momentum_roc",
		},
		Rationale: "momentum signal",
	}
}

func TestFormulate_FullAutonomyApproves(t *testing.T) {
	f := NewFormulator(boundary.NewEngine(zerolog.Nop()), zerolog.Nop())
	cfg := testConfig(domain.AutonomyFull)

	d := f.Formulate(cfg, testPortfolio(), entryRecommendation(80))
	require.NotNil(t, d)

	assert.Equal(t, domain.DecisionApproved, d.Status)
	assert.Equal(t, domain.DecisionTypeEntry, d.Type)
	assert.Equal(t, "NVDA", d.Action.Asset)
	assert.Equal(t, domain.DirectionLong, d.Action.Direction)

	// capital fraction 0.10 of 100k, scaled by tolerance 0.5 and strength 0.8
	assert.InDelta(t, 4000, d.Action.Amount, 0.01)

	assert.Equal(t, 80.0, d.ConfidenceScore)
	assert.Equal(t, domain.ConfidenceHigh, d.ConfidenceCategory)
	assert.NotEmpty(t, d.Reasoning.Summary)
	assert.NotEmpty(t, d.Reasoning.Factors)
	assert.NotEmpty(t, d.Reasoning.Alternatives)
	assert.NotEmpty(t, d.Reasoning.MandateAlignment)
	assert.NotEmpty(t, d.BoundaryChecks)
	assert.Greater(t, d.Expected.Base.Value, 0.0)
	assert.Less(t, d.Expected.Worst.Value, 0.0)
}

func TestFormulate_SupervisedGatesOnAmount(t *testing.T) {
	f := NewFormulator(boundary.NewEngine(zerolog.Nop()), zerolog.Nop())
	cfg := testConfig(domain.AutonomySupervised)

	// 4000 sized decision sits below the 5000 approval threshold.
	small := f.Formulate(cfg, testPortfolio(), entryRecommendation(80))
	assert.Equal(t, domain.DecisionApproved, small.Status)

	cfg.RequireApprovalAbove = 1000
	large := f.Formulate(cfg, testPortfolio(), entryRecommendation(80))
	assert.Equal(t, domain.DecisionPending, large.Status)
}

func TestFormulate_AdvisoryAlwaysPends(t *testing.T) {
	f := NewFormulator(boundary.NewEngine(zerolog.Nop()), zerolog.Nop())
	cfg := testConfig(domain.AutonomyAdvisory)

	d := f.Formulate(cfg, testPortfolio(), entryRecommendation(95))
	assert.Equal(t, domain.DecisionPending, d.Status)
}

func TestFormulate_HardBoundaryFailureRejects(t *testing.T) {
	f := NewFormulator(boundary.NewEngine(zerolog.Nop()), zerolog.Nop())
	cfg := testConfig(domain.AutonomyFull)

	portfolio := testPortfolio()
	portfolio.CashAvailable = 100 // cannot cover the sized order

	d := f.Formulate(cfg, portfolio, entryRecommendation(80))
	assert.Equal(t, domain.DecisionRejected, d.Status)
	assert.True(t, strings.Contains(d.Reasoning.Summary, "rejected"))

	failing, failed := boundary.HardFailure(d.BoundaryChecks)
	assert.True(t, failed)
	assert.False(t, failing.Passed)
}

func TestFormulate_ReduceExposureTrimsLargestPosition(t *testing.T) {
	f := NewFormulator(boundary.NewEngine(zerolog.Nop()), zerolog.Nop())
	cfg := testConfig(domain.AutonomyFull)

	rec := domain.Recommendation{
		Kind:       domain.RecommendReduceExposure,
		Priority:   190,
		Confidence: 90,
		Risk: &domain.RiskAssessment{
			Kind:        "elevated_volatility",
			Severity:    90,
			Description: "annualized volatility above tolerance",
			Mitigation:  "reduce position sizes",
		},
		Rationale: "risk mitigation",
	}

	d := f.Formulate(cfg, testPortfolio(), rec)
	require.NotNil(t, d)

	assert.Equal(t, domain.DecisionTypeReduceExposure, d.Type)
	assert.Equal(t, "AAPL", d.Action.Asset) // largest weight
	// half of the 10% AAPL position on 100k capital
	assert.InDelta(t, 5000, d.Action.Amount, 0.01)
	assert.Equal(t, domain.DecisionApproved, d.Status)
}
