// Package decide turns ranked recommendations into structured,
// boundary-checked, autonomy-gated decision records.
package decide

import (
	"fmt"
	"time"

	"github.com/aristath/helmsman/internal/agent/boundary"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TopRecommendations is how many ranked items get formulated per cycle.
const TopRecommendations = 3

// Formulator builds full decision records and gates them through the
// boundary engine and the agent's autonomy level.
type Formulator struct {
	boundaries *boundary.Engine
	log        zerolog.Logger
}

// NewFormulator creates a new decision formulator
func NewFormulator(boundaries *boundary.Engine, log zerolog.Logger) *Formulator {
	return &Formulator{
		boundaries: boundaries,
		log:        log.With().Str("component", "decision_formulator").Logger(),
	}
}

// Formulate builds a decision from one recommendation, runs the boundary
// engine, and applies autonomy gating. The returned decision's status is
// rejected, approved, or pending.
func (f *Formulator) Formulate(cfg *domain.AgentConfig, portfolio domain.PortfolioState, rec domain.Recommendation) *domain.AgentDecision {
	decision := f.build(cfg, portfolio, rec)

	decision.BoundaryChecks = f.boundaries.Check(cfg, portfolio, decision)

	if failing, failed := boundary.HardFailure(decision.BoundaryChecks); failed {
		decision.Status = domain.DecisionRejected
		decision.Reasoning.Summary = fmt.Sprintf("%s [rejected: %s]", decision.Reasoning.Summary, failing.Note)
		return decision
	}

	switch {
	case cfg.Autonomy == domain.AutonomyFull:
		decision.Status = domain.DecisionApproved
	case cfg.Autonomy == domain.AutonomySupervised && decision.Action.Amount < cfg.RequireApprovalAbove:
		decision.Status = domain.DecisionApproved
	default:
		decision.Status = domain.DecisionPending
	}

	return decision
}

// build assembles the decision record itself: action sizing, the reasoning
// block, and the expected-outcome projection.
func (f *Formulator) build(cfg *domain.AgentConfig, portfolio domain.PortfolioState, rec domain.Recommendation) *domain.AgentDecision {
	now := time.Now().UTC()
	decision := &domain.AgentDecision{
		ID:        uuid.NewString(),
		AgentID:   cfg.ID,
		CreatedAt: now,
		Status:    domain.DecisionPending,
	}

	switch rec.Kind {
	case domain.RecommendReduceExposure:
		f.buildReduceExposure(cfg, portfolio, rec, decision)
	default:
		f.buildEntry(cfg, portfolio, rec, decision)
	}

	decision.ConfidenceScore = rec.Confidence
	decision.ConfidenceCategory = domain.CategorizeConfidence(rec.Confidence)
	decision.Reasoning.MandateAlignment = mandateAlignment(cfg.Mandate, decision.Type)

	return decision
}

func (f *Formulator) buildEntry(cfg *domain.AgentConfig, portfolio domain.PortfolioState, rec domain.Recommendation, decision *domain.AgentDecision) {
	opp := rec.Opportunity
	decision.Type = domain.DecisionTypeEntry

	// Size by the capital fraction limit, scaled down for cautious
	// personalities and weak signals.
	base := portfolio.TotalCapital * cfg.Limits.MaxCapitalPerDecision
	scale := (cfg.Personality.RiskTolerance / 100) * (opp.Strength / 100)
	if scale < 0.1 {
		scale = 0.1
	}
	amount := base * scale

	decision.Action = domain.DecisionAction{
		Description: fmt.Sprintf("open %s position in %s (%s)", opp.Direction, opp.Asset, opp.Kind),
		Asset:       opp.Asset,
		Direction:   opp.Direction,
		Amount:      amount,
	}

	expectedGain := amount * opp.ExpectedReturn
	expectedLoss := -amount * opp.ExpectedRisk
	decision.Expected = domain.ExpectedOutcome{
		Probability: rec.Confidence / 100,
		Best: domain.OutcomeScenario{
			Value:       expectedGain * 2,
			Description: "signal plays out beyond the expected move",
		},
		Base: domain.OutcomeScenario{
			Value:       expectedGain,
			Description: fmt.Sprintf("expected %.1f%% move captured", opp.ExpectedReturn*100),
		},
		Worst: domain.OutcomeScenario{
			Value:       expectedLoss,
			Description: "signal fails and the stop is hit",
		},
		Horizon: horizonFromTimeframe(opp.Timeframe),
	}

	decision.Reasoning = domain.DecisionReasoning{
		Summary: fmt.Sprintf("%s signal on %s with confidence %.0f; committing %.1f%% of capital",
			opp.Kind, opp.Asset, rec.Confidence, 100*amount/portfolio.TotalCapital),
		Factors: []domain.ReasoningFactor{
			{Name: "signal_strength", Weight: 0.4, Detail: fmt.Sprintf("strength %.0f from %s", opp.Strength, opp.Source)},
			{Name: "signal_confidence", Weight: 0.4, Detail: fmt.Sprintf("confidence %.0f", opp.Confidence)},
			{Name: "risk_tolerance", Weight: 0.2, Detail: fmt.Sprintf("personality risk tolerance %.0f", cfg.Personality.RiskTolerance)},
		},
		Alternatives: []domain.RejectedAlternative{
			{Description: "stay flat", Reason: "signal confidence clears the agent's action floor"},
			{Description: "commit full per-decision capital", Reason: "signal strength does not justify maximum size"},
		},
		Risks: []domain.IdentifiedRisk{
			{Description: fmt.Sprintf("expected downside %.2f if the signal fails", expectedLoss), Mitigation: "position sized to the per-decision capital fraction"},
		},
	}
}

func (f *Formulator) buildReduceExposure(cfg *domain.AgentConfig, portfolio domain.PortfolioState, rec domain.Recommendation, decision *domain.AgentDecision) {
	risk := rec.Risk
	decision.Type = domain.DecisionTypeReduceExposure

	// Trim the largest position by half.
	asset, weight := largestPosition(portfolio)
	amount := portfolio.TotalCapital * weight * 0.5

	decision.Action = domain.DecisionAction{
		Description: fmt.Sprintf("reduce exposure: trim %s by half in response to %s", asset, risk.Kind),
		Asset:       asset,
		Direction:   domain.DirectionShort,
		Amount:      amount,
	}

	decision.Expected = domain.ExpectedOutcome{
		Probability: 0.8,
		Best: domain.OutcomeScenario{
			Value:       amount * 0.02,
			Description: "risk materializes and the trim avoids the drawdown",
		},
		Base: domain.OutcomeScenario{
			Value:       0,
			Description: "exposure reduced at roughly flat cost",
		},
		Worst: domain.OutcomeScenario{
			Value:       -amount * 0.01,
			Description: "risk fades and re-entry costs a spread",
		},
		Horizon: 24 * time.Hour,
	}

	decision.Reasoning = domain.DecisionReasoning{
		Summary: fmt.Sprintf("defensive trim driven by %s (severity %.0f)", risk.Kind, risk.Severity),
		Factors: []domain.ReasoningFactor{
			{Name: "risk_severity", Weight: 0.7, Detail: risk.Description},
			{Name: "mitigation", Weight: 0.3, Detail: risk.Mitigation},
		},
		Alternatives: []domain.RejectedAlternative{
			{Description: "liquidate entirely", Reason: "severity does not warrant a full exit"},
			{Description: "hold and monitor", Reason: "severity exceeds the agent's passive-monitoring bar"},
		},
		Risks: []domain.IdentifiedRisk{
			{Description: "risk condition fades and the trim sacrifices upside", Mitigation: "re-entry allowed next cycle if signals persist"},
		},
	}
}

// mandateAlignment renders the one-line statement connecting the decision
// type to the agent's mandate.
func mandateAlignment(mandate domain.Mandate, decisionType domain.DecisionType) string {
	switch decisionType {
	case domain.DecisionTypeReduceExposure, domain.DecisionTypeExit:
		return fmt.Sprintf("capital protection serves the %s mandate directly", mandate)
	default:
		switch mandate {
		case domain.MandateCapitalPreservation, domain.MandateRetirement:
			return fmt.Sprintf("entry sized conservatively to respect the %s mandate", mandate)
		default:
			return fmt.Sprintf("growth-seeking entry consistent with the %s mandate", mandate)
		}
	}
}

func horizonFromTimeframe(timeframe string) time.Duration {
	switch timeframe {
	case "1d":
		return 24 * time.Hour
	case "2d":
		return 48 * time.Hour
	case "3d":
		return 72 * time.Hour
	case "5d":
		return 5 * 24 * time.Hour
	case "10d":
		return 10 * 24 * time.Hour
	default:
		return 72 * time.Hour
	}
}

func largestPosition(portfolio domain.PortfolioState) (string, float64) {
	asset, weight := "", 0.0
	for a, w := range portfolio.PositionWeights {
		if w > weight {
			asset, weight = a, w
		}
	}
	return asset, weight
}
