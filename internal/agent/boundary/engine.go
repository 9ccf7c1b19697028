// Package boundary evaluates proposed decisions against an agent's
// hard and soft limits.
package boundary

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// Engine runs every enabled boundary of an agent against a proposed
// decision and the agent's live portfolio state. Each category has a real
// evaluator; an unknown category fails closed for hard boundaries.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new boundary engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "boundary_engine").Logger(),
	}
}

// Check evaluates all enabled boundaries. Evaluation is read-only: the
// violation counters live on the registry's copy of the config, so the
// caller persists them from the returned checks under the registry lock.
func (e *Engine) Check(cfg *domain.AgentConfig, portfolio domain.PortfolioState, decision *domain.AgentDecision) []domain.BoundaryCheck {
	checks := make([]domain.BoundaryCheck, 0, len(cfg.Boundaries))

	for i := range cfg.Boundaries {
		b := &cfg.Boundaries[i]
		if !b.Enabled {
			continue
		}

		passed, note := e.evaluate(b, cfg, portfolio, decision)
		if !passed {
			e.log.Warn().
				Str("agent", cfg.ID).
				Str("boundary", b.ID).
				Str("category", string(b.Category)).
				Str("kind", string(b.Kind)).
				Str("note", note).
				Msg("Boundary violated")
		}

		checks = append(checks, domain.BoundaryCheck{
			BoundaryID: b.ID,
			Category:   b.Category,
			Kind:       b.Kind,
			Passed:     passed,
			Note:       note,
		})
	}

	return checks
}

// HardFailure reports whether any failed check belongs to a hard boundary.
func HardFailure(checks []domain.BoundaryCheck) (domain.BoundaryCheck, bool) {
	for _, c := range checks {
		if !c.Passed && c.Kind == domain.BoundaryHard {
			return c, true
		}
	}
	return domain.BoundaryCheck{}, false
}

func (e *Engine) evaluate(b *domain.AgentBoundary, cfg *domain.AgentConfig, portfolio domain.PortfolioState, decision *domain.AgentDecision) (bool, string) {
	switch b.Category {
	case domain.BoundaryRisk:
		return evaluateRisk(b, portfolio)
	case domain.BoundaryAllocation:
		return evaluateAllocation(b, portfolio, decision)
	case domain.BoundaryAsset:
		return evaluateAsset(b, decision)
	case domain.BoundaryTiming:
		return evaluateTiming(b, cfg, time.Now().UTC())
	case domain.BoundaryExecution:
		return evaluateExecution(b, portfolio, decision)
	case domain.BoundaryCustom:
		// Custom boundaries compare the decision amount against the
		// threshold; operators define the semantics in the condition text.
		if decision.Action.Amount > b.Threshold {
			return false, fmt.Sprintf("amount %.2f exceeds custom threshold %.2f", decision.Action.Amount, b.Threshold)
		}
		return true, ""
	default:
		// Unknown category: fail closed so a typo never silently
		// disables a hard limit.
		return false, fmt.Sprintf("no evaluator for category %q", b.Category)
	}
}

// evaluateRisk checks portfolio-level loss limits: daily loss, drawdown,
// and leverage, depending on the condition text.
func evaluateRisk(b *domain.AgentBoundary, portfolio domain.PortfolioState) (bool, string) {
	cond := strings.ToLower(b.Condition)
	switch {
	case strings.Contains(cond, "drawdown"):
		if portfolio.Drawdown > b.Threshold {
			return false, fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", portfolio.Drawdown*100, b.Threshold*100)
		}
	case strings.Contains(cond, "leverage"):
		if portfolio.Leverage > b.Threshold {
			return false, fmt.Sprintf("leverage %.2fx exceeds limit %.2fx", portfolio.Leverage, b.Threshold)
		}
	default: // daily loss
		if portfolio.DailyLoss > b.Threshold {
			return false, fmt.Sprintf("daily loss %.2f%% exceeds limit %.2f%%", portfolio.DailyLoss*100, b.Threshold*100)
		}
	}
	return true, ""
}

// evaluateAllocation checks the position weight the order would leave
// behind as a fraction of total capital. Entries grow the existing weight;
// exits and trims shrink it, so a defensive reduction passes even when the
// position already sits at its limit.
func evaluateAllocation(b *domain.AgentBoundary, portfolio domain.PortfolioState, decision *domain.AgentDecision) (bool, string) {
	if portfolio.TotalCapital <= 0 {
		return false, "portfolio capital unknown, cannot size position"
	}
	delta := decision.Action.Amount / portfolio.TotalCapital
	existing := portfolio.PositionWeights[decision.Action.Asset]

	switch decision.Type {
	case domain.DecisionTypeReduceExposure, domain.DecisionTypeExit:
		delta = -delta
	}

	projected := existing + delta
	if projected < 0 {
		// Over-trimming flips the book into a short of that size.
		projected = -projected
	}
	if projected > b.Threshold {
		return false, fmt.Sprintf("position weight %.2f%% after the order (%.2f%% existing %+.2f%% proposed) exceeds limit %.2f%%",
			projected*100, existing*100, delta*100, b.Threshold*100)
	}
	return true, ""
}

// evaluateAsset enforces asset-class restrictions. The condition lists the
// allowed classes, comma separated (e.g. "equity,crypto").
func evaluateAsset(b *domain.AgentBoundary, decision *domain.AgentDecision) (bool, string) {
	if decision.Action.Asset == "" {
		return true, "" // hold/no-asset decisions have nothing to restrict
	}
	class := domain.InferAssetClass(decision.Action.Asset)
	for _, allowed := range strings.Split(b.Condition, ",") {
		if strings.EqualFold(strings.TrimSpace(allowed), string(class)) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("asset class %q not in allowed set %q", class, b.Condition)
}

// evaluateTiming blocks execution outside the agent's active-hours window.
func evaluateTiming(b *domain.AgentBoundary, cfg *domain.AgentConfig, now time.Time) (bool, string) {
	if !cfg.ActiveHours.Contains(now) {
		return false, fmt.Sprintf("outside active hours %02d:00-%02d:00 UTC", cfg.ActiveHours.StartHour, cfg.ActiveHours.EndHour)
	}
	return true, ""
}

// evaluateExecution sanity-checks the order itself: a positive amount that
// the available cash can cover (for long entries).
func evaluateExecution(b *domain.AgentBoundary, portfolio domain.PortfolioState, decision *domain.AgentDecision) (bool, string) {
	if decision.Action.Amount <= 0 {
		return false, "order amount must be positive"
	}
	if decision.Action.Direction == domain.DirectionLong && decision.Action.Amount > portfolio.CashAvailable {
		return false, fmt.Sprintf("order amount %.2f exceeds available cash %.2f", decision.Action.Amount, portfolio.CashAvailable)
	}
	if b.Threshold > 0 && decision.Action.Amount > b.Threshold {
		return false, fmt.Sprintf("order amount %.2f exceeds per-order limit %.2f", decision.Action.Amount, b.Threshold)
	}
	return true, ""
}
