// Package explain renders human-readable accounts of decisions and of an
// agent's overall behavior, at three levels of detail.
package explain

import (
	"fmt"
	"strings"

	"github.com/aristath/helmsman/internal/domain"
)

// DetailLevel selects how much of the reasoning gets rendered.
type DetailLevel string

const (
	DetailSimple    DetailLevel = "simple"
	DetailDetailed  DetailLevel = "detailed"
	DetailTechnical DetailLevel = "technical"
)

// Explainer turns decision records and memory into prose. Stateless.
type Explainer struct{}

// New creates a new explainer
func New() *Explainer {
	return &Explainer{}
}

// ExplainDecision renders one decision at the requested detail level.
// Unknown levels fall back to simple.
func (e *Explainer) ExplainDecision(d *domain.AgentDecision, level DetailLevel) string {
	switch level {
	case DetailDetailed:
		return e.explainDetailed(d)
	case DetailTechnical:
		return e.explainTechnical(d)
	default:
		return e.explainSimple(d)
	}
}

// explainSimple is one sentence: what was decided and how sure the agent was.
func (e *Explainer) explainSimple(d *domain.AgentDecision) string {
	confidence := strings.ReplaceAll(string(d.ConfidenceCategory), "_", " ")
	return fmt.Sprintf("I decided to %s with %s confidence because %s.",
		d.Action.Description, confidence, lowerFirst(d.Reasoning.Summary))
}

// explainDetailed adds factors, rejected alternatives, and the expectation.
func (e *Explainer) explainDetailed(d *domain.AgentDecision) string {
	var b strings.Builder

	b.WriteString(e.explainSimple(d))
	b.WriteString("\n")

	if len(d.Reasoning.Factors) > 0 {
		b.WriteString("\nWhat weighed on the decision:\n")
		for _, f := range d.Reasoning.Factors {
			b.WriteString(fmt.Sprintf("  - %s (%.0f%%): %s\n", strings.ReplaceAll(f.Name, "_", " "), f.Weight*100, f.Detail))
		}
	}

	if len(d.Reasoning.Alternatives) > 0 {
		b.WriteString("\nWhat I considered and rejected:\n")
		for _, a := range d.Reasoning.Alternatives {
			b.WriteString(fmt.Sprintf("  - %s: %s\n", a.Description, a.Reason))
		}
	}

	b.WriteString(fmt.Sprintf("\nExpectation: %s (%.0f%% likely). If wrong: %s.\n",
		d.Expected.Base.Description, d.Expected.Probability*100, d.Expected.Worst.Description))

	b.WriteString(fmt.Sprintf("\n%s\n", d.Reasoning.MandateAlignment))

	return b.String()
}

// explainTechnical is the full record: everything in detailed plus risks,
// boundary check results, execution, and outcome tracking.
func (e *Explainer) explainTechnical(d *domain.AgentDecision) string {
	var b strings.Builder

	b.WriteString(e.explainDetailed(d))

	if len(d.Reasoning.Risks) > 0 {
		b.WriteString("\nIdentified risks:\n")
		for _, r := range d.Reasoning.Risks {
			b.WriteString(fmt.Sprintf("  - %s (mitigation: %s)\n", r.Description, r.Mitigation))
		}
	}

	if len(d.BoundaryChecks) > 0 {
		b.WriteString("\nBoundary checks:\n")
		for _, c := range d.BoundaryChecks {
			status := "pass"
			if !c.Passed {
				status = "FAIL"
			}
			b.WriteString(fmt.Sprintf("  - [%s] %s (%s/%s): %s\n", status, c.BoundaryID, c.Kind, c.Category, c.Note))
		}
	}

	b.WriteString(fmt.Sprintf("\nScores: confidence %.1f (%s), projected best %.2f / base %.2f / worst %.2f over %s.\n",
		d.ConfidenceScore, d.ConfidenceCategory,
		d.Expected.Best.Value, d.Expected.Base.Value, d.Expected.Worst.Value, d.Expected.Horizon))

	if d.Execution != nil {
		if d.Execution.Error != "" {
			b.WriteString(fmt.Sprintf("\nExecution failed: %s\n", d.Execution.Error))
		} else {
			b.WriteString(fmt.Sprintf("\nExecution: order %s filled %.2f at %.2f (fee %.2f, slippage %.4f).\n",
				d.Execution.OrderID, d.Execution.FilledAmount, d.Execution.FilledPrice, d.Execution.Fee, d.Execution.Slippage))
		}
	}

	if d.Outcome.Final != "" {
		b.WriteString(fmt.Sprintf("\nOutcome: %s", d.Outcome.Final))
		if n := len(d.Outcome.Checkpoints); n > 0 {
			b.WriteString(fmt.Sprintf(" (final mark %.2f after %d checkpoints)", d.Outcome.Checkpoints[n-1].Value, n))
		}
		b.WriteString(".\n")
	}

	return b.String()
}

// ExplainBehavior summarizes who the agent is, where it stands, and what
// it has learned.
func (e *Explainer) ExplainBehavior(cfg *domain.AgentConfig, state domain.AgentState, mem *domain.AgentMemory, perf *domain.AgentPerformance) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s operates under a %s mandate at %s autonomy and is currently %s. ",
		cfg.Name, strings.ReplaceAll(string(cfg.Mandate), "_", " "), cfg.Autonomy,
		strings.ReplaceAll(string(state), "_", " ")))
	b.WriteString(fmt.Sprintf("Personality: risk tolerance %.0f, patience %.0f, contrarianism %.0f, adaptability %.0f.\n",
		cfg.Personality.RiskTolerance, cfg.Personality.Patience,
		cfg.Personality.Contrarianism, cfg.Personality.Adaptability))

	for _, note := range cfg.Personality.Biases {
		b.WriteString(fmt.Sprintf("Known bias: %s (mitigation: %s)\n", note.Name, note.Mitigation))
	}

	if mem != nil {
		lt := mem.LongTerm
		if lt.TotalDecisions > 0 {
			b.WriteString(fmt.Sprintf("\nTrack record: %d decisions classified, %d clear successes, %d clear failures (%.0f%% success rate).\n",
				lt.TotalDecisions, lt.Successes, lt.Failures, lt.SuccessRate()*100))
		} else {
			b.WriteString("\nNo classified decisions yet; still building a track record.\n")
		}
		for _, p := range lt.PositivePatterns {
			b.WriteString(fmt.Sprintf("Learned pattern: %s seen %d times, averaging %.2f per decision.\n",
				p.Name, p.Occurrences, p.AvgReturn))
		}
		if patterns := len(lt.PositivePatterns) + len(lt.NegativePatterns); patterns > 0 || len(lt.Regimes) > 0 {
			b.WriteString(fmt.Sprintf("Carrying %d learned patterns across %d observed market regimes.\n",
				patterns, len(lt.Regimes)))
		}
	}

	if perf != nil && perf.DecisionCount > 0 {
		b.WriteString(fmt.Sprintf("\nPerformance: total return %.2f, win rate %.0f%%, Sharpe %.2f over %d executed decisions.\n",
			perf.TotalReturn, perf.WinRate*100, perf.SharpeRatio, perf.ExecutedCount))
	}

	return b.String()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
