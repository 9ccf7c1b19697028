// Package learn closes the loop: it marks executed decisions to market,
// classifies settled outcomes, folds the results into long-term memory,
// and nudges the agent's personality within bounds.
package learn

import (
	"time"

	"github.com/aristath/helmsman/internal/agent/memory"
	"github.com/aristath/helmsman/internal/config"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/events"
	"github.com/rs/zerolog"
)

const (
	// Pattern names reinforced from classified outcomes.
	patternHighConfidenceEntry = "high-confidence-entry"
	patternOverconfidentEntry  = "overconfident-entry"

	// Risk tolerance adaptation stays inside these bounds no matter how
	// long a streak runs.
	riskToleranceFloor   = 30.0
	riskToleranceCeiling = 80.0

	// Adaptation needs at least this many classified decisions to act on.
	adaptationMinSample = 10

	adaptLowerBar = 0.4
	adaptUpperBar = 0.7
)

// Engine reviews executed decisions and updates memory and personality.
type Engine struct {
	memories *memory.Store
	cfg      config.LearningConfig
	eventMgr *events.Manager
	log      zerolog.Logger
}

// NewEngine creates a new learning engine
func NewEngine(memories *memory.Store, cfg config.LearningConfig, eventMgr *events.Manager, log zerolog.Logger) *Engine {
	return &Engine{
		memories: memories,
		cfg:      cfg,
		eventMgr: eventMgr,
		log:      log.With().Str("component", "learning_engine").Logger(),
	}
}

// ReviewResult summarizes one learning pass.
type ReviewResult struct {
	Reviewed    int
	Checkpoints int
	Classified  int
	SuccessRate float64
}

// Review runs one learning pass over the agent's executed decisions:
// checkpoints open outcomes, classifies those past the settle window,
// updates long-term memory, and adapts risk tolerance when learning is
// enabled. Decisions are mutated in place; agentCfg.Personality may be
// adjusted.
func (e *Engine) Review(agentCfg *domain.AgentConfig, decisions []*domain.AgentDecision, asOf time.Time) ReviewResult {
	var result ReviewResult

	closes := latestCloses(e.memories.RecentObservations(agentCfg.ID))
	regime := e.memories.LatestRegime(agentCfg.ID)

	for _, d := range decisions {
		if d.Status != domain.DecisionExecuted || d.Execution == nil || d.Outcome.Final != "" {
			continue
		}
		result.Reviewed++

		value := realizedValue(d, closes)
		d.Outcome.Checkpoints = append(d.Outcome.Checkpoints, domain.OutcomeCheckpoint{
			Timestamp: asOf,
			Value:     value,
		})
		result.Checkpoints++

		if d.Execution.CompletedAt == nil || asOf.Sub(*d.Execution.CompletedAt) < e.cfg.SettleWindow {
			continue
		}

		class := e.classify(value, d.Expected)
		classifiedAt := asOf
		d.Outcome.Final = class
		d.Outcome.ClassifiedAt = &classifiedAt
		result.Classified++

		e.recordOutcome(agentCfg.ID, d, class, value, regime)
		e.emitClassified(d, class, value)
	}

	mem := e.memories.Snapshot(agentCfg.ID)
	if mem != nil {
		result.SuccessRate = mem.LongTerm.SuccessRate()
		if agentCfg.LearningEnabled && result.Classified > 0 {
			e.adaptRiskTolerance(agentCfg, &mem.LongTerm)
		}
	}

	if result.Classified > 0 && e.eventMgr != nil {
		e.eventMgr.EmitTyped("learn", &events.AgentLearnedData{
			AgentID:           agentCfg.ID,
			DecisionsReviewed: result.Reviewed,
			OutcomesRecorded:  result.Classified,
			SuccessRate:       result.SuccessRate,
			RiskTolerance:     agentCfg.Personality.RiskTolerance,
		})
	}

	return result
}

// classify maps a settled realized value onto the five-step outcome ladder
// using the projection recorded at decision time.
func (e *Engine) classify(value float64, expected domain.ExpectedOutcome) domain.OutcomeClass {
	base := expected.Base.Value
	worst := expected.Worst.Value

	switch {
	case base > 0 && value >= base*e.cfg.SuccessMultiplier:
		return domain.OutcomeSuccess
	case value > 0:
		return domain.OutcomePartialSuccess
	case value > worst:
		return domain.OutcomeNeutral
	case value > worst*e.cfg.FailureMultiplier:
		return domain.OutcomePartialFailure
	default:
		return domain.OutcomeFailure
	}
}

// recordOutcome folds one classified decision into long-term memory:
// counters, pattern reinforcement, regime stats, and asset stats.
func (e *Engine) recordOutcome(agentID string, d *domain.AgentDecision, class domain.OutcomeClass, value float64, regime domain.MarketRegime) {
	e.memories.Update(agentID, func(m *domain.AgentMemory) {
		lt := &m.LongTerm
		lt.TotalDecisions++

		// Pattern extraction triggers on the mean confidence across the
		// whole class, so one overconfident outlier in a cautious history
		// does not mint a pattern.
		switch class {
		case domain.OutcomeSuccess:
			lt.Successes++
			lt.SuccessConfidenceAvg += (d.ConfidenceScore - lt.SuccessConfidenceAvg) / float64(lt.Successes)
			if lt.SuccessConfidenceAvg > e.cfg.PatternExtractConfidence {
				reinforcePattern(&lt.PositivePatterns, patternHighConfidenceEntry, value, d.ConfidenceScore, *d.Outcome.ClassifiedAt)
			}
		case domain.OutcomeFailure:
			lt.Failures++
			lt.FailureConfidenceAvg += (d.ConfidenceScore - lt.FailureConfidenceAvg) / float64(lt.Failures)
			if lt.FailureConfidenceAvg > e.cfg.PatternExtractConfidence {
				reinforcePattern(&lt.NegativePatterns, patternOverconfidentEntry, value, d.ConfidenceScore, *d.Outcome.ClassifiedAt)
			}
		}

		if regime != domain.RegimeUnknown {
			if lt.Regimes == nil {
				lt.Regimes = make(map[string]*domain.RegimeStats)
			}
			rs, ok := lt.Regimes[string(regime)]
			if !ok {
				rs = &domain.RegimeStats{}
				lt.Regimes[string(regime)] = rs
			}
			rs.Decisions++
			switch class {
			case domain.OutcomeSuccess, domain.OutcomePartialSuccess:
				rs.Successes++
			case domain.OutcomeFailure, domain.OutcomePartialFailure:
				rs.Failures++
			}
		}

		if d.Action.Asset != "" {
			if lt.Assets == nil {
				lt.Assets = make(map[string]*domain.AssetStats)
			}
			as, ok := lt.Assets[d.Action.Asset]
			if !ok {
				as = &domain.AssetStats{}
				lt.Assets[d.Action.Asset] = as
			}
			as.Decisions++
			as.NetReturn += value
			as.LastTraded = *d.Outcome.ClassifiedAt
			switch class {
			case domain.OutcomeSuccess, domain.OutcomePartialSuccess:
				as.Successes++
			case domain.OutcomeFailure, domain.OutcomePartialFailure:
				as.Failures++
			}
		}
	})
}

// adaptRiskTolerance moves the dial by the agent's learning rate when the
// classified sample is large enough and the success rate sits outside the
// comfortable band. Always clamped to [30, 80].
func (e *Engine) adaptRiskTolerance(agentCfg *domain.AgentConfig, lt *domain.LongTermMemory) {
	classified := lt.Successes + lt.Failures
	if classified < adaptationMinSample {
		return
	}

	rate := lt.SuccessRate()
	before := agentCfg.Personality.RiskTolerance

	switch {
	case rate < adaptLowerBar:
		agentCfg.Personality.RiskTolerance -= agentCfg.LearningRate
	case rate > adaptUpperBar:
		agentCfg.Personality.RiskTolerance += agentCfg.LearningRate / 2
	default:
		return
	}

	if agentCfg.Personality.RiskTolerance < riskToleranceFloor {
		agentCfg.Personality.RiskTolerance = riskToleranceFloor
	}
	if agentCfg.Personality.RiskTolerance > riskToleranceCeiling {
		agentCfg.Personality.RiskTolerance = riskToleranceCeiling
	}

	if agentCfg.Personality.RiskTolerance != before {
		e.log.Info().
			Str("agent_id", agentCfg.ID).
			Float64("success_rate", rate).
			Float64("from", before).
			Float64("to", agentCfg.Personality.RiskTolerance).
			Msg("Risk tolerance adapted")
	}
}

func (e *Engine) emitClassified(d *domain.AgentDecision, class domain.OutcomeClass, value float64) {
	if e.eventMgr == nil {
		return
	}
	e.eventMgr.EmitTyped("learn", &events.DecisionEventData{
		AgentID:    d.AgentID,
		DecisionID: d.ID,
		Type:       string(d.Type),
		Asset:      d.Action.Asset,
		Amount:     value,
		Confidence: d.ConfidenceScore,
		Status:     string(class),
		Event:      events.DecisionOutcomeClassified,
	})
}

// reinforcePattern updates (or creates) a named pattern's running averages.
func reinforcePattern(patterns *[]domain.LearnedPattern, name string, ret, confidence float64, seen time.Time) {
	for i := range *patterns {
		p := &(*patterns)[i]
		if p.Name != name {
			continue
		}
		n := float64(p.Occurrences)
		p.AvgReturn = (p.AvgReturn*n + ret) / (n + 1)
		p.AvgConfidence = (p.AvgConfidence*n + confidence) / (n + 1)
		p.Occurrences++
		p.LastSeen = seen
		return
	}
	*patterns = append(*patterns, domain.LearnedPattern{
		Name:          name,
		Occurrences:   1,
		AvgReturn:     ret,
		AvgConfidence: confidence,
		LastSeen:      seen,
	})
}

// realizedValue marks a filled decision to the latest known close. Falls
// back to the last recorded checkpoint, then zero, when no price is known.
func realizedValue(d *domain.AgentDecision, closes map[string]float64) float64 {
	exec := d.Execution
	if exec == nil || exec.FilledPrice <= 0 || exec.FilledAmount <= 0 {
		return 0
	}
	last, ok := closes[d.Action.Asset]
	if !ok || last <= 0 {
		if n := len(d.Outcome.Checkpoints); n > 0 {
			return d.Outcome.Checkpoints[n-1].Value
		}
		return 0
	}

	units := exec.FilledAmount / exec.FilledPrice
	pnl := units * (last - exec.FilledPrice)
	if d.Action.Direction == domain.DirectionShort {
		pnl = -pnl
	}
	return pnl - exec.Fee
}

// latestCloses extracts the freshest close per asset from recent price
// observations.
func latestCloses(observations []domain.Observation) map[string]float64 {
	closes := make(map[string]float64)
	for _, obs := range observations {
		if obs.Category != domain.ObservePrice || obs.Payload.Price == nil {
			continue
		}
		for asset, series := range obs.Payload.Price.Closes {
			if len(series) > 0 {
				closes[asset] = series[len(series)-1]
			}
		}
	}
	return closes
}
