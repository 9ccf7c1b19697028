// Package analyze turns observations and memory into ranked, actionable
// recommendations.
package analyze

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/helmsman/internal/agent/memory"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
)

// Fixed rule thresholds. Signal confidences are shaped by these and then
// scaled by regime fit and personality.
const (
	rsiPeriod          = 14
	rsiOverbought      = 70.0
	rsiOversold        = 30.0
	momentumLookback   = 10
	momentumMinROC     = 2.0 // percent over the lookback
	breakoutLookback   = 20
	volatilityRiskBar  = 0.35 // annualized; above this is a risk condition
	highSeverityBar    = 70.0 // risks at or above become reduce-exposure recommendations
	riskPriorityBoost  = 100.0
)

// Analyzer scans observations plus long-term memory for opportunity
// signals and risk conditions.
type Analyzer struct {
	memories                *memory.Store
	patternReplayConfidence float64
	log                     zerolog.Logger
}

// NewAnalyzer creates a new analyzer
func NewAnalyzer(memories *memory.Store, patternReplayConfidence float64, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		memories:                memories,
		patternReplayConfidence: patternReplayConfidence,
		log:                     log.With().Str("component", "analyzer").Logger(),
	}
}

// Result is the full output of one analysis pass.
type Result struct {
	Opportunities   []domain.OpportunitySignal
	Risks           []domain.RiskAssessment
	Recommendations []domain.Recommendation
}

// Analyze produces the ranked recommendation list for one cycle.
// Opportunities below the agent's confidence floor are dropped; risks at or
// above the high-severity bar are injected as priority reduce-exposure
// recommendations.
func (a *Analyzer) Analyze(cfg *domain.AgentConfig, observations []domain.Observation) Result {
	regime := a.memories.LatestRegime(cfg.ID)

	opportunities := a.scanOpportunities(cfg, observations, regime)
	risks := a.assessRisks(observations)

	recommendations := make([]domain.Recommendation, 0, len(opportunities)+len(risks))

	for i := range risks {
		r := risks[i]
		if r.Severity < highSeverityBar {
			continue
		}
		recommendations = append(recommendations, domain.Recommendation{
			Kind:       domain.RecommendReduceExposure,
			Priority:   riskPriorityBoost + r.Severity,
			Confidence: r.Severity,
			Risk:       &r,
			Rationale:  fmt.Sprintf("high-severity risk: %s", r.Description),
		})
	}

	for i := range opportunities {
		o := opportunities[i]
		if o.Confidence < cfg.Limits.MinConfidenceToAct {
			continue
		}
		recommendations = append(recommendations, domain.Recommendation{
			Kind:        domain.RecommendEntry,
			Priority:    o.Strength * o.Confidence / 100,
			Confidence:  o.Confidence,
			Opportunity: &o,
			Rationale:   fmt.Sprintf("%s signal on %s from %s", o.Kind, o.Asset, o.Source),
		})
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Priority > recommendations[j].Priority
	})

	a.log.Debug().
		Str("agent", cfg.ID).
		Str("regime", string(regime)).
		Int("opportunities", len(opportunities)).
		Int("risks", len(risks)).
		Int("recommendations", len(recommendations)).
		Msg("Analysis complete")

	return Result{
		Opportunities:   opportunities,
		Risks:           risks,
		Recommendations: recommendations,
	}
}

// scanOpportunities applies the regime-conditioned rule battery per asset,
// then replays learned positive patterns whose recorded confidence clears
// the replay cutoff.
func (a *Analyzer) scanOpportunities(cfg *domain.AgentConfig, observations []domain.Observation, regime domain.MarketRegime) []domain.OpportunitySignal {
	var signals []domain.OpportunitySignal

	prices := latestPricePayload(observations)
	sentiment := latestSentimentPayload(observations)

	if prices != nil {
		for asset, closes := range prices.Closes {
			signals = append(signals, scanAsset(asset, closes, regime, cfg.Personality)...)
		}
	}

	if sentiment != nil {
		signals = append(signals, scanSentiment(sentiment, cfg.Personality)...)
	}

	// Pattern replay: previously profitable patterns act as standing
	// opportunity hypotheses while their confidence holds up.
	for _, p := range a.memories.PositivePatterns(cfg.ID) {
		if p.AvgConfidence <= a.patternReplayConfidence {
			continue
		}
		asset := bestAsset(a.memories, cfg.ID, prices)
		if asset == "" {
			continue
		}
		expiry := time.Now().UTC().Add(24 * time.Hour)
		signals = append(signals, domain.OpportunitySignal{
			Asset:          asset,
			Kind:           domain.SignalPatternReplay,
			Direction:      domain.DirectionLong,
			Strength:       minf(p.AvgConfidence, 100),
			Confidence:     p.AvgConfidence,
			Timeframe:      "1d",
			ExpectedReturn: p.AvgReturn,
			ExpectedRisk:   p.AvgReturn / 2,
			Source:         fmt.Sprintf("pattern:%s", p.Name),
			ExpiresAt:      &expiry,
		})
	}

	return signals
}

// scanAsset runs the price-window rules for one asset.
func scanAsset(asset string, closes []float64, regime domain.MarketRegime, personality domain.PersonalityProfile) []domain.OpportunitySignal {
	var signals []domain.OpportunitySignal

	if len(closes) > rsiPeriod {
		rsi := talib.Rsi(closes, rsiPeriod)
		last := rsi[len(rsi)-1]
		if !isNaN(last) {
			// Mean reversion: oversold in non-bear regimes is a long,
			// overbought is a short. Contrarian personalities trust the
			// reversal more.
			contrarian := 1 + personality.Contrarianism/200
			if last <= rsiOversold && regime != domain.RegimeBear {
				signals = append(signals, domain.OpportunitySignal{
					Asset:          asset,
					Kind:           domain.SignalMeanReversion,
					Direction:      domain.DirectionLong,
					Strength:       minf((rsiOversold-last)*3, 100),
					Confidence:     minf(55*contrarian, 95),
					Timeframe:      "3d",
					ExpectedReturn: 0.03,
					ExpectedRisk:   0.02,
					Source:         "rule:rsi-oversold",
				})
			}
			if last >= rsiOverbought && regime != domain.RegimeBull {
				signals = append(signals, domain.OpportunitySignal{
					Asset:          asset,
					Kind:           domain.SignalMeanReversion,
					Direction:      domain.DirectionShort,
					Strength:       minf((last-rsiOverbought)*3, 100),
					Confidence:     minf(50*contrarian, 95),
					Timeframe:      "3d",
					ExpectedReturn: 0.025,
					ExpectedRisk:   0.02,
					Source:         "rule:rsi-overbought",
				})
			}
		}
	}

	if len(closes) > momentumLookback {
		roc := talib.Roc(closes, momentumLookback)
		last := roc[len(roc)-1]
		if !isNaN(last) && last >= momentumMinROC {
			// Momentum only fires with the regime, not against it.
			confidence := 60.0
			switch regime {
			case domain.RegimeBull:
				confidence = 75
			case domain.RegimeBear:
				confidence = 0
			case domain.RegimeVolatile:
				confidence = 45
			}
			if confidence > 0 {
				signals = append(signals, domain.OpportunitySignal{
					Asset:          asset,
					Kind:           domain.SignalMomentum,
					Direction:      domain.DirectionLong,
					Strength:       minf(last*10, 100),
					Confidence:     confidence,
					Timeframe:      "5d",
					ExpectedReturn: last / 100,
					ExpectedRisk:   last / 200,
					Source:         "rule:roc-momentum",
				})
			}
		}
	}

	if len(closes) > breakoutLookback {
		window := closes[len(closes)-breakoutLookback-1 : len(closes)-1]
		high := maxf(window)
		last := closes[len(closes)-1]
		if last > high {
			signals = append(signals, domain.OpportunitySignal{
				Asset:          asset,
				Kind:           domain.SignalBreakout,
				Direction:      domain.DirectionLong,
				Strength:       minf((last/high-1)*1000, 100),
				Confidence:     65,
				Timeframe:      "10d",
				ExpectedReturn: 0.05,
				ExpectedRisk:   0.03,
				Source:         "rule:breakout-20d-high",
			})
		}
	}

	return signals
}

// scanSentiment converts strong per-asset sentiment into alpha signals.
func scanSentiment(payload *domain.SentimentPayload, personality domain.PersonalityProfile) []domain.OpportunitySignal {
	var signals []domain.OpportunitySignal
	for asset, score := range payload.Assets {
		if score < 60 {
			continue
		}
		// Contrarian personalities discount crowd enthusiasm.
		confidence := minf(score, 90) * (1 - personality.Contrarianism/250)
		signals = append(signals, domain.OpportunitySignal{
			Asset:          asset,
			Kind:           domain.SignalAlpha,
			Direction:      domain.DirectionLong,
			Strength:       score,
			Confidence:     confidence,
			Timeframe:      "2d",
			ExpectedReturn: 0.02,
			ExpectedRisk:   0.02,
			Source:         "rule:sentiment-surge",
		})
	}
	return signals
}

// assessRisks inspects the volatility, correlation, and regime readings.
func (a *Analyzer) assessRisks(observations []domain.Observation) []domain.RiskAssessment {
	var risks []domain.RiskAssessment

	for _, o := range observations {
		switch o.Category {
		case domain.ObserveVolatility:
			if o.Payload.Volatility == nil {
				continue
			}
			if v := o.Payload.Volatility.Market; v > volatilityRiskBar {
				severity := minf(50+(v-volatilityRiskBar)*200, 100)
				risks = append(risks, domain.RiskAssessment{
					Kind:        "elevated_volatility",
					Severity:    severity,
					Description: fmt.Sprintf("market volatility %.0f%% annualized exceeds %.0f%% threshold", v*100, volatilityRiskBar*100),
					Mitigation:  "reduce position sizes until volatility normalizes",
				})
			}
		case domain.ObserveCorrelation:
			if o.Payload.Correlation == nil {
				continue
			}
			if o.Payload.Correlation.Flipped {
				risks = append(risks, domain.RiskAssessment{
					Kind:        "correlation_regime_flip",
					Severity:    75,
					Description: "pairwise correlation structure flipped since the last reading",
					Mitigation:  "diversification assumptions are stale; reduce concentrated exposure",
				})
			} else if o.Payload.Correlation.MeanPairwise > 0.8 {
				risks = append(risks, domain.RiskAssessment{
					Kind:        "correlation_crowding",
					Severity:    60,
					Description: fmt.Sprintf("mean pairwise correlation %.2f leaves little diversification", o.Payload.Correlation.MeanPairwise),
					Mitigation:  "treat the book as a single position for sizing",
				})
			}
		case domain.ObserveRegime:
			if o.Payload.Regime == nil {
				continue
			}
			if o.Payload.Regime.Regime == domain.RegimeBear && o.Payload.Regime.Strength >= 70 {
				risks = append(risks, domain.RiskAssessment{
					Kind:        "entrenched_bear_regime",
					Severity:    70,
					Description: fmt.Sprintf("bear regime with strength %.0f", o.Payload.Regime.Strength),
					Mitigation:  "favor exits over entries while the regime holds",
				})
			}
		}
	}

	return risks
}

func latestPricePayload(observations []domain.Observation) *domain.PricePayload {
	for i := len(observations) - 1; i >= 0; i-- {
		if observations[i].Category == domain.ObservePrice && observations[i].Payload.Price != nil {
			return observations[i].Payload.Price
		}
	}
	return nil
}

func latestSentimentPayload(observations []domain.Observation) *domain.SentimentPayload {
	for i := len(observations) - 1; i >= 0; i-- {
		if observations[i].Category == domain.ObserveSentiment && observations[i].Payload.Sentiment != nil {
			return observations[i].Payload.Sentiment
		}
	}
	return nil
}

// bestAsset picks the asset with the best learned stats for pattern
// replay, falling back to any asset in the current price window.
func bestAsset(memories *memory.Store, agentID string, prices *domain.PricePayload) string {
	snap := memories.Snapshot(agentID)
	if snap != nil {
		best := ""
		bestReturn := 0.0
		for asset, stats := range snap.LongTerm.Assets {
			if stats.NetReturn > bestReturn {
				best, bestReturn = asset, stats.NetReturn
			}
		}
		if best != "" {
			return best
		}
	}
	if prices != nil {
		for asset := range prices.Closes {
			return asset
		}
	}
	return ""
}

func isNaN(f float64) bool { return f != f }

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
