package domain

import "time"

// ObservationCategory tags what an observation describes.
type ObservationCategory string

const (
	ObservePrice       ObservationCategory = "price"
	ObserveVolatility  ObservationCategory = "volatility"
	ObserveSentiment   ObservationCategory = "sentiment"
	ObserveRegime      ObservationCategory = "regime"
	ObserveCorrelation ObservationCategory = "correlation"
)

// AllObservationCategories is the fixed battery collected each cycle.
var AllObservationCategories = []ObservationCategory{
	ObservePrice,
	ObserveVolatility,
	ObserveSentiment,
	ObserveRegime,
	ObserveCorrelation,
}

// MarketRegime labels the current environment for pattern conditioning.
type MarketRegime string

const (
	RegimeBull     MarketRegime = "bull"
	RegimeBear     MarketRegime = "bear"
	RegimeSideways MarketRegime = "sideways"
	RegimeVolatile MarketRegime = "volatile"
	RegimeUnknown  MarketRegime = "unknown"
)

// PricePayload carries recent closes per asset, most recent last.
type PricePayload struct {
	Closes map[string][]float64 `json:"closes"`
}

// VolatilityPayload carries annualized volatility per asset plus a
// market-wide figure.
type VolatilityPayload struct {
	Market float64            `json:"market"`
	Assets map[string]float64 `json:"assets,omitempty"`
}

// SentimentPayload carries a -100..100 sentiment score per asset.
type SentimentPayload struct {
	Market float64            `json:"market"`
	Assets map[string]float64 `json:"assets,omitempty"`
}

// RegimePayload carries the detected market regime and its strength.
type RegimePayload struct {
	Regime   MarketRegime `json:"regime"`
	Strength float64      `json:"strength"` // 0-100
}

// CorrelationPayload carries the mean pairwise correlation of tracked
// assets and whether the correlation structure flipped since the last
// reading.
type CorrelationPayload struct {
	MeanPairwise float64 `json:"mean_pairwise"`
	Flipped      bool    `json:"flipped"`
}

// ObservationPayload is a tagged union: exactly one field matching the
// observation's category is non-nil. Keeping the variants typed lets the
// analyzer and boundary evaluators match exhaustively instead of probing
// loose maps.
type ObservationPayload struct {
	Price       *PricePayload       `json:"price,omitempty"`
	Volatility  *VolatilityPayload  `json:"volatility,omitempty"`
	Sentiment   *SentimentPayload   `json:"sentiment,omitempty"`
	Regime      *RegimePayload      `json:"regime,omitempty"`
	Correlation *CorrelationPayload `json:"correlation,omitempty"`
}

// Empty reports whether no variant is set.
func (p ObservationPayload) Empty() bool {
	return p.Price == nil && p.Volatility == nil && p.Sentiment == nil &&
		p.Regime == nil && p.Correlation == nil
}

// Observation is one environment reading. Ephemeral: retained only in the
// agent's bounded short-term window and observation log.
type Observation struct {
	Timestamp     time.Time           `json:"timestamp"`
	Category      ObservationCategory `json:"category"`
	Payload       ObservationPayload  `json:"payload"`
	Significance  float64             `json:"significance"`  // 0-100
	Actionability float64             `json:"actionability"` // 0-100
}

// EmptyObservation is the placeholder recorded when the observation source
// times out or errors: never fails the cycle, never signals anything.
func EmptyObservation(category ObservationCategory) Observation {
	return Observation{
		Timestamp:     time.Now().UTC(),
		Category:      category,
		Significance:  0,
		Actionability: 0,
	}
}

// SignalKind classifies an opportunity hypothesis.
type SignalKind string

const (
	SignalMomentum      SignalKind = "momentum"
	SignalMeanReversion SignalKind = "mean_reversion"
	SignalBreakout      SignalKind = "breakout"
	SignalAlpha         SignalKind = "alpha"
	SignalPatternReplay SignalKind = "pattern_replay"
)

// Direction of a signal or action.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// OpportunitySignal is a scored, directional hypothesis about an asset.
type OpportunitySignal struct {
	Asset          string     `json:"asset"`
	Kind           SignalKind `json:"kind"`
	Direction      Direction  `json:"direction"`
	Strength       float64    `json:"strength"`   // 0-100
	Confidence     float64    `json:"confidence"` // 0-100
	Timeframe      string     `json:"timeframe"`
	ExpectedReturn float64    `json:"expected_return"` // fraction
	ExpectedRisk   float64    `json:"expected_risk"`   // fraction
	Source         string     `json:"source"`          // rule or pattern that produced it
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// RiskAssessment describes a detected risk condition.
type RiskAssessment struct {
	Kind           string   `json:"kind"`
	Severity       float64  `json:"severity"` // 0-100
	Description    string   `json:"description"`
	AffectedAssets []string `json:"affected_assets,omitempty"`
	Mitigation     string   `json:"mitigation,omitempty"`
}

// RecommendationKind distinguishes opportunity-driven entries from
// risk-driven exposure reductions.
type RecommendationKind string

const (
	RecommendEntry          RecommendationKind = "entry"
	RecommendReduceExposure RecommendationKind = "reduce_exposure"
)

// Recommendation is a ranked, actionable item handed to the formulator.
type Recommendation struct {
	Kind        RecommendationKind `json:"kind"`
	Priority    float64            `json:"priority"` // higher runs first
	Confidence  float64            `json:"confidence"`
	Opportunity *OpportunitySignal `json:"opportunity,omitempty"`
	Risk        *RiskAssessment    `json:"risk,omitempty"`
	Rationale   string             `json:"rationale"`
}
