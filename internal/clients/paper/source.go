package paper

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/helmsman/internal/domain"
)

// Source reads observations off a simulated Market. Each price observation
// advances the tape one step, so agent cycles move simulated time forward.
type Source struct {
	market *Market
	log    zerolog.Logger

	mu           sync.Mutex
	lastMeanCorr float64
}

// NewSource creates an observation source over the given market.
func NewSource(market *Market, log zerolog.Logger) *Source {
	return &Source{
		market: market,
		log:    log.With().Str("client", "paper_source").Logger(),
	}
}

// Observe implements domain.ObservationSource.
func (s *Source) Observe(_ context.Context, _ string, category domain.ObservationCategory) (domain.Observation, error) {
	obs := domain.Observation{
		Timestamp: time.Now().UTC(),
		Category:  category,
	}

	switch category {
	case domain.ObservePrice:
		s.market.Step()
		obs.Payload.Price = &domain.PricePayload{Closes: s.market.Closes()}
		obs.Significance = 60
		obs.Actionability = 70

	case domain.ObserveVolatility:
		payload := s.volatility()
		obs.Payload.Volatility = payload
		obs.Significance = clamp(payload.Market*400, 0, 100)
		obs.Actionability = 40

	case domain.ObserveSentiment:
		payload := s.sentiment()
		obs.Payload.Sentiment = payload
		obs.Significance = clamp(math.Abs(payload.Market), 0, 100)
		obs.Actionability = 50

	case domain.ObserveRegime:
		payload := s.regime()
		obs.Payload.Regime = payload
		obs.Significance = payload.Strength
		obs.Actionability = 60

	case domain.ObserveCorrelation:
		payload := s.correlation()
		obs.Payload.Correlation = payload
		obs.Significance = clamp(math.Abs(payload.MeanPairwise)*100, 0, 100)
		if payload.Flipped {
			obs.Significance = 90
		}
		obs.Actionability = 30

	default:
		return domain.EmptyObservation(category), nil
	}

	return obs, nil
}

// volatility derives per-asset and market-wide return volatility.
func (s *Source) volatility() *domain.VolatilityPayload {
	closes := s.market.Closes()
	assets := make(map[string]float64, len(closes))

	var sum float64
	for symbol, series := range closes {
		rets := returns(series)
		if len(rets) < 2 {
			continue
		}
		vol := stat.StdDev(rets, nil)
		assets[symbol] = vol
		sum += vol
	}

	market := 0.0
	if len(assets) > 0 {
		market = sum / float64(len(assets))
	}
	return &domain.VolatilityPayload{Market: market, Assets: assets}
}

// sentiment maps recent mean returns onto a -100..100 score.
func (s *Source) sentiment() *domain.SentimentPayload {
	closes := s.market.Closes()
	assets := make(map[string]float64, len(closes))

	var sum float64
	for symbol, series := range closes {
		rets := tail(returns(series), 20)
		if len(rets) == 0 {
			continue
		}
		score := clamp(stat.Mean(rets, nil)*5000, -100, 100)
		assets[symbol] = score
		sum += score
	}

	market := 0.0
	if len(assets) > 0 {
		market = sum / float64(len(assets))
	}
	return &domain.SentimentPayload{Market: market, Assets: assets}
}

// regime classifies the tape from market-wide drift and volatility.
func (s *Source) regime() *domain.RegimePayload {
	closes := s.market.Closes()

	var all []float64
	for _, series := range closes {
		all = append(all, tail(returns(series), 30)...)
	}
	if len(all) < 2 {
		return &domain.RegimePayload{Regime: domain.RegimeUnknown}
	}

	mean := stat.Mean(all, nil)
	vol := stat.StdDev(all, nil)

	switch {
	case vol > 0.03:
		return &domain.RegimePayload{Regime: domain.RegimeVolatile, Strength: clamp(vol*2000, 0, 100)}
	case mean > 0.0005:
		return &domain.RegimePayload{Regime: domain.RegimeBull, Strength: clamp(mean*60000, 0, 100)}
	case mean < -0.0005:
		return &domain.RegimePayload{Regime: domain.RegimeBear, Strength: clamp(-mean*60000, 0, 100)}
	default:
		return &domain.RegimePayload{Regime: domain.RegimeSideways, Strength: 50}
	}
}

// correlation computes the mean pairwise return correlation across the
// universe and flags sign flips against the previous reading.
func (s *Source) correlation() *domain.CorrelationPayload {
	closes := s.market.Closes()

	series := make([][]float64, 0, len(closes))
	minLen := math.MaxInt
	for _, c := range closes {
		rets := returns(c)
		series = append(series, rets)
		if len(rets) < minLen {
			minLen = len(rets)
		}
	}
	if len(series) < 2 || minLen < 2 {
		return &domain.CorrelationPayload{}
	}

	var sum float64
	var pairs int
	for i := 0; i < len(series); i++ {
		for j := i + 1; j < len(series); j++ {
			a := series[i][len(series[i])-minLen:]
			b := series[j][len(series[j])-minLen:]
			sum += stat.Correlation(a, b, nil)
			pairs++
		}
	}
	mean := sum / float64(pairs)

	s.mu.Lock()
	flipped := s.lastMeanCorr != 0 && (mean > 0) != (s.lastMeanCorr > 0)
	s.lastMeanCorr = mean
	s.mu.Unlock()

	return &domain.CorrelationPayload{MeanPairwise: mean, Flipped: flipped}
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
