// Package paper provides an in-process simulated market, an observation
// source reading from it, and a paper-trading execution venue. Together
// they let the daemon run end-to-end without any external account.
package paper

import (
	"math"
	"math/rand"
	"sync"
)

// historyWindow is how many closes the simulator retains per symbol.
const historyWindow = 120

// symbolSpec seeds one simulated instrument.
type symbolSpec struct {
	Symbol string
	Start  float64
	Drift  float64 // per-step expected return
	Vol    float64 // per-step return standard deviation
}

// defaultUniverse is a small cross-asset book so asset-class routing in the
// execution path gets exercised.
var defaultUniverse = []symbolSpec{
	{Symbol: "AAPL", Start: 180, Drift: 0.0004, Vol: 0.012},
	{Symbol: "MSFT", Start: 410, Drift: 0.0003, Vol: 0.011},
	{Symbol: "NVDA", Start: 120, Drift: 0.0008, Vol: 0.025},
	{Symbol: "BTC-USD", Start: 64000, Drift: 0.0006, Vol: 0.030},
	{Symbol: "EURUSD", Start: 1.09, Drift: 0.0, Vol: 0.004},
}

// Market is a deterministic random-walk price simulator. The same seed
// always replays the same tape, which keeps paper runs reproducible.
type Market struct {
	mu      sync.RWMutex
	rng     *rand.Rand
	specs   []symbolSpec
	closes  map[string][]float64
	stepNum int
}

// NewMarket creates a simulated market over the default universe.
func NewMarket(seed int64) *Market {
	return NewMarketWithUniverse(seed, defaultUniverse)
}

// NewMarketWithUniverse creates a simulated market over a custom universe.
func NewMarketWithUniverse(seed int64, specs []symbolSpec) *Market {
	m := &Market{
		rng:    rand.New(rand.NewSource(seed)),
		specs:  specs,
		closes: make(map[string][]float64, len(specs)),
	}
	for _, spec := range specs {
		m.closes[spec.Symbol] = []float64{spec.Start}
	}
	// Warm up so consumers immediately see a full lookback window.
	for i := 0; i < historyWindow; i++ {
		m.Step()
	}
	return m
}

// Step advances every symbol one tick.
func (m *Market) Step() {
	m.mu.Lock()
	defer m.mu.Unlock()

	// One shared shock drives cross-symbol correlation.
	shared := m.rng.NormFloat64()

	for _, spec := range m.specs {
		series := m.closes[spec.Symbol]
		last := series[len(series)-1]

		shock := 0.5*shared + 0.5*m.rng.NormFloat64()
		next := last * math.Exp(spec.Drift+spec.Vol*shock)

		series = append(series, next)
		if len(series) > historyWindow {
			series = series[len(series)-historyWindow:]
		}
		m.closes[spec.Symbol] = series
	}
	m.stepNum++
}

// Closes returns a copy of the retained close history per symbol.
func (m *Market) Closes() map[string][]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]float64, len(m.closes))
	for symbol, series := range m.closes {
		cp := make([]float64, len(series))
		copy(cp, series)
		out[symbol] = cp
	}
	return out
}

// LastPrice returns the current price for a symbol, false if unknown.
func (m *Market) LastPrice(symbol string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series, ok := m.closes[symbol]
	if !ok || len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// Symbols lists the simulated universe.
func (m *Market) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.specs))
	for _, spec := range m.specs {
		out = append(out, spec.Symbol)
	}
	return out
}

// returns computes step-over-step returns for a series.
func returns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			continue
		}
		out = append(out, series[i]/series[i-1]-1)
	}
	return out
}
