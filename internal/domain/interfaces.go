package domain

import (
	"context"
	"strings"
)

// AssetClass routes an order to the right venue on the execution side.
type AssetClass string

const (
	AssetEquity      AssetClass = "equity"
	AssetCrypto      AssetClass = "crypto"
	AssetForex       AssetClass = "forex"
	AssetOptions     AssetClass = "options"
	AssetFutures     AssetClass = "futures"
	AssetCommodities AssetClass = "commodities"
)

// knownCryptoBases covers bare crypto tickers that carry no pair suffix.
var knownCryptoBases = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "ADA": true, "DOGE": true, "XRP": true,
}

var commodityCodes = map[string]bool{
	"GC": true, "SI": true, "CL": true, "NG": true, "HG": true, "ZW": true, "ZC": true,
}

var forexCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"AUD": true, "CAD": true, "NZD": true,
}

// InferAssetClass derives the asset class from the symbol's shape:
// "BTC-USD"/"ETH-PERP" crypto, "EURUSD" forex, OCC-style option symbols,
// "=F" suffixed futures, known commodity codes, everything else equity.
func InferAssetClass(symbol string) AssetClass {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return AssetEquity
	}

	if strings.HasSuffix(s, "=F") {
		base := strings.TrimSuffix(s, "=F")
		if commodityCodes[base] {
			return AssetCommodities
		}
		return AssetFutures
	}

	if idx := strings.IndexByte(s, '-'); idx > 0 {
		base := s[:idx]
		quote := s[idx+1:]
		if quote == "PERP" || knownCryptoBases[base] {
			return AssetCrypto
		}
	}
	if knownCryptoBases[s] {
		return AssetCrypto
	}

	// Six-letter currency pair, both halves known codes
	if len(s) == 6 && forexCurrencies[s[:3]] && forexCurrencies[s[3:]] {
		return AssetForex
	}

	// OCC option symbols embed an expiry and a C/P strike block, e.g.
	// AAPL240621C00190000 - long, digit-heavy, with C or P before the strike.
	if len(s) >= 15 {
		digits := 0
		for _, r := range s {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= 9 {
			return AssetOptions
		}
	}

	return AssetEquity
}

// ObservationSource supplies environment readings, one category at a time.
// Implementations must return promptly; callers enforce a timeout and treat
// a timeout as an empty observation.
type ObservationSource interface {
	Observe(ctx context.Context, agentID string, category ObservationCategory) (Observation, error)
}

// OrderRequest is what the execution adapter receives.
type OrderRequest struct {
	AgentID    string     `json:"agent_id"`
	DecisionID string     `json:"decision_id"`
	Asset      string     `json:"asset"`
	AssetClass AssetClass `json:"asset_class"`
	Direction  Direction  `json:"direction"`
	Amount     float64    `json:"amount"`
}

// OrderResult is the adapter's answer. A false Success always carries Error.
type OrderResult struct {
	Success      bool    `json:"success"`
	OrderID      string  `json:"order_id,omitempty"`
	FilledPrice  float64 `json:"filled_price,omitempty"`
	FilledAmount float64 `json:"filled_amount,omitempty"`
	Fee          float64 `json:"fee,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// ExecutionAdapter submits orders to an external venue. The one call in the
// core expected to block; any adapter error maps to decision status failed.
type ExecutionAdapter interface {
	Submit(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// PortfolioProvider supplies the live portfolio/risk state that boundary
// evaluators check decisions against.
type PortfolioProvider interface {
	Portfolio(ctx context.Context, agentID string) (PortfolioState, error)
}
