package paper

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
)

// VenueConfig tunes the paper execution model.
type VenueConfig struct {
	StartingCapital float64
	SlippageBps     float64 // adverse fill offset in basis points
	FeeRate         float64 // fraction of notional charged per fill
}

// DefaultVenueConfig returns sane paper-trading defaults.
func DefaultVenueConfig() VenueConfig {
	return VenueConfig{
		StartingCapital: 100_000,
		SlippageBps:     5,
		FeeRate:         0.001,
	}
}

type position struct {
	units float64 // negative for short exposure
}

// Venue is a paper-trading venue: it fills orders against the simulated
// market and tracks the resulting portfolio. It implements both
// domain.ExecutionAdapter and domain.PortfolioProvider.
type Venue struct {
	market *Market
	cfg    VenueConfig
	log    zerolog.Logger

	mu         sync.Mutex
	cash       float64
	positions  map[string]*position
	peakEquity float64
	dayStart   float64
	dayStamp   time.Time
	rejectNext string
}

// NewVenue creates a paper venue over the given market.
func NewVenue(market *Market, cfg VenueConfig, log zerolog.Logger) *Venue {
	if cfg.StartingCapital <= 0 {
		cfg = DefaultVenueConfig()
	}
	return &Venue{
		market:     market,
		cfg:        cfg,
		log:        log.With().Str("client", "paper_venue").Logger(),
		cash:       cfg.StartingCapital,
		positions:  make(map[string]*position),
		peakEquity: cfg.StartingCapital,
		dayStart:   cfg.StartingCapital,
		dayStamp:   time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// RejectNext makes the next Submit fail with the given reason. Test hook
// and manual kill switch.
func (v *Venue) RejectNext(reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejectNext = reason
}

// Submit implements domain.ExecutionAdapter.
func (v *Venue) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderResult{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rejectNext != "" {
		reason := v.rejectNext
		v.rejectNext = ""
		return domain.OrderResult{Success: false, Error: reason}, nil
	}

	if req.Amount <= 0 {
		return domain.OrderResult{Success: false, Error: "order amount must be positive"}, nil
	}

	price, ok := v.market.LastPrice(req.Asset)
	if !ok {
		return domain.OrderResult{Success: false, Error: fmt.Sprintf("unknown asset %q", req.Asset)}, nil
	}

	// Slippage always moves the fill against the order.
	offset := price * v.cfg.SlippageBps / 10_000
	fill := price + offset
	if req.Direction == domain.DirectionShort {
		fill = price - offset
	}

	fee := req.Amount * v.cfg.FeeRate
	if req.Direction == domain.DirectionLong && req.Amount+fee > v.cash {
		return domain.OrderResult{Success: false, Error: "insufficient cash"}, nil
	}

	units := req.Amount / fill
	if req.Direction == domain.DirectionShort {
		units = -units
	}

	pos, found := v.positions[req.Asset]
	if !found {
		pos = &position{}
		v.positions[req.Asset] = pos
	}
	pos.units += units

	if req.Direction == domain.DirectionLong {
		v.cash -= req.Amount + fee
	} else {
		v.cash += req.Amount - fee
	}

	v.log.Info().
		Str("asset", req.Asset).
		Str("direction", string(req.Direction)).
		Float64("amount", req.Amount).
		Float64("fill", fill).
		Msg("Paper order filled")

	return domain.OrderResult{
		Success:      true,
		OrderID:      uuid.New().String(),
		FilledPrice:  fill,
		FilledAmount: req.Amount,
		Fee:          fee,
	}, nil
}

// Portfolio implements domain.PortfolioProvider.
func (v *Venue) Portfolio(ctx context.Context, _ string) (domain.PortfolioState, error) {
	if err := ctx.Err(); err != nil {
		return domain.PortfolioState{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	equity := v.cash
	gross := 0.0
	weights := make(map[string]float64)

	for asset, pos := range v.positions {
		price, ok := v.market.LastPrice(asset)
		if !ok {
			continue
		}
		value := pos.units * price
		equity += value
		gross += math.Abs(value)
	}
	for asset, pos := range v.positions {
		price, ok := v.market.LastPrice(asset)
		if !ok || equity == 0 {
			continue
		}
		weights[asset] = math.Abs(pos.units*price) / equity
	}

	if equity > v.peakEquity {
		v.peakEquity = equity
	}
	drawdown := 0.0
	if v.peakEquity > 0 {
		drawdown = (v.peakEquity - equity) / v.peakEquity
	}

	// Roll the daily-loss anchor at UTC midnight.
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if today.After(v.dayStamp) {
		v.dayStamp = today
		v.dayStart = equity
	}
	dailyLoss := 0.0
	if v.dayStart > 0 && equity < v.dayStart {
		dailyLoss = (v.dayStart - equity) / v.dayStart
	}

	leverage := 1.0
	if equity > 0 && gross > equity {
		leverage = gross / equity
	}

	return domain.PortfolioState{
		TotalCapital:    equity,
		CashAvailable:   v.cash,
		PositionWeights: weights,
		DailyLoss:       dailyLoss,
		Drawdown:        drawdown,
		Leverage:        leverage,
	}, nil
}
