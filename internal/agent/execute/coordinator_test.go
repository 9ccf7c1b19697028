package execute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	result  domain.OrderResult
	err     error
	lastReq domain.OrderRequest
	delay   time.Duration
	submits int
}

func (f *fakeAdapter) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	f.submits++
	f.lastReq = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.OrderResult{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func approvedDecision() *domain.AgentDecision {
	return &domain.AgentDecision{
		ID:      "dec-1",
		AgentID: "agent-1",
		Type:    domain.DecisionTypeEntry,
		Action: domain.DecisionAction{
			Asset:       "BTC-USD",
			Direction:   domain.DirectionLong,
			Amount:      2000,
			TargetPrice: 50_000,
		},
		ConfidenceScore: 80,
		Status:          domain.DecisionApproved,
	}
}

func newCoordinator(adapter domain.ExecutionAdapter) (*Coordinator, *events.Bus) {
	bus := events.NewBus()
	mgr := events.NewManager(bus, zerolog.Nop())
	return NewCoordinator(adapter, mgr, time.Second, zerolog.Nop()), bus
}

func TestExecute_SuccessfulFill(t *testing.T) {
	adapter := &fakeAdapter{result: domain.OrderResult{
		Success:      true,
		OrderID:      "ord-9",
		FilledPrice:  50_500,
		FilledAmount: 2000,
		Fee:          2.5,
	}}
	c, bus := newCoordinator(adapter)

	var seen []events.EventType
	bus.SubscribeAll(func(e *events.Event) {
		seen = append(seen, e.Type)
	})

	d := approvedDecision()
	require.NoError(t, c.Execute(context.Background(), d))

	assert.Equal(t, domain.DecisionExecuted, d.Status)
	require.NotNil(t, d.Execution)
	assert.Equal(t, "ord-9", d.Execution.OrderID)
	assert.Equal(t, 50_500.0, d.Execution.FilledPrice)
	assert.Equal(t, 2.5, d.Execution.Fee)
	assert.NotNil(t, d.Execution.CompletedAt)
	// filled 1% above a long target
	assert.InDelta(t, 0.01, d.Execution.Slippage, 1e-9)

	assert.Equal(t, []events.EventType{events.DecisionExecuting, events.DecisionExecuted}, seen)

	// order was keyed to the right venue
	assert.Equal(t, domain.AssetCrypto, adapter.lastReq.AssetClass)
	assert.Equal(t, "dec-1", adapter.lastReq.DecisionID)
}

func TestExecute_AdapterErrorFailsDecision(t *testing.T) {
	adapter := &fakeAdapter{err: errors.New("venue unreachable")}
	c, bus := newCoordinator(adapter)

	var seen []events.EventType
	bus.SubscribeAll(func(e *events.Event) {
		seen = append(seen, e.Type)
	})

	d := approvedDecision()
	require.NoError(t, c.Execute(context.Background(), d))

	assert.Equal(t, domain.DecisionFailed, d.Status)
	require.NotNil(t, d.Execution)
	assert.Equal(t, "venue unreachable", d.Execution.Error)
	assert.Equal(t, []events.EventType{events.DecisionExecuting, events.DecisionFailed}, seen)
}

func TestExecute_UnsuccessfulResultFailsDecision(t *testing.T) {
	adapter := &fakeAdapter{result: domain.OrderResult{Success: false, Error: "insufficient liquidity"}}
	c, _ := newCoordinator(adapter)

	d := approvedDecision()
	require.NoError(t, c.Execute(context.Background(), d))

	assert.Equal(t, domain.DecisionFailed, d.Status)
	assert.Equal(t, "insufficient liquidity", d.Execution.Error)
}

func TestExecute_TimeoutFailsDecision(t *testing.T) {
	adapter := &fakeAdapter{delay: 5 * time.Second, result: domain.OrderResult{Success: true}}
	bus := events.NewBus()
	mgr := events.NewManager(bus, zerolog.Nop())
	c := NewCoordinator(adapter, mgr, 20*time.Millisecond, zerolog.Nop())

	d := approvedDecision()
	require.NoError(t, c.Execute(context.Background(), d))

	assert.Equal(t, domain.DecisionFailed, d.Status)
	assert.Contains(t, d.Execution.Error, "context deadline exceeded")
}

func TestExecute_RejectsWrongStartingStatus(t *testing.T) {
	c, _ := newCoordinator(&fakeAdapter{})

	for _, status := range []domain.DecisionStatus{
		domain.DecisionPending,
		domain.DecisionExecuted,
		domain.DecisionRejected,
		domain.DecisionCancelled,
	} {
		d := approvedDecision()
		d.Status = status
		err := c.Execute(context.Background(), d)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, "status %s", status)
		assert.Equal(t, status, d.Status, "status must not change on refusal")
	}
}

func TestSlippage_ShortDirectionInverts(t *testing.T) {
	action := domain.DecisionAction{Direction: domain.DirectionShort, TargetPrice: 100}
	// a short filled below target is adverse
	s := slippage(action, domain.OrderResult{FilledPrice: 99})
	assert.InDelta(t, 0.01, s, 1e-9)
}
