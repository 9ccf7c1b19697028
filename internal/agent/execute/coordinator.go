// Package execute drives approved decisions through the execution adapter
// and records what actually happened.
package execute

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/events"
	"github.com/rs/zerolog"
)

// Coordinator submits approved decisions to the execution adapter. It owns
// the approved → executing → executed/failed leg of the decision lifecycle.
type Coordinator struct {
	adapter  domain.ExecutionAdapter
	eventMgr *events.Manager
	timeout  time.Duration
	log      zerolog.Logger
}

// NewCoordinator creates a new execution coordinator
func NewCoordinator(adapter domain.ExecutionAdapter, eventMgr *events.Manager, timeout time.Duration, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		adapter:  adapter,
		eventMgr: eventMgr,
		timeout:  timeout,
		log:      log.With().Str("component", "execution_coordinator").Logger(),
	}
}

// Execute runs one approved decision to completion. The decision is mutated
// in place: status moves to executing, the adapter is called (this is the
// blocking leg, so the caller must not hold any locks), and the result lands
// in decision.Execution with status executed or failed.
//
// The returned error is non-nil only for lifecycle misuse (wrong starting
// status); adapter failures are a normal outcome recorded on the decision.
func (c *Coordinator) Execute(ctx context.Context, decision *domain.AgentDecision) error {
	if !domain.CanTransition(decision.Status, domain.DecisionExecuting) {
		return fmt.Errorf("decision %s: %w: %s -> executing", decision.ID, domain.ErrInvalidTransition, decision.Status)
	}
	decision.Status = domain.DecisionExecuting
	c.emitLifecycle(decision, events.DecisionExecuting)

	req := domain.OrderRequest{
		AgentID:    decision.AgentID,
		DecisionID: decision.ID,
		Asset:      decision.Action.Asset,
		AssetClass: domain.InferAssetClass(decision.Action.Asset),
		Direction:  decision.Action.Direction,
		Amount:     decision.Action.Amount,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.adapter.Submit(ctx, req)
	completedAt := time.Now().UTC()

	if err != nil || !result.Success {
		reason := result.Error
		if err != nil {
			reason = err.Error()
		}
		decision.Execution = &domain.ExecutionResult{
			CompletedAt: &completedAt,
			Error:       reason,
		}
		decision.Status = domain.DecisionFailed
		c.log.Warn().
			Str("decision_id", decision.ID).
			Str("asset", req.Asset).
			Str("reason", reason).
			Msg("Execution failed")
		c.emitLifecycle(decision, events.DecisionFailed)
		return nil
	}

	decision.Execution = &domain.ExecutionResult{
		OrderID:      result.OrderID,
		FilledPrice:  result.FilledPrice,
		FilledAmount: result.FilledAmount,
		Fee:          result.Fee,
		Slippage:     slippage(decision.Action, result),
		CompletedAt:  &completedAt,
	}
	decision.Status = domain.DecisionExecuted
	c.log.Info().
		Str("decision_id", decision.ID).
		Str("asset", req.Asset).
		Str("order_id", result.OrderID).
		Float64("filled_price", result.FilledPrice).
		Float64("filled_amount", result.FilledAmount).
		Msg("Execution complete")
	c.emitLifecycle(decision, events.DecisionExecuted)
	return nil
}

// slippage is the signed fractional price deviation against the decision's
// target, positive when the fill was worse than intended. Zero when the
// decision carried no target price.
func slippage(action domain.DecisionAction, result domain.OrderResult) float64 {
	if action.TargetPrice <= 0 || result.FilledPrice <= 0 {
		return 0
	}
	s := (result.FilledPrice - action.TargetPrice) / action.TargetPrice
	if action.Direction == domain.DirectionShort {
		s = -s
	}
	return s
}

func (c *Coordinator) emitLifecycle(decision *domain.AgentDecision, eventType events.EventType) {
	if c.eventMgr == nil {
		return
	}
	data := &events.DecisionEventData{
		AgentID:    decision.AgentID,
		DecisionID: decision.ID,
		Type:       string(decision.Type),
		Asset:      decision.Action.Asset,
		Direction:  string(decision.Action.Direction),
		Amount:     decision.Action.Amount,
		Confidence: decision.ConfidenceScore,
		Status:     string(decision.Status),
		Event:      eventType,
	}
	if decision.Execution != nil {
		data.OrderID = decision.Execution.OrderID
		data.Error = decision.Execution.Error
	}
	c.eventMgr.EmitTyped("execute", data)
}
