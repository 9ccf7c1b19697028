package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/events"
	"github.com/rs/zerolog"
)

// Runner drives one agent's cycle loop: a ticker plus a manual trigger
// channel, with cycles strictly serialized. A trigger arriving while a
// cycle is in flight coalesces into at most one queued run.
type Runner struct {
	agentID  string
	manager  *Manager
	interval time.Duration
	trigger  chan struct{}
	stop     chan struct{}
	done     chan struct{}
	log      zerolog.Logger
}

func newRunner(m *Manager, agentID string, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		agentID:  agentID,
		manager:  m,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      m.log.With().Str("component", "agent_runner").Str("agent_id", agentID).Logger(),
	}
}

// Start launches the loop goroutine.
func (r *Runner) Start() {
	go r.loop()
}

// Stop halts the loop and waits for any in-flight cycle to finish.
func (r *Runner) Stop() {
	close(r.stop)
	<-r.done
}

// Trigger requests an immediate cycle. Non-blocking; collapses into the
// already-queued trigger if one is waiting.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Runner) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.runCycle()
		case <-r.trigger:
			r.runCycle()
		}
	}
}

// runCycle runs one cycle with panic recovery. A fault in any phase is
// contained to this cycle: the agent goes back to sleeping and the fault
// is surfaced as an event, never a crashed loop.
func (r *Runner) runCycle() {
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("cycle panic: %v", rec)
			r.log.Error().Str("panic", msg).Msg("Cycle recovered")
			r.manager.registry.RecordError(r.agentID, msg)
			r.manager.registry.SetPhase(r.agentID, domain.StateSleeping)
			r.manager.eventMgr.EmitTyped("agent", &events.AgentErrorData{
				AgentID: r.agentID,
				Phase:   "cycle",
				Error:   msg,
			})
		}
	}()

	if err := r.manager.RunCycle(context.Background(), r.agentID); err != nil {
		r.log.Error().Err(err).Msg("Cycle failed")
		r.manager.registry.RecordError(r.agentID, err.Error())
		r.manager.eventMgr.EmitTyped("agent", &events.AgentErrorData{
			AgentID: r.agentID,
			Phase:   "cycle",
			Error:   err.Error(),
		})
	}
}
