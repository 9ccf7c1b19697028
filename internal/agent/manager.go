// Package agent wires the observe-analyze-decide-execute-learn cycle
// around the registry and decision store, and exposes the operator
// surface: create, start, stop, emergency stop, approve, reject, explain.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/helmsman/internal/agent/analyze"
	"github.com/aristath/helmsman/internal/agent/boundary"
	"github.com/aristath/helmsman/internal/agent/decide"
	"github.com/aristath/helmsman/internal/agent/execute"
	"github.com/aristath/helmsman/internal/agent/explain"
	"github.com/aristath/helmsman/internal/agent/learn"
	"github.com/aristath/helmsman/internal/agent/memory"
	"github.com/aristath/helmsman/internal/agent/observe"
	"github.com/aristath/helmsman/internal/agent/perf"
	"github.com/aristath/helmsman/internal/config"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager owns every agent's lifecycle and runs their cycles.
type Manager struct {
	cfg       *config.Config
	registry  *Registry
	memories  *memory.Store
	decisions *DecisionStore

	collector   *observe.Collector
	analyzer    *analyze.Analyzer
	formulator  *decide.Formulator
	coordinator *execute.Coordinator
	learner     *learn.Engine
	explainer   *explain.Explainer
	perfCalc    *perf.Calculator

	portfolios domain.PortfolioProvider
	eventMgr   *events.Manager
	log        zerolog.Logger

	mu      sync.Mutex
	runners map[string]*Runner
}

// NewManager assembles the phase components around the shared stores.
func NewManager(
	cfg *config.Config,
	source domain.ObservationSource,
	adapter domain.ExecutionAdapter,
	portfolios domain.PortfolioProvider,
	eventMgr *events.Manager,
	log zerolog.Logger,
) *Manager {
	memories := memory.NewStore()
	boundaries := boundary.NewEngine(log)

	return &Manager{
		cfg:         cfg,
		registry:    NewRegistry(),
		memories:    memories,
		decisions:   NewDecisionStore(),
		collector:   observe.NewCollector(source, cfg.ObservationTimeout, log),
		analyzer:    analyze.NewAnalyzer(memories, cfg.Learning.PatternReplayConfidence, log),
		formulator:  decide.NewFormulator(boundaries, log),
		coordinator: execute.NewCoordinator(adapter, eventMgr, cfg.ExecutionTimeout, log),
		learner:     learn.NewEngine(memories, cfg.Learning, eventMgr, log),
		explainer:   explain.New(),
		perfCalc:    perf.NewCalculator(),
		portfolios:  portfolios,
		eventMgr:    eventMgr,
		log:         log.With().Str("component", "agent_manager").Logger(),
		runners:     make(map[string]*Runner),
	}
}

// Registry exposes read access to agent statuses.
func (m *Manager) Registry() *Registry { return m.registry }

// Decisions exposes read access to the decision store.
func (m *Manager) Decisions() *DecisionStore { return m.decisions }

// Memories exposes the memory store for snapshots and restores.
func (m *Manager) Memories() *memory.Store { return m.memories }

// CreateAgent validates the config, fills defaults, allocates memory,
// registers the agent, and starts its cycle loop.
func (m *Manager) CreateAgent(cfg domain.AgentConfig) (domain.AgentConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = m.cfg.CycleInterval
	}
	if err := cfg.Validate(); err != nil {
		return domain.AgentConfig{}, err
	}

	// Operator boundaries layer on top of the mandate defaults; an override
	// may loosen a default but never removes the check entirely.
	cfg.Boundaries = boundary.MergeOverrides(boundary.DefaultsForMandate(cfg.Mandate), cfg.Boundaries)

	m.memories.Allocate(cfg.ID)
	m.registry.Add(cfg)

	m.eventMgr.EmitTyped("agent", &events.AgentLifecycleData{
		AgentID: cfg.ID,
		Name:    cfg.Name,
		Mandate: string(cfg.Mandate),
		State:   string(domain.StateInitializing),
		Event:   events.AgentCreated,
	})
	m.log.Info().Str("agent_id", cfg.ID).Str("name", cfg.Name).Str("mandate", string(cfg.Mandate)).Msg("Agent created")

	if err := m.StartAgent(cfg.ID); err != nil {
		return domain.AgentConfig{}, err
	}

	return cfg, nil
}

// AgentUpdate carries the operator-mutable knobs. Nil fields are left as
// they are; boundaries are re-merged onto the mandate defaults.
type AgentUpdate struct {
	Name                 *string                 `json:"name,omitempty"`
	Autonomy             *domain.AutonomyLevel   `json:"autonomy,omitempty"`
	Boundaries           []domain.AgentBoundary  `json:"boundaries,omitempty"`
	Limits               *domain.OperatingLimits `json:"limits,omitempty"`
	RequireApprovalAbove *float64                `json:"require_approval_above,omitempty"`
	LearningEnabled      *bool                   `json:"learning_enabled,omitempty"`
	LearningRate         *float64                `json:"learning_rate,omitempty"`
	ActiveHours          *domain.ActiveHours     `json:"active_hours,omitempty"`
	CycleInterval        *time.Duration          `json:"cycle_interval,omitempty"`
}

// UpdateAgent applies an operator update to a live agent. The merged config
// is validated before it replaces the old one; a running agent keeps its
// loop and picks up the new settings on the next cycle.
func (m *Manager) UpdateAgent(agentID string, update AgentUpdate) (domain.AgentConfig, error) {
	current, err := m.registry.Config(agentID)
	if err != nil {
		return domain.AgentConfig{}, err
	}

	next := current
	if update.Name != nil {
		next.Name = *update.Name
	}
	if update.Autonomy != nil {
		next.Autonomy = *update.Autonomy
	}
	if update.Boundaries != nil {
		next.Boundaries = boundary.MergeOverrides(boundary.DefaultsForMandate(next.Mandate), update.Boundaries)
		boundary.CarryViolations(next.Boundaries, current.Boundaries)
	}
	if update.Limits != nil {
		next.Limits = *update.Limits
	}
	if update.RequireApprovalAbove != nil {
		next.RequireApprovalAbove = *update.RequireApprovalAbove
	}
	if update.LearningEnabled != nil {
		next.LearningEnabled = *update.LearningEnabled
	}
	if update.LearningRate != nil {
		next.LearningRate = *update.LearningRate
	}
	if update.ActiveHours != nil {
		next.ActiveHours = *update.ActiveHours
	}
	if update.CycleInterval != nil && *update.CycleInterval > 0 {
		next.CycleInterval = *update.CycleInterval
	}
	if err := next.Validate(); err != nil {
		return domain.AgentConfig{}, err
	}
	next.UpdatedAt = time.Now().UTC()

	err = m.registry.UpdateConfig(agentID, func(cfg *domain.AgentConfig) {
		*cfg = next
	})
	if err != nil {
		return domain.AgentConfig{}, err
	}

	m.eventMgr.EmitTyped("agent", &events.AgentLifecycleData{
		AgentID: agentID,
		Name:    next.Name,
		Event:   events.AgentUpdated,
	})
	m.log.Info().Str("agent_id", agentID).Msg("Agent updated")

	return next, nil
}

// StartAgent launches the agent's cycle loop. Idempotent for a running agent.
func (m *Manager) StartAgent(agentID string) error {
	cfg, err := m.registry.Config(agentID)
	if err != nil {
		return err
	}
	state, _ := m.registry.State(agentID)
	if state == domain.StateDisabled {
		return fmt.Errorf("agent %s is disabled", agentID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.runners[agentID]; running {
		return nil
	}

	r := newRunner(m, agentID, cfg.CycleInterval)
	m.runners[agentID] = r
	r.Start()

	_ = m.registry.SetState(agentID, domain.StateSleeping)
	m.eventMgr.EmitTyped("agent", &events.AgentLifecycleData{
		AgentID: agentID,
		Name:    cfg.Name,
		State:   string(domain.StateSleeping),
		Event:   events.AgentStarted,
	})
	return nil
}

// StopAgent halts the loop without discarding any state. The agent can be
// started again later.
func (m *Manager) StopAgent(agentID string) error {
	if _, err := m.registry.Config(agentID); err != nil {
		return err
	}
	m.stopRunner(agentID)

	_ = m.registry.SetState(agentID, domain.StateSleeping)
	m.eventMgr.EmitTyped("agent", &events.AgentLifecycleData{
		AgentID: agentID,
		State:   string(domain.StateSleeping),
		Event:   events.AgentStopped,
	})
	return nil
}

// DisableAgent stops the loop and marks the agent disabled. A disabled
// agent cannot be started until re-enabled.
func (m *Manager) DisableAgent(agentID string) error {
	if _, err := m.registry.Config(agentID); err != nil {
		return err
	}
	m.stopRunner(agentID)

	_ = m.registry.SetState(agentID, domain.StateDisabled)
	m.eventMgr.EmitTyped("agent", &events.AgentLifecycleData{
		AgentID: agentID,
		State:   string(domain.StateDisabled),
		Event:   events.AgentDisabled,
	})
	return nil
}

// EnableAgent lifts a disabled or emergency state back to sleeping.
// The loop stays stopped until StartAgent.
func (m *Manager) EnableAgent(agentID string) error {
	state, err := m.registry.State(agentID)
	if err != nil {
		return err
	}
	if state != domain.StateDisabled && state != domain.StateEmergency {
		return nil
	}
	return m.registry.SetState(agentID, domain.StateSleeping)
}

// TriggerEmergency performs the emergency stop: freeze the agent in the
// emergency state, cancel all open decisions, and reap the loop. The freeze
// and the cancellations happen before the loop is touched, so a cycle
// mid-flight in the adapter cannot execute anything the operator just
// pulled, and the call returns without waiting for that cycle to drain.
func (m *Manager) TriggerEmergency(agentID, reason string) error {
	if _, err := m.registry.Config(agentID); err != nil {
		return err
	}

	_ = m.registry.SetState(agentID, domain.StateEmergency)
	cancelled := m.decisions.CancelOpen(agentID)

	if r := m.detachRunner(agentID); r != nil {
		go r.Stop()
	}

	m.eventMgr.EmitTyped("agent", &events.AgentEmergencyData{
		AgentID:        agentID,
		Reason:         reason,
		CancelledCount: cancelled,
	})
	m.log.Warn().Str("agent_id", agentID).Str("reason", reason).Int("cancelled", cancelled).Msg("Emergency stop")
	return nil
}

// DeleteAgent removes the agent, its memory, and its runner. Decision
// history is retained for audit.
func (m *Manager) DeleteAgent(agentID string) error {
	if _, err := m.registry.Config(agentID); err != nil {
		return err
	}
	m.stopRunner(agentID)
	m.registry.Remove(agentID)
	m.memories.Delete(agentID)
	return nil
}

// ApproveDecision moves a pending decision to approved. Execution happens
// on the agent's next cycle.
func (m *Manager) ApproveDecision(decisionID string) error {
	if err := m.decisions.Transition(decisionID, domain.DecisionApproved); err != nil {
		return err
	}
	d, _ := m.decisions.Get(decisionID)
	m.emitDecisionLifecycle(&d, events.DecisionApproved, "")
	return nil
}

// RejectDecision cancels a pending or approved decision with the
// operator's reason. Human rejection lands on the cancelled terminal
// status; rejected is reserved for boundary violations. The emitted event
// keeps the human attribution.
func (m *Manager) RejectDecision(decisionID, reason string) error {
	if err := m.decisions.Transition(decisionID, domain.DecisionCancelled); err != nil {
		return err
	}
	d, _ := m.decisions.Get(decisionID)
	m.emitDecisionLifecycle(&d, events.DecisionRejectedByHuman, reason)
	return nil
}

// CancelDecision cancels a pending or approved decision.
func (m *Manager) CancelDecision(decisionID, reason string) error {
	if err := m.decisions.Transition(decisionID, domain.DecisionCancelled); err != nil {
		return err
	}
	d, _ := m.decisions.Get(decisionID)
	m.emitDecisionLifecycle(&d, events.DecisionCancelled, reason)
	return nil
}

// TriggerCycle asks a running agent's loop for an immediate cycle. Returns
// an error when the loop is not running.
func (m *Manager) TriggerCycle(agentID string) error {
	m.mu.Lock()
	r, ok := m.runners[agentID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent %s has no running loop", agentID)
	}
	r.Trigger()
	return nil
}

// Performance recomputes the derived rollup for one agent.
func (m *Manager) Performance(agentID string) (domain.AgentPerformance, error) {
	if _, err := m.registry.Config(agentID); err != nil {
		return domain.AgentPerformance{}, err
	}
	history := m.decisions.ForAgent(agentID)
	ptrs := make([]*domain.AgentDecision, len(history))
	for i := range history {
		ptrs[i] = &history[i]
	}
	return m.perfCalc.Compute(agentID, ptrs, time.Now().UTC()), nil
}

// ExplainDecision renders one decision at the given detail level.
func (m *Manager) ExplainDecision(decisionID string, level explain.DetailLevel) (string, error) {
	d, err := m.decisions.Get(decisionID)
	if err != nil {
		return "", err
	}
	return m.explainer.ExplainDecision(&d, level), nil
}

// ExplainAgent renders the behavioral summary of one agent.
func (m *Manager) ExplainAgent(agentID string) (string, error) {
	status, err := m.registry.Get(agentID)
	if err != nil {
		return "", err
	}
	mem := m.memories.Snapshot(agentID)
	p, _ := m.Performance(agentID)
	return m.explainer.ExplainBehavior(&status.Config, status.State, mem, &p), nil
}

// StopAll halts every running loop. Used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	runners := make([]*Runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.runners = make(map[string]*Runner)
	m.mu.Unlock()

	for _, r := range runners {
		r.Stop()
	}
}

func (m *Manager) stopRunner(agentID string) {
	if r := m.detachRunner(agentID); r != nil {
		r.Stop()
	}
}

// detachRunner removes the runner from the map without waiting for its
// loop; the caller decides whether to block on Stop.
func (m *Manager) detachRunner(agentID string) *Runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[agentID]
	if !ok {
		return nil
	}
	delete(m.runners, agentID)
	return r
}

// RunCycle executes one full observe-analyze-decide-execute-learn pass for
// one agent. Called from the agent's loop; also callable directly, which is
// how manual triggers and tests drive it.
func (m *Manager) RunCycle(ctx context.Context, agentID string) error {
	cfg, err := m.registry.Config(agentID)
	if err != nil {
		return err
	}

	state, _ := m.registry.State(agentID)
	if state == domain.StateDisabled || state == domain.StateEmergency {
		return nil
	}

	now := time.Now().UTC()
	if !cfg.ActiveHours.Contains(now) {
		m.registry.SetPhase(agentID, domain.StateSleeping)
		return nil
	}

	started := time.Now()

	// Each phase advance is guarded: an emergency or disable that lands
	// mid-cycle stops the remaining phases instead of being overwritten.

	// Observe
	if !m.registry.SetPhase(agentID, domain.StateObserving) {
		return nil
	}
	observations := m.collector.Collect(ctx, agentID)
	for _, obs := range observations {
		m.memories.RecordObservation(agentID, obs)
	}

	// Analyze
	if !m.registry.SetPhase(agentID, domain.StateAnalyzing) {
		return nil
	}
	analysis := m.analyzer.Analyze(&cfg, observations)

	// Decide
	if !m.registry.SetPhase(agentID, domain.StateDeciding) {
		return nil
	}
	created := m.decidePhase(ctx, &cfg, analysis.Recommendations)

	// Execute
	if !m.registry.SetPhase(agentID, domain.StateExecuting) {
		return nil
	}
	m.executePhase(ctx, agentID)

	// Learn
	if !m.registry.SetPhase(agentID, domain.StateLearning) {
		return nil
	}
	m.learnPhase(agentID)

	m.registry.SetPhase(agentID, domain.StateSleeping)
	m.registry.RecordCycle(agentID, time.Now().UTC())

	m.eventMgr.EmitTyped("agent", &events.CycleCompletedData{
		AgentID:       agentID,
		Observations:  len(observations),
		Opportunities: len(analysis.Opportunities),
		Decisions:     created,
		Duration:      time.Since(started).Seconds(),
	})
	return nil
}

// decidePhase formulates decisions from the top recommendations, subject
// to the daily cap. Returns how many decisions were created.
func (m *Manager) decidePhase(ctx context.Context, cfg *domain.AgentConfig, recommendations []domain.Recommendation) int {
	if len(recommendations) == 0 {
		return 0
	}

	portfolio, err := m.portfolios.Portfolio(ctx, cfg.ID)
	if err != nil {
		m.log.Warn().Err(err).Str("agent_id", cfg.ID).Msg("Portfolio unavailable, skipping decide phase")
		m.eventMgr.EmitError("agent", err, map[string]interface{}{"agent_id": cfg.ID, "phase": "decide"})
		return 0
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	budget := cfg.Limits.MaxDecisionsPerDay - m.decisions.CountCreatedSince(cfg.ID, midnight)
	if budget <= 0 {
		m.log.Debug().Str("agent_id", cfg.ID).Msg("Daily decision cap reached")
		return 0
	}

	take := decide.TopRecommendations
	if take > budget {
		take = budget
	}
	if take > len(recommendations) {
		take = len(recommendations)
	}

	created := 0
	for _, rec := range recommendations[:take] {
		d := m.formulator.Formulate(cfg, portfolio, rec)
		m.decisions.Add(d)
		m.memories.RecordDecision(cfg.ID, d.ID)
		m.recordBoundaryViolations(cfg.ID, d.BoundaryChecks)
		created++

		m.emitDecisionLifecycle(d, events.DecisionCreated, rec.Rationale)
		switch d.Status {
		case domain.DecisionPending:
			m.emitDecisionLifecycle(d, events.DecisionPendingApproval, "")
		case domain.DecisionApproved:
			m.emitDecisionLifecycle(d, events.DecisionApproved, "")
		case domain.DecisionRejected:
			m.emitDecisionLifecycle(d, events.DecisionRejectedByBoundary, d.Reasoning.Summary)
		}
	}
	return created
}

// recordBoundaryViolations bumps the stored violation counters for every
// failed check. The boundary engine evaluates a config copy, so the write
// goes through the registry lock against the stored config.
func (m *Manager) recordBoundaryViolations(agentID string, checks []domain.BoundaryCheck) {
	var failed []string
	for _, c := range checks {
		if !c.Passed {
			failed = append(failed, c.BoundaryID)
		}
	}
	if len(failed) == 0 {
		return
	}

	now := time.Now().UTC()
	_ = m.registry.UpdateConfig(agentID, func(stored *domain.AgentConfig) {
		for _, id := range failed {
			for i := range stored.Boundaries {
				if stored.Boundaries[i].ID == id {
					stored.Boundaries[i].Violations++
					at := now
					stored.Boundaries[i].LastViolation = &at
				}
			}
		}
	})
}

// executePhase runs every approved decision through the coordinator. The
// stored decision is moved to executing first so a concurrent cancel cannot
// race the order; the adapter call itself happens on a copy with no locks
// held.
func (m *Manager) executePhase(ctx context.Context, agentID string) {
	for _, cp := range m.decisions.WithStatus(agentID, domain.DecisionApproved) {
		if err := m.decisions.Transition(cp.ID, domain.DecisionExecuting); err != nil {
			continue // cancelled since the copy was taken
		}

		working := cp // status still approved; the coordinator owns the transitions
		if err := m.coordinator.Execute(ctx, &working); err != nil {
			m.log.Error().Err(err).Str("decision_id", cp.ID).Msg("Execution refused")
			_ = m.decisions.Update(cp.ID, func(d *domain.AgentDecision) {
				d.Status = domain.DecisionFailed
			})
			continue
		}

		_ = m.decisions.Update(cp.ID, func(d *domain.AgentDecision) {
			d.Status = working.Status
			d.Execution = working.Execution
		})
	}
}

// learnPhase reviews executed decisions, writes outcome updates back to the
// store, and persists any personality adaptation.
func (m *Manager) learnPhase(agentID string) {
	cfg, err := m.registry.Config(agentID)
	if err != nil {
		return
	}

	open := m.decisions.ExecutedUnclassified(agentID)
	if len(open) == 0 {
		return
	}
	ptrs := make([]*domain.AgentDecision, len(open))
	for i := range open {
		ptrs[i] = &open[i]
	}

	before := cfg.Personality.RiskTolerance
	m.learner.Review(&cfg, ptrs, time.Now().UTC())

	for _, d := range ptrs {
		outcome := d.Outcome
		_ = m.decisions.Update(d.ID, func(stored *domain.AgentDecision) {
			stored.Outcome = outcome
		})
	}

	if cfg.Personality.RiskTolerance != before {
		adjusted := cfg.Personality.RiskTolerance
		_ = m.registry.UpdateConfig(agentID, func(stored *domain.AgentConfig) {
			stored.Personality.RiskTolerance = adjusted
		})
	}
}

func (m *Manager) emitDecisionLifecycle(d *domain.AgentDecision, eventType events.EventType, reason string) {
	data := &events.DecisionEventData{
		AgentID:    d.AgentID,
		DecisionID: d.ID,
		Type:       string(d.Type),
		Asset:      d.Action.Asset,
		Direction:  string(d.Action.Direction),
		Amount:     d.Action.Amount,
		Confidence: d.ConfidenceScore,
		Status:     string(d.Status),
		Reason:     reason,
		Event:      eventType,
	}
	m.eventMgr.EmitTyped("agent", data)
}
