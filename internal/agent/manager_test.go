package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aristath/helmsman/internal/config"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource serves a rising price series and a bull regime so every cycle
// produces at least one momentum recommendation.
type stubSource struct{}

func (s *stubSource) Observe(_ context.Context, _ string, category domain.ObservationCategory) (domain.Observation, error) {
	obs := domain.Observation{
		Timestamp:    time.Now().UTC(),
		Category:     category,
		Significance: 60,
	}
	switch category {
	case domain.ObservePrice:
		closes := make([]float64, 40)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		obs.Payload.Price = &domain.PricePayload{Closes: map[string][]float64{"AAPL": closes}}
	case domain.ObserveRegime:
		obs.Payload.Regime = &domain.RegimePayload{Regime: domain.RegimeBull, Strength: 80}
	case domain.ObserveVolatility:
		obs.Payload.Volatility = &domain.VolatilityPayload{Market: 0.15}
	case domain.ObserveSentiment:
		obs.Payload.Sentiment = &domain.SentimentPayload{Market: 20}
	case domain.ObserveCorrelation:
		obs.Payload.Correlation = &domain.CorrelationPayload{MeanPairwise: 0.3}
	}
	return obs, nil
}

type stubAdapter struct {
	mu      sync.Mutex
	submits []domain.OrderRequest
	fail    bool
}

func (a *stubAdapter) Submit(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submits = append(a.submits, req)
	if a.fail {
		return domain.OrderResult{Success: false, Error: "venue rejected"}, nil
	}
	return domain.OrderResult{
		Success:      true,
		OrderID:      "ord-1",
		FilledPrice:  139,
		FilledAmount: req.Amount,
	}, nil
}

func (a *stubAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.submits)
}

type stubPortfolio struct{}

func (p *stubPortfolio) Portfolio(_ context.Context, _ string) (domain.PortfolioState, error) {
	return domain.PortfolioState{
		TotalCapital:    100_000,
		CashAvailable:   60_000,
		PositionWeights: map[string]float64{},
		Drawdown:        0.02,
		Leverage:        1.0,
	}, nil
}

func testManagerConfig() *config.Config {
	return &config.Config{
		CycleInterval:      time.Minute,
		ObservationTimeout: time.Second,
		ExecutionTimeout:   time.Second,
		Learning:           config.DefaultLearning(),
	}
}

func newTestManager(t *testing.T, adapter domain.ExecutionAdapter) (*Manager, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	mgr := events.NewManager(bus, zerolog.Nop())
	m := NewManager(testManagerConfig(), &stubSource{}, adapter, &stubPortfolio{}, mgr, zerolog.Nop())
	t.Cleanup(m.StopAll)
	return m, bus
}

func agentSpec(autonomy domain.AutonomyLevel) domain.AgentConfig {
	return domain.AgentConfig{
		Name:     "cycle test agent",
		Mandate:  domain.MandateBalancedGrowth,
		Autonomy: autonomy,
		Personality: domain.PersonalityProfile{
			RiskTolerance: 50,
			Patience:      50,
			Contrarianism: 30,
			Adaptability:  50,
		},
		Limits: domain.OperatingLimits{
			MaxCapitalPerDecision: 0.05,
			MinConfidenceToAct:    40,
			MaxDecisionsPerDay:    10,
			MaxDrawdown:           0.25,
		},
		RequireApprovalAbove: 100_000,
		LearningEnabled:      true,
		LearningRate:         5,
		CycleInterval:        time.Minute,
	}
}

func TestCreateAgent(t *testing.T) {
	m, bus := newTestManager(t, &stubAdapter{})

	var created []events.EventType
	bus.Subscribe(events.AgentCreated, func(e *events.Event) {
		created = append(created, e.Type)
	})

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.ID)
	assert.NotEmpty(t, cfg.Boundaries, "mandate defaults must be attached")

	status, err := m.Registry().Get(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSleeping, status.State, "a created agent comes up with its loop running")
	assert.Len(t, created, 1)

	// the runner is live without an explicit StartAgent call
	require.NoError(t, m.TriggerCycle(cfg.ID))
	assert.Eventually(t, func() bool {
		s, _ := m.Registry().Get(cfg.ID)
		return s.CycleCount >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateAgent_InvalidConfigRejected(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	spec := agentSpec(domain.AutonomyFull)
	spec.Limits.MaxCapitalPerDecision = 0

	_, err := m.CreateAgent(spec)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestUpdateAgent(t *testing.T) {
	m, bus := newTestManager(t, &stubAdapter{})

	var updated int
	bus.Subscribe(events.AgentUpdated, func(*events.Event) { updated++ })

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)

	autonomy := domain.AutonomyAdvisory
	threshold := 2_500.0
	next, err := m.UpdateAgent(cfg.ID, AgentUpdate{
		Autonomy:             &autonomy,
		RequireApprovalAbove: &threshold,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AutonomyAdvisory, next.Autonomy)
	assert.Equal(t, 2_500.0, next.RequireApprovalAbove)
	assert.Equal(t, cfg.Name, next.Name, "untouched fields survive")
	assert.Equal(t, 1, updated)

	stored, err := m.Registry().Config(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AutonomyAdvisory, stored.Autonomy)
}

func TestUpdateAgent_InvalidUpdateRejected(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)

	bad := domain.OperatingLimits{MaxCapitalPerDecision: 0, MaxDecisionsPerDay: 10}
	_, err = m.UpdateAgent(cfg.ID, AgentUpdate{Limits: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	// the stored config is untouched
	stored, err := m.Registry().Config(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.05, stored.Limits.MaxCapitalPerDecision)
}

func TestUpdateAgent_BoundariesRemergeOntoDefaults(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)

	override := []domain.AgentBoundary{{
		Kind:      domain.BoundaryHard,
		Category:  domain.BoundaryAllocation,
		Condition: "position size as fraction of capital below threshold",
		Threshold: 0.02,
		Enabled:   true,
	}}
	next, err := m.UpdateAgent(cfg.ID, AgentUpdate{Boundaries: override})
	require.NoError(t, err)

	assert.Len(t, next.Boundaries, len(cfg.Boundaries),
		"override replaces the matching default instead of stacking")

	var found bool
	for _, b := range next.Boundaries {
		if b.Category == domain.BoundaryAllocation && b.Threshold == 0.02 {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunCycle_FullAutonomyExecutesDecision(t *testing.T) {
	adapter := &stubAdapter{}
	m, bus := newTestManager(t, adapter)

	var cycleEvents int
	bus.Subscribe(events.CycleCompleted, func(*events.Event) { cycleEvents++ })

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)

	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	decisions := m.Decisions().ForAgent(cfg.ID)
	require.NotEmpty(t, decisions, "a rising series in a bull regime must yield a decision")

	d := decisions[0]
	assert.Equal(t, domain.DecisionExecuted, d.Status)
	require.NotNil(t, d.Execution)
	assert.Equal(t, "ord-1", d.Execution.OrderID)
	assert.Equal(t, "AAPL", d.Action.Asset)

	assert.Equal(t, 1, cycleEvents)
	assert.Positive(t, adapter.count())

	// observations landed in short-term memory
	mem := m.Memories().Snapshot(cfg.ID)
	require.NotNil(t, mem)
	assert.Len(t, mem.ShortTerm.Observations, len(domain.AllObservationCategories))
	assert.NotEmpty(t, mem.ShortTerm.DecisionIDs)

	status, _ := m.Registry().Get(cfg.ID)
	assert.Equal(t, domain.StateSleeping, status.State)
	assert.Equal(t, 1, status.CycleCount)
}

func TestRunCycle_SupervisedDecisionAwaitsApproval(t *testing.T) {
	adapter := &stubAdapter{}
	m, bus := newTestManager(t, adapter)

	var pending int
	bus.Subscribe(events.DecisionPendingApproval, func(*events.Event) { pending++ })

	spec := agentSpec(domain.AutonomySupervised)
	spec.RequireApprovalAbove = 1 // everything needs a human
	cfg, err := m.CreateAgent(spec)
	require.NoError(t, err)

	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	decisions := m.Decisions().WithStatus(cfg.ID, domain.DecisionPending)
	require.NotEmpty(t, decisions)
	assert.Equal(t, 0, adapter.count(), "nothing executes before approval")
	assert.Positive(t, pending)

	// approve, then the next cycle executes it
	require.NoError(t, m.ApproveDecision(decisions[0].ID))
	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	d, err := m.Decisions().Get(decisions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionExecuted, d.Status)
	assert.Positive(t, adapter.count())
}

func TestRejectDecision(t *testing.T) {
	m, bus := newTestManager(t, &stubAdapter{})

	var rejected int
	bus.Subscribe(events.DecisionRejectedByHuman, func(*events.Event) { rejected++ })

	spec := agentSpec(domain.AutonomyAdvisory)
	cfg, err := m.CreateAgent(spec)
	require.NoError(t, err)

	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))
	pending := m.Decisions().WithStatus(cfg.ID, domain.DecisionPending)
	require.NotEmpty(t, pending)

	require.NoError(t, m.RejectDecision(pending[0].ID, "not convinced"))
	assert.Equal(t, 1, rejected)

	// human rejection is a cancellation; rejected is the boundary verdict
	d, _ := m.Decisions().Get(pending[0].ID)
	assert.Equal(t, domain.DecisionCancelled, d.Status)

	// a terminal decision cannot be approved afterwards
	assert.ErrorIs(t, m.ApproveDecision(pending[0].ID), domain.ErrInvalidTransition)
}

func TestRejectDecision_AfterApproval(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	spec := agentSpec(domain.AutonomySupervised)
	spec.RequireApprovalAbove = 1
	cfg, err := m.CreateAgent(spec)
	require.NoError(t, err)

	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))
	pending := m.Decisions().WithStatus(cfg.ID, domain.DecisionPending)
	require.NotEmpty(t, pending)

	// an operator can still pull an approved decision before it executes
	require.NoError(t, m.ApproveDecision(pending[0].ID))
	require.NoError(t, m.RejectDecision(pending[0].ID, "second thoughts"))

	d, _ := m.Decisions().Get(pending[0].ID)
	assert.Equal(t, domain.DecisionCancelled, d.Status)
}

func TestTriggerEmergency(t *testing.T) {
	m, bus := newTestManager(t, &stubAdapter{})

	var emergency *events.Event
	bus.Subscribe(events.AgentEmergency, func(e *events.Event) { emergency = e })

	spec := agentSpec(domain.AutonomyAdvisory)
	cfg, err := m.CreateAgent(spec)
	require.NoError(t, err)

	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))
	open := m.Decisions().WithStatus(cfg.ID, domain.DecisionPending)
	require.NotEmpty(t, open)

	require.NoError(t, m.TriggerEmergency(cfg.ID, "operator hit the red button"))

	state, _ := m.Registry().State(cfg.ID)
	assert.Equal(t, domain.StateEmergency, state)
	for _, d := range m.Decisions().ForAgent(cfg.ID) {
		assert.Equal(t, domain.DecisionCancelled, d.Status)
	}
	require.NotNil(t, emergency)
	assert.Equal(t, float64(len(open)), emergency.Data["cancelled_count"])

	// a frozen agent ignores further cycles
	before := len(m.Decisions().ForAgent(cfg.ID))
	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))
	assert.Len(t, m.Decisions().ForAgent(cfg.ID), before)
}

// brokePortfolio has no cash, so the order-sanity hard boundary fails.
type brokePortfolio struct{}

func (p *brokePortfolio) Portfolio(_ context.Context, _ string) (domain.PortfolioState, error) {
	return domain.PortfolioState{
		TotalCapital:    100_000,
		CashAvailable:   10,
		PositionWeights: map[string]float64{},
		Leverage:        1.0,
	}, nil
}

func TestRunCycle_HardBoundaryRejectsWithoutAdapterCall(t *testing.T) {
	adapter := &stubAdapter{}
	bus := events.NewBus()
	mgr := events.NewManager(bus, zerolog.Nop())
	m := NewManager(testManagerConfig(), &stubSource{}, adapter, &brokePortfolio{}, mgr, zerolog.Nop())
	t.Cleanup(m.StopAll)

	var rejected int
	bus.Subscribe(events.DecisionRejectedByBoundary, func(*events.Event) { rejected++ })

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)
	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	decisions := m.Decisions().ForAgent(cfg.ID)
	require.NotEmpty(t, decisions)
	for _, d := range decisions {
		assert.Equal(t, domain.DecisionRejected, d.Status)
	}
	assert.Positive(t, rejected)
	assert.Zero(t, adapter.count(), "a boundary-rejected decision never reaches the venue")
}

func TestRunCycle_DailyCapStopsFormulation(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	spec := agentSpec(domain.AutonomyAdvisory)
	spec.Limits.MaxDecisionsPerDay = 2
	cfg, err := m.CreateAgent(spec)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, m.RunCycle(context.Background(), cfg.ID))
	}

	assert.LessOrEqual(t, len(m.Decisions().ForAgent(cfg.ID)), 2)
}

func TestRunCycle_InactiveHoursSkipped(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	spec := agentSpec(domain.AutonomyFull)
	now := time.Now().UTC()
	// a one-hour window that excludes the current time
	start := now.Add(2 * time.Hour)
	end := now.Add(3 * time.Hour)
	spec.ActiveHours = domain.ActiveHours{StartHour: start.Hour(), EndHour: end.Hour()}

	cfg, err := m.CreateAgent(spec)
	require.NoError(t, err)

	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	assert.Empty(t, m.Decisions().ForAgent(cfg.ID))
	mem := m.Memories().Snapshot(cfg.ID)
	assert.Empty(t, mem.ShortTerm.Observations, "a skipped cycle observes nothing")
}

func TestRunCycle_FailedExecutionRecorded(t *testing.T) {
	adapter := &stubAdapter{fail: true}
	m, bus := newTestManager(t, adapter)

	var failed int
	bus.Subscribe(events.DecisionFailed, func(*events.Event) { failed++ })

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)

	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	decisions := m.Decisions().WithStatus(cfg.ID, domain.DecisionFailed)
	require.NotEmpty(t, decisions)
	assert.Equal(t, "venue rejected", decisions[0].Execution.Error)
	assert.Positive(t, failed)
}

func TestStartStopAgentLoop(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)

	require.NoError(t, m.StartAgent(cfg.ID))
	require.NoError(t, m.StartAgent(cfg.ID), "starting twice is a no-op")

	// manual trigger drives a cycle through the loop goroutine
	require.NoError(t, m.TriggerCycle(cfg.ID))
	assert.Eventually(t, func() bool {
		s, _ := m.Registry().Get(cfg.ID)
		return s.CycleCount >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.StopAgent(cfg.ID))
	assert.Error(t, m.TriggerCycle(cfg.ID), "no loop after stop")

	state, _ := m.Registry().State(cfg.ID)
	assert.Equal(t, domain.StateSleeping, state)
}

func TestDisableAgentBlocksStart(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)

	require.NoError(t, m.DisableAgent(cfg.ID))
	assert.Error(t, m.StartAgent(cfg.ID))

	require.NoError(t, m.EnableAgent(cfg.ID))
	require.NoError(t, m.StartAgent(cfg.ID))
	m.StopAll()
}

func TestExplainSurfaces(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)
	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	decisions := m.Decisions().ForAgent(cfg.ID)
	require.NotEmpty(t, decisions)

	text, err := m.ExplainDecision(decisions[0].ID, "simple")
	require.NoError(t, err)
	assert.Contains(t, text, "I decided to")

	behavior, err := m.ExplainAgent(cfg.ID)
	require.NoError(t, err)
	assert.Contains(t, behavior, "cycle test agent")

	_, err = m.ExplainDecision("missing", "simple")
	assert.ErrorIs(t, err, domain.ErrDecisionNotFound)
}

func TestPerformanceRollup(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)
	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	p, err := m.Performance(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, p.AgentID)
	assert.Positive(t, p.DecisionCount)
	assert.Positive(t, p.ExecutedCount)
}

// slowAdapter holds each order at the venue long enough for a test to
// interleave an operator action with an in-flight execute phase.
type slowAdapter struct {
	stubAdapter
	delay   time.Duration
	started chan struct{}
	once    sync.Once
}

func (a *slowAdapter) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	a.once.Do(func() { close(a.started) })
	time.Sleep(a.delay)
	return a.stubAdapter.Submit(ctx, req)
}

func TestTriggerEmergency_MidExecutionIsImmediate(t *testing.T) {
	adapter := &slowAdapter{delay: 400 * time.Millisecond, started: make(chan struct{})}
	m, _ := newTestManager(t, adapter)

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyAdvisory))
	require.NoError(t, err)

	now := time.Now().UTC()
	for _, id := range []string{"slow-1", "slow-2"} {
		m.Decisions().Add(&domain.AgentDecision{
			ID:      id,
			AgentID: cfg.ID,
			Type:    domain.DecisionTypeEntry,
			Action: domain.DecisionAction{
				Asset:     "AAPL",
				Direction: domain.DirectionLong,
				Amount:    1000,
			},
			Status:    domain.DecisionApproved,
			CreatedAt: now,
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.executePhase(context.Background(), cfg.ID)
	}()

	<-adapter.started
	freezeStart := time.Now()
	require.NoError(t, m.TriggerEmergency(cfg.ID, "kill switch"))
	assert.Less(t, time.Since(freezeStart), 200*time.Millisecond,
		"the stop must not wait for the order at the venue")

	state, _ := m.Registry().State(cfg.ID)
	assert.Equal(t, domain.StateEmergency, state)

	<-done
	d1, _ := m.Decisions().Get("slow-1")
	d2, _ := m.Decisions().Get("slow-2")
	assert.Equal(t, domain.DecisionExecuted, d1.Status, "the in-flight order completes")
	assert.Equal(t, domain.DecisionCancelled, d2.Status, "the queued order never reaches the venue")
	assert.Equal(t, 1, adapter.count())
}

func TestRunCycle_ViolationCountersPersistOnRegistry(t *testing.T) {
	adapter := &stubAdapter{}
	bus := events.NewBus()
	mgr := events.NewManager(bus, zerolog.Nop())
	m := NewManager(testManagerConfig(), &stubSource{}, adapter, &brokePortfolio{}, mgr, zerolog.Nop())
	t.Cleanup(m.StopAll)

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)
	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	executionBoundary := func(boundaries []domain.AgentBoundary) *domain.AgentBoundary {
		for i := range boundaries {
			if boundaries[i].Category == domain.BoundaryExecution {
				return &boundaries[i]
			}
		}
		return nil
	}

	stored, err := m.Registry().Config(cfg.ID)
	require.NoError(t, err)
	b := executionBoundary(stored.Boundaries)
	require.NotNil(t, b)
	assert.GreaterOrEqual(t, b.Violations, 1)
	require.NotNil(t, b.LastViolation)

	// the registry hands out copies; scribbling on one changes nothing
	b.Violations = 99
	again, err := m.Registry().Config(cfg.ID)
	require.NoError(t, err)
	assert.NotEqual(t, 99, executionBoundary(again.Boundaries).Violations)

	// counters survive a boundary re-merge on update
	recorded := executionBoundary(again.Boundaries).Violations
	override := []domain.AgentBoundary{{
		Kind:      domain.BoundaryHard,
		Category:  domain.BoundaryAllocation,
		Condition: "position size as fraction of capital below threshold",
		Threshold: 0.02,
		Enabled:   true,
	}}
	next, err := m.UpdateAgent(cfg.ID, AgentUpdate{Boundaries: override})
	require.NoError(t, err)
	merged := executionBoundary(next.Boundaries)
	require.NotNil(t, merged)
	assert.Equal(t, recorded, merged.Violations)
	assert.NotNil(t, merged.LastViolation)
}

func TestRunCycle_DecisionCounterCountsClassifiedOnce(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)
	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	executed := m.Decisions().WithStatus(cfg.ID, domain.DecisionExecuted)
	require.NotEmpty(t, executed)

	// fresh executions are recorded but not yet counted
	mem := m.Memories().Snapshot(cfg.ID)
	assert.Equal(t, 0, mem.LongTerm.TotalDecisions)

	// age the fill past the evaluation horizon so the next cycle classifies it
	past := time.Now().UTC().Add(-8 * 24 * time.Hour)
	require.NoError(t, m.Decisions().Update(executed[0].ID, func(d *domain.AgentDecision) {
		d.Execution.CompletedAt = &past
	}))
	require.NoError(t, m.RunCycle(context.Background(), cfg.ID))

	mem = m.Memories().Snapshot(cfg.ID)
	assert.Equal(t, 1, mem.LongTerm.TotalDecisions, "one classified outcome, counted once")
}

func TestDeleteAgent(t *testing.T) {
	m, _ := newTestManager(t, &stubAdapter{})

	cfg, err := m.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)
	require.NoError(t, m.DeleteAgent(cfg.ID))

	_, err = m.Registry().Get(cfg.ID)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	assert.Nil(t, m.Memories().Snapshot(cfg.ID))
}
