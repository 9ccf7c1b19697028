package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/helmsman/internal/agent"
	"github.com/aristath/helmsman/internal/config"
	"github.com/aristath/helmsman/internal/database"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/events"
	"github.com/aristath/helmsman/internal/journal"
)

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

type stubAdapter struct{}

func (a *stubAdapter) Submit(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{
		Success:      true,
		OrderID:      "ord-1",
		FilledPrice:  139,
		FilledAmount: req.Amount,
	}, nil
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

type testHarness struct {
	server  *Server
	manager *agent.Manager
	bus     *events.Bus
	journal *journal.Journal
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	dataDir := t.TempDir()
	cfg := &config.Config{
		DataDir:            dataDir,
		Port:               0,
		CycleInterval:      time.Minute,
		ObservationTimeout: time.Second,
		ExecutionTimeout:   time.Second,
		Learning:           config.DefaultLearning(),
	}

	bus := events.NewBus()
	eventMgr := events.NewManager(bus, zerolog.Nop())
	manager := agent.NewManager(cfg, &stubSource{}, &stubAdapter{}, &stubPortfolio{}, eventMgr, zerolog.Nop())
	t.Cleanup(manager.StopAll)

	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, "journal.db"),
		Profile: database.ProfileJournal,
		Name:    "journal",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	jnl, err := journal.New(db, zerolog.Nop())
	require.NoError(t, err)
	jnl.Attach(bus)

	srv := New(Config{
		Log:      zerolog.Nop(),
		Config:   cfg,
		Port:     0,
		DevMode:  true,
		Manager:  manager,
		EventBus: bus,
		Journal:  jnl,
	})

	return &testHarness{server: srv, manager: manager, bus: bus, journal: jnl}
}

func (h *testHarness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	return rec
}

func agentSpec(autonomy domain.AutonomyLevel) domain.AgentConfig {
	return domain.AgentConfig{
		Name:     "api test agent",
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

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHandleCreateAgent(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/agents", agentSpec(domain.AutonomyFull))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.AgentConfig
	decodeBody(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Boundaries)
}

func TestHandleCreateAgent_InvalidConfig(t *testing.T) {
	h := newTestHarness(t)

	spec := agentSpec(domain.AutonomyFull)
	spec.Limits.MaxCapitalPerDecision = 0

	rec := h.do(t, http.MethodPost, "/api/agents", spec)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateAgent_MalformedBody(t *testing.T) {
	h := newTestHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/agents", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListAndGetAgent(t *testing.T) {
	h := newTestHarness(t)

	cfg, err := h.manager.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Agents []agent.Status `json:"agents"`
	}
	decodeBody(t, rec, &list)
	require.Len(t, list.Agents, 1)
	assert.Equal(t, cfg.ID, list.Agents[0].Config.ID)

	rec = h.do(t, http.MethodGet, "/api/agents/"+cfg.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status agent.Status
	decodeBody(t, rec, &status)
	assert.Equal(t, domain.StateSleeping, status.State)
}

func TestHandleUpdateAgent(t *testing.T) {
	h := newTestHarness(t)

	cfg, err := h.manager.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)

	rec := h.do(t, http.MethodPut, "/api/agents/"+cfg.ID,
		map[string]interface{}{"autonomy": "advisory", "require_approval_above": 1_000})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated domain.AgentConfig
	decodeBody(t, rec, &updated)
	assert.Equal(t, domain.AutonomyAdvisory, updated.Autonomy)
	assert.Equal(t, 1_000.0, updated.RequireApprovalAbove)

	rec = h.do(t, http.MethodPut, "/api/agents/"+cfg.ID,
		map[string]interface{}{"autonomy": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetAgent_NotFound(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/api/agents/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecisionApprovalFlow(t *testing.T) {
	h := newTestHarness(t)

	spec := agentSpec(domain.AutonomyAdvisory)
	cfg, err := h.manager.CreateAgent(spec)
	require.NoError(t, err)

	require.NoError(t, h.manager.RunCycle(context.Background(), cfg.ID))

	rec := h.do(t, http.MethodGet, "/api/agents/"+cfg.ID+"/decisions?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Decisions []domain.AgentDecision `json:"decisions"`
		Count     int                    `json:"count"`
	}
	decodeBody(t, rec, &list)
	require.NotEmpty(t, list.Decisions, "advisory autonomy must leave decisions pending")
	decisionID := list.Decisions[0].ID

	rec = h.do(t, http.MethodPost, "/api/decisions/"+decisionID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/decisions/"+decisionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var d domain.AgentDecision
	decodeBody(t, rec, &d)
	assert.Equal(t, domain.DecisionApproved, d.Status)

	// approving twice is an invalid transition
	rec = h.do(t, http.MethodPost, "/api/decisions/"+decisionID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRejectDecisionWithReason(t *testing.T) {
	h := newTestHarness(t)

	cfg, err := h.manager.CreateAgent(agentSpec(domain.AutonomyAdvisory))
	require.NoError(t, err)
	require.NoError(t, h.manager.RunCycle(context.Background(), cfg.ID))

	pending := h.manager.Decisions().WithStatus(cfg.ID, domain.DecisionPending)
	require.NotEmpty(t, pending)

	rec := h.do(t, http.MethodPost, "/api/decisions/"+pending[0].ID+"/reject",
		map[string]string{"reason": "too risky today"})
	require.Equal(t, http.StatusOK, rec.Code)

	d, err := h.manager.Decisions().Get(pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionCancelled, d.Status)
}

func TestHandleEmergency(t *testing.T) {
	h := newTestHarness(t)

	cfg, err := h.manager.CreateAgent(agentSpec(domain.AutonomyAdvisory))
	require.NoError(t, err)
	require.NoError(t, h.manager.RunCycle(context.Background(), cfg.ID))

	rec := h.do(t, http.MethodPost, "/api/agents/"+cfg.ID+"/emergency",
		map[string]string{"reason": "operator stop"})
	require.Equal(t, http.StatusOK, rec.Code)

	state, err := h.manager.Registry().State(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEmergency, state)

	for _, d := range h.manager.Decisions().ForAgent(cfg.ID) {
		assert.Equal(t, domain.DecisionCancelled, d.Status)
	}
}

func TestHandleExplainDecision(t *testing.T) {
	h := newTestHarness(t)

	cfg, err := h.manager.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)
	require.NoError(t, h.manager.RunCycle(context.Background(), cfg.ID))

	decisions := h.manager.Decisions().ForAgent(cfg.ID)
	require.NotEmpty(t, decisions)

	rec := h.do(t, http.MethodGet, "/api/decisions/"+decisions[0].ID+"/explain?level=technical", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "technical", body["level"])
	assert.NotEmpty(t, body["explanation"])

	// default level is simple
	rec = h.do(t, http.MethodGet, "/api/decisions/"+decisions[0].ID+"/explain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Equal(t, "simple", body["level"])
}

func TestHandlePerformanceAndMemory(t *testing.T) {
	h := newTestHarness(t)

	cfg, err := h.manager.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)
	require.NoError(t, h.manager.RunCycle(context.Background(), cfg.ID))

	rec := h.do(t, http.MethodGet, "/api/agents/"+cfg.ID+"/performance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var perf domain.AgentPerformance
	decodeBody(t, rec, &perf)
	assert.Equal(t, cfg.ID, perf.AgentID)
	assert.Positive(t, perf.DecisionCount)

	rec = h.do(t, http.MethodGet, "/api/agents/"+cfg.ID+"/memory", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var mem domain.AgentMemory
	decodeBody(t, rec, &mem)
	assert.NotEmpty(t, mem.ShortTerm.Observations)
}

func TestHandleJournal(t *testing.T) {
	h := newTestHarness(t)

	cfg, err := h.manager.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)
	require.NoError(t, h.manager.RunCycle(context.Background(), cfg.ID))

	rec := h.do(t, http.MethodGet, "/api/journal?types=CYCLE_COMPLETED", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []journal.Entry `json:"entries"`
		Count   int             `json:"count"`
	}
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body.Entries, "the cycle completion event must be journaled")
	assert.Equal(t, events.CycleCompleted, body.Entries[0].Type)

	rec = h.do(t, http.MethodGet, "/api/journal?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestEventsStream_DeliversFilteredEvents(t *testing.T) {
	h := newTestHarness(t)

	srv := httptest.NewServer(h.server.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream?types=AGENT_CREATED", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the subscription a moment to land before emitting.
	time.Sleep(50 * time.Millisecond)
	_, err = h.manager.CreateAgent(agentSpec(domain.AutonomyFull))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	var received string
	for !bytes.Contains([]byte(received), []byte("AGENT_CREATED")) {
		n, err := resp.Body.Read(buf)
		require.NoError(t, err)
		received += string(buf[:n])
	}
	assert.Contains(t, received, "event: connected")
	assert.Contains(t, received, "event: AGENT_CREATED")
}
