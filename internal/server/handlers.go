package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/agent"
	"github.com/aristath/helmsman/internal/agent/explain"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/events"
	"github.com/aristath/helmsman/internal/journal"
)

// AgentHandlers serves the agent and decision REST surface.
type AgentHandlers struct {
	manager *agent.Manager
	journal *journal.Journal
	log     zerolog.Logger
}

// NewAgentHandlers creates agent handlers.
func NewAgentHandlers(manager *agent.Manager, jnl *journal.Journal, log zerolog.Logger) *AgentHandlers {
	return &AgentHandlers{
		manager: manager,
		journal: jnl,
		log:     log.With().Str("component", "agent_handlers").Logger(),
	}
}

// RegisterRoutes mounts all agent routes on the given router.
func (h *AgentHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/agents", func(r chi.Router) {
		r.Post("/", h.HandleCreateAgent)
		r.Get("/", h.HandleListAgents)

		r.Route("/{agentID}", func(r chi.Router) {
			r.Get("/", h.HandleGetAgent)
			r.Put("/", h.HandleUpdateAgent)
			r.Delete("/", h.HandleDeleteAgent)
			r.Post("/start", h.HandleStartAgent)
			r.Post("/stop", h.HandleStopAgent)
			r.Post("/disable", h.HandleDisableAgent)
			r.Post("/enable", h.HandleEnableAgent)
			r.Post("/emergency", h.HandleEmergency)
			r.Post("/cycle", h.HandleTriggerCycle)
			r.Get("/decisions", h.HandleListDecisions)
			r.Get("/performance", h.HandlePerformance)
			r.Get("/memory", h.HandleMemory)
			r.Get("/explain", h.HandleExplainAgent)
		})
	})

	r.Route("/decisions/{decisionID}", func(r chi.Router) {
		r.Get("/", h.HandleGetDecision)
		r.Post("/approve", h.HandleApproveDecision)
		r.Post("/reject", h.HandleRejectDecision)
		r.Post("/cancel", h.HandleCancelDecision)
		r.Get("/explain", h.HandleExplainDecision)
	})

	r.Get("/journal", h.HandleJournal)
}

// HandleCreateAgent handles POST /api/agents.
func (h *AgentHandlers) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var cfg domain.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.manager.CreateAgent(cfg)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// HandleListAgents handles GET /api/agents.
func (h *AgentHandlers) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": h.manager.Registry().List(),
	})
}

// HandleGetAgent handles GET /api/agents/{agentID}.
func (h *AgentHandlers) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Registry().Get(chi.URLParam(r, "agentID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleUpdateAgent handles PUT /api/agents/{agentID}.
// Accepts a partial update: boundaries, autonomy, limits, approval
// threshold, learning knobs and active hours.
func (h *AgentHandlers) HandleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var update agent.AgentUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.manager.UpdateAgent(chi.URLParam(r, "agentID"), update)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleDeleteAgent handles DELETE /api/agents/{agentID}.
func (h *AgentHandlers) HandleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeleteAgent(chi.URLParam(r, "agentID")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleStartAgent handles POST /api/agents/{agentID}/start.
func (h *AgentHandlers) HandleStartAgent(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.manager.StartAgent, "started")
}

// HandleStopAgent handles POST /api/agents/{agentID}/stop.
func (h *AgentHandlers) HandleStopAgent(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.manager.StopAgent, "stopped")
}

// HandleDisableAgent handles POST /api/agents/{agentID}/disable.
func (h *AgentHandlers) HandleDisableAgent(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.manager.DisableAgent, "disabled")
}

// HandleEnableAgent handles POST /api/agents/{agentID}/enable.
func (h *AgentHandlers) HandleEnableAgent(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.manager.EnableAgent, "enabled")
}

// HandleTriggerCycle handles POST /api/agents/{agentID}/cycle.
func (h *AgentHandlers) HandleTriggerCycle(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.manager.TriggerCycle, "cycle_triggered")
}

func (h *AgentHandlers) lifecycleAction(w http.ResponseWriter, r *http.Request, action func(string) error, status string) {
	if err := action(chi.URLParam(r, "agentID")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// HandleEmergency handles POST /api/agents/{agentID}/emergency.
// Cancels all open decisions and freezes the agent until re-enabled.
func (h *AgentHandlers) HandleEmergency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	// The body is optional; an empty reason is allowed.
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := h.manager.TriggerEmergency(chi.URLParam(r, "agentID"), body.Reason); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "emergency_stopped"})
}

// HandleListDecisions handles GET /api/agents/{agentID}/decisions.
// An optional ?status= query filters by decision status.
func (h *AgentHandlers) HandleListDecisions(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if _, err := h.manager.Registry().Get(agentID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	var decisions []domain.AgentDecision
	if status := r.URL.Query().Get("status"); status != "" {
		decisions = h.manager.Decisions().WithStatus(agentID, domain.DecisionStatus(status))
	} else {
		decisions = h.manager.Decisions().ForAgent(agentID)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// HandlePerformance handles GET /api/agents/{agentID}/performance.
func (h *AgentHandlers) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.manager.Performance(chi.URLParam(r, "agentID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

// HandleMemory handles GET /api/agents/{agentID}/memory.
func (h *AgentHandlers) HandleMemory(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if _, err := h.manager.Registry().Get(agentID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	snapshot := h.manager.Memories().Snapshot(agentID)
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "no memory for agent")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleExplainAgent handles GET /api/agents/{agentID}/explain.
func (h *AgentHandlers) HandleExplainAgent(w http.ResponseWriter, r *http.Request) {
	explanation, err := h.manager.ExplainAgent(chi.URLParam(r, "agentID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"explanation": explanation})
}

// HandleGetDecision handles GET /api/decisions/{decisionID}.
func (h *AgentHandlers) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	decision, err := h.manager.Decisions().Get(chi.URLParam(r, "decisionID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// HandleApproveDecision handles POST /api/decisions/{decisionID}/approve.
func (h *AgentHandlers) HandleApproveDecision(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ApproveDecision(chi.URLParam(r, "decisionID")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// HandleRejectDecision handles POST /api/decisions/{decisionID}/reject.
func (h *AgentHandlers) HandleRejectDecision(w http.ResponseWriter, r *http.Request) {
	h.reviewAction(w, r, h.manager.RejectDecision, "rejected")
}

// HandleCancelDecision handles POST /api/decisions/{decisionID}/cancel.
func (h *AgentHandlers) HandleCancelDecision(w http.ResponseWriter, r *http.Request) {
	h.reviewAction(w, r, h.manager.CancelDecision, "cancelled")
}

func (h *AgentHandlers) reviewAction(w http.ResponseWriter, r *http.Request, action func(id, reason string) error, status string) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := action(chi.URLParam(r, "decisionID"), body.Reason); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// HandleExplainDecision handles GET /api/decisions/{decisionID}/explain.
// The ?level= query selects simple (default), detailed or technical.
func (h *AgentHandlers) HandleExplainDecision(w http.ResponseWriter, r *http.Request) {
	level := explain.DetailLevel(r.URL.Query().Get("level"))
	if level == "" {
		level = explain.DetailSimple
	}

	explanation, err := h.manager.ExplainDecision(chi.URLParam(r, "decisionID"), level)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"level":       string(level),
		"explanation": explanation,
	})
}

// HandleJournal handles GET /api/journal?types=...&limit=N.
func (h *AgentHandlers) HandleJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}

	var types []events.EventType
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, events.EventType(t))
		}
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.journal.Query(types, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query journal")
		writeError(w, http.StatusInternalServerError, "failed to query journal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// writeDomainError maps domain errors to HTTP status codes.
func (h *AgentHandlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAgentNotFound), errors.Is(err, domain.ErrDecisionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
