package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/helmsman/internal/domain"
)

// Status is the registry's view of one agent: its config plus runtime
// bookkeeping.
type Status struct {
	Config      domain.AgentConfig `json:"config"`
	State       domain.AgentState  `json:"state"`
	CreatedAt   time.Time          `json:"created_at"`
	LastCycleAt *time.Time         `json:"last_cycle_at,omitempty"`
	CycleCount  int                `json:"cycle_count"`
	LastError   string             `json:"last_error,omitempty"`
}

type registryEntry struct {
	cfg         domain.AgentConfig
	state       domain.AgentState
	createdAt   time.Time
	lastCycleAt *time.Time
	cycleCount  int
	lastError   string
}

// Registry holds all known agents. Configs are read far more often than
// they change, so reads hand out deep copies under an RLock; the stored
// config (boundary violation counters included) is only ever mutated
// through UpdateConfig.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*registryEntry
}

// NewRegistry creates a new agent registry
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*registryEntry)}
}

// Add registers a new agent in the initializing state.
func (r *Registry) Add(cfg domain.AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[cfg.ID] = &registryEntry{
		cfg:       cloneConfig(cfg),
		state:     domain.StateInitializing,
		createdAt: time.Now().UTC(),
	}
}

// Remove deletes an agent from the registry.
func (r *Registry) Remove(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

// Config returns a copy of one agent's config.
func (r *Registry) Config(agentID string) (domain.AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[agentID]
	if !ok {
		return domain.AgentConfig{}, fmt.Errorf("agent %s: %w", agentID, domain.ErrAgentNotFound)
	}
	return cloneConfig(e.cfg), nil
}

// Get returns one agent's full status.
func (r *Registry) Get(agentID string) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[agentID]
	if !ok {
		return Status{}, fmt.Errorf("agent %s: %w", agentID, domain.ErrAgentNotFound)
	}
	return statusOf(e), nil
}

// List returns the status of every agent.
func (r *Registry) List() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.agents))
	for _, e := range r.agents {
		out = append(out, statusOf(e))
	}
	return out
}

// State returns one agent's lifecycle state.
func (r *Registry) State(agentID string) (domain.AgentState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[agentID]
	if !ok {
		return "", fmt.Errorf("agent %s: %w", agentID, domain.ErrAgentNotFound)
	}
	return e.state, nil
}

// SetState moves one agent to a new lifecycle state.
func (r *Registry) SetState(agentID string, state domain.AgentState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, domain.ErrAgentNotFound)
	}
	e.state = state
	return nil
}

// SetPhase advances the cycle's phase state, but never out of emergency or
// disabled: those are operator-owned and only SetState moves past them.
// Returns whether the phase was applied, so a running cycle knows to abort.
func (r *Registry) SetPhase(agentID string, state domain.AgentState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return false
	}
	if e.state == domain.StateEmergency || e.state == domain.StateDisabled {
		return false
	}
	e.state = state
	return true
}

// UpdateConfig runs fn on the stored config under the registry lock.
// The learning engine uses this to persist personality adaptation.
func (r *Registry) UpdateConfig(agentID string, fn func(cfg *domain.AgentConfig)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, domain.ErrAgentNotFound)
	}
	fn(&e.cfg)
	return nil
}

// RecordCycle updates the cycle bookkeeping after a completed cycle.
func (r *Registry) RecordCycle(agentID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.agents[agentID]; ok {
		e.lastCycleAt = &at
		e.cycleCount++
	}
}

// RecordError stores the most recent cycle error message.
func (r *Registry) RecordError(agentID, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.agents[agentID]; ok {
		e.lastError = msg
	}
}

func statusOf(e *registryEntry) Status {
	s := Status{
		Config:     cloneConfig(e.cfg),
		State:      e.state,
		CreatedAt:  e.createdAt,
		CycleCount: e.cycleCount,
		LastError:  e.lastError,
	}
	if e.lastCycleAt != nil {
		at := *e.lastCycleAt
		s.LastCycleAt = &at
	}
	return s
}

// cloneConfig copies a config including its slice-backed fields, so a
// handed-out config never aliases the registry's stored one.
func cloneConfig(cfg domain.AgentConfig) domain.AgentConfig {
	out := cfg
	if cfg.Boundaries != nil {
		out.Boundaries = make([]domain.AgentBoundary, len(cfg.Boundaries))
		copy(out.Boundaries, cfg.Boundaries)
		for i := range out.Boundaries {
			if lv := out.Boundaries[i].LastViolation; lv != nil {
				at := *lv
				out.Boundaries[i].LastViolation = &at
			}
		}
	}
	if cfg.Personality.Biases != nil {
		out.Personality.Biases = append([]domain.BiasNote(nil), cfg.Personality.Biases...)
	}
	return out
}
