package agent

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/helmsman/internal/domain"
)

// DecisionStore is the in-memory system of record for decisions. Decisions
// are retained indefinitely. All mutation goes through Update so status
// transitions stay serialized; readers get copies.
type DecisionStore struct {
	mu      sync.RWMutex
	byID    map[string]*domain.AgentDecision
	byAgent map[string][]string // insertion order
}

// NewDecisionStore creates a new decision store
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{
		byID:    make(map[string]*domain.AgentDecision),
		byAgent: make(map[string][]string),
	}
}

// Add stores a new decision.
func (s *DecisionStore) Add(d *domain.AgentDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.byID[d.ID] = &cp
	s.byAgent[d.AgentID] = append(s.byAgent[d.AgentID], d.ID)
}

// Get returns a copy of one decision.
func (s *DecisionStore) Get(id string) (domain.AgentDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return domain.AgentDecision{}, fmt.Errorf("decision %s: %w", id, domain.ErrDecisionNotFound)
	}
	return *d, nil
}

// Update runs fn on the stored decision under the store lock. fn must not
// block; slow work happens on copies outside the store.
func (s *DecisionStore) Update(id string, fn func(d *domain.AgentDecision)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("decision %s: %w", id, domain.ErrDecisionNotFound)
	}
	fn(d)
	return nil
}

// Transition applies a guarded status change. Returns ErrInvalidTransition
// if the stored status does not allow it.
func (s *DecisionStore) Transition(id string, to domain.DecisionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("decision %s: %w", id, domain.ErrDecisionNotFound)
	}
	if !domain.CanTransition(d.Status, to) {
		return fmt.Errorf("decision %s: %w: %s -> %s", id, domain.ErrInvalidTransition, d.Status, to)
	}
	d.Status = to
	return nil
}

// ForAgent returns copies of all of one agent's decisions, oldest first.
func (s *DecisionStore) ForAgent(agentID string) []domain.AgentDecision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byAgent[agentID]
	out := make([]domain.AgentDecision, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.byID[id]; ok {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// WithStatus returns copies of one agent's decisions in the given status.
func (s *DecisionStore) WithStatus(agentID string, status domain.DecisionStatus) []domain.AgentDecision {
	var out []domain.AgentDecision
	for _, d := range s.ForAgent(agentID) {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out
}

// ExecutedUnclassified returns copies of executed decisions whose final
// outcome is not yet set. These feed the learning pass.
func (s *DecisionStore) ExecutedUnclassified(agentID string) []domain.AgentDecision {
	var out []domain.AgentDecision
	for _, d := range s.ForAgent(agentID) {
		if d.Status == domain.DecisionExecuted && d.Outcome.Final == "" {
			out = append(out, d)
		}
	}
	return out
}

// CountCreatedSince counts decisions created at or after the cutoff.
// Every formulated decision counts toward the daily cap, rejected ones
// included.
func (s *DecisionStore) CountCreatedSince(agentID string, cutoff time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.byAgent[agentID] {
		if d, ok := s.byID[id]; ok && !d.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n
}

// CancelOpen cancels every pending and approved decision for one agent and
// returns how many were cancelled. Used by the emergency stop.
func (s *DecisionStore) CancelOpen(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.byAgent[agentID] {
		d, ok := s.byID[id]
		if !ok {
			continue
		}
		if d.Status == domain.DecisionPending || d.Status == domain.DecisionApproved {
			d.Status = domain.DecisionCancelled
			n++
		}
	}
	return n
}
