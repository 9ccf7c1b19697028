// Package memory holds per-agent short-term and long-term state.
package memory

import (
	"sync"
	"time"

	"github.com/aristath/helmsman/internal/domain"
)

// Store owns one AgentMemory per agent. All access goes through the store's
// lock so the learning engine and the cycle can touch memory from different
// goroutines without coordination elsewhere.
type Store struct {
	mu       sync.RWMutex
	memories map[string]*domain.AgentMemory
}

// NewStore creates a new memory store
func NewStore() *Store {
	return &Store{
		memories: make(map[string]*domain.AgentMemory),
	}
}

// Allocate creates empty memory for a new agent. Idempotent.
func (s *Store) Allocate(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memories[agentID]; ok {
		return
	}
	s.memories[agentID] = &domain.AgentMemory{
		AgentID: agentID,
		ShortTerm: domain.ShortTermMemory{
			Context: make(map[string]string),
		},
		LongTerm: domain.LongTermMemory{
			Regimes: make(map[string]*domain.RegimeStats),
			Assets:  make(map[string]*domain.AssetStats),
		},
	}
}

// Delete removes an agent's memory entirely. Only called on agent deletion.
func (s *Store) Delete(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, agentID)
}

// Snapshot returns a deep copy of the agent's memory, or nil if unknown.
func (s *Store) Snapshot(agentID string) *domain.AgentMemory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[agentID]
	if !ok {
		return nil
	}
	return deepCopy(m)
}

// RecordObservation pushes an observation into the short-term window
// (bounded to the most recent 100) and the observation log (bounded to 1000).
func (s *Store) RecordObservation(agentID string, obs domain.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[agentID]
	if !ok {
		return
	}

	m.ShortTerm.Observations = appendBounded(m.ShortTerm.Observations, obs, domain.ShortTermObservationLimit)
	m.ObservationLog = appendBounded(m.ObservationLog, obs, domain.ObservationLogLimit)

	if obs.Category == domain.ObserveRegime && obs.Payload.Regime != nil {
		regime := string(obs.Payload.Regime.Regime)
		stats := m.LongTerm.Regimes[regime]
		if stats == nil {
			stats = &domain.RegimeStats{}
			m.LongTerm.Regimes[regime] = stats
		}
		stats.Observations++
		// Running mean of regime strength
		n := float64(stats.Observations)
		stats.AvgStrength += (obs.Payload.Regime.Strength - stats.AvgStrength) / n
	}
}

// RecordDecision appends a decision id to the short-term window. The
// long-term decision counter is owned by the learning engine and moves
// only when an outcome is classified.
func (s *Store) RecordDecision(agentID, decisionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[agentID]
	if !ok {
		return
	}
	m.ShortTerm.DecisionIDs = appendBounded(m.ShortTerm.DecisionIDs, decisionID, domain.ShortTermDecisionLimit)
}

// RecentDecisionIDs returns the short-term decision window, newest last.
func (s *Store) RecentDecisionIDs(agentID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[agentID]
	if !ok {
		return nil
	}
	out := make([]string, len(m.ShortTerm.DecisionIDs))
	copy(out, m.ShortTerm.DecisionIDs)
	return out
}

// RecentObservations returns the short-term observation window, newest last.
func (s *Store) RecentObservations(agentID string) []domain.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[agentID]
	if !ok {
		return nil
	}
	out := make([]domain.Observation, len(m.ShortTerm.Observations))
	copy(out, m.ShortTerm.Observations)
	return out
}

// LatestRegime returns the most recent regime observation in short-term
// memory, or RegimeUnknown when none exists.
func (s *Store) LatestRegime(agentID string) domain.MarketRegime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[agentID]
	if !ok {
		return domain.RegimeUnknown
	}
	for i := len(m.ShortTerm.Observations) - 1; i >= 0; i-- {
		o := m.ShortTerm.Observations[i]
		if o.Category == domain.ObserveRegime && o.Payload.Regime != nil {
			return o.Payload.Regime.Regime
		}
	}
	return domain.RegimeUnknown
}

// PositivePatterns returns a copy of the learned positive patterns.
func (s *Store) PositivePatterns(agentID string) []domain.LearnedPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[agentID]
	if !ok {
		return nil
	}
	out := make([]domain.LearnedPattern, len(m.LongTerm.PositivePatterns))
	copy(out, m.LongTerm.PositivePatterns)
	return out
}

// Update runs fn under the store lock with direct access to the agent's
// memory. Used by the learning engine for compound mutations.
func (s *Store) Update(agentID string, fn func(m *domain.AgentMemory)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[agentID]
	if !ok {
		return
	}
	fn(m)
}

// SetAlerts replaces the active alert list.
func (s *Store) SetAlerts(agentID string, alerts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[agentID]
	if !ok {
		return
	}
	m.ShortTerm.Alerts = alerts
}

// PruneObservationLog drops log entries older than the cutoff.
// The short-term window is left alone; it is bounded by count, not age.
func (s *Store) PruneObservationLog(agentID string, cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[agentID]
	if !ok {
		return 0
	}
	kept := m.ObservationLog[:0]
	pruned := 0
	for _, o := range m.ObservationLog {
		if o.Timestamp.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, o)
	}
	m.ObservationLog = kept
	return pruned
}

// appendBounded appends and trims the front to keep at most limit entries.
func appendBounded[T any](window []T, item T, limit int) []T {
	window = append(window, item)
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	return window
}

func deepCopy(m *domain.AgentMemory) *domain.AgentMemory {
	out := &domain.AgentMemory{
		AgentID: m.AgentID,
		ShortTerm: domain.ShortTermMemory{
			Observations: append([]domain.Observation(nil), m.ShortTerm.Observations...),
			DecisionIDs:  append([]string(nil), m.ShortTerm.DecisionIDs...),
			Context:      make(map[string]string, len(m.ShortTerm.Context)),
			Alerts:       append([]string(nil), m.ShortTerm.Alerts...),
		},
		LongTerm: domain.LongTermMemory{
			TotalDecisions:       m.LongTerm.TotalDecisions,
			Successes:            m.LongTerm.Successes,
			Failures:             m.LongTerm.Failures,
			PositivePatterns:     append([]domain.LearnedPattern(nil), m.LongTerm.PositivePatterns...),
			NegativePatterns:     append([]domain.LearnedPattern(nil), m.LongTerm.NegativePatterns...),
			Regimes:              make(map[string]*domain.RegimeStats, len(m.LongTerm.Regimes)),
			Assets:               make(map[string]*domain.AssetStats, len(m.LongTerm.Assets)),
			SuccessConfidenceAvg: m.LongTerm.SuccessConfidenceAvg,
			FailureConfidenceAvg: m.LongTerm.FailureConfidenceAvg,
		},
		ObservationLog: append([]domain.Observation(nil), m.ObservationLog...),
	}
	for k, v := range m.ShortTerm.Context {
		out.ShortTerm.Context[k] = v
	}
	for k, v := range m.LongTerm.Regimes {
		cp := *v
		out.LongTerm.Regimes[k] = &cp
	}
	for k, v := range m.LongTerm.Assets {
		cp := *v
		out.LongTerm.Assets[k] = &cp
	}
	return out
}
