package memory

import (
	"fmt"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeSnapshot serializes an agent's memory with msgpack.
// Used by the snapshot backup service; compact and fast to decode.
func (s *Store) EncodeSnapshot(agentID string) ([]byte, error) {
	m := s.Snapshot(agentID)
	if m == nil {
		return nil, fmt.Errorf("no memory for agent %s: %w", agentID, domain.ErrAgentNotFound)
	}
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode memory snapshot: %w", err)
	}
	return data, nil
}

// RestoreSnapshot replaces an agent's memory with a decoded snapshot.
func (s *Store) RestoreSnapshot(data []byte) error {
	var m domain.AgentMemory
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode memory snapshot: %w", err)
	}
	if m.AgentID == "" {
		return fmt.Errorf("snapshot has no agent id")
	}
	if m.ShortTerm.Context == nil {
		m.ShortTerm.Context = make(map[string]string)
	}
	if m.LongTerm.Regimes == nil {
		m.LongTerm.Regimes = make(map[string]*domain.RegimeStats)
	}
	if m.LongTerm.Assets == nil {
		m.LongTerm.Assets = make(map[string]*domain.AssetStats)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[m.AgentID] = &m
	return nil
}
