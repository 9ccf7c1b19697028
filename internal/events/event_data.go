package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// AgentLifecycleData contains data for agent lifecycle events
// (created, started, stopped, disabled).
type AgentLifecycleData struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name,omitempty"`
	Mandate string `json:"mandate,omitempty"`
	State   string `json:"state,omitempty"`
	Event   EventType
}

// EventType returns the event type for AgentLifecycleData
func (d *AgentLifecycleData) EventType() EventType {
	if d.Event == "" {
		return AgentCreated
	}
	return d.Event
}

// AgentEmergencyData contains data for AgentEmergency events
type AgentEmergencyData struct {
	AgentID        string `json:"agent_id"`
	Reason         string `json:"reason"`
	CancelledCount int    `json:"cancelled_count"`
}

// EventType returns the event type for AgentEmergencyData
func (d *AgentEmergencyData) EventType() EventType {
	return AgentEmergency
}

// AgentErrorData contains data for AgentError events.
// Phase names the cycle phase that faulted.
type AgentErrorData struct {
	AgentID string `json:"agent_id"`
	Phase   string `json:"phase"`
	Error   string `json:"error"`
}

// EventType returns the event type for AgentErrorData
func (d *AgentErrorData) EventType() EventType {
	return AgentError
}

// AgentLearnedData contains data for AgentLearned events
type AgentLearnedData struct {
	AgentID           string  `json:"agent_id"`
	DecisionsReviewed int     `json:"decisions_reviewed"`
	OutcomesRecorded  int     `json:"outcomes_recorded"`
	SuccessRate       float64 `json:"success_rate"`
	RiskTolerance     float64 `json:"risk_tolerance"`
}

// EventType returns the event type for AgentLearnedData
func (d *AgentLearnedData) EventType() EventType {
	return AgentLearned
}

// CycleCompletedData contains data for CycleCompleted events
type CycleCompletedData struct {
	AgentID       string  `json:"agent_id"`
	Observations  int     `json:"observations"`
	Opportunities int     `json:"opportunities"`
	Decisions     int     `json:"decisions"`
	Duration      float64 `json:"duration_seconds"`
}

// EventType returns the event type for CycleCompletedData
func (d *CycleCompletedData) EventType() EventType {
	return CycleCompleted
}

// DecisionEventData contains data for decision lifecycle events.
// The Event field selects which lifecycle transition this payload describes.
type DecisionEventData struct {
	AgentID    string  `json:"agent_id"`
	DecisionID string  `json:"decision_id"`
	Type       string  `json:"decision_type,omitempty"`
	Asset      string  `json:"asset,omitempty"`
	Direction  string  `json:"direction,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Status     string  `json:"status,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	OrderID    string  `json:"order_id,omitempty"`
	Error      string  `json:"error,omitempty"`
	Event      EventType
}

// EventType returns the event type for DecisionEventData
func (d *DecisionEventData) EventType() EventType {
	if d.Event == "" {
		return DecisionCreated
	}
	return d.Event
}

// SnapshotSavedData contains data for SnapshotSaved events
type SnapshotSavedData struct {
	AgentID string `json:"agent_id"`
	Path    string `json:"path,omitempty"`
	Remote  bool   `json:"remote"`
	Bytes   int    `json:"bytes"`
}

// EventType returns the event type for SnapshotSavedData
func (d *SnapshotSavedData) EventType() EventType {
	return SnapshotSaved
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}
