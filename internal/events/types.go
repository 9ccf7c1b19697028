// Package events provides event management functionality.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	// Agent lifecycle events
	AgentCreated   EventType = "AGENT_CREATED"
	AgentUpdated   EventType = "AGENT_UPDATED"
	AgentStarted   EventType = "AGENT_STARTED"
	AgentStopped   EventType = "AGENT_STOPPED"
	AgentDisabled  EventType = "AGENT_DISABLED"
	AgentEmergency EventType = "AGENT_EMERGENCY"
	AgentError     EventType = "AGENT_ERROR"
	AgentLearned   EventType = "AGENT_LEARNED"
	CycleCompleted EventType = "CYCLE_COMPLETED"

	// Decision lifecycle events
	DecisionCreated             EventType = "DECISION_CREATED"
	DecisionPendingApproval     EventType = "DECISION_PENDING_APPROVAL"
	DecisionApproved            EventType = "DECISION_APPROVED"
	DecisionRejectedByBoundary  EventType = "DECISION_REJECTED_BY_BOUNDARY"
	DecisionRejectedByHuman     EventType = "DECISION_REJECTED_BY_HUMAN"
	DecisionExecuting           EventType = "DECISION_EXECUTING"
	DecisionExecuted            EventType = "DECISION_EXECUTED"
	DecisionFailed              EventType = "DECISION_FAILED"
	DecisionCancelled           EventType = "DECISION_CANCELLED"
	DecisionOutcomeClassified   EventType = "DECISION_OUTCOME_CLASSIFIED"

	// Housekeeping events
	SnapshotSaved EventType = "SNAPSHOT_SAVED"
	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
