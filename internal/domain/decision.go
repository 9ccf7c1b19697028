package domain

import "time"

// DecisionStatus is the lifecycle status of a decision.
type DecisionStatus string

const (
	DecisionPending   DecisionStatus = "pending"
	DecisionApproved  DecisionStatus = "approved"
	DecisionExecuting DecisionStatus = "executing"
	DecisionExecuted  DecisionStatus = "executed"
	DecisionFailed    DecisionStatus = "failed"
	DecisionRejected  DecisionStatus = "rejected"
	DecisionCancelled DecisionStatus = "cancelled"
)

// validTransitions encodes the decision state machine. Terminal states
// (executed, failed, rejected, cancelled) have no outgoing edges.
var validTransitions = map[DecisionStatus][]DecisionStatus{
	DecisionPending:   {DecisionApproved, DecisionRejected, DecisionCancelled},
	DecisionApproved:  {DecisionExecuting, DecisionCancelled},
	DecisionExecuting: {DecisionExecuted, DecisionFailed},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to DecisionStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status permits no further transitions.
func (s DecisionStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// ConfidenceCategory buckets a numeric confidence score.
type ConfidenceCategory string

const (
	ConfidenceVeryHigh ConfidenceCategory = "very_high"
	ConfidenceHigh     ConfidenceCategory = "high"
	ConfidenceMedium   ConfidenceCategory = "medium"
	ConfidenceLow      ConfidenceCategory = "low"
	ConfidenceVeryLow  ConfidenceCategory = "very_low"
)

// CategorizeConfidence maps a 0-100 score to its category.
// The cutoffs are fixed: >=90 very_high, >=75 high, >=50 medium, >=25 low.
func CategorizeConfidence(score float64) ConfidenceCategory {
	switch {
	case score >= 90:
		return ConfidenceVeryHigh
	case score >= 75:
		return ConfidenceHigh
	case score >= 50:
		return ConfidenceMedium
	case score >= 25:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// DecisionType classifies what kind of action a decision takes.
type DecisionType string

const (
	DecisionTypeEntry          DecisionType = "entry"
	DecisionTypeExit           DecisionType = "exit"
	DecisionTypeReduceExposure DecisionType = "reduce_exposure"
	DecisionTypeRebalance      DecisionType = "rebalance"
	DecisionTypeHold           DecisionType = "hold"
)

// DecisionAction is the concrete, executable part of a decision.
type DecisionAction struct {
	Description string    `json:"description"`
	Asset       string    `json:"asset,omitempty"`
	Direction   Direction `json:"direction,omitempty"`
	Amount      float64   `json:"amount"` // monetary amount to commit
	TargetPrice float64   `json:"target_price,omitempty"`
	StopLoss    float64   `json:"stop_loss,omitempty"`
}

// ReasoningFactor is one weighted contributor to a decision.
type ReasoningFactor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"` // 0-1, weights sum to ~1
	Detail string  `json:"detail,omitempty"`
}

// RejectedAlternative records an option considered and not taken.
type RejectedAlternative struct {
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// IdentifiedRisk pairs a risk with its mitigation.
type IdentifiedRisk struct {
	Description string `json:"description"`
	Mitigation  string `json:"mitigation,omitempty"`
}

// DecisionReasoning is the structured explanation attached at formulation.
type DecisionReasoning struct {
	Summary          string                `json:"summary"`
	Factors          []ReasoningFactor     `json:"factors,omitempty"`
	Alternatives     []RejectedAlternative `json:"alternatives,omitempty"`
	Risks            []IdentifiedRisk      `json:"risks,omitempty"`
	MandateAlignment string                `json:"mandate_alignment"`
}

// OutcomeScenario is one best/base/worst case projection.
type OutcomeScenario struct {
	Value       float64 `json:"value"` // projected P&L in account currency
	Description string  `json:"description"`
}

// ExpectedOutcome is the projection recorded at decision time.
type ExpectedOutcome struct {
	Probability float64         `json:"probability"` // of the base case, 0-1
	Best        OutcomeScenario `json:"best"`
	Base        OutcomeScenario `json:"base"`
	Worst       OutcomeScenario `json:"worst"`
	Horizon     time.Duration   `json:"horizon"`
}

// ExecutionResult records the adapter's fill (or failure).
type ExecutionResult struct {
	OrderID      string     `json:"order_id,omitempty"`
	FilledPrice  float64    `json:"filled_price,omitempty"`
	FilledAmount float64    `json:"filled_amount,omitempty"`
	Fee          float64    `json:"fee,omitempty"`
	Slippage     float64    `json:"slippage,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// OutcomeClass is the final classification of a settled decision.
type OutcomeClass string

const (
	OutcomeSuccess        OutcomeClass = "success"
	OutcomePartialSuccess OutcomeClass = "partial_success"
	OutcomeNeutral        OutcomeClass = "neutral"
	OutcomePartialFailure OutcomeClass = "partial_failure"
	OutcomeFailure        OutcomeClass = "failure"
)

// OutcomeCheckpoint is one periodic mark-to-market of an executed decision.
type OutcomeCheckpoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"` // realized P&L so far
}

// OutcomeTracking accumulates checkpoints until the final class is set.
// Final, once set, is never revised.
type OutcomeTracking struct {
	Checkpoints  []OutcomeCheckpoint `json:"checkpoints,omitempty"`
	Final        OutcomeClass        `json:"final,omitempty"`
	ClassifiedAt *time.Time          `json:"classified_at,omitempty"`
}

// AgentDecision is the atomic unit of agent action: what, why, what was
// expected, what the boundaries said, what happened, and how it turned out.
// Retained indefinitely for audit and learning.
type AgentDecision struct {
	ID                 string             `json:"id"`
	AgentID            string             `json:"agent_id"`
	CreatedAt          time.Time          `json:"created_at"`
	Type               DecisionType       `json:"type"`
	ConfidenceScore    float64            `json:"confidence_score"`
	ConfidenceCategory ConfidenceCategory `json:"confidence_category"`
	Action             DecisionAction     `json:"action"`
	Reasoning          DecisionReasoning  `json:"reasoning"`
	Expected           ExpectedOutcome    `json:"expected"`
	BoundaryChecks     []BoundaryCheck    `json:"boundary_checks,omitempty"`
	Status             DecisionStatus     `json:"status"`
	Execution          *ExecutionResult   `json:"execution,omitempty"`
	Outcome            OutcomeTracking    `json:"outcome"`
}
