// Package domain provides core domain models and types.
package domain

import (
	"errors"
	"time"
)

// Sentinel errors surfaced synchronously to callers. Everything else inside
// a cycle degrades to an event, not an error return.
var (
	ErrAgentNotFound     = errors.New("agent not found")
	ErrDecisionNotFound  = errors.New("decision not found")
	ErrInvalidTransition = errors.New("invalid decision status transition")
	ErrInvalidConfig     = errors.New("invalid agent configuration")
)

// Mandate represents an agent's high-level investment objective.
// It seeds the default risk boundaries at creation time.
type Mandate string

const (
	MandateAggressiveGrowth    Mandate = "aggressive_growth"
	MandateBalancedGrowth      Mandate = "balanced_growth"
	MandateIncomeGeneration    Mandate = "income_generation"
	MandateCapitalPreservation Mandate = "capital_preservation"
	MandateWealthBuilding      Mandate = "wealth_building"
	MandateRetirement          Mandate = "retirement"
	MandateCustom              Mandate = "custom"
)

// AutonomyLevel controls how much human approval a decision needs.
type AutonomyLevel string

const (
	// AutonomyFull - decisions execute without approval once boundaries pass
	AutonomyFull AutonomyLevel = "full"
	// AutonomySupervised - decisions above the approval threshold wait for a human
	AutonomySupervised AutonomyLevel = "supervised"
	// AutonomyAdvisory - every decision waits for a human
	AutonomyAdvisory AutonomyLevel = "advisory"
)

// AgentState is the high-level lifecycle state of an agent.
type AgentState string

const (
	StateInitializing AgentState = "initializing"
	StateObserving    AgentState = "observing"
	StateAnalyzing    AgentState = "analyzing"
	StateDeciding     AgentState = "deciding"
	StateExecuting    AgentState = "executing"
	StateLearning     AgentState = "learning"
	StateSleeping     AgentState = "sleeping"
	StateEmergency    AgentState = "emergency"
	StateDisabled     AgentState = "disabled"
)

// BiasNote records a known behavioural bias and its mitigation.
type BiasNote struct {
	Name       string `json:"name"`
	Mitigation string `json:"mitigation"`
}

// PersonalityProfile holds the five 0-100 behavioural traits that condition
// analysis and decision making. The learning engine adapts RiskTolerance
// within [30, 80]; the other traits are operator-set.
type PersonalityProfile struct {
	RiskTolerance float64    `json:"risk_tolerance"`
	Patience      float64    `json:"patience"`
	Decisiveness  float64    `json:"decisiveness"`
	Contrarianism float64    `json:"contrarianism"`
	Adaptability  float64    `json:"adaptability"`
	Biases        []BiasNote `json:"biases,omitempty"`
}

// OperatingLimits bound what a single agent may do.
type OperatingLimits struct {
	// MaxCapitalPerDecision is the fraction of capital (0-1) a single
	// decision may commit.
	MaxCapitalPerDecision float64 `json:"max_capital_per_decision"`
	// MinConfidenceToAct drops recommendations below this score (0-100).
	MinConfidenceToAct float64 `json:"min_confidence_to_act"`
	MaxDecisionsPerDay int     `json:"max_decisions_per_day"`
	// MaxDrawdown is the tolerable peak-to-trough loss fraction (0-1).
	MaxDrawdown float64 `json:"max_drawdown"`
}

// ActiveHours is the daily window (UTC hours) inside which cycles run.
// A zero value means always active.
type ActiveHours struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Contains reports whether t falls inside the window.
func (h ActiveHours) Contains(t time.Time) bool {
	if h.StartHour == 0 && h.EndHour == 0 {
		return true
	}
	hour := t.UTC().Hour()
	if h.StartHour <= h.EndHour {
		return hour >= h.StartHour && hour < h.EndHour
	}
	// Window wraps midnight
	return hour >= h.StartHour || hour < h.EndHour
}

// AgentConfig is the operator-supplied definition of an agent.
// Personality is mutated by the learning engine; boundaries and autonomy by
// explicit operator updates. Agents are disabled, never deleted, while active.
type AgentConfig struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Mandate              Mandate            `json:"mandate"`
	Personality          PersonalityProfile `json:"personality"`
	Boundaries           []AgentBoundary    `json:"boundaries"`
	Limits               OperatingLimits    `json:"limits"`
	Autonomy             AutonomyLevel      `json:"autonomy"`
	RequireApprovalAbove float64            `json:"require_approval_above"`
	LearningEnabled      bool               `json:"learning_enabled"`
	LearningRate         float64            `json:"learning_rate"`
	ActiveHours          ActiveHours        `json:"active_hours"`
	CycleInterval        time.Duration      `json:"cycle_interval"`
	Enabled              bool               `json:"enabled"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// Validate checks an operator-supplied config for structural problems.
func (c *AgentConfig) Validate() error {
	if c.Name == "" {
		return errors.Join(ErrInvalidConfig, errors.New("name is required"))
	}
	switch c.Mandate {
	case MandateAggressiveGrowth, MandateBalancedGrowth, MandateIncomeGeneration,
		MandateCapitalPreservation, MandateWealthBuilding, MandateRetirement, MandateCustom:
	default:
		return errors.Join(ErrInvalidConfig, errors.New("unknown mandate"))
	}
	switch c.Autonomy {
	case AutonomyFull, AutonomySupervised, AutonomyAdvisory:
	default:
		return errors.Join(ErrInvalidConfig, errors.New("unknown autonomy level"))
	}
	if c.Limits.MaxCapitalPerDecision <= 0 || c.Limits.MaxCapitalPerDecision > 1 {
		return errors.Join(ErrInvalidConfig, errors.New("max capital per decision must be in (0, 1]"))
	}
	if c.Limits.MaxDecisionsPerDay <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("max decisions per day must be positive"))
	}
	return nil
}

// BoundaryKind distinguishes blocking from advisory boundaries.
type BoundaryKind string

const (
	// BoundaryHard - a failing check blocks the decision
	BoundaryHard BoundaryKind = "hard"
	// BoundarySoft - a failing check is recorded but does not block
	BoundarySoft BoundaryKind = "soft"
)

// BoundaryCategory selects the evaluator used for a boundary.
type BoundaryCategory string

const (
	BoundaryRisk       BoundaryCategory = "risk"
	BoundaryAllocation BoundaryCategory = "allocation"
	BoundaryAsset      BoundaryCategory = "asset"
	BoundaryTiming     BoundaryCategory = "timing"
	BoundaryExecution  BoundaryCategory = "execution"
	BoundaryCustom     BoundaryCategory = "custom"
)

// AgentBoundary is a named limit a decision must respect.
type AgentBoundary struct {
	ID            string           `json:"id"`
	Kind          BoundaryKind     `json:"kind"`
	Category      BoundaryCategory `json:"category"`
	Condition     string           `json:"condition"`
	Threshold     float64          `json:"threshold"`
	Enabled       bool             `json:"enabled"`
	Violations    int              `json:"violations"`
	LastViolation *time.Time       `json:"last_violation,omitempty"`
}

// BoundaryCheck is the immutable result of evaluating one boundary
// against a proposed decision.
type BoundaryCheck struct {
	BoundaryID string           `json:"boundary_id"`
	Category   BoundaryCategory `json:"category"`
	Kind       BoundaryKind     `json:"kind"`
	Passed     bool             `json:"passed"`
	Note       string           `json:"note,omitempty"`
}

// PortfolioState is the live risk picture a boundary evaluator sees.
// Supplied by the execution side each cycle.
type PortfolioState struct {
	TotalCapital    float64            `json:"total_capital"`
	CashAvailable   float64            `json:"cash_available"`
	PositionWeights map[string]float64 `json:"position_weights"` // symbol -> fraction of capital
	DailyLoss       float64            `json:"daily_loss"`       // fraction of capital, positive = loss
	Drawdown        float64            `json:"drawdown"`         // current peak-to-trough fraction
	Leverage        float64            `json:"leverage"`
}
