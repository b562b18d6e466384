package domain

import "time"

// Action is the trade action a DecisionMaker run settles on for one cycle.
type Action string

const (
	ActionOpenLong  Action = "OPEN_LONG"
	ActionOpenShort Action = "OPEN_SHORT"
	ActionClose     Action = "CLOSE"
	ActionAdjust    Action = "ADJUST"
	ActionHold      Action = "HOLD"
)

// Decision is the ephemeral outcome of evaluating one instrument in one
// cycle. It is recorded in the audit log and published to the signal bus but
// never persisted as mutable state.
type Decision struct {
	Instrument     string
	Action         Action
	Score          float64
	TargetQuantity float64
	Reason         string
	DecidedAt      time.Time
}

// AttemptOutcome classifies the terminal state of one execution attempt.
type AttemptOutcome string

const (
	AttemptConfirmed AttemptOutcome = "CONFIRMED"
	AttemptPartial   AttemptOutcome = "PARTIAL"
	AttemptFailed    AttemptOutcome = "FAILED"
	AttemptTimedOut  AttemptOutcome = "TIMED_OUT"
)

// ExecutionAttempt records one pass through the EXECUTING/CONFIRMING phases.
type ExecutionAttempt struct {
	OrderRef          string
	RequestedQuantity float64
	FilledQuantity    float64
	AvgFillPrice      float64
	AttemptCount      int
	Outcome           AttemptOutcome
}

// ExitKind distinguishes full closes from partial profit-taking.
type ExitKind string

const (
	ExitFull    ExitKind = "FULL"
	ExitPartial ExitKind = "PARTIAL"
)

// ExitInstruction is emitted by the risk engine when a protective rule fires.
// Fraction is the share of the current quantity to close; it is always 1 for
// ExitFull.
type ExitInstruction struct {
	Kind     ExitKind
	Fraction float64
	Reason   string
	Price    float64 // price that triggered the exit
}

// ScoreInput is the per-cycle signal delivered by the scoring subsystem.
type ScoreInput struct {
	Instrument         string             `json:"instrument"`
	Score              float64            `json:"score"`
	Timestamp          time.Time          `json:"timestamp"`
	TimeframeBreakdown map[string]float64 `json:"timeframes,omitempty"`
}
