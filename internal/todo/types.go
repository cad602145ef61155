package todo

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an Item.
type Status string

const (
	// StatusPending means the item has not started.
	StatusPending Status = "pending"
	// StatusInProgress means the item is executing.
	StatusInProgress Status = "in_progress"
	// StatusCompleted means the item finished and verified.
	StatusCompleted Status = "completed"
	// StatusFailed means the item exhausted its attempts.
	StatusFailed Status = "failed"
	// StatusSkipped means the item was abandoned without execution.
	StatusSkipped Status = "skipped"
	// StatusReplanned means the item was replaced by decomposed children.
	StatusReplanned Status = "replanned"
)

// Terminal reports whether the status ends the item's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusReplanned:
		return true
	}
	return false
}

// Priority orders items when several are ready at once and feeds the
// dependency resolver's importance scoring.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// DefaultMaxAttempts bounds retries of a single item.
const DefaultMaxAttempts = 3

// Item is one unit of work within a decomposed request.
type Item struct {
	// ID is the hierarchical identifier, e.g. "3" or "3.1".
	ID string `json:"id"`

	// Action describes what the item should accomplish.
	Action string `json:"action"`

	// SuccessCriteria describes how completion is verified.
	SuccessCriteria string `json:"success_criteria"`

	// Dependencies lists IDs of items that must complete first.
	Dependencies []string `json:"dependencies,omitempty"`

	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	// Optional marks a dependency target that may be dropped when skipped.
	Optional bool `json:"optional,omitempty"`

	// Attempts counts execution attempts. Never exceeds MaxAttempts
	// without the item becoming terminal.
	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	// Failures records structured per-attempt failure information.
	Failures []FailureRecord `json:"failures,omitempty"`
}

// NewItem creates a pending item with defaults applied.
func NewItem(id, action, criteria string, deps ...string) *Item {
	return &Item{
		ID:              id,
		Action:          action,
		SuccessCriteria: criteria,
		Dependencies:    deps,
		Status:          StatusPending,
		Priority:        PriorityNormal,
		MaxAttempts:     DefaultMaxAttempts,
	}
}

// AttemptsExhausted reports whether the item has no retries left.
func (i *Item) AttemptsExhausted() bool {
	max := i.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return i.Attempts >= max
}

// RecordFailure appends a structured failure record for the given stage.
func (i *Item) RecordFailure(stage Stage, err error) {
	rec := FailureRecord{
		Stage:   stage,
		Attempt: i.Attempts,
		Time:    time.Now().UTC(),
	}
	if err != nil {
		rec.Reason = err.Error()
	}
	i.Failures = append(i.Failures, rec)
}

// Stage names one phase of the per-item cycle.
type Stage string

const (
	StageSelect   Stage = "select"
	StagePlan     Stage = "plan"
	StageValidate Stage = "validate"
	StageExecute  Stage = "execute"
	StageVerify   Stage = "verify"
	StageReplan   Stage = "replan"
)

// FailureRecord captures one stage failure without aborting the run.
type FailureRecord struct {
	Stage   Stage     `json:"stage"`
	Attempt int       `json:"attempt"`
	Reason  string    `json:"reason"`
	Time    time.Time `json:"time"`
}

func (r FailureRecord) String() string {
	return fmt.Sprintf("attempt %d: %s stage failed: %s", r.Attempt, r.Stage, r.Reason)
}

// ToolCall is a proposed invocation of a capability provider. It is
// produced by planning and consumed (or replaced) by validation.
type ToolCall struct {
	// Server names the capability provider, e.g. "filesystem".
	Server string `json:"server"`

	// Tool is the tool name within the server's catalog.
	Tool string `json:"tool"`

	// Parameters are the call arguments.
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (c ToolCall) String() string {
	return c.Server + "." + c.Tool
}

// CallResult is the per-call outcome of executing a ToolCall against a
// capability provider.
type CallResult struct {
	Call    ToolCall `json:"call"`
	Success bool     `json:"success"`
	Output  string   `json:"output,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// VerificationResult is the outcome of one verification method.
type VerificationResult struct {
	Verified bool `json:"verified"`

	// Confidence is 0..100.
	Confidence float64 `json:"confidence"`

	Reason string `json:"reason,omitempty"`

	// Method names the verification strategy that produced the result.
	Method string `json:"method"`
}
