package orchestrator

import "github.com/fyrsmithlabs/taskd/internal/todo"

// Outcome is the result of one stage of one item.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Event is one observable step of a run.
type Event struct {
	ItemID  string     `json:"item_id"`
	Stage   todo.Stage `json:"stage"`
	Outcome Outcome    `json:"outcome"`

	// Detail carries the failure reason for OutcomeFailed.
	Detail string `json:"detail,omitempty"`
}

// EventFunc receives run events. Callbacks must be fast and must not
// call back into the orchestrator; they may run from several goroutines.
type EventFunc func(Event)
