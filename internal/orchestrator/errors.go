package orchestrator

import (
	"fmt"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// StageFailure marks one failed stage of one attempt. It is recoverable:
// the item goes to replanning, not the run to an abort.
type StageFailure struct {
	ItemID string
	Stage  todo.Stage
	Err    error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("item %s: stage %s failed: %v", e.ItemID, e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// ValidationRejected is the stage failure produced when the validation
// pipeline rejects a plan outright.
type ValidationRejected struct {
	ItemID string
	Errors []string
}

func (e *ValidationRejected) Error() string {
	return fmt.Sprintf("item %s: plan rejected: %v", e.ItemID, e.Errors)
}
