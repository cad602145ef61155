// Package mode is the top-level dispatcher selecting CHAT, TASK, or DEV
// processing for an incoming request.
//
// The machine validates every transition against a fixed edge table and
// invokes the handler bound to the current state. DEV handlers may emit
// a pre-built todo list that re-enters TASK without re-running mode
// selection; that payload is the only cross-state data carry-over and is
// consumed exactly once.
package mode

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// State is one top-level processing mode.
type State string

const (
	// StateModeSelection is the initial state.
	StateModeSelection State = "MODE_SELECTION"
	// StateChat handles conversational requests. Terminal.
	StateChat State = "CHAT"
	// StateTask runs the todo orchestration engine. Terminal.
	StateTask State = "TASK"
	// StateDev handles developer commands; may hand off to TASK.
	StateDev State = "DEV"
)

// transitions is the fixed edge table. Absent targets are terminal.
var transitions = map[State][]State{
	StateModeSelection: {StateChat, StateTask, StateDev},
	StateDev:           {StateTask},
}

// InvalidTransitionError reports an edge outside the table. This is a
// programming or integration error in mode sequencing, not a runtime
// condition to retry.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid mode transition %s -> %s", e.From, e.To)
}

// Result is what a handler produced.
type Result struct {
	// Output is the handler's user-facing result, returned unchanged.
	Output any

	// TaskList, when set by a DEV handler, asks the caller to re-enter
	// TASK with this pre-built list.
	TaskList *todo.List
}

// Handler processes input for one state.
type Handler interface {
	Handle(ctx context.Context, input string) (*Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, input string) (*Result, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, input string) (*Result, error) {
	return f(ctx, input)
}

// Machine is the mode state machine. Safe for use by one request flow;
// separate requests get separate machines.
type Machine struct {
	mu       sync.Mutex
	state    State
	handlers map[State]Handler
	logger   *zap.Logger

	// pendingTask is the DEV -> TASK carry-over, consumed exactly once.
	pendingTask *todo.List
}

// NewMachine creates a machine in MODE_SELECTION.
func NewMachine(logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		state:    StateModeSelection,
		handlers: make(map[State]Handler),
		logger:   logger,
	}
}

// Bind attaches the handler for a state.
func (m *Machine) Bind(state State, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[state] = handler
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition validates the edge against the fixed table and moves.
func (m *Machine) Transition(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range transitions[m.state] {
		if allowed == target {
			m.logger.Debug("mode transition",
				zap.String("from", string(m.state)),
				zap.String("to", string(target)),
			)
			m.state = target
			return nil
		}
	}
	return &InvalidTransitionError{From: m.state, To: target}
}

// ExecuteHandler invokes the handler bound to the current state and
// returns its result unchanged. A DEV result carrying a task list is
// stashed for TakeTaskList.
func (m *Machine) ExecuteHandler(ctx context.Context, input string) (*Result, error) {
	m.mu.Lock()
	state := m.state
	handler, ok := m.handlers[state]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler bound for state %s", state)
	}

	result, err := handler.Handle(ctx, input)
	if err != nil {
		return nil, err
	}
	if result != nil && result.TaskList != nil && state == StateDev {
		m.mu.Lock()
		m.pendingTask = result.TaskList
		m.mu.Unlock()
	}
	return result, nil
}

// TakeTaskList returns the DEV -> TASK payload and clears it, so it is
// consumed exactly once.
func (m *Machine) TakeTaskList() (*todo.List, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.pendingTask
	m.pendingTask = nil
	return list, list != nil
}
