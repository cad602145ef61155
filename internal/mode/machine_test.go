package mode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name string
		path []State
		ok   bool
	}{
		{name: "selection to chat", path: []State{StateChat}, ok: true},
		{name: "selection to task", path: []State{StateTask}, ok: true},
		{name: "selection to dev", path: []State{StateDev}, ok: true},
		{name: "dev to task", path: []State{StateDev, StateTask}, ok: true},
		{name: "chat is terminal", path: []State{StateChat, StateTask}, ok: false},
		{name: "task is terminal", path: []State{StateTask, StateChat}, ok: false},
		{name: "dev cannot reach chat", path: []State{StateDev, StateChat}, ok: false},
		{name: "selection cannot self loop", path: []State{StateModeSelection}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(zaptest.NewLogger(t))
			var err error
			for _, target := range tt.path {
				err = m.Transition(target)
				if err != nil {
					break
				}
			}
			if tt.ok {
				assert.NoError(t, err)
			} else {
				var invalid *InvalidTransitionError
				require.ErrorAs(t, err, &invalid)
			}
		})
	}
}

func TestExecuteHandlerReturnsResultUnchanged(t *testing.T) {
	m := NewMachine(zaptest.NewLogger(t))
	m.Bind(StateModeSelection, HandlerFunc(func(_ context.Context, input string) (*Result, error) {
		return &Result{Output: "echo:" + input}, nil
	}))

	res, err := m.ExecuteHandler(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", res.Output)
}

func TestExecuteHandlerRequiresBinding(t *testing.T) {
	m := NewMachine(zaptest.NewLogger(t))
	_, err := m.ExecuteHandler(context.Background(), "hi")
	assert.Error(t, err)
}

func TestDevTaskHandoffConsumedExactlyOnce(t *testing.T) {
	m := NewMachine(zaptest.NewLogger(t))
	list := todo.NewList("prepared by dev")
	require.NoError(t, list.Add(todo.NewItem("1", "do it", "")))

	m.Bind(StateDev, HandlerFunc(func(context.Context, string) (*Result, error) {
		return &Result{Output: "switching", TaskList: list}, nil
	}))

	require.NoError(t, m.Transition(StateDev))
	_, err := m.ExecuteHandler(context.Background(), "run task")
	require.NoError(t, err)

	got, ok := m.TakeTaskList()
	require.True(t, ok)
	assert.Same(t, list, got)

	_, ok = m.TakeTaskList()
	assert.False(t, ok, "payload is consumed exactly once")

	require.NoError(t, m.Transition(StateTask))
}

func TestNonDevHandlerCannotCarryTaskList(t *testing.T) {
	m := NewMachine(zaptest.NewLogger(t))
	m.Bind(StateModeSelection, HandlerFunc(func(context.Context, string) (*Result, error) {
		return &Result{TaskList: todo.NewList("sneaky")}, nil
	}))

	_, err := m.ExecuteHandler(context.Background(), "x")
	require.NoError(t, err)
	_, ok := m.TakeTaskList()
	assert.False(t, ok)
}
