package todo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAddPreservesOrderAndDefaults(t *testing.T) {
	l := NewList("deploy the service")

	require.NoError(t, l.Add(NewItem("2", "second", "")))
	require.NoError(t, l.Add(NewItem("1", "first", "")))
	require.NoError(t, l.Add(&Item{ID: "3", Action: "bare"}))

	items := l.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "2", items[0].ID)
	assert.Equal(t, "1", items[1].ID)

	// Bare items get defaults on Add.
	bare, ok := l.Get("3")
	require.True(t, ok)
	assert.Equal(t, StatusPending, bare.Status)
	assert.Equal(t, PriorityNormal, bare.Priority)
	assert.Equal(t, DefaultMaxAttempts, bare.MaxAttempts)
}

func TestListAddRejectsDuplicates(t *testing.T) {
	l := NewList("r")
	require.NoError(t, l.Add(NewItem("1", "a", "")))
	err := l.Add(NewItem("1", "b", ""))
	assert.ErrorIs(t, err, ErrDuplicateItem)
}

func TestListRemoveRefusesWhileReferenced(t *testing.T) {
	l := NewList("r")
	require.NoError(t, l.Add(NewItem("1", "a", "")))
	require.NoError(t, l.Add(NewItem("2", "b", "", "1")))

	err := l.Remove("1")
	require.Error(t, err)

	// Dropping the dependent first makes removal legal.
	require.NoError(t, l.Remove("2"))
	require.NoError(t, l.Remove("1"))
	assert.Zero(t, l.Len())

	assert.True(t, errors.Is(l.Remove("1"), ErrItemNotFound))
}

func TestListChildrenAndNextChildID(t *testing.T) {
	l := NewList("r")
	require.NoError(t, l.Add(NewItem("3", "parent", "")))

	id, err := l.NextChildID("3")
	require.NoError(t, err)
	assert.Equal(t, "3.1", id)
	require.NoError(t, l.Add(NewItem(id, "child one", "")))

	id, err = l.NextChildID("3")
	require.NoError(t, err)
	assert.Equal(t, "3.2", id)
	require.NoError(t, l.Add(NewItem(id, "child two", "")))

	children := l.Children("3")
	require.Len(t, children, 2)
	assert.Equal(t, "3.1", children[0].ID)
	assert.Equal(t, "3.2", children[1].ID)
}

func TestItemAttemptsAndFailures(t *testing.T) {
	item := NewItem("1", "do a thing", "thing is done")
	assert.False(t, item.AttemptsExhausted())

	item.Attempts = 3
	assert.True(t, item.AttemptsExhausted())

	item.RecordFailure(StagePlan, errors.New("provider unavailable"))
	require.Len(t, item.Failures, 1)
	assert.Equal(t, StagePlan, item.Failures[0].Stage)
	assert.Equal(t, 3, item.Failures[0].Attempt)
	assert.Contains(t, item.Failures[0].String(), "plan stage failed")
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusSkipped, StatusReplanned} {
		assert.True(t, s.Terminal(), s)
	}
}
