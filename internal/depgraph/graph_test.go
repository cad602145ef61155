package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

func buildList(t *testing.T, items ...*todo.Item) *todo.List {
	t.Helper()
	l := todo.NewList("test request")
	for _, item := range items {
		require.NoError(t, l.Add(item))
	}
	return l
}

func TestHasCycleAcyclic(t *testing.T) {
	l := buildList(t,
		todo.NewItem("1", "a", ""),
		todo.NewItem("2", "b", "", "1"),
		todo.NewItem("3", "c", "", "1", "2"),
	)
	g := Build(l)
	assert.False(t, g.HasCycle())
	assert.Empty(t, g.FindCycles())
}

func TestHasCycleDetectsBackEdge(t *testing.T) {
	l := buildList(t,
		todo.NewItem("1", "a", "", "3"),
		todo.NewItem("2", "b", "", "1"),
		todo.NewItem("3", "c", "", "2"),
	)
	g := Build(l)
	assert.True(t, g.HasCycle())

	cycles := g.FindCycles()
	require.NotEmpty(t, cycles)
	cycle := cycles[0]
	// Path slice from the first repeated node: closed walk of the 3 items.
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
	assert.Len(t, cycle, 4)
}

func TestTopologicalSortRespectsDependencies(t *testing.T) {
	l := buildList(t,
		todo.NewItem("3", "c", "", "1", "2"),
		todo.NewItem("1", "a", ""),
		todo.NewItem("2", "b", "", "1"),
	)
	g := Build(l)

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Len(t, order, 3)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, item := range l.Items() {
		for _, dep := range item.Dependencies {
			assert.Less(t, pos[dep], pos[item.ID], "%s must precede %s", dep, item.ID)
		}
	}
}

func TestTopologicalSortFailsOnCycle(t *testing.T) {
	l := buildList(t,
		todo.NewItem("1", "a", "", "2"),
		todo.NewItem("2", "b", "", "1"),
	)
	g := Build(l)

	_, err := g.TopologicalSort()
	var depErr *UnresolvableDependencyError
	require.ErrorAs(t, err, &depErr)
	assert.NotEmpty(t, depErr.Cycle)
	assert.Contains(t, depErr.Error(), "->")
}

func TestReadyAfterSharedDependencyCompletes(t *testing.T) {
	a := todo.NewItem("1", "A", "")
	b := todo.NewItem("2", "B", "", "1")
	c := todo.NewItem("3", "C", "", "1")
	l := buildList(t, a, b, c)

	g := Build(l)
	ready := g.Ready()
	require.Len(t, ready, 1)
	assert.Equal(t, "1", ready[0].ID)

	// Once A completes, B and C become ready simultaneously.
	a.Status = todo.StatusCompleted
	ready = g.Ready()
	require.Len(t, ready, 2)
	assert.Equal(t, "2", ready[0].ID)
	assert.Equal(t, "3", ready[1].ID)
}

func TestReadyWaitsOnMissingDependency(t *testing.T) {
	l := buildList(t, todo.NewItem("1", "a", "", "9"))
	g := Build(l)
	assert.Empty(t, g.Ready())
}
