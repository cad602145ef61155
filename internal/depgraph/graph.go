package depgraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// Errors for graph operations.
var (
	// ErrNoResolvableCycle means every candidate edge of the cycle was
	// already removed and nothing else can be safely cut.
	ErrNoResolvableCycle = errors.New("no resolvable cycle: all candidate edges removed")

	// ErrItemNotInGraph reports an unknown item ID.
	ErrItemNotInGraph = errors.New("item not in dependency graph")
)

// UnresolvableDependencyError aborts a whole run: the dependency graph
// contains a cycle that cannot be broken.
type UnresolvableDependencyError struct {
	ItemID string
	Cycle  []string
}

func (e *UnresolvableDependencyError) Error() string {
	return fmt.Sprintf("unresolvable dependency cycle at %s: %s", e.ItemID, strings.Join(e.Cycle, " -> "))
}

// Graph is the forward/reverse adjacency view over a todo list.
// Build cost is O(items + dependency edges).
type Graph struct {
	list *todo.List

	// forward maps item ID -> IDs it depends on.
	forward map[string][]string
	// reverse maps item ID -> IDs that depend on it.
	reverse map[string][]string
}

// Build constructs the graph from the list's current items. Call again
// after any item is added or removed.
func Build(list *todo.List) *Graph {
	g := &Graph{
		list:    list,
		forward: make(map[string][]string),
		reverse: make(map[string][]string),
	}
	for _, item := range list.Items() {
		g.forward[item.ID] = append([]string(nil), item.Dependencies...)
		for _, dep := range item.Dependencies {
			g.reverse[dep] = append(g.reverse[dep], item.ID)
		}
	}
	return g
}

// Dependencies returns the IDs the given item depends on.
func (g *Graph) Dependencies(id string) []string {
	return g.forward[id]
}

// Dependents returns the IDs that depend on the given item.
func (g *Graph) Dependents(id string) []string {
	return g.reverse[id]
}

// HasCycle reports whether any dependency cycle exists.
func (g *Graph) HasCycle() bool {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, dep := range g.forward[id] {
			if onStack[dep] {
				return true
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for _, item := range g.list.Items() {
		if !visited[item.ID] && visit(item.ID) {
			return true
		}
	}
	return false
}

// FindCycles enumerates dependency cycles. Each cycle is the path slice
// starting at the first repeated node, e.g. ["a", "b", "a"].
func (g *Graph) FindCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)

	var visit func(id string, path []string, onStack map[string]int)
	visit = func(id string, path []string, onStack map[string]int) {
		visited[id] = true
		onStack[id] = len(path)
		path = append(path, id)
		for _, dep := range g.forward[id] {
			if start, ok := onStack[dep]; ok {
				cycle := append([]string(nil), path[start:]...)
				cycle = append(cycle, dep)
				cycles = append(cycles, cycle)
				continue
			}
			if !visited[dep] {
				visit(dep, path, onStack)
			}
		}
		delete(onStack, id)
	}

	for _, item := range g.list.Items() {
		if !visited[item.ID] {
			visit(item.ID, nil, make(map[string]int))
		}
	}
	return cycles
}

// cycleContaining returns the first detected cycle that includes id.
func (g *Graph) cycleContaining(id string) ([]string, bool) {
	for _, cycle := range g.FindCycles() {
		for _, node := range cycle {
			if node == id {
				return cycle, true
			}
		}
	}
	return nil, false
}

// TopologicalSort returns an ordering where every item precedes all items
// that list it as a dependency. Fails with UnresolvableDependencyError if
// the graph has a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	indegree := make(map[string]int)
	for _, item := range g.list.Items() {
		indegree[item.ID] = 0
	}
	for id, deps := range g.forward {
		for _, dep := range deps {
			if _, ok := indegree[dep]; ok {
				indegree[id]++
			}
		}
	}

	// Seed the queue in insertion order so ties stay deterministic.
	var queue []string
	for _, item := range g.list.Items() {
		if indegree[item.ID] == 0 {
			queue = append(queue, item.ID)
		}
	}

	order := make([]string, 0, g.list.Len())
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, dependent := range g.reverse[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != g.list.Len() {
		cycles := g.FindCycles()
		err := &UnresolvableDependencyError{}
		if len(cycles) > 0 {
			err.Cycle = cycles[0]
			err.ItemID = cycles[0][0]
		}
		return nil, err
	}
	return order, nil
}

// Ready returns pending items whose dependencies are all completed (or
// resolved away), in insertion order.
func (g *Graph) Ready() []*todo.Item {
	var ready []*todo.Item
	for _, item := range g.list.Items() {
		if item.Status != todo.StatusPending {
			continue
		}
		if g.depsSatisfied(item) {
			ready = append(ready, item)
		}
	}
	return ready
}

func (g *Graph) depsSatisfied(item *todo.Item) bool {
	for _, dep := range g.forward[item.ID] {
		depItem, ok := g.list.Get(dep)
		if !ok || depItem.Status != todo.StatusCompleted {
			return false
		}
	}
	return true
}
