package depgraph

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// ImportanceFunc scores how costly it would be to lose the edge leaving
// the given item. Lower scores make better weakest-link candidates.
// Replaceable policy; DefaultImportance implements the documented formula.
type ImportanceFunc func(item *todo.Item, dependents int) int

// DefaultImportance is the documented weakest-link scoring:
// base 1, +10 completed, -5 failed, -3 skipped, +2 per dependent,
// +5 high priority, -2 low priority.
func DefaultImportance(item *todo.Item, dependents int) int {
	score := 1
	switch item.Status {
	case todo.StatusCompleted:
		score += 10
	case todo.StatusFailed:
		score -= 5
	case todo.StatusSkipped:
		score -= 3
	}
	score += 2 * dependents
	switch item.Priority {
	case todo.PriorityHigh:
		score += 5
	case todo.PriorityLow:
		score -= 2
	}
	return score
}

// edge is a single dependency edge: From depends on To.
type edge struct {
	From string
	To   string
}

// Resolver repairs a todo list's dependency graph in place.
type Resolver struct {
	list       *todo.List
	graph      *Graph
	importance ImportanceFunc
	removed    map[edge]bool
	logger     *zap.Logger
}

// NewResolver builds a resolver (and its graph) over the list.
func NewResolver(list *todo.List, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		list:       list,
		graph:      Build(list),
		importance: DefaultImportance,
		removed:    make(map[edge]bool),
		logger:     logger,
	}
}

// SetImportance replaces the weakest-link scoring policy.
func (r *Resolver) SetImportance(fn ImportanceFunc) {
	if fn != nil {
		r.importance = fn
	}
}

// Graph returns the current adjacency view.
func (r *Resolver) Graph() *Graph { return r.graph }

// Rebuild refreshes the graph after items were added or removed.
func (r *Resolver) Rebuild() {
	r.graph = Build(r.list)
}

// ResolveCycle breaks the cycle containing itemID by removing the single
// lowest-importance dependency edge on it. Returns the removed edge
// source and target. Fails with ErrNoResolvableCycle when every edge of
// the cycle has already been removed.
func (r *Resolver) ResolveCycle(itemID string) (from, to string, err error) {
	cycle, ok := r.graph.cycleContaining(itemID)
	if !ok {
		return "", "", fmt.Errorf("%w: no cycle contains %s", ErrNoResolvableCycle, itemID)
	}

	bestScore := 0
	var best *edge
	for i := 0; i+1 < len(cycle); i++ {
		e := edge{From: cycle[i], To: cycle[i+1]}
		if r.removed[e] {
			continue
		}
		item, ok := r.list.Get(e.From)
		if !ok {
			continue
		}
		score := r.importance(item, len(r.graph.Dependents(e.From)))
		if best == nil || score < bestScore {
			bestScore = score
			best = &e
		}
	}
	if best == nil {
		return "", "", fmt.Errorf("%w: cycle %s", ErrNoResolvableCycle, strings.Join(cycle, " -> "))
	}

	item, _ := r.list.Get(best.From)
	item.Dependencies = removeString(item.Dependencies, best.To)
	r.removed[*best] = true
	r.Rebuild()

	r.logger.Info("broke dependency cycle",
		zap.String("item", itemID),
		zap.String("edge_from", best.From),
		zap.String("edge_to", best.To),
		zap.Int("importance", bestScore),
	)
	return best.From, best.To, nil
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
