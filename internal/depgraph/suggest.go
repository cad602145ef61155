package depgraph

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// SuggestionKind names one recovery option for a blocked item.
type SuggestionKind string

const (
	// SuggestSkipFailed: drop the edges to failed dependencies and proceed.
	SuggestSkipFailed SuggestionKind = "skip_failed"
	// SuggestRetryFailed: re-run the failed dependencies first.
	SuggestRetryFailed SuggestionKind = "retry_failed"
	// SuggestWait: dependencies are still in flight.
	SuggestWait SuggestionKind = "wait"
	// SuggestAlternativePath: other ready items can make progress first.
	SuggestAlternativePath SuggestionKind = "alternative_path"
	// SuggestReplanItem: replan the whole item with fresh decomposition.
	SuggestReplanItem SuggestionKind = "replan_item"
)

// Suggestion is one ranked recovery option. Rank 1 is the strongest.
type Suggestion struct {
	Kind   SuggestionKind
	Rank   int
	Reason string
	// ItemIDs carries the dependencies or alternative items involved.
	ItemIDs []string
}

// SuggestAlternatives returns ranked recovery options for an item whose
// analysis could not be auto-resolved. It never mutates state; the
// decision is deferred to the orchestrator or the reasoning provider.
func (r *Resolver) SuggestAlternatives(itemID string, analysis *Analysis) []Suggestion {
	if analysis == nil {
		return nil
	}

	var failed, retryable, blocking []string
	for _, iss := range analysis.Issues {
		switch iss.Kind {
		case IssueFailedDependency:
			failed = append(failed, iss.DependencyID)
			if dep, ok := r.list.Get(iss.DependencyID); ok && !dep.AttemptsExhausted() {
				retryable = append(retryable, iss.DependencyID)
			}
		case IssueBlocking:
			blocking = append(blocking, iss.DependencyID)
		}
	}

	var suggestions []Suggestion
	if len(retryable) > 0 {
		suggestions = append(suggestions, Suggestion{
			Kind:    SuggestRetryFailed,
			Reason:  fmt.Sprintf("%d failed dependencies still have attempts left", len(retryable)),
			ItemIDs: retryable,
		})
	}
	if len(failed) > 0 {
		suggestions = append(suggestions, Suggestion{
			Kind:    SuggestSkipFailed,
			Reason:  "proceed without the failed dependencies",
			ItemIDs: failed,
		})
	}
	if len(blocking) > 0 {
		suggestions = append(suggestions, Suggestion{
			Kind:    SuggestWait,
			Reason:  fmt.Sprintf("%d dependencies still in flight", len(blocking)),
			ItemIDs: blocking,
		})
	}
	if ready := r.alternativeReady(itemID); len(ready) > 0 {
		suggestions = append(suggestions, Suggestion{
			Kind:    SuggestAlternativePath,
			Reason:  "other ready items can make progress first",
			ItemIDs: ready,
		})
	}
	suggestions = append(suggestions, Suggestion{
		Kind:   SuggestReplanItem,
		Reason: "decompose the item so it no longer needs the broken dependencies",
	})

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestionOrder(suggestions[i].Kind) < suggestionOrder(suggestions[j].Kind)
	})
	for i := range suggestions {
		suggestions[i].Rank = i + 1
	}
	return suggestions
}

// suggestionOrder ranks kinds from least to most disruptive.
func suggestionOrder(kind SuggestionKind) int {
	switch kind {
	case SuggestWait:
		return 0
	case SuggestRetryFailed:
		return 1
	case SuggestAlternativePath:
		return 2
	case SuggestSkipFailed:
		return 3
	case SuggestReplanItem:
		return 4
	}
	return 5
}

func (r *Resolver) alternativeReady(excludeID string) []string {
	var ids []string
	for _, item := range r.graph.Ready() {
		if item.ID != excludeID {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// SkipUnreachable marks every pending item whose dependency chain passes
// through a terminally failed or non-optionally skipped item as skipped.
// Returns the IDs it changed. Used by the orchestrator before computing
// the run summary so unreachable dependents count as skipped.
func (r *Resolver) SkipUnreachable() []string {
	var skipped []string
	for {
		changed := false
		for _, item := range r.list.Items() {
			if item.Status != todo.StatusPending {
				continue
			}
			for _, depID := range item.Dependencies {
				dep, ok := r.list.Get(depID)
				if !ok {
					continue
				}
				unreachable := dep.Status == todo.StatusFailed ||
					(dep.Status == todo.StatusSkipped && !isOptional(dep))
				if unreachable {
					item.Status = todo.StatusSkipped
					skipped = append(skipped, item.ID)
					changed = true
					break
				}
			}
		}
		if !changed {
			return skipped
		}
	}
}
