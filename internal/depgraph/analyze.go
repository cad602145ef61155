package depgraph

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// IssueKind classifies one problematic dependency of an item.
type IssueKind string

const (
	// IssueFailedDependency: the depended-on item failed; caller must
	// decide between skipping and retrying.
	IssueFailedDependency IssueKind = "failed_dependency"
	// IssueReplannedDependency: the depended-on item was decomposed;
	// substitute its children.
	IssueReplannedDependency IssueKind = "replanned_dependency"
	// IssueRemovableOptional: the depended-on item was skipped and is
	// optional; the edge can be dropped.
	IssueRemovableOptional IssueKind = "removable_optional"
	// IssueMissingDependency: the referenced item does not exist.
	IssueMissingDependency IssueKind = "missing_dependency"
	// IssueBlocking: the depended-on item is still pending/in progress;
	// the dependent must wait.
	IssueBlocking IssueKind = "blocking"
)

// Issue is one classified dependency problem.
type Issue struct {
	Kind IssueKind
	// DependencyID is the problematic dependency.
	DependencyID string
	// Children are the replacement IDs for a replanned dependency.
	Children []string
	Detail   string
}

// Analysis is the full classification of an item's dependencies.
type Analysis struct {
	ItemID string
	Issues []Issue
	// CanAutoResolve is false whenever any dependency is failed, forcing
	// the caller into suggestion handling.
	CanAutoResolve bool
}

// HasIssues reports whether anything needs repair or waiting.
func (a *Analysis) HasIssues() bool { return len(a.Issues) > 0 }

// Blocked reports whether the item must wait on in-flight dependencies.
func (a *Analysis) Blocked() bool {
	for _, iss := range a.Issues {
		if iss.Kind == IssueBlocking {
			return true
		}
	}
	return false
}

// AnalyzeDependencyIssues classifies each dependency of the item by the
// depended-on item's status.
func (r *Resolver) AnalyzeDependencyIssues(itemID string) (*Analysis, error) {
	item, ok := r.list.Get(itemID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotInGraph, itemID)
	}

	analysis := &Analysis{ItemID: itemID, CanAutoResolve: true}
	for _, depID := range item.Dependencies {
		dep, ok := r.list.Get(depID)
		if !ok {
			analysis.Issues = append(analysis.Issues, Issue{
				Kind:         IssueMissingDependency,
				DependencyID: depID,
				Detail:       "referenced item does not exist",
			})
			continue
		}

		switch dep.Status {
		case todo.StatusFailed:
			analysis.CanAutoResolve = false
			analysis.Issues = append(analysis.Issues, Issue{
				Kind:         IssueFailedDependency,
				DependencyID: depID,
				Detail:       "dependency failed; skip or retry",
			})
		case todo.StatusReplanned:
			children := todo.ChildrenOf(depID, itemIDs(r.list))
			if len(children) == 0 {
				// Replanned without replacements: substituting an
				// empty set would unblock the dependent even though
				// the work never happened.
				analysis.CanAutoResolve = false
				analysis.Issues = append(analysis.Issues, Issue{
					Kind:         IssueFailedDependency,
					DependencyID: depID,
					Detail:       "dependency replanned without replacement items",
				})
				continue
			}
			analysis.Issues = append(analysis.Issues, Issue{
				Kind:         IssueReplannedDependency,
				DependencyID: depID,
				Children:     children,
				Detail:       fmt.Sprintf("dependency decomposed into %d children", len(children)),
			})
		case todo.StatusSkipped:
			if isOptional(dep) {
				analysis.Issues = append(analysis.Issues, Issue{
					Kind:         IssueRemovableOptional,
					DependencyID: depID,
					Detail:       "skipped optional dependency",
				})
			} else {
				analysis.CanAutoResolve = false
				analysis.Issues = append(analysis.Issues, Issue{
					Kind:         IssueFailedDependency,
					DependencyID: depID,
					Detail:       "required dependency was skipped",
				})
			}
		case todo.StatusPending, todo.StatusInProgress:
			analysis.Issues = append(analysis.Issues, Issue{
				Kind:         IssueBlocking,
				DependencyID: depID,
				Detail:       "dependency still " + string(dep.Status),
			})
		}
	}
	return analysis, nil
}

// isOptional applies the optional-dependency heuristics: explicit flag,
// low priority, or the word "optional" in the action text.
func isOptional(item *todo.Item) bool {
	if item.Optional || item.Priority == todo.PriorityLow {
		return true
	}
	return strings.Contains(strings.ToLower(item.Action), "optional")
}

// AutoResolve applies all replace-with-children and remove-optional/
// missing repairs atomically to the item's dependency list. It does
// nothing and reports false when the analysis is not auto-resolvable.
func (r *Resolver) AutoResolve(itemID string, analysis *Analysis) (bool, error) {
	item, ok := r.list.Get(itemID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrItemNotInGraph, itemID)
	}
	if analysis == nil || !analysis.CanAutoResolve {
		return false, nil
	}

	// Compute the full replacement first so the mutation is all-or-nothing.
	replacement := make([]string, 0, len(item.Dependencies))
	changed := false
	for _, depID := range item.Dependencies {
		issue := findIssue(analysis, depID)
		if issue == nil {
			replacement = append(replacement, depID)
			continue
		}
		switch issue.Kind {
		case IssueReplannedDependency:
			replacement = append(replacement, issue.Children...)
			changed = true
		case IssueRemovableOptional, IssueMissingDependency:
			changed = true
		default:
			replacement = append(replacement, depID)
		}
	}
	if !changed {
		return false, nil
	}

	item.Dependencies = replacement
	r.Rebuild()
	r.logger.Info("auto-resolved dependencies",
		zap.String("item", itemID),
		zap.Strings("dependencies", replacement),
	)
	return true, nil
}

func findIssue(analysis *Analysis, depID string) *Issue {
	for i := range analysis.Issues {
		if analysis.Issues[i].DependencyID == depID {
			return &analysis.Issues[i]
		}
	}
	return nil
}

func itemIDs(list *todo.List) []string {
	items := list.Items()
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
