package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

func TestDefaultImportance(t *testing.T) {
	tests := []struct {
		name       string
		item       *todo.Item
		dependents int
		want       int
	}{
		{
			name: "pending normal",
			item: &todo.Item{Status: todo.StatusPending, Priority: todo.PriorityNormal},
			want: 1,
		},
		{
			name: "completed is protected",
			item: &todo.Item{Status: todo.StatusCompleted, Priority: todo.PriorityNormal},
			want: 11,
		},
		{
			name: "failed low priority with no dependents",
			item: &todo.Item{Status: todo.StatusFailed, Priority: todo.PriorityLow},
			want: -6,
		},
		{
			name:       "skipped high priority with dependents",
			item:       &todo.Item{Status: todo.StatusSkipped, Priority: todo.PriorityHigh},
			dependents: 2,
			want:       7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultImportance(tt.item, tt.dependents))
		})
	}
}

func TestResolveCycleRemovesWeakestEdge(t *testing.T) {
	// 1 -> 2 -> 3 -> 1; item 2 failed, so its outgoing edge is weakest.
	one := todo.NewItem("1", "a", "", "2")
	two := todo.NewItem("2", "b", "", "3")
	two.Status = todo.StatusFailed
	three := todo.NewItem("3", "c", "", "1")
	l := buildList(t, one, two, three)

	r := NewResolver(l, zaptest.NewLogger(t))
	require.True(t, r.Graph().HasCycle())

	from, to, err := r.ResolveCycle("1")
	require.NoError(t, err)
	assert.Equal(t, "2", from)
	assert.Equal(t, "3", to)
	assert.Empty(t, two.Dependencies)
	assert.False(t, r.Graph().HasCycle())
}

func TestResolveCycleFailsWhenNoCandidates(t *testing.T) {
	one := todo.NewItem("1", "a", "", "2")
	two := todo.NewItem("2", "b", "", "1")
	l := buildList(t, one, two)

	r := NewResolver(l, zaptest.NewLogger(t))
	_, _, err := r.ResolveCycle("1")
	require.NoError(t, err)

	// No cycle left; a second resolution has nothing to cut.
	_, _, err = r.ResolveCycle("1")
	assert.ErrorIs(t, err, ErrNoResolvableCycle)
}

func TestResolveCycleHonorsCustomPolicy(t *testing.T) {
	one := todo.NewItem("1", "a", "", "2")
	two := todo.NewItem("2", "b", "", "1")
	l := buildList(t, one, two)

	r := NewResolver(l, zaptest.NewLogger(t))
	r.SetImportance(func(item *todo.Item, _ int) int {
		if item.ID == "2" {
			return 100
		}
		return 0
	})

	from, _, err := r.ResolveCycle("1")
	require.NoError(t, err)
	assert.Equal(t, "1", from)
}

func TestAnalyzeDependencyIssues(t *testing.T) {
	failed := todo.NewItem("1", "compile", "")
	failed.Status = todo.StatusFailed

	replanned := todo.NewItem("2", "deploy", "")
	replanned.Status = todo.StatusReplanned
	childA := todo.NewItem("2.1", "build image", "")
	childA.Status = todo.StatusCompleted
	childB := todo.NewItem("2.2", "push image", "")

	optional := todo.NewItem("3", "optional cleanup pass", "")
	optional.Status = todo.StatusSkipped

	inflight := todo.NewItem("4", "migrate", "")
	inflight.Status = todo.StatusInProgress

	target := todo.NewItem("5", "announce", "", "1", "2", "3", "4", "9")
	l := buildList(t, failed, replanned, childA, childB, optional, inflight, target)

	r := NewResolver(l, zaptest.NewLogger(t))
	analysis, err := r.AnalyzeDependencyIssues("5")
	require.NoError(t, err)

	require.Len(t, analysis.Issues, 5)
	assert.False(t, analysis.CanAutoResolve, "failed dependency forces manual handling")
	assert.True(t, analysis.Blocked())

	kinds := make(map[string]IssueKind)
	for _, iss := range analysis.Issues {
		kinds[iss.DependencyID] = iss.Kind
	}
	assert.Equal(t, IssueFailedDependency, kinds["1"])
	assert.Equal(t, IssueReplannedDependency, kinds["2"])
	assert.Equal(t, IssueRemovableOptional, kinds["3"])
	assert.Equal(t, IssueBlocking, kinds["4"])
	assert.Equal(t, IssueMissingDependency, kinds["9"])

	for _, iss := range analysis.Issues {
		if iss.Kind == IssueReplannedDependency {
			assert.Equal(t, []string{"2.1", "2.2"}, iss.Children)
		}
	}
}

func TestAutoResolveSubstitutesChildrenAndDropsOptional(t *testing.T) {
	replanned := todo.NewItem("2", "deploy", "")
	replanned.Status = todo.StatusReplanned
	childA := todo.NewItem("2.1", "build image", "")
	childB := todo.NewItem("2.2", "push image", "")

	optional := todo.NewItem("3", "cleanup", "")
	optional.Status = todo.StatusSkipped
	optional.Optional = true

	target := todo.NewItem("5", "announce", "", "2", "3", "9")
	l := buildList(t, replanned, childA, childB, optional, target)

	r := NewResolver(l, zaptest.NewLogger(t))
	analysis, err := r.AnalyzeDependencyIssues("5")
	require.NoError(t, err)
	require.True(t, analysis.CanAutoResolve)

	resolved, err := r.AutoResolve("5", analysis)
	require.NoError(t, err)
	assert.True(t, resolved)
	assert.Equal(t, []string{"2.1", "2.2"}, target.Dependencies)
}

func TestAutoResolveRefusesChildlessReplannedDependency(t *testing.T) {
	replanned := todo.NewItem("1", "provision cluster", "")
	replanned.Status = todo.StatusReplanned
	target := todo.NewItem("2", "deploy service", "", "1")
	l := buildList(t, replanned, target)

	r := NewResolver(l, zaptest.NewLogger(t))
	analysis, err := r.AnalyzeDependencyIssues("2")
	require.NoError(t, err)
	require.False(t, analysis.CanAutoResolve)
	require.Len(t, analysis.Issues, 1)
	assert.Equal(t, IssueFailedDependency, analysis.Issues[0].Kind)

	resolved, err := r.AutoResolve("2", analysis)
	require.NoError(t, err)
	assert.False(t, resolved)
	assert.Equal(t, []string{"1"}, target.Dependencies, "no mutation on refusal")
}

func TestAutoResolveRefusesFailedDependencies(t *testing.T) {
	failed := todo.NewItem("1", "compile", "")
	failed.Status = todo.StatusFailed
	target := todo.NewItem("2", "link", "", "1")
	l := buildList(t, failed, target)

	r := NewResolver(l, zaptest.NewLogger(t))
	analysis, err := r.AnalyzeDependencyIssues("2")
	require.NoError(t, err)

	resolved, err := r.AutoResolve("2", analysis)
	require.NoError(t, err)
	assert.False(t, resolved)
	assert.Equal(t, []string{"1"}, target.Dependencies, "no mutation on refusal")
}

func TestSuggestAlternativesRankedWithoutMutation(t *testing.T) {
	failed := todo.NewItem("1", "compile", "")
	failed.Status = todo.StatusFailed
	failed.Attempts = 1

	ready := todo.NewItem("2", "docs", "")
	target := todo.NewItem("3", "link", "", "1")
	l := buildList(t, failed, ready, target)

	r := NewResolver(l, zaptest.NewLogger(t))
	analysis, err := r.AnalyzeDependencyIssues("3")
	require.NoError(t, err)

	suggestions := r.SuggestAlternatives("3", analysis)
	require.NotEmpty(t, suggestions)
	for i, s := range suggestions {
		assert.Equal(t, i+1, s.Rank)
	}
	// Retry outranks skip while the failed dependency has attempts left.
	assert.Equal(t, SuggestRetryFailed, suggestions[0].Kind)

	kinds := make(map[SuggestionKind]bool)
	for _, s := range suggestions {
		kinds[s.Kind] = true
	}
	assert.True(t, kinds[SuggestSkipFailed])
	assert.True(t, kinds[SuggestAlternativePath])
	assert.True(t, kinds[SuggestReplanItem])

	assert.Equal(t, []string{"1"}, target.Dependencies, "suggestions never mutate state")
}

func TestSkipUnreachableCascades(t *testing.T) {
	failed := todo.NewItem("1", "a", "")
	failed.Status = todo.StatusFailed
	mid := todo.NewItem("2", "b", "", "1")
	leaf := todo.NewItem("3", "c", "", "2")
	free := todo.NewItem("4", "d", "")
	l := buildList(t, failed, mid, leaf, free)

	r := NewResolver(l, zaptest.NewLogger(t))
	skipped := r.SkipUnreachable()
	assert.ElementsMatch(t, []string{"2", "3"}, skipped)
	assert.Equal(t, todo.StatusSkipped, mid.Status)
	assert.Equal(t, todo.StatusSkipped, leaf.Status)
	assert.Equal(t, todo.StatusPending, free.Status)
}
