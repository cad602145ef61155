package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/todo"
	"github.com/fyrsmithlabs/taskd/internal/verification"
)

// fakeReasoner is a scripted reasoner: per-operation function fields
// with workable defaults, so each test overrides only what it needs.
type fakeReasoner struct {
	mu          sync.Mutex
	planCalls   []string
	verifyCalls []string

	PlanFunc   func(item *todo.Item) (*provider.PlanResult, error)
	VerifyFunc func(item *todo.Item) (*todo.VerificationResult, error)
	ReplanFunc func(item *todo.Item) (*provider.ReplanDecision, error)
	SelectFunc func(item *todo.Item) (*provider.ServerSelection, error)
}

func (f *fakeReasoner) Decompose(ctx context.Context, request string) (*todo.List, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeReasoner) SelectServers(ctx context.Context, item *todo.Item, listCtx *provider.ListContext) (*provider.ServerSelection, error) {
	if f.SelectFunc != nil {
		return f.SelectFunc(item)
	}
	return &provider.ServerSelection{Servers: []string{"filesystem"}}, nil
}

func (f *fakeReasoner) Plan(ctx context.Context, item *todo.Item, listCtx *provider.ListContext, servers []string) (*provider.PlanResult, error) {
	f.mu.Lock()
	f.planCalls = append(f.planCalls, item.ID)
	f.mu.Unlock()
	if f.PlanFunc != nil {
		return f.PlanFunc(item)
	}
	return &provider.PlanResult{
		Success: true,
		Calls: []todo.ToolCall{{
			Server:     "filesystem",
			Tool:       "write_file",
			Parameters: map[string]any{"path": "/tmp/out"},
		}},
	}, nil
}

func (f *fakeReasoner) Verify(ctx context.Context, item *todo.Item, results []todo.CallResult, method string) (*todo.VerificationResult, error) {
	f.mu.Lock()
	f.verifyCalls = append(f.verifyCalls, item.ID)
	f.mu.Unlock()
	if f.VerifyFunc != nil {
		return f.VerifyFunc(item)
	}
	return &todo.VerificationResult{Verified: true, Confidence: 90, Method: method}, nil
}

func (f *fakeReasoner) Replan(ctx context.Context, item *todo.Item, execEvidence []todo.CallResult, verifyEvidence *todo.VerificationResult) (*provider.ReplanDecision, error) {
	if f.ReplanFunc != nil {
		return f.ReplanFunc(item)
	}
	return &provider.ReplanDecision{Strategy: provider.StrategyRetry}, nil
}

func testCapability() *provider.StaticCapability {
	c := provider.NewStaticCapability()
	c.AddServer("filesystem", []provider.ToolInfo{
		{Name: "write_file", Required: []string{"path"}},
		{Name: "read_file", Required: []string{"path"}},
	}, nil)
	return c
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Verification = verification.Config{SettleDelay: time.Millisecond}
	return cfg
}

func newTestOrchestrator(t *testing.T, r provider.Reasoner, c provider.Capability, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(r, c, fastConfig(), zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return o
}

func TestRunCompletesLinearList(t *testing.T) {
	r := &fakeReasoner{}
	o := newTestOrchestrator(t, r, testCapability())

	list := todo.NewList("write two files")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the file first", "file exists")))
	require.NoError(t, list.Add(todo.NewItem("2", "Read the file back", "content matches", "1")))

	summary, err := o.Run(context.Background(), list)
	require.NoError(t, err)

	assert.True(t, summary.Success)
	assert.Equal(t, 2, summary.CompletedCount)
	assert.Equal(t, 2, summary.TotalCount)
	assert.InDelta(t, 1.0, summary.SuccessRate, 0.001)

	// Dependency order: item 2 planned strictly after item 1.
	assert.Equal(t, []string{"1", "2"}, r.planCalls)
	for _, item := range list.Items() {
		assert.Equal(t, todo.StatusCompleted, item.Status)
	}
}

func TestRunCorrectsNearMissToolName(t *testing.T) {
	r := &fakeReasoner{
		PlanFunc: func(item *todo.Item) (*provider.PlanResult, error) {
			return &provider.PlanResult{
				Success: true,
				Calls: []todo.ToolCall{{
					Server:     "filesystem",
					Tool:       "write_fil",
					Parameters: map[string]any{"path": "/tmp/out"},
				}},
			}, nil
		},
	}
	cap := testCapability()

	var invoked []string
	cap.AddServer("filesystem", []provider.ToolInfo{
		{Name: "write_file", Required: []string{"path"}},
	}, func(ctx context.Context, call todo.ToolCall) (*provider.InvokeResult, error) {
		invoked = append(invoked, call.Tool)
		return &provider.InvokeResult{Success: true}, nil
	})

	o := newTestOrchestrator(t, r, cap)
	list := todo.NewList("r")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the file", "file exists")))

	summary, err := o.Run(context.Background(), list)
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, []string{"write_file"}, invoked)
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	r := &fakeReasoner{
		VerifyFunc: func(item *todo.Item) (*todo.VerificationResult, error) {
			attempts++
			if attempts == 1 {
				return &todo.VerificationResult{Verified: false, Confidence: 20, Reason: "not there yet"}, nil
			}
			return &todo.VerificationResult{Verified: true, Confidence: 95}, nil
		},
	}
	o := newTestOrchestrator(t, r, testCapability())

	list := todo.NewList("r")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the file", "file exists")))

	summary, err := o.Run(context.Background(), list)
	require.NoError(t, err)
	assert.True(t, summary.Success)

	item, _ := list.Get("1")
	assert.Equal(t, 2, item.Attempts)
	require.Len(t, item.Failures, 1)
	assert.Equal(t, todo.StageVerify, item.Failures[0].Stage)
}

func TestRunNeverExceedsMaxAttempts(t *testing.T) {
	r := &fakeReasoner{
		VerifyFunc: func(item *todo.Item) (*todo.VerificationResult, error) {
			return &todo.VerificationResult{Verified: false, Confidence: 10, Reason: "still wrong"}, nil
		},
	}
	o := newTestOrchestrator(t, r, testCapability())

	list := todo.NewList("r")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the file", "file exists")))

	summary, err := o.Run(context.Background(), list)
	require.NoError(t, err)
	assert.False(t, summary.Success)

	item, _ := list.Get("1")
	assert.Equal(t, todo.StatusFailed, item.Status)
	assert.Equal(t, todo.DefaultMaxAttempts, item.Attempts)
}

func TestRunDecomposesIntoChildren(t *testing.T) {
	r := &fakeReasoner{
		VerifyFunc: func(item *todo.Item) (*todo.VerificationResult, error) {
			if item.ID == "1" {
				return &todo.VerificationResult{Verified: false, Confidence: 10, Reason: "too broad"}, nil
			}
			return &todo.VerificationResult{Verified: true, Confidence: 95}, nil
		},
		ReplanFunc: func(item *todo.Item) (*provider.ReplanDecision, error) {
			return &provider.ReplanDecision{
				Replanned: true,
				Strategy:  provider.StrategyDecompose,
				NewItems: []*todo.Item{
					todo.NewItem("", "Write the first half", "half exists"),
					todo.NewItem("", "Write the second half", "whole exists"),
				},
			}, nil
		},
	}
	o := newTestOrchestrator(t, r, testCapability())

	list := todo.NewList("r")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the whole file", "file exists")))
	require.NoError(t, list.Add(todo.NewItem("2", "Read the file", "content ok", "1")))

	summary, err := o.Run(context.Background(), list)
	require.NoError(t, err)
	assert.True(t, summary.Success)

	parent, _ := list.Get("1")
	assert.Equal(t, todo.StatusReplanned, parent.Status)

	c1, ok := list.Get("1.1")
	require.True(t, ok)
	assert.Equal(t, todo.StatusCompleted, c1.Status)
	c2, ok := list.Get("1.2")
	require.True(t, ok)
	assert.Equal(t, []string{"1.1"}, c2.Dependencies)
	assert.Equal(t, todo.StatusCompleted, c2.Status)

	// The dependent of the replanned parent ran after its replacement.
	dependent, _ := list.Get("2")
	assert.Equal(t, todo.StatusCompleted, dependent.Status)

	// Replanned parent excluded from counts: 3 real items.
	assert.Equal(t, 3, summary.TotalCount)
}

func TestRunSkipStrategyCascades(t *testing.T) {
	r := &fakeReasoner{
		VerifyFunc: func(item *todo.Item) (*todo.VerificationResult, error) {
			if item.ID == "1" {
				return &todo.VerificationResult{Verified: false, Confidence: 5}, nil
			}
			return &todo.VerificationResult{Verified: true, Confidence: 95}, nil
		},
		ReplanFunc: func(item *todo.Item) (*provider.ReplanDecision, error) {
			return &provider.ReplanDecision{Replanned: true, Strategy: provider.StrategySkip}, nil
		},
	}
	o := newTestOrchestrator(t, r, testCapability())

	list := todo.NewList("r")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the file", "file exists")))
	require.NoError(t, list.Add(todo.NewItem("2", "Read the file", "content ok", "1")))

	summary, err := o.Run(context.Background(), list)
	require.NoError(t, err)
	assert.False(t, summary.Success)

	first, _ := list.Get("1")
	assert.Equal(t, todo.StatusSkipped, first.Status)
	second, _ := list.Get("2")
	assert.Equal(t, todo.StatusSkipped, second.Status)
	assert.Zero(t, summary.CompletedCount)
}

func TestRunStageFailureDoesNotAbortSiblings(t *testing.T) {
	r := &fakeReasoner{
		PlanFunc: func(item *todo.Item) (*provider.PlanResult, error) {
			if item.ID == "1" {
				return nil, errors.New("planner outage")
			}
			return &provider.PlanResult{
				Success: true,
				Calls: []todo.ToolCall{{
					Server:     "filesystem",
					Tool:       "write_file",
					Parameters: map[string]any{"path": "/tmp/out"},
				}},
			}, nil
		},
		ReplanFunc: func(item *todo.Item) (*provider.ReplanDecision, error) {
			return &provider.ReplanDecision{Replanned: true, Strategy: provider.StrategyFail}, nil
		},
	}
	o := newTestOrchestrator(t, r, testCapability())

	list := todo.NewList("r")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the report", "report exists")))
	require.NoError(t, list.Add(todo.NewItem("2", "Write the summary", "summary exists")))

	summary, err := o.Run(context.Background(), list)
	require.NoError(t, err)

	first, _ := list.Get("1")
	assert.Equal(t, todo.StatusFailed, first.Status)
	second, _ := list.Get("2")
	assert.Equal(t, todo.StatusCompleted, second.Status)
	assert.Equal(t, 1, summary.CompletedCount)
	assert.False(t, summary.Success)
}

func TestRunSelectFallbackOnProviderFailure(t *testing.T) {
	r := &fakeReasoner{
		SelectFunc: func(item *todo.Item) (*provider.ServerSelection, error) {
			return nil, errors.New("selection outage")
		},
	}
	o := newTestOrchestrator(t, r, testCapability())

	list := todo.NewList("r")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the file", "file exists")))

	summary, err := o.Run(context.Background(), list)
	require.NoError(t, err)
	assert.True(t, summary.Success)
}

func TestRunCancelledMarksPendingSkipped(t *testing.T) {
	r := &fakeReasoner{}
	o := newTestOrchestrator(t, r, testCapability())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	list := todo.NewList("r")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the file", "file exists")))
	require.NoError(t, list.Add(todo.NewItem("2", "Read the file", "content ok", "1")))

	summary, err := o.Run(ctx, list)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	for _, item := range list.Items() {
		assert.Equal(t, todo.StatusSkipped, item.Status)
	}
}

func TestRunBreaksResolvableCycle(t *testing.T) {
	r := &fakeReasoner{}
	o := newTestOrchestrator(t, r, testCapability())

	list := todo.NewList("r")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the file", "file exists", "2")))
	require.NoError(t, list.Add(todo.NewItem("2", "Read the file", "content ok", "1")))

	summary, err := o.Run(context.Background(), list)
	require.NoError(t, err)
	assert.True(t, summary.Success)
}

func TestRunEmitsStageEvents(t *testing.T) {
	r := &fakeReasoner{}
	var mu sync.Mutex
	var events []Event
	o := newTestOrchestrator(t, r, testCapability(), WithEvents(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	list := todo.NewList("r")
	require.NoError(t, list.Add(todo.NewItem("1", "Write the file", "file exists")))

	_, err := o.Run(context.Background(), list)
	require.NoError(t, err)

	stages := make(map[todo.Stage]bool)
	for _, e := range events {
		assert.Equal(t, "1", e.ItemID)
		if e.Outcome == OutcomeSucceeded {
			stages[e.Stage] = true
		}
	}
	for _, s := range []todo.Stage{todo.StageSelect, todo.StagePlan, todo.StageValidate, todo.StageExecute, todo.StageVerify} {
		assert.True(t, stages[s], "missing succeeded event for stage %s", s)
	}
}

func TestSummaryBands(t *testing.T) {
	list := todo.NewList("r")
	for _, spec := range []struct {
		id     string
		status todo.Status
	}{
		{"1", todo.StatusCompleted},
		{"2", todo.StatusCompleted},
		{"3", todo.StatusFailed},
	} {
		item := todo.NewItem(spec.id, "a", "c")
		item.Status = spec.status
		require.NoError(t, list.Add(item))
	}

	s := summarize(list)
	assert.False(t, s.Success)
	assert.Contains(t, s.SummaryText, "Partially completed")
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 0.001)
}

func TestSummaryEmptyListIsNotAFailure(t *testing.T) {
	s := summarize(todo.NewList("r"))
	assert.True(t, s.Success)
	assert.Zero(t, s.TotalCount)
	assert.Equal(t, "No tasks to run.", s.SummaryText)
	assert.NotContains(t, s.SummaryText, "failed")
}
