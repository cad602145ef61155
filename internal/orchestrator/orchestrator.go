package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/taskd/internal/depgraph"
	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/todo"
	"github.com/fyrsmithlabs/taskd/internal/validation"
	"github.com/fyrsmithlabs/taskd/internal/verification"
)

const instrumentationName = "github.com/fyrsmithlabs/taskd/internal/orchestrator"

// Config configures the orchestrator.
type Config struct {
	// Concurrency bounds how many ready items run at once. Default 3.
	Concurrency int

	// Validation configures the pipeline chain.
	Validation validation.Config

	// Verification configures the composite verifier.
	Verification verification.Config
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:  3,
		Validation:   validation.DefaultConfig(),
		Verification: verification.DefaultConfig(),
	}
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithEvents installs an event sink.
func WithEvents(fn EventFunc) Option {
	return func(o *Orchestrator) { o.events = fn }
}

// WithCapturer enables visual verification evidence.
func WithCapturer(c verification.Capturer) Option {
	return func(o *Orchestrator) { o.capturer = c }
}

// Orchestrator drives a todo list through the select, plan, validate,
// execute, verify, replan cycle.
type Orchestrator struct {
	reasoner   provider.Reasoner
	capability provider.Capability
	pipeline   *validation.Pipeline
	verifier   *verification.Composite
	history    *validation.History
	fallback   *provider.FallbackSelector
	capturer   verification.Capturer

	concurrency int
	events      EventFunc
	logger      *zap.Logger

	// mu guards list mutation from concurrent item goroutines
	// (decomposition adds children while siblings run).
	mu sync.Mutex

	itemsCompleted metric.Int64Counter
	itemsFailed    metric.Int64Counter
	attemptCount   metric.Int64Counter
	itemSeconds    metric.Float64Histogram
}

// New wires the orchestrator. The validation pipeline and composite
// verifier are built internally around the given providers.
func New(reasoner provider.Reasoner, capability provider.Capability, cfg Config, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if reasoner == nil {
		return nil, fmt.Errorf("reasoner is required")
	}
	if capability == nil {
		return nil, fmt.Errorf("capability is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}

	o := &Orchestrator{
		reasoner:    reasoner,
		capability:  capability,
		history:     validation.NewHistory(),
		fallback:    provider.NewFallbackSelector(capability.Servers()),
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(o)
	}

	pipeline, err := validation.NewPipeline(validation.NewRegistry(), cfg.Validation, logger.Named("validation"))
	if err != nil {
		return nil, fmt.Errorf("build validation pipeline: %w", err)
	}
	o.pipeline = pipeline
	o.verifier = verification.NewComposite(
		newVerifierRegistry(reasoner), o.capturer, cfg.Verification, logger.Named("verification"))

	meter := otel.GetMeterProvider().Meter(instrumentationName)
	o.itemsCompleted, _ = meter.Int64Counter("orchestrator_items_completed_total",
		metric.WithDescription("Items completed and verified"))
	o.itemsFailed, _ = meter.Int64Counter("orchestrator_items_failed_total",
		metric.WithDescription("Items terminally failed"))
	o.attemptCount, _ = meter.Int64Counter("orchestrator_attempts_total",
		metric.WithDescription("Item execution attempts"))
	o.itemSeconds, _ = meter.Float64Histogram("orchestrator_item_seconds",
		metric.WithDescription("Wall time per item, all attempts"))
	return o, nil
}

// Decompose asks the reasoner to build the initial list for a request.
func (o *Orchestrator) Decompose(ctx context.Context, request string) (*todo.List, error) {
	return o.reasoner.Decompose(ctx, request)
}

// Run executes the list to completion and returns the summary. The
// summary is produced even when the context is cancelled mid-run; only
// an unresolvable dependency cycle returns without one.
func (o *Orchestrator) Run(ctx context.Context, list *todo.List) (*Summary, error) {
	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("starting run",
		zap.String("request", list.Request),
		zap.Int("items", list.Len()))

	resolver := depgraph.NewResolver(list, logger)

	for {
		if err := ctx.Err(); err != nil {
			o.skipPending(list, "run cancelled")
			logger.Warn("run cancelled", zap.Error(err))
			return summarize(list), err
		}

		if resolver.Graph().HasCycle() {
			if err := breakCycles(resolver, logger); err != nil {
				logger.Error("aborting run", zap.Error(err))
				return nil, err
			}
		}

		ready := resolver.Graph().Ready()
		if len(ready) == 0 {
			if !hasOpenItems(list) {
				break
			}
			progressed := o.unblock(list, resolver, logger)
			if !progressed {
				o.skipPending(list, "blocked by failed dependencies")
				break
			}
			resolver.Rebuild()
			continue
		}

		o.runWave(ctx, list, ready, logger)
		resolver.Rebuild()
	}

	resolver.SkipUnreachable()
	summary := summarize(list)
	logger.Info("run finished",
		zap.Bool("success", summary.Success),
		zap.Int("completed", summary.CompletedCount),
		zap.Int("total", summary.TotalCount))
	return summary, nil
}

// runWave executes the ready items, bounded by the concurrency limit.
// Stage failures are absorbed into item state; the wave itself cannot
// fail.
func (o *Orchestrator) runWave(ctx context.Context, list *todo.List, ready []*todo.Item, logger *zap.Logger) {
	listCtx := o.snapshot(list)
	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)
	for _, item := range ready {
		g.Go(func() error {
			o.processItem(ctx, list, listCtx, item, logger)
			return nil
		})
	}
	_ = g.Wait()
}

// snapshot copies the list into a ListContext so concurrent item
// goroutines can describe siblings without racing their status writes.
func (o *Orchestrator) snapshot(list *todo.List) *provider.ListContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	items := list.Items()
	copies := make([]*todo.Item, len(items))
	for i, item := range items {
		c := *item
		copies[i] = &c
	}
	return &provider.ListContext{Request: list.Request, Items: copies}
}

// processItem runs one item to a terminal state, looping attempts under
// replan control. Stages within an attempt are strictly sequential.
func (o *Orchestrator) processItem(ctx context.Context, list *todo.List, listCtx *provider.ListContext, item *todo.Item, logger *zap.Logger) {
	logger = logger.With(zap.String("item_id", item.ID))
	start := time.Now()
	item.Status = todo.StatusInProgress

	for {
		if ctx.Err() != nil {
			item.Status = todo.StatusSkipped
			item.RecordFailure(todo.StageExecute, ctx.Err())
			return
		}

		item.Attempts++
		o.attemptCount.Add(ctx, 1)

		results, verdict, failure := o.runAttempt(ctx, item, listCtx, logger)
		if failure == nil {
			item.Status = todo.StatusCompleted
			o.itemsCompleted.Add(ctx, 1)
			o.itemSeconds.Record(ctx, time.Since(start).Seconds())
			logger.Info("item completed", zap.Int("attempts", item.Attempts))
			return
		}

		item.RecordFailure(failure.Stage, failure.Err)
		logger.Warn("attempt failed",
			zap.String("stage", string(failure.Stage)),
			zap.Int("attempt", item.Attempts),
			zap.Error(failure.Err))

		if done := o.replan(ctx, list, item, results, verdict, logger); done {
			o.itemSeconds.Record(ctx, time.Since(start).Seconds())
			return
		}
	}
}

// runAttempt runs the select through verify stages once. A nil failure
// means the item completed and verified.
func (o *Orchestrator) runAttempt(ctx context.Context, item *todo.Item, listCtx *provider.ListContext, logger *zap.Logger) ([]todo.CallResult, *todo.VerificationResult, *StageFailure) {
	// Select: fall back to the keyword map so this stage never fails.
	o.emit(item.ID, todo.StageSelect, OutcomeStarted, "")
	servers := o.selectServers(ctx, item, listCtx, logger)
	o.emit(item.ID, todo.StageSelect, OutcomeSucceeded, strings.Join(servers, ","))

	// Plan.
	o.emit(item.ID, todo.StagePlan, OutcomeStarted, "")
	plan, err := o.reasoner.Plan(ctx, item, listCtx, servers)
	if err != nil {
		return nil, nil, o.fail(item.ID, todo.StagePlan, err)
	}
	if !plan.Success {
		return nil, nil, o.fail(item.ID, todo.StagePlan, fmt.Errorf("planner gave up: %s", plan.Error))
	}
	if len(plan.Calls) == 0 {
		return nil, nil, o.fail(item.ID, todo.StagePlan, fmt.Errorf("empty plan"))
	}
	o.emit(item.ID, todo.StagePlan, OutcomeSucceeded, "")

	// Validate; corrected calls replace the originals.
	o.emit(item.ID, todo.StageValidate, OutcomeStarted, "")
	res := o.pipeline.Validate(ctx, plan.Calls, &validation.Context{
		ItemID:  item.ID,
		Catalog: o.capability,
		History: o.history,
	})
	if !res.Valid {
		msgs := make([]string, len(res.Errors))
		for i, f := range res.Errors {
			msgs[i] = f.String()
		}
		return nil, nil, o.fail(item.ID, todo.StageValidate, &ValidationRejected{ItemID: item.ID, Errors: msgs})
	}
	calls := res.Calls(plan.Calls)
	o.emit(item.ID, todo.StageValidate, OutcomeSucceeded, "")

	// Execute.
	o.emit(item.ID, todo.StageExecute, OutcomeStarted, "")
	results, execErr := o.execute(ctx, calls)
	if execErr != nil {
		return results, nil, o.fail(item.ID, todo.StageExecute, execErr)
	}
	o.emit(item.ID, todo.StageExecute, OutcomeSucceeded, "")

	// Verify.
	o.emit(item.ID, todo.StageVerify, OutcomeStarted, "")
	verdict, err := o.verifier.Verify(ctx, &verification.Evidence{
		Item:    item,
		Calls:   calls,
		Results: results,
	})
	if err != nil {
		return results, nil, o.fail(item.ID, todo.StageVerify, err)
	}
	if !verdict.Verified {
		return results, verdict, o.fail(item.ID, todo.StageVerify,
			fmt.Errorf("not verified (%s, confidence %.0f): %s", verdict.Method, verdict.Confidence, verdict.Reason))
	}
	o.emit(item.ID, todo.StageVerify, OutcomeSucceeded, "")
	return results, verdict, nil
}

// selectServers asks the reasoner, falling back to the fixed keyword
// map on any failure so the cycle cannot stall here.
func (o *Orchestrator) selectServers(ctx context.Context, item *todo.Item, listCtx *provider.ListContext, logger *zap.Logger) []string {
	sel, err := o.reasoner.SelectServers(ctx, item, listCtx)
	if err == nil && len(sel.Servers) > 0 {
		return sel.Servers
	}
	if err != nil {
		logger.Warn("server selection failed, using keyword fallback", zap.Error(err))
	}
	return o.fallback.Select(item.Action)
}

// execute invokes each call in order, recording outcomes into the
// validation history. Stops at the first failed call.
func (o *Orchestrator) execute(ctx context.Context, calls []todo.ToolCall) ([]todo.CallResult, error) {
	results := make([]todo.CallResult, 0, len(calls))
	for _, call := range calls {
		invoked, err := o.capability.Invoke(ctx, call)
		if err != nil {
			o.history.Record(call.Server, call.Tool, false)
			results = append(results, todo.CallResult{Call: call, Success: false, Error: err.Error()})
			return results, fmt.Errorf("invoke %s/%s: %w", call.Server, call.Tool, err)
		}
		o.history.Record(call.Server, call.Tool, invoked.Success)
		results = append(results, todo.CallResult{
			Call:    call,
			Success: invoked.Success,
			Output:  invoked.Output,
			Error:   invoked.Error,
		})
		if !invoked.Success {
			return results, fmt.Errorf("call %s/%s failed: %s", call.Server, call.Tool, invoked.Error)
		}
	}
	return results, nil
}

// replan decides how to proceed after a failed attempt. Returns true
// when the item reached a terminal state.
func (o *Orchestrator) replan(ctx context.Context, list *todo.List, item *todo.Item, results []todo.CallResult, verdict *todo.VerificationResult, logger *zap.Logger) bool {
	o.emit(item.ID, todo.StageReplan, OutcomeStarted, "")

	decision, err := o.reasoner.Replan(ctx, item, results, verdict)
	if err != nil {
		logger.Warn("replan failed, defaulting", zap.Error(err))
		decision = &provider.ReplanDecision{Strategy: provider.StrategyRetry}
	}

	switch decision.Strategy {
	case provider.StrategyRetry:
		if item.AttemptsExhausted() {
			o.failItem(ctx, item, logger, "attempts exhausted")
			return true
		}
		o.emit(item.ID, todo.StageReplan, OutcomeSucceeded, string(provider.StrategyRetry))
		return false

	case provider.StrategyDecompose:
		if err := o.decompose(list, item, decision.NewItems); err != nil {
			logger.Warn("decompose failed", zap.Error(err))
			if item.AttemptsExhausted() {
				o.failItem(ctx, item, logger, "attempts exhausted")
				return true
			}
			return false
		}
		item.Status = todo.StatusReplanned
		o.emit(item.ID, todo.StageReplan, OutcomeSucceeded, string(provider.StrategyDecompose))
		logger.Info("item decomposed", zap.Int("children", len(decision.NewItems)))
		return true

	case provider.StrategySkip:
		item.Status = todo.StatusSkipped
		o.emit(item.ID, todo.StageReplan, OutcomeSucceeded, string(provider.StrategySkip))
		logger.Info("item skipped", zap.String("reasoning", decision.Reasoning))
		return true

	default: // StrategyFail and anything unrecognized
		o.failItem(ctx, item, logger, decision.Reasoning)
		return true
	}
}

// decompose replaces the item with hierarchical children: "3" becomes
// "3.1", "3.2", ... Children without explicit dependencies run as a
// sequential chain, the first inheriting the parent's dependencies.
func (o *Orchestrator) decompose(list *todo.List, item *todo.Item, children []*todo.Item) error {
	if len(children) == 0 {
		return fmt.Errorf("decompose produced no children")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	var prevID string
	for _, child := range children {
		id, err := list.NextChildID(item.ID)
		if err != nil {
			return err
		}
		child.ID = id
		child.Status = todo.StatusPending
		child.Attempts = 0
		if child.MaxAttempts <= 0 {
			child.MaxAttempts = item.MaxAttempts
		}
		if len(child.Dependencies) == 0 {
			if prevID == "" {
				child.Dependencies = append([]string(nil), item.Dependencies...)
			} else {
				child.Dependencies = []string{prevID}
			}
		}
		if err := list.Add(child); err != nil {
			return err
		}
		prevID = id
	}
	return nil
}

func (o *Orchestrator) failItem(ctx context.Context, item *todo.Item, logger *zap.Logger, reason string) {
	item.Status = todo.StatusFailed
	o.itemsFailed.Add(ctx, 1)
	o.emit(item.ID, todo.StageReplan, OutcomeFailed, reason)
	logger.Error("item failed terminally",
		zap.Int("attempts", item.Attempts),
		zap.String("reason", reason))
}

// unblock analyzes blocked pending items and applies automatic
// dependency repairs. Returns whether anything changed.
func (o *Orchestrator) unblock(list *todo.List, resolver *depgraph.Resolver, logger *zap.Logger) bool {
	progressed := false
	for _, item := range list.Items() {
		if item.Status != todo.StatusPending {
			continue
		}
		analysis, err := resolver.AnalyzeDependencyIssues(item.ID)
		if err != nil || !analysis.HasIssues() {
			continue
		}
		if !analysis.CanAutoResolve {
			for _, s := range resolver.SuggestAlternatives(item.ID, analysis) {
				logger.Info("blocked item recovery option",
					zap.String("item_id", item.ID),
					zap.String("suggestion", string(s.Kind)),
					zap.Int("rank", s.Rank),
					zap.Strings("involved", s.ItemIDs),
				)
			}
			continue
		}
		changed, err := resolver.AutoResolve(item.ID, analysis)
		if err != nil {
			logger.Warn("auto-resolve failed", zap.String("item_id", item.ID), zap.Error(err))
			continue
		}
		progressed = progressed || changed
	}
	if skipped := resolver.SkipUnreachable(); len(skipped) > 0 {
		logger.Info("skipped unreachable items", zap.Strings("items", skipped))
		progressed = true
	}
	return progressed
}

// skipPending marks every not-yet-started item skipped.
func (o *Orchestrator) skipPending(list *todo.List, reason string) {
	for _, item := range list.Items() {
		if item.Status == todo.StatusPending || item.Status == todo.StatusInProgress {
			item.Status = todo.StatusSkipped
			item.RecordFailure(todo.StageSelect, fmt.Errorf("%s", reason))
		}
	}
}

func (o *Orchestrator) fail(itemID string, stage todo.Stage, err error) *StageFailure {
	o.emit(itemID, stage, OutcomeFailed, err.Error())
	return &StageFailure{ItemID: itemID, Stage: stage, Err: err}
}

func (o *Orchestrator) emit(itemID string, stage todo.Stage, outcome Outcome, detail string) {
	if o.events == nil {
		return
	}
	o.events(Event{ItemID: itemID, Stage: stage, Outcome: outcome, Detail: detail})
}

// hasOpenItems reports whether any item can still make progress.
func hasOpenItems(list *todo.List) bool {
	for _, item := range list.Items() {
		if !item.Status.Terminal() {
			return true
		}
	}
	return false
}

// breakCycles removes lowest-importance edges until the graph is
// acyclic, or fails with the run-fatal structural error.
func breakCycles(resolver *depgraph.Resolver, logger *zap.Logger) error {
	for resolver.Graph().HasCycle() {
		cycles := resolver.Graph().FindCycles()
		if len(cycles) == 0 {
			return nil
		}
		id := cycles[0][0]
		from, to, err := resolver.ResolveCycle(id)
		if err != nil {
			return &depgraph.UnresolvableDependencyError{ItemID: id, Cycle: cycles[0]}
		}
		logger.Warn("broke dependency cycle",
			zap.String("from", from),
			zap.String("to", to))
	}
	return nil
}
