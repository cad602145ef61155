package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// Registry holds the closed set of known validators keyed by name.
// Extensibility goes through registration, not reflection.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

// NewRegistry creates a registry pre-populated with the standard stages.
func NewRegistry() *Registry {
	r := &Registry{validators: make(map[string]Validator)}
	r.Register(FormatValidator{})
	r.Register(NewHistoryValidator())
	r.Register(NewSchemaValidator())
	r.Register(NewCapabilityValidator())
	return r
}

// Register adds or replaces a validator.
func (r *Registry) Register(v Validator) {
	if v == nil || v.Name() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[v.Name()] = v
}

// Get returns the validator registered under name.
func (r *Registry) Get(name string) (Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[name]
	return v, ok
}

// DefaultChain is the standard stage order.
func DefaultChain() []string {
	return []string{StageFormat, StageHistory, StageSchema, StageCapabilitySync}
}

// Config configures a Pipeline.
type Config struct {
	// Chain is the ordered list of stage names. Default DefaultChain.
	Chain []string

	// EarlyRejection stops the chain at the first stage producing hard
	// errors. Default true.
	EarlyRejection bool
}

// DefaultConfig returns the standard pipeline configuration.
func DefaultConfig() Config {
	return Config{Chain: DefaultChain(), EarlyRejection: true}
}

// Pipeline runs proposed tool calls through the configured validator
// chain, accumulating findings and corrections.
type Pipeline struct {
	registry *Registry
	config   Config
	metrics  *Metrics
	logger   *zap.Logger
}

// NewPipeline creates a pipeline over the registry.
func NewPipeline(registry *Registry, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Chain) == 0 {
		cfg.Chain = DefaultChain()
	}
	for _, name := range cfg.Chain {
		if _, ok := registry.Get(name); !ok {
			return nil, fmt.Errorf("unknown validator in chain: %q", name)
		}
	}
	return &Pipeline{
		registry: registry,
		config:   cfg,
		metrics:  NewMetrics(),
		logger:   logger,
	}, nil
}

// Validate runs the chain. Corrections from earlier stages feed the
// later stages, and the merged result carries CorrectedCalls only when
// at least one correction was applied anywhere.
func (p *Pipeline) Validate(ctx context.Context, calls []todo.ToolCall, vctx *Context) *Result {
	p.metrics.PipelineCallsTotal.Inc()

	merged := &Result{Valid: true}
	current := calls
	corrected := false

	for _, name := range p.config.Chain {
		validator, _ := p.registry.Get(name)

		start := time.Now()
		res := validator.Validate(ctx, current, vctx)
		p.metrics.observeStage(name, len(res.Errors) > 0, len(res.Corrections), time.Since(start))

		merged.Errors = append(merged.Errors, res.Errors...)
		merged.Warnings = append(merged.Warnings, res.Warnings...)
		merged.Corrections = append(merged.Corrections, res.Corrections...)
		if len(res.CorrectedCalls) > 0 {
			current = res.CorrectedCalls
			corrected = true
		}

		if len(res.Errors) > 0 {
			p.logger.Debug("validator rejected calls",
				zap.String("stage", name),
				zap.String("item", itemID(vctx)),
				zap.Int("errors", len(res.Errors)),
			)
			if p.config.EarlyRejection {
				break
			}
		}
	}

	merged.Valid = len(merged.Errors) == 0
	if corrected {
		merged.CorrectedCalls = current
	}
	return merged
}

func itemID(vctx *Context) string {
	if vctx == nil {
		return ""
	}
	return vctx.ItemID
}
