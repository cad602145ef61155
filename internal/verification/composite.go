package verification

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// Capturer grabs visual evidence, typically a screenshot tool on a
// capability provider. Optional.
type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

// Registry holds the closed set of verification methods keyed by name.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]Method)}
}

// Register adds a method; registration order is specificity order.
func (r *Registry) Register(m Method) {
	if m == nil || m.Name() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.methods[m.Name()]; !ok {
		r.order = append(r.order, m.Name())
	}
	r.methods[m.Name()] = m
}

// Ordered returns methods in registration (specificity) order.
func (r *Registry) Ordered() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Method, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.methods[name])
	}
	return out
}

// Config configures the composite verifier.
type Config struct {
	// CacheTTL and CacheSize bound the result cache.
	CacheTTL  time.Duration
	CacheSize int

	// SettleDelay overrides DelayFor when positive; used by tests.
	SettleDelay time.Duration
}

// DefaultConfig returns verifier defaults.
func DefaultConfig() Config {
	return Config{CacheTTL: 5 * time.Minute, CacheSize: 256}
}

// Composite is the default verification variant: it iterates the
// registry and combines the individual judgments.
type Composite struct {
	registry *Registry
	capturer Capturer
	cache    *resultCache
	cfg      Config
	logger   *zap.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewComposite creates the composite verifier. capturer may be nil when
// no visual channel exists.
func NewComposite(registry *Registry, capturer Capturer, cfg Config, logger *zap.Logger) *Composite {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composite{
		registry: registry,
		capturer: capturer,
		cache:    newResultCache(cfg.CacheTTL, cfg.CacheSize),
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Verify judges the evidence: most specific applicable method first with
// early accept, weighted majority otherwise.
func (c *Composite) Verify(ctx context.Context, ev *Evidence) (*todo.VerificationResult, error) {
	key := cacheKey(ev)
	if cached, ok := c.cache.get(key); ok {
		return cached, nil
	}

	if err := c.settle(ctx, ev); err != nil {
		return nil, err
	}
	c.captureVisual(ctx, ev)

	var attempted []*todo.VerificationResult
	var weights []float64
	for _, method := range c.registry.Ordered() {
		if !method.Applicable(ev) {
			continue
		}
		res, err := method.Verify(ctx, ev)
		if err != nil {
			c.logger.Warn("verification method failed",
				zap.String("method", method.Name()),
				zap.String("item", ev.Item.ID),
				zap.Error(err),
			)
			continue
		}
		res.Method = method.Name()

		if res.Verified && method.Threshold() > 0 && res.Confidence >= method.Threshold() {
			c.cache.put(key, res)
			return res, nil
		}
		attempted = append(attempted, res)
		weights = append(weights, method.Weight())
	}

	if len(attempted) == 0 {
		return nil, fmt.Errorf("no verification method could judge item %s", ev.Item.ID)
	}

	result := aggregate(attempted, weights)
	c.cache.put(key, result)
	return result, nil
}

// aggregate combines method judgments: verified only when the verified
// votes carry the weighted majority; confidence is the weighted average.
func aggregate(results []*todo.VerificationResult, weights []float64) *todo.VerificationResult {
	var totalWeight, verifiedWeight, confidenceSum float64
	for i, res := range results {
		totalWeight += weights[i]
		confidenceSum += res.Confidence * weights[i]
		if res.Verified {
			verifiedWeight += weights[i]
		}
	}

	verified := verifiedWeight > totalWeight/2
	reason := fmt.Sprintf("weighted vote %.2f/%.2f across %d methods", verifiedWeight, totalWeight, len(results))
	return &todo.VerificationResult{
		Verified:   verified,
		Confidence: confidenceSum / totalWeight,
		Reason:     reason,
		Method:     "composite",
	}
}

// settle pauses before evidence capture, tuned by action type.
func (c *Composite) settle(ctx context.Context, ev *Evidence) error {
	delay := c.cfg.SettleDelay
	if delay <= 0 {
		delay = DelayFor(ev.Item.Action)
	}
	return c.sleep(ctx, delay)
}

// captureVisual attaches screen evidence when a capturer is wired.
// Capture failure degrades to the non-visual methods.
func (c *Composite) captureVisual(ctx context.Context, ev *Evidence) {
	if c.capturer == nil || ev.Screenshot != "" {
		return
	}
	shot, err := c.capturer.Capture(ctx)
	if err != nil {
		c.logger.Debug("visual capture unavailable", zap.Error(err))
		return
	}
	ev.Screenshot = shot
}

// cacheKey identifies the evidence itself, not just the item. Item IDs
// restart at "1" on every run, so the key folds in a digest of the
// action and the call results; a verifier shared across runs never
// serves one run's verdict for another's evidence.
func cacheKey(ev *Evidence) string {
	h := fnv.New64a()
	io.WriteString(h, ev.Item.Action)
	for _, r := range ev.Results {
		fmt.Fprintf(h, "|%s/%s=%t:%s:%s", r.Call.Server, r.Call.Tool, r.Success, r.Output, r.Error)
	}
	return fmt.Sprintf("%s#%d#%x", ev.Item.ID, ev.Item.Attempts, h.Sum64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
