package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/fyrsmithlabs/taskd/internal/admission"

// Admitter throttles, deduplicates, batches, and retries provider calls.
type Admitter struct {
	cfg        Config
	dispatcher Dispatcher
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu       sync.Mutex
	closed   bool
	depth    int
	inflight map[string]*inflightCall
	batches  map[string]*batch
	stats    rollingStats

	admitted  metric.Int64Counter
	rejected  metric.Int64Counter
	retried   metric.Int64Counter
	dedupHits metric.Int64Counter
	latency   metric.Float64Histogram
}

type inflightCall struct {
	done   chan struct{}
	result any
	err    error
}

type batch struct {
	key    string
	reqs   []*Request
	flushC chan struct{}
	done   chan struct{}

	results []any
	err     error
}

// New creates an admitter in front of the dispatcher.
func New(cfg Config, dispatcher Dispatcher, logger *zap.Logger) (*Admitter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid admission config: %w", err)
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Admitter{
		cfg:        cfg,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:     logger,
		inflight:   make(map[string]*inflightCall),
		batches:    make(map[string]*batch),
	}

	meter := otel.GetMeterProvider().Meter(instrumentationName)
	a.admitted, _ = meter.Int64Counter("admission_admitted_total",
		metric.WithDescription("Requests admitted to dispatch"))
	a.rejected, _ = meter.Int64Counter("admission_rejected_total",
		metric.WithDescription("Requests rejected by backpressure"))
	a.retried, _ = meter.Int64Counter("admission_retries_total",
		metric.WithDescription("Transient-failure retries"))
	a.dedupHits, _ = meter.Int64Counter("admission_dedup_hits_total",
		metric.WithDescription("Requests served from an in-flight duplicate"))
	a.latency, _ = meter.Float64Histogram("admission_dispatch_seconds",
		metric.WithDescription("Provider round-trip latency"))
	return a, nil
}

// Admit runs one request through the full admission path and returns
// the provider result.
func (a *Admitter) Admit(ctx context.Context, req *Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	if a.depth >= a.cfg.QueueCeiling {
		a.mu.Unlock()
		a.rejected.Add(ctx, 1)
		return nil, fmt.Errorf("%w: depth %d", ErrQueueFull, a.cfg.QueueCeiling)
	}
	a.depth++

	// Deduplication: identical concurrent requests share one round-trip.
	if req.Key != "" {
		if call, ok := a.inflight[req.Key]; ok {
			a.mu.Unlock()
			a.dedupHits.Add(ctx, 1)
			defer a.release()
			select {
			case <-call.done:
				return call.result, call.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		call := &inflightCall{done: make(chan struct{})}
		a.inflight[req.Key] = call
		a.mu.Unlock()

		result, err := a.dispatchPath(ctx, req)

		a.mu.Lock()
		call.result, call.err = result, err
		delete(a.inflight, req.Key)
		a.mu.Unlock()
		close(call.done)
		a.release()
		return result, err
	}
	a.mu.Unlock()

	defer a.release()
	return a.dispatchPath(ctx, req)
}

func (a *Admitter) release() {
	a.mu.Lock()
	a.depth--
	a.mu.Unlock()
}

// dispatchPath routes to the batch window or the solo path.
func (a *Admitter) dispatchPath(ctx context.Context, req *Request) (any, error) {
	a.admitted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("batched", req.BatchKey != "")))
	if req.BatchKey != "" {
		return a.joinBatch(ctx, req)
	}
	if err := a.waitTurn(ctx); err != nil {
		return nil, err
	}
	return a.dispatchWithRetry(ctx, func(dctx context.Context) (any, error) {
		return a.dispatcher.Dispatch(dctx, req)
	})
}

// waitTurn applies the adaptive delay and the rate limiter.
func (a *Admitter) waitTurn(ctx context.Context) error {
	if delay := a.adaptiveDelay(); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return a.limiter.Wait(ctx)
}

// adaptiveDelay scales between the configured bounds: a high recent
// error rate pushes toward MaxDelay, seasoned with how slow the
// provider has been lately relative to its timeout budget.
func (a *Admitter) adaptiveDelay() time.Duration {
	a.mu.Lock()
	errRate := a.stats.errorRate()
	avg := a.stats.avgLatency()
	a.mu.Unlock()

	latencyFactor := float64(avg) / float64(a.cfg.DispatchTimeout)
	if latencyFactor > 1 {
		latencyFactor = 1
	}
	pressure := errRate*0.7 + latencyFactor*0.3
	delay := a.cfg.MinDelay + time.Duration(pressure*float64(a.cfg.MaxDelay-a.cfg.MinDelay))
	if delay > a.cfg.MaxDelay {
		delay = a.cfg.MaxDelay
	}
	return delay
}

// dispatchWithRetry is the explicit bounded retry loop: transient
// failures back off exponentially; everything else returns immediately.
func (a *Admitter) dispatchWithRetry(ctx context.Context, dispatch func(context.Context) (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			a.retried.Add(ctx, 1)
			backoff := a.cfg.RetryBaseDelay << (attempt - 1)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		result, err := a.dispatchOnce(ctx, dispatch)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
		a.logger.Warn("transient provider failure",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, &ExhaustedError{Attempts: a.cfg.MaxRetries + 1, Err: lastErr}
}

// dispatchOnce performs one provider round-trip. The dispatch context
// is detached from caller cancellation so an in-flight call completes
// or times out normally instead of being aborted.
func (a *Admitter) dispatchOnce(ctx context.Context, dispatch func(context.Context) (any, error)) (any, error) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.DispatchTimeout)
	defer cancel()

	start := time.Now()
	result, err := dispatch(dctx)
	elapsed := time.Since(start)

	a.mu.Lock()
	a.stats.record(err != nil, elapsed)
	a.mu.Unlock()
	a.latency.Record(ctx, elapsed.Seconds())
	return result, err
}

// Health returns a monitoring snapshot.
func (a *Admitter) Health() Health {
	a.mu.Lock()
	defer a.mu.Unlock()
	errRate := a.stats.errorRate()
	return Health{
		QueueDepth:   a.depth,
		QueueCeiling: a.cfg.QueueCeiling,
		ErrorRate:    errRate,
		AvgLatency:   a.stats.avgLatency(),
		Healthy:      !a.closed && errRate < a.cfg.UnhealthyErrorRate,
	}
}

// QueueDepth returns the current number of admitted, unfinished requests.
func (a *Admitter) QueueDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.depth
}

// Close rejects all future admissions. In-flight work completes.
func (a *Admitter) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}
