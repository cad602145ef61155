package admission

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// joinBatch adds the request to the open window for its batch key,
// creating the window (and its flusher) when absent, then waits for the
// combined result.
func (a *Admitter) joinBatch(ctx context.Context, req *Request) (any, error) {
	a.mu.Lock()
	b, ok := a.batches[req.BatchKey]
	if !ok {
		b = &batch{
			key:    req.BatchKey,
			flushC: make(chan struct{}, 1),
			done:   make(chan struct{}),
		}
		a.batches[req.BatchKey] = b
		// The window outlives any single member's cancellation.
		go a.runBatch(context.WithoutCancel(ctx), b)
	}
	index := len(b.reqs)
	b.reqs = append(b.reqs, req)
	if len(b.reqs) >= a.cfg.MaxBatchSize {
		select {
		case b.flushC <- struct{}{}:
		default:
		}
	}
	a.mu.Unlock()

	select {
	case <-b.done:
	case <-ctx.Done():
		// The batch continues for the other members.
		return nil, ctx.Err()
	}
	if b.err != nil {
		return nil, b.err
	}
	if index >= len(b.results) {
		return nil, fmt.Errorf("batch %s returned %d results for %d requests", b.key, len(b.results), index+1)
	}
	return b.results[index], nil
}

// runBatch waits out the batch window (or an early-flush signal), then
// dispatches the combined call and publishes results to all members.
func (a *Admitter) runBatch(ctx context.Context, b *batch) {
	timer := time.NewTimer(a.cfg.BatchWindow)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-b.flushC:
	}

	a.mu.Lock()
	delete(a.batches, b.key)
	reqs := b.reqs
	a.mu.Unlock()

	var results []any
	err := a.waitTurn(ctx)
	if err == nil {
		var res any
		res, err = a.dispatchWithRetry(ctx, func(dctx context.Context) (any, error) {
			out, derr := a.dispatcher.DispatchBatch(dctx, reqs)
			if derr != nil {
				return nil, derr
			}
			return out, nil
		})
		if err == nil {
			results = res.([]any)
		}
	}

	b.results, b.err = results, err
	close(b.done)

	a.logger.Debug("batch dispatched",
		zap.String("batch_key", b.key),
		zap.Int("size", len(reqs)),
		zap.Bool("failed", err != nil),
	)
}
