// Package admission is the single gateway for every outbound call to a
// reasoning or tool provider.
//
// # Responsibilities
//
//   - deduplicate identical concurrent requests: callers sharing a key
//     receive the same in-flight result
//   - batch requests sharing an explicit batch key within a short window
//     into one combined provider call
//   - apply an adaptive pre-dispatch delay derived from the recent error
//     rate and observed latency, bounded by configured min/max, on top of
//     a token-bucket rate limiter
//   - retry transient failures (provider 5xx, timeouts) with exponential
//     backoff as an explicit bounded loop, surfacing the original error
//     unchanged once retries are exhausted
//   - expose queue depth and health for monitoring and reject new
//     admissions above the configured ceiling (backpressure)
//
// # Concurrency
//
// The admitter is the only shared-mutable-state boundary in the engine:
// its queue counters, dedup table, batch windows, and health stats are
// touched by every stage of every concurrently running item, so all of
// that state sits behind one mutex. Callers remain stateless.
//
// Cancellation is per caller: a cancelled context stops new admissions
// and stops waiting, but a dispatched provider call is never aborted
// mid-flight; it completes or times out on its own budget.
package admission
