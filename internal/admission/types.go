package admission

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors for admission outcomes.
var (
	// ErrQueueFull is the backpressure rejection: fail fast instead of
	// queueing indefinitely.
	ErrQueueFull = errors.New("admission queue full")

	// ErrClosed reports use after Close.
	ErrClosed = errors.New("admitter closed")
)

// ExhaustedError wraps the final provider error after all retries.
// The underlying error is surfaced unchanged via Unwrap.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("admission exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// TransientError marks a provider failure worth retrying (5xx, timeout).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Priority orders nothing today but is carried for dispatchers that
// want it (e.g. batch assembly order).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Request is one provider round-trip to admit. Its lifetime is bounded
// by that round-trip, batched or solo.
type Request struct {
	// Key identifies identical requests for deduplication. Empty keys
	// are never deduplicated.
	Key string

	// BatchKey groups requests into one combined provider call. Empty
	// means solo dispatch.
	BatchKey string

	Priority Priority

	// Payload is the provider-specific request body.
	Payload any
}

// Dispatcher performs the actual provider round-trips.
type Dispatcher interface {
	// Dispatch performs one solo call.
	Dispatch(ctx context.Context, req *Request) (any, error)

	// DispatchBatch performs one combined call; results align with reqs
	// by index.
	DispatchBatch(ctx context.Context, reqs []*Request) ([]any, error)
}

// Health is a point-in-time snapshot for monitoring.
type Health struct {
	QueueDepth   int           `json:"queue_depth"`
	QueueCeiling int           `json:"queue_ceiling"`
	ErrorRate    float64       `json:"error_rate"`
	AvgLatency   time.Duration `json:"avg_latency"`
	Healthy      bool          `json:"healthy"`
}
