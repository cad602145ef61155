package admission

import (
	"fmt"
	"time"
)

// Config configures the Admitter.
type Config struct {
	// QueueCeiling bounds concurrent admissions before backpressure
	// rejection. Default 64.
	QueueCeiling int

	// BatchWindow is how long the first request of a batch key waits for
	// companions. Default 50ms.
	BatchWindow time.Duration

	// MaxBatchSize flushes a batch early when reached. Default 8.
	MaxBatchSize int

	// MinDelay/MaxDelay bound the adaptive pre-dispatch delay.
	// Defaults 0 and 2s.
	MinDelay time.Duration
	MaxDelay time.Duration

	// MaxRetries bounds retries of transient failures. Default 3.
	MaxRetries int

	// RetryBaseDelay seeds the exponential backoff. Default 200ms.
	RetryBaseDelay time.Duration

	// DispatchTimeout caps a single provider round-trip. The timeout
	// survives caller cancellation so in-flight calls finish normally.
	// Default 60s.
	DispatchTimeout time.Duration

	// RatePerSecond and Burst configure the token-bucket limiter.
	// Defaults 10 and 5.
	RatePerSecond float64
	Burst         int

	// UnhealthyErrorRate marks the admitter unhealthy at or above this
	// rolling error rate. Default 0.5.
	UnhealthyErrorRate float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueCeiling:       64,
		BatchWindow:        50 * time.Millisecond,
		MaxBatchSize:       8,
		MinDelay:           0,
		MaxDelay:           2 * time.Second,
		MaxRetries:         3,
		RetryBaseDelay:     200 * time.Millisecond,
		DispatchTimeout:    60 * time.Second,
		RatePerSecond:      10,
		Burst:              5,
		UnhealthyErrorRate: 0.5,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.QueueCeiling <= 0 {
		return fmt.Errorf("queue ceiling must be positive, got %d", c.QueueCeiling)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("delay bounds invalid: min %s max %s", c.MinDelay, c.MaxDelay)
	}
	if c.RatePerSecond <= 0 {
		return fmt.Errorf("rate must be positive, got %f", c.RatePerSecond)
	}
	return nil
}

// withDefaults fills zero values without touching the caller's copy.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QueueCeiling == 0 {
		c.QueueCeiling = def.QueueCeiling
	}
	if c.BatchWindow == 0 {
		c.BatchWindow = def.BatchWindow
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.DispatchTimeout == 0 {
		c.DispatchTimeout = def.DispatchTimeout
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = def.RatePerSecond
	}
	if c.Burst == 0 {
		c.Burst = def.Burst
	}
	if c.UnhealthyErrorRate == 0 {
		c.UnhealthyErrorRate = def.UnhealthyErrorRate
	}
	return c
}
