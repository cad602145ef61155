package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "disabled skips checks",
			mutate: func(c *Config) { c.Enabled = false; c.Endpoint = "" },
		},
		{
			name:    "enabled requires endpoint",
			mutate:  func(c *Config) { c.Enabled = true; c.Endpoint = "" },
			wantErr: "endpoint is required",
		},
		{
			name:    "insecure remote rejected",
			mutate:  func(c *Config) { c.Enabled = true; c.Endpoint = "collector.example.com:4317" },
			wantErr: "insecure connections to remote endpoints",
		},
		{
			name: "insecure local allowed",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Endpoint = "127.0.0.1:4317"
			},
		},
		{
			name: "insecure bracketed ipv6 loopback allowed",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Endpoint = "[::1]:4317"
			},
		},
		{
			name:    "sample rate bounded",
			mutate:  func(c *Config) { c.Enabled = true; c.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
		{
			name:    "metric interval positive",
			mutate:  func(c *Config) { c.Enabled = true; c.MetricInterval = 0 },
			wantErr: "metric_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewDisabledIsNoop(t *testing.T) {
	cfg := NewDefaultConfig()
	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	assert.True(t, tel.Healthy())
	assert.Empty(t, tel.DegradedReason())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTestTelemetryRecordsSpans(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("engine")
	_, span := tracer.Start(context.Background(), "run.item")
	span.End()

	tt.AssertSpanExists(t, "run.item")
	assert.Nil(t, tt.SpanByName("absent"))
}

func TestTestTelemetryCollectsMetrics(t *testing.T) {
	tt := NewTestTelemetry()

	meter := tt.Meter("engine")
	counter, err := meter.Int64Counter("items.completed")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rm, err := tt.Collect(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rm.ScopeMetrics)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tt.Shutdown(ctx))
}
