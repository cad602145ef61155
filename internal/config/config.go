package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/logging"
)

// Config is the full taskd configuration tree.
type Config struct {
	Logging      logging.Config     `koanf:"logging"`
	Server       ServerConfig       `koanf:"server"`
	Admission    AdmissionConfig    `koanf:"admission"`
	Validation   ValidationConfig   `koanf:"validation"`
	Verification VerificationConfig `koanf:"verification"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Providers    ProvidersConfig    `koanf:"providers"`
}

// ServerConfig configures the operational HTTP endpoint.
type ServerConfig struct {
	// Addr is the listen address for health and metrics, e.g. ":9090".
	// Empty disables the server.
	Addr string `koanf:"addr"`

	ReadTimeout     Duration `koanf:"read_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// AdmissionConfig configures the provider admission gate.
type AdmissionConfig struct {
	QueueCeiling       int      `koanf:"queue_ceiling"`
	BatchWindow        Duration `koanf:"batch_window"`
	MaxBatchSize       int      `koanf:"max_batch_size"`
	MinDelay           Duration `koanf:"min_delay"`
	MaxDelay           Duration `koanf:"max_delay"`
	MaxRetries         int      `koanf:"max_retries"`
	RetryBaseDelay     Duration `koanf:"retry_base_delay"`
	DispatchTimeout    Duration `koanf:"dispatch_timeout"`
	RatePerSecond      float64  `koanf:"rate_per_second"`
	Burst              int      `koanf:"burst"`
	UnhealthyErrorRate float64  `koanf:"unhealthy_error_rate"`
}

// ValidationConfig configures the plan validation pipeline.
type ValidationConfig struct {
	// Chain is the ordered stage list; empty means the standard chain.
	Chain []string `koanf:"chain"`

	// DisableEarlyRejection runs every stage even after hard errors.
	DisableEarlyRejection bool `koanf:"disable_early_rejection"`
}

// VerificationConfig configures the composite verifier.
type VerificationConfig struct {
	CacheTTL  Duration `koanf:"cache_ttl"`
	CacheSize int      `koanf:"cache_size"`
}

// OrchestratorConfig configures run scheduling.
type OrchestratorConfig struct {
	// Concurrency bounds how many ready items run at once.
	Concurrency int `koanf:"concurrency"`
}

// TelemetryConfig configures OTLP trace and metric export. Disabled
// by default; the engine runs fine without a collector.
type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`

	// Endpoint is the collector address, host:port. Empty keeps the
	// local default.
	Endpoint string `koanf:"endpoint"`

	// Protocol is "grpc" or "http/protobuf".
	Protocol string `koanf:"protocol"`

	ServiceName string `koanf:"service_name"`

	// Insecure disables TLS; only honored for explicit endpoints.
	Insecure bool `koanf:"insecure"`

	SampleRate     float64  `koanf:"sample_rate"`
	MetricInterval Duration `koanf:"metric_interval"`
}

// ProvidersConfig configures the reasoning and capability providers.
type ProvidersConfig struct {
	// Reasoner selects the reasoning backend: "anthropic" or "openai".
	Reasoner string `koanf:"reasoner"`

	Anthropic AnthropicConfig `koanf:"anthropic"`
	OpenAI    OpenAIConfig    `koanf:"openai"`

	// MCPServers are the capability tool servers to spawn.
	MCPServers []MCPServerConfig `koanf:"mcp_servers"`
}

// AnthropicConfig configures the Anthropic reasoner.
type AnthropicConfig struct {
	APIKey    Secret `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	MaxTokens int    `koanf:"max_tokens"`
}

// OpenAIConfig configures the OpenAI reasoner.
type OpenAIConfig struct {
	APIKey          Secret `koanf:"api_key"`
	BaseURL         string `koanf:"base_url"`
	Model           string `koanf:"model"`
	MaxOutputTokens int    `koanf:"max_output_tokens"`
}

// MCPServerConfig describes one MCP tool server process.
type MCPServerConfig struct {
	Name    string   `koanf:"name"`
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
	Env     []string `koanf:"env"`
}

// applyDefaults fills zero values.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" && cfg.Logging.Format == "" && cfg.Logging.Fields == nil {
		cfg.Logging = *logging.NewDefaultConfig()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(5 * time.Second)
	}
	if cfg.Orchestrator.Concurrency == 0 {
		cfg.Orchestrator.Concurrency = 3
	}
	if cfg.Providers.Reasoner == "" {
		cfg.Providers.Reasoner = "anthropic"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch c.Providers.Reasoner {
	case "anthropic":
		if !c.Providers.Anthropic.APIKey.IsSet() {
			return fmt.Errorf("providers: anthropic api_key required")
		}
	case "openai":
		if !c.Providers.OpenAI.APIKey.IsSet() {
			return fmt.Errorf("providers: openai api_key required")
		}
	default:
		return fmt.Errorf("providers: unknown reasoner %q", c.Providers.Reasoner)
	}
	for _, s := range c.Providers.MCPServers {
		if s.Name == "" || s.Command == "" {
			return fmt.Errorf("providers: mcp server name and command required")
		}
	}
	if c.Orchestrator.Concurrency < 0 {
		return fmt.Errorf("orchestrator: concurrency cannot be negative")
	}
	return nil
}
