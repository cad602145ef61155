package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	assert.Equal(t, 250*time.Millisecond, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("sk-very-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-very-secret", s.Value())
	assert.True(t, s.IsSet())

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "very-secret")

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestLoadBytesDefaultsAndPrecedence(t *testing.T) {
	yaml := []byte(`
providers:
  reasoner: openai
  openai:
    api_key: sk-test
    model: gpt-4o
admission:
  max_retries: 5
  batch_window: 20ms
`)
	cfg, err := LoadBytes(yaml)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Providers.Reasoner)
	assert.Equal(t, "gpt-4o", cfg.Providers.OpenAI.Model)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey.Value())
	assert.Equal(t, 5, cfg.Admission.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.Admission.BatchWindow.Duration())

	// Defaults filled for untouched sections.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Orchestrator.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout.Duration())
}

func TestLoadBytesRequiresReasonerKey(t *testing.T) {
	_, err := LoadBytes([]byte("providers:\n  reasoner: anthropic\n"))
	assert.ErrorContains(t, err, "anthropic api_key required")

	_, err = LoadBytes([]byte("providers:\n  reasoner: telepathy\n"))
	assert.ErrorContains(t, err, "unknown reasoner")
}

func TestLoadBytesValidatesMCPServers(t *testing.T) {
	yaml := []byte(`
providers:
  reasoner: anthropic
  anthropic:
    api_key: sk-test
  mcp_servers:
    - name: filesystem
`)
	_, err := LoadBytes(yaml)
	assert.ErrorContains(t, err, "name and command required")
}

func TestValidateLoggingSection(t *testing.T) {
	yaml := []byte(`
logging:
  level: shout
  format: json
providers:
  reasoner: anthropic
  anthropic:
    api_key: sk-test
`)
	_, err := LoadBytes(yaml)
	assert.ErrorContains(t, err, "logging")
}
