package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/todo"
)

func writeTaskFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTaskFile(t *testing.T) {
	path := writeTaskFile(t, `{
		"request": "publish the release",
		"items": [
			{"id": "1", "action": "build artifacts", "success_criteria": "artifacts exist"},
			{"id": "2", "action": "upload artifacts", "success_criteria": "upload confirmed", "dependencies": ["1"], "priority": "high"}
		]
	}`)

	list, err := loadTaskFile(path)
	require.NoError(t, err)
	assert.Equal(t, "publish the release", list.Request)
	require.Len(t, list.Items(), 2)

	first, ok := list.Get("1")
	require.True(t, ok)
	assert.Equal(t, todo.StatusPending, first.Status)
	assert.Equal(t, todo.PriorityNormal, first.Priority)
	assert.Equal(t, todo.DefaultMaxAttempts, first.MaxAttempts)

	second, ok := list.Get("2")
	require.True(t, ok)
	assert.Equal(t, []string{"1"}, second.Dependencies)
	assert.Equal(t, todo.PriorityHigh, second.Priority)
}

func TestLoadTaskFileRejectsMissingID(t *testing.T) {
	path := writeTaskFile(t, `{"items": [{"action": "do something"}]}`)

	_, err := loadTaskFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}

func TestLoadTaskFileRejectsEmpty(t *testing.T) {
	path := writeTaskFile(t, `{"request": "nothing"}`)

	_, err := loadTaskFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no items")
}

func TestAdmissionConfigKeepsDefaultsForZeroFields(t *testing.T) {
	out := admissionConfig(config.AdmissionConfig{
		QueueCeiling: 128,
		BatchWindow:  config.Duration(10 * time.Millisecond),
	})

	assert.Equal(t, 128, out.QueueCeiling)
	assert.Equal(t, 10*time.Millisecond, out.BatchWindow)
	assert.Equal(t, 3, out.MaxRetries)
	assert.Equal(t, 60*time.Second, out.DispatchTimeout)
}

func TestEngineConfigMapsValidationToggle(t *testing.T) {
	cfg := &config.Config{}
	cfg.Orchestrator.Concurrency = 5
	cfg.Validation.DisableEarlyRejection = true

	out := engineConfig(cfg)
	assert.Equal(t, 5, out.Concurrency)
	assert.False(t, out.Validation.EarlyRejection)
	assert.NotEmpty(t, out.Validation.Chain)
}

func TestTelemetryConfigHonorsInsecureOnlyWithEndpoint(t *testing.T) {
	out := telemetryConfig(config.TelemetryConfig{Enabled: true})
	assert.True(t, out.Insecure)
	assert.Equal(t, "localhost:4317", out.Endpoint)

	out = telemetryConfig(config.TelemetryConfig{
		Enabled:  true,
		Endpoint: "collector.internal:4317",
	})
	assert.False(t, out.Insecure)
	assert.Equal(t, "collector.internal:4317", out.Endpoint)
}

func TestBuildReasonerRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Providers.Reasoner = "cohere"

	_, err := buildReasoner(cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown reasoner")
}
