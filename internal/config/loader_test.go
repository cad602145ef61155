package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvKeyToPath(t *testing.T) {
	cases := map[string]string{
		"TASKD_SERVER_ADDR":                "server.addr",
		"TASKD_LOGGING_LEVEL":              "logging.level",
		"TASKD_ADMISSION_MAX_RETRIES":      "admission.max_retries",
		"TASKD_ORCHESTRATOR_CONCURRENCY":   "orchestrator.concurrency",
		"TASKD_PROVIDERS_REASONER":         "providers.reasoner",
		"TASKD_PROVIDERS_ANTHROPIC_API_KEY": "providers.anthropic.api_key",
		"TASKD_PROVIDERS_OPENAI_MODEL":     "providers.openai.model",
	}
	for in, want := range cases {
		assert.Equal(t, want, envKeyToPath(in), in)
	}
}

func TestValidateConfigPathRejectsOutsideDirs(t *testing.T) {
	err := validateConfigPath("/tmp/evil.yaml")
	assert.ErrorContains(t, err, "must be in")
}
