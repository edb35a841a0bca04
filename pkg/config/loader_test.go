package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestReadConfigWithDefaults(t *testing.T) {
	path := writeConfigFile(t, `
logs:
  level: debug
message_max_bytes: 1024
`)

	config, err := readConfig[IngestConfig](path, DefaultIngestConfig())
	require.NoError(t, err)

	// file has precedence over defaults
	assert.Equal(t, 1024, config.MessageMaxBytes)
	assert.Equal(t, LogLevel("debug"), config.Logs.Level)
	// untouched values keep their defaults
	assert.Equal(t, "telemetry/+", config.TelemetryTopicFilter)
	assert.Equal(t, "telemetry.raw.v1", config.Topics.TelemetryRaw)
}

func TestReadConfigMissingFile(t *testing.T) {
	config, err := readConfig[IngestConfig](filepath.Join(t.TempDir(), "nope.yml"), nil)
	assert.Error(t, err)
	assert.Nil(t, config)
}

func TestReadConfigMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "logs: [unclosed")
	config, err := readConfig[IngestConfig](path, nil)
	assert.Error(t, err)
	assert.Nil(t, config)
}

func TestLoadConfigFromEnv(t *testing.T) {
	path := writeConfigFile(t, `
logs:
  level: info
`)
	t.Setenv("LSM_CONFIG_FILE", path)

	config, err := LoadConfig[IngestConfig](DefaultIngestConfig())
	require.NoError(t, err)
	assert.Equal(t, LogLevel("info"), config.Logs.Level)
	assert.Equal(t, DefaultTopics(), config.Topics)
}

func TestLoadConfigRejectsMissingTopics(t *testing.T) {
	path := writeConfigFile(t, `
logs:
  level: info
`)
	t.Setenv("LSM_CONFIG_FILE", path)

	// without defaults nothing fills the topic names
	config, err := LoadConfig[IngestConfig](nil)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "invalid config")
}
