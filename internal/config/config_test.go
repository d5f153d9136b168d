// Package config_test tests the configuration loading for the regen-service.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/regen-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlData = `
[nats]
url = "nats://127.0.0.1:4222"
command_subject = "regen.cmd"
events_subject = "regen.evt"
payload_bucket = "PAYLOADS"
kv_bucket = "STATE"

[services]
stt_url = "http://stt:8080"
speech_url = "http://kokoro:8880"
openai_model = "gpt-4o-mini"
timeout_seconds = 30
enhance_temperature = 0.2
enhance_max_tokens = 1000

[storage]
backend = "badger"
badger_dir = "/var/lib/regen"

[paths]
base_logs_dir = "/var/log/regen"
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "regen.cmd", cfg.NATS.CommandSubject)
	assert.Equal(t, "regen.evt", cfg.NATS.EventsSubject)
	assert.Equal(t, "PAYLOADS", cfg.NATS.PayloadBucket)
	assert.Equal(t, "STATE", cfg.NATS.KVBucket)
	assert.Equal(t, "http://stt:8080", cfg.Services.STTURL)
	assert.Equal(t, "http://kokoro:8880", cfg.Services.SpeechURL)
	assert.Equal(t, "gpt-4o-mini", cfg.Services.OpenAIModel)
	assert.Equal(t, 30*time.Second, cfg.Services.Timeout())
	assert.InEpsilon(t, 0.2, cfg.Services.EnhanceTemperature, 0.001)
	assert.Equal(t, 1000, cfg.Services.EnhanceMaxTokens)
	assert.Equal(t, config.BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/regen", cfg.Storage.BadgerDir)
	assert.Equal(t, "/var/log/regen", cfg.Paths.BaseLogsDir)
}

func TestValidate_FillsDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	require.NoError(t, cfg.Validate())

	assert.Equal(t, "regen.commands", cfg.NATS.CommandSubject)
	assert.Equal(t, "regen.events", cfg.NATS.EventsSubject)
	assert.Equal(t, "http://localhost:8880", cfg.Services.SpeechURL)
	assert.Equal(t, "http://localhost:8080", cfg.Services.STTURL)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Services.OpenAIModel)
	assert.Equal(t, 2000, cfg.Services.EnhanceMaxTokens)
	assert.Equal(t, config.BackendNATS, cfg.Storage.Backend)
	assert.Equal(t, 120*time.Second, cfg.Services.Timeout())
}

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Storage: config.StorageConfig{Backend: "postgres"}}

	err := cfg.Validate()
	require.ErrorIs(t, err, config.ErrUnknownBackend)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlData), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "regen.cmd", cfg.NATS.CommandSubject)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
