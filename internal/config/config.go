// Package config provides the configuration structure for the regen-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	BackendNATS   = "nats"
	BackendBadger = "badger"
)

// Defaults applied to unset fields.
const (
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultCommandSubject     = "regen.commands"
	defaultEventsSubject      = "regen.events"
	defaultPayloadBucket      = "REGEN_PAYLOADS"
	defaultKVBucket           = "REGEN_STATE"
	defaultSTTURL             = "http://localhost:8080"
	defaultSpeechURL          = "http://localhost:8880"
	defaultOpenAIModel        = "gpt-3.5-turbo"
	defaultTimeoutSeconds     = 120
	defaultEnhanceTemperature = 0.3
	defaultEnhanceMaxTokens   = 2000
	defaultBadgerDir          = "data/badger"
)

// ErrUnknownBackend indicates an unsupported storage backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL            string `toml:"url"`
	CommandSubject string `toml:"command_subject"`
	EventsSubject  string `toml:"events_subject"`
	PayloadBucket  string `toml:"payload_bucket"`
	KVBucket       string `toml:"kv_bucket"`
}

// ServicesConfig locates the external collaborators.
type ServicesConfig struct {
	STTURL             string  `toml:"stt_url"`
	SpeechURL          string  `toml:"speech_url"`
	OpenAIBaseURL      string  `toml:"openai_base_url"`
	OpenAIModel        string  `toml:"openai_model"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	EnhanceTemperature float32 `toml:"enhance_temperature"`
	EnhanceMaxTokens   int     `toml:"enhance_max_tokens"`
}

// StorageConfig selects the persistent key-value backend.
type StorageConfig struct {
	Backend   string `toml:"backend"`
	BadgerDir string `toml:"badger_dir"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig     `toml:"nats"`
	Services ServicesConfig `toml:"services"`
	Storage  StorageConfig  `toml:"storage"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for the regen-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile reads a TOML configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fills unset fields with defaults and rejects unknown values.
func (c *Config) Validate() error {
	setDefault(&c.NATS.URL, defaultNATSURL)
	setDefault(&c.NATS.CommandSubject, defaultCommandSubject)
	setDefault(&c.NATS.EventsSubject, defaultEventsSubject)
	setDefault(&c.NATS.PayloadBucket, defaultPayloadBucket)
	setDefault(&c.NATS.KVBucket, defaultKVBucket)
	setDefault(&c.Services.STTURL, defaultSTTURL)
	setDefault(&c.Services.SpeechURL, defaultSpeechURL)
	setDefault(&c.Services.OpenAIModel, defaultOpenAIModel)
	setDefault(&c.Storage.Backend, BackendNATS)
	setDefault(&c.Storage.BadgerDir, defaultBadgerDir)
	setDefault(&c.Paths.BaseLogsDir, os.TempDir())

	if c.Services.TimeoutSeconds <= 0 {
		c.Services.TimeoutSeconds = defaultTimeoutSeconds
	}

	if c.Services.EnhanceTemperature <= 0 {
		c.Services.EnhanceTemperature = defaultEnhanceTemperature
	}

	if c.Services.EnhanceMaxTokens <= 0 {
		c.Services.EnhanceMaxTokens = defaultEnhanceMaxTokens
	}

	switch c.Storage.Backend {
	case BackendNATS, BackendBadger:
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownBackend, c.Storage.Backend)
	}

	return nil
}

// Timeout returns the per-request timeout for external services.
func (s ServicesConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
