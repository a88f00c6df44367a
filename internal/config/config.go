package config

import (
	"time"
)

// Config is the application configuration loaded from a YAML file plus
// environment overrides. The timeout budget carved out of it lives in its
// own hot-swappable BudgetStore; everything else is read once at startup.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Session  SessionConfig  `yaml:"session"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ServerConfig configures the webhook gateway.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string `yaml:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// OpenAIConfig configures the remote completion service client.
type OpenAIConfig struct {
	// APIKey may reference an environment variable via ${OPENAI_API_KEY}.
	APIKey string `yaml:"api_key"`
	// Model is the model backing the assistant.
	Model string `yaml:"model"`
	// AssistantName labels the provisioned assistant.
	AssistantName string `yaml:"assistant_name"`
	// AssistantIDFile caches the provisioned assistant id across deploys.
	AssistantIDFile string `yaml:"assistant_id_file"`
	// StagingIDFile, when present on disk, overrides AssistantIDFile.
	StagingIDFile string `yaml:"staging_id_file"`
	// InstructionsFile holds the assistant system prompt.
	InstructionsFile string `yaml:"instructions_file"`
}

// SessionConfig configures the TTL session store. Values are seconds.
type SessionConfig struct {
	TTLSeconds             float64 `yaml:"ttl_seconds"`
	CleanupIntervalSeconds float64 `yaml:"cleanup_interval_seconds"`
}

// Environment overrides for the session store; values are seconds.
const (
	EnvSessionTTL             = "SESSION_TTL_SECONDS"
	EnvSessionCleanupInterval = "SESSION_CLEANUP_INTERVAL"
)

func (c SessionConfig) applyEnv() SessionConfig {
	c.TTLSeconds = envFloat(EnvSessionTTL, c.TTLSeconds)
	c.CleanupIntervalSeconds = envFloat(EnvSessionCleanupInterval, c.CleanupIntervalSeconds)
	return c
}

// TTL returns the session time-to-live as a duration.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds * float64(time.Second))
}

// CleanupInterval returns the minimum spacing between opportunistic sweeps.
func (c SessionConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds * float64(time.Second))
}

// TimeoutsConfig carries optional file-level budget overrides. Values are
// seconds; nil means "keep the profile/default value". Environment variables
// still take precedence over the file.
type TimeoutsConfig struct {
	PerRequestTimeout *float64 `yaml:"per_request_timeout"`
	TotalTurnTimeout  *float64 `yaml:"total_turn_timeout"`
	RetryMaxAttempts  *int     `yaml:"retry_max_attempts"`
	RetryBaseDelay    *float64 `yaml:"retry_base_delay"`
	RetryMaxDelay     *float64 `yaml:"retry_max_delay"`
	PollMaxAttempts   *int     `yaml:"poll_max_attempts"`
	PollBaseDelay     *float64 `yaml:"poll_base_delay"`
	PollMaxDelay      *float64 `yaml:"poll_max_delay"`
}

// StorageConfig configures the collected-answer store.
type StorageConfig struct {
	// Path is the SQLite database file; ":memory:" for tests.
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8000"},
		Log:    LogConfig{Level: "info", Format: "json"},
		OpenAI: OpenAIConfig{
			APIKey:           "${OPENAI_API_KEY}",
			Model:            "gpt-4o-mini",
			AssistantName:    "WhatsPR Agent",
			AssistantIDFile:  ".assistant_id",
			StagingIDFile:    ".assistant_id.staging",
			InstructionsFile: "prompts/assistant_v2.txt",
		},
		Session: SessionConfig{
			TTLSeconds:             3600,
			CleanupIntervalSeconds: 300,
		},
		Storage: StorageConfig{Path: "whatspr.db"},
	}
}

// Budget resolves the timeout budget for this configuration. Precedence,
// lowest to highest: profile preset, file overrides, environment variables.
func (c Config) Budget() (TimeoutBudget, error) {
	budget := applyEnvOverrides(c.Timeouts.apply(presetFromEnv()))
	if err := budget.Validate(); err != nil {
		return TimeoutBudget{}, err
	}
	return budget, nil
}

func (t TimeoutsConfig) apply(b TimeoutBudget) TimeoutBudget {
	if t.PerRequestTimeout != nil {
		b.PerRequestTimeout = seconds(*t.PerRequestTimeout)
	}
	if t.TotalTurnTimeout != nil {
		b.TotalTurnTimeout = seconds(*t.TotalTurnTimeout)
	}
	if t.RetryMaxAttempts != nil {
		b.RetryMaxAttempts = *t.RetryMaxAttempts
	}
	if t.RetryBaseDelay != nil {
		b.RetryBaseDelay = seconds(*t.RetryBaseDelay)
	}
	if t.RetryMaxDelay != nil {
		b.RetryMaxDelay = seconds(*t.RetryMaxDelay)
	}
	if t.PollMaxAttempts != nil {
		b.PollMaxAttempts = *t.PollMaxAttempts
	}
	if t.PollBaseDelay != nil {
		b.PollBaseDelay = seconds(*t.PollBaseDelay)
	}
	if t.PollMaxDelay != nil {
		b.PollMaxDelay = seconds(*t.PollMaxDelay)
	}
	return b
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
