package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whatspr.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWhenPathEmpty(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Server.Addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.Session.TTL() != time.Hour {
		t.Errorf("Session.TTL() = %v, want 1h", cfg.Session.TTL())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9999"
log:
  level: debug
  format: text
session:
  ttl_seconds: 120
  cleanup_interval_seconds: 30
timeouts:
  per_request_timeout: 6
  total_turn_timeout: 18
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Session.CleanupInterval() != 30*time.Second {
		t.Errorf("CleanupInterval = %v, want 30s", cfg.Session.CleanupInterval())
	}
	// Fields absent from the file keep their defaults.
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("OpenAI.Model = %q, want default", cfg.OpenAI.Model)
	}

	budget, err := cfg.Budget()
	if err != nil {
		t.Fatalf("Budget() error: %v", err)
	}
	if budget.PerRequestTimeout != 6*time.Second {
		t.Errorf("PerRequestTimeout = %v, want file override 6s", budget.PerRequestTimeout)
	}
	if budget.TotalTurnTimeout != 18*time.Second {
		t.Errorf("TotalTurnTimeout = %v, want file override 18s", budget.TotalTurnTimeout)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	t.Setenv(EnvPerRequestTimeout, "9")
	path := writeConfig(t, `
timeouts:
  per_request_timeout: 6
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	budget, err := cfg.Budget()
	if err != nil {
		t.Fatalf("Budget() error: %v", err)
	}
	if budget.PerRequestTimeout != 9*time.Second {
		t.Errorf("PerRequestTimeout = %v, want env override 9s", budget.PerRequestTimeout)
	}
}

func TestLoadSessionEnvBeatsFile(t *testing.T) {
	t.Setenv(EnvSessionTTL, "900")
	t.Setenv(EnvSessionCleanupInterval, "not-a-number")
	path := writeConfig(t, `
session:
  ttl_seconds: 120
  cleanup_interval_seconds: 30
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Session.TTL() != 15*time.Minute {
		t.Errorf("Session.TTL() = %v, want env override 15m", cfg.Session.TTL())
	}
	// Malformed values fall back to the file/default value.
	if cfg.Session.CleanupInterval() != 30*time.Second {
		t.Errorf("CleanupInterval = %v, want file value 30s", cfg.Session.CleanupInterval())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
sesion:
  ttl_seconds: 120
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted a config with a misspelled key")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_WHATSPR_KEY", "sk-test-123")
	path := writeConfig(t, `
openai:
  api_key: ${TEST_WHATSPR_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-test-123" {
		t.Errorf("APIKey = %q, want expanded value", cfg.OpenAI.APIKey)
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() succeeded on a missing file")
	}
}
