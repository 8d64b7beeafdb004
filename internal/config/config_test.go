// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  ws_addr: "0.0.0.0:8765"
  http_addr: "0.0.0.0:8766"

store:
  backend: "bolt"
  bolt_path: "./test.bolt"
  admin_db: "./test-admin.sqlite"

retention:
  prune_interval: "30s"
  checkpoint_interval: "90s"
  max_age: "168h"

relay_key:
  path: "./relay.key"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.WSAddr != "0.0.0.0:8765" {
		t.Errorf("Server.WSAddr = %q, want %q", cfg.Server.WSAddr, "0.0.0.0:8765")
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:8766" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8766")
	}

	if cfg.Store.Backend != "bolt" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "bolt")
	}
	if cfg.Store.BoltPath != "./test.bolt" {
		t.Errorf("Store.BoltPath = %q, want %q", cfg.Store.BoltPath, "./test.bolt")
	}

	if cfg.Retention.PruneInterval != 30*time.Second {
		t.Errorf("Retention.PruneInterval = %v, want %v", cfg.Retention.PruneInterval, 30*time.Second)
	}
	if cfg.Retention.CheckpointInterval != 90*time.Second {
		t.Errorf("Retention.CheckpointInterval = %v, want %v", cfg.Retention.CheckpointInterval, 90*time.Second)
	}
	if cfg.Retention.MaxAge != 168*time.Hour {
		t.Errorf("Retention.MaxAge = %v, want %v", cfg.Retention.MaxAge, 168*time.Hour)
	}

	if cfg.RelayKey.Path != "./relay.key" {
		t.Errorf("RelayKey.Path = %q, want %q", cfg.RelayKey.Path, "./relay.key")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}

	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_BOLT_PATH", "/data/from-env.bolt")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  ws_addr: "0.0.0.0:8765"
  http_addr: "0.0.0.0:8766"

store:
  backend: "bolt"
  bolt_path: "${TEST_BOLT_PATH}"

logging:
  level: "info"
  format: "text"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.BoltPath != "/data/from-env.bolt" {
		t.Errorf("Store.BoltPath = %q, want %q", cfg.Store.BoltPath, "/data/from-env.bolt")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("UNSET_VAR_FOR_TEST")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
store:
  backend: "bolt"
  bolt_path: "${UNSET_VAR_FOR_TEST}"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.BoltPath != "" {
		t.Errorf("Store.BoltPath = %q, want empty string for unset env var", cfg.Store.BoltPath)
	}
}

func TestLoad_DurationParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
retention:
  prune_interval: "1m30s"
  checkpoint_interval: "2h"
  max_age: "10m"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expectedInterval := 1*time.Minute + 30*time.Second
	if cfg.Retention.PruneInterval != expectedInterval {
		t.Errorf("Retention.PruneInterval = %v, want %v", cfg.Retention.PruneInterval, expectedInterval)
	}
	if cfg.Retention.CheckpointInterval != 2*time.Hour {
		t.Errorf("Retention.CheckpointInterval = %v, want %v", cfg.Retention.CheckpointInterval, 2*time.Hour)
	}
	if cfg.Retention.MaxAge != 10*time.Minute {
		t.Errorf("Retention.MaxAge = %v, want %v", cfg.Retention.MaxAge, 10*time.Minute)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  ws_addr: "0.0.0.0:8765"
  http_addr "missing colon"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err = Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
retention:
  prune_interval: "invalid-duration"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err = Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid duration, got nil")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single env var", input: "${FOO}", expected: "bar"},
		{name: "env var with surrounding text", input: "prefix-${FOO}-suffix", expected: "prefix-bar-suffix"},
		{name: "multiple env vars", input: "${FOO}/${BAZ}", expected: "bar/qux"},
		{name: "no env vars", input: "no-vars-here", expected: "no-vars-here"},
		{name: "unset env var", input: "${UNSET_VAR}", expected: ""},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDefault_IsUsable(t *testing.T) {
	cfg := Default()
	if cfg.Server.WSAddr == "" {
		t.Error("Default().Server.WSAddr is empty")
	}
	if cfg.Store.Backend != "bolt" {
		t.Errorf("Default().Store.Backend = %q, want %q", cfg.Store.Backend, "bolt")
	}
}
