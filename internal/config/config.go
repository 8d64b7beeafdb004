// ABOUTME: Configuration loading and parsing for coven-relay
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-relay configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Retention RetentionConfig `yaml:"retention"`
	RelayKey  RelayKeyConfig  `yaml:"relay_key"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds listener addresses. /ws, /metrics, /health, and the
// admin routes are all served off one http.Server, so in practice WSAddr
// and HTTPAddr name the same listener; both fields are kept so a config
// file can still express them as logically distinct concerns, but
// cmd/coven-relay binds only HTTPAddr.
type ServerConfig struct {
	WSAddr   string `yaml:"ws_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// StoreConfig configures the event log and admin stores.
type StoreConfig struct {
	// Backend names the event log backing ("bolt" by default). It is not
	// consulted: cmd/coven-relay always opens the bolt store at BoltPath.
	Backend  string `yaml:"backend"`
	BoltPath string `yaml:"bolt_path"`
	AdminDB  string `yaml:"admin_db"`
}

// RetentionConfig holds pruning and checkpoint interval configuration.
type RetentionConfig struct {
	PruneInterval      time.Duration `yaml:"-"`
	CheckpointInterval time.Duration `yaml:"-"`
	MaxAge             time.Duration `yaml:"-"`

	PruneIntervalRaw      string `yaml:"prune_interval"`
	CheckpointIntervalRaw string `yaml:"checkpoint_interval"`
	MaxAgeRaw             string `yaml:"max_age"`
}

// RelayKeyConfig points at the relay's own signing identity, used to sign
// checkpoint events.
type RelayKeyConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration used when no file is present,
// suitable for `coven-relay init` to write out and for tests.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			WSAddr:   ":8765",
			HTTPAddr: ":8766",
		},
		Store: StoreConfig{
			Backend:  "bolt",
			BoltPath: "coven-relay.bolt",
			AdminDB:  "coven-relay-admin.sqlite",
		},
		Retention: RetentionConfig{
			PruneIntervalRaw:      "60s",
			CheckpointIntervalRaw: "60s",
			MaxAgeRaw:             "720h",
		},
		RelayKey: RelayKeyConfig{Path: "relay.key"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Retention.PruneIntervalRaw != "" {
		cfg.Retention.PruneInterval, err = time.ParseDuration(cfg.Retention.PruneIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing prune_interval %q: %w", cfg.Retention.PruneIntervalRaw, err)
		}
	}

	if cfg.Retention.CheckpointIntervalRaw != "" {
		cfg.Retention.CheckpointInterval, err = time.ParseDuration(cfg.Retention.CheckpointIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing checkpoint_interval %q: %w", cfg.Retention.CheckpointIntervalRaw, err)
		}
	}

	if cfg.Retention.MaxAgeRaw != "" {
		cfg.Retention.MaxAge, err = time.ParseDuration(cfg.Retention.MaxAgeRaw)
		if err != nil {
			return fmt.Errorf("parsing max_age %q: %w", cfg.Retention.MaxAgeRaw, err)
		}
	}

	return nil
}
