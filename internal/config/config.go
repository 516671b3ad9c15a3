// ABOUTME: Configuration loading and parsing for the coven client.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration.
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Readiness  ReadinessConfig  `yaml:"readiness"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// GatewayConfig identifies the gateway and the session to attach to.
type GatewayConfig struct {
	// URL is the WebSocket base URL, e.g. "wss://gateway.example.com".
	URL string `yaml:"url"`
	// HTTPURL is the HTTP base URL for history and status endpoints.
	// Defaults to URL with the scheme swapped.
	HTTPURL    string `yaml:"http_url"`
	Token      string `yaml:"token"`
	SessionKey string `yaml:"session_key"`
}

// ReconnectConfig tunes the backoff schedule.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"-"`
	MaxDelay     time.Duration `yaml:"-"`
	MaxAttempts  int           `yaml:"max_attempts"`

	// Raw string values for YAML unmarshaling
	InitialDelayRaw string `yaml:"initial_delay"`
	MaxDelayRaw     string `yaml:"max_delay"`
}

// ReadinessConfig tunes the not-ready recovery poller.
type ReadinessConfig struct {
	Interval time.Duration `yaml:"-"`
	Timeout  time.Duration `yaml:"-"`

	IntervalRaw string `yaml:"interval"`
	TimeoutRaw  string `yaml:"timeout"`
}

// TranscriptConfig holds the local transcript cache settings.
type TranscriptConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	if c.Gateway.SessionKey == "" {
		return fmt.Errorf("gateway.session_key is required")
	}
	if c.Transcript.Enabled && c.Transcript.Path == "" {
		return fmt.Errorf("transcript.path is required when transcript is enabled")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Reconnect.InitialDelayRaw != "" {
		cfg.Reconnect.InitialDelay, err = time.ParseDuration(cfg.Reconnect.InitialDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing initial_delay %q: %w", cfg.Reconnect.InitialDelayRaw, err)
		}
	}

	if cfg.Reconnect.MaxDelayRaw != "" {
		cfg.Reconnect.MaxDelay, err = time.ParseDuration(cfg.Reconnect.MaxDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing max_delay %q: %w", cfg.Reconnect.MaxDelayRaw, err)
		}
	}

	if cfg.Readiness.IntervalRaw != "" {
		cfg.Readiness.Interval, err = time.ParseDuration(cfg.Readiness.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing readiness interval %q: %w", cfg.Readiness.IntervalRaw, err)
		}
	}

	if cfg.Readiness.TimeoutRaw != "" {
		cfg.Readiness.Timeout, err = time.ParseDuration(cfg.Readiness.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing readiness timeout %q: %w", cfg.Readiness.TimeoutRaw, err)
		}
	}

	return nil
}
