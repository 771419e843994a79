// ABOUTME: Configuration loading and parsing for the monkai-trace CLI
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenEnvVar overrides api.token when set.
const TokenEnvVar = "MONKAI_TRACER_TOKEN"

// Config represents the complete monkai-trace CLI configuration
type Config struct {
	API       APIConfig     `yaml:"api"`
	Namespace string        `yaml:"namespace"`
	Agent     string        `yaml:"agent"`
	Session   SessionConfig `yaml:"session"`
	Spool     SpoolConfig   `yaml:"spool"`
	Logging   LoggingConfig `yaml:"logging"`
}

// APIConfig holds collection API connection configuration
type APIConfig struct {
	Token      string `yaml:"token"`
	BaseURL    string `yaml:"base_url"`
	MaxRetries int    `yaml:"max_retries"`
	ChunkSize  int    `yaml:"chunk_size"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// SessionConfig holds session window configuration
type SessionConfig struct {
	InactivityTimeout time.Duration `yaml:"-"`

	InactivityTimeoutRaw string `yaml:"inactivity_timeout"`
}

// SpoolConfig holds failed-chunk spool configuration
type SpoolConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, and the
// MONKAI_TRACER_TOKEN environment variable overrides api.token.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
// The token comes from the environment.
func Default() (*Config, error) {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv(TokenEnvVar); token != "" {
		cfg.API.Token = token
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required (or set %s)", TokenEnvVar)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must be >= 0")
	}
	if c.API.ChunkSize < 0 {
		return fmt.Errorf("api.chunk_size must be >= 0")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.API.TimeoutRaw != "" {
		cfg.API.Timeout, err = time.ParseDuration(cfg.API.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing api.timeout %q: %w", cfg.API.TimeoutRaw, err)
		}
	}

	if cfg.Session.InactivityTimeoutRaw != "" {
		cfg.Session.InactivityTimeout, err = time.ParseDuration(cfg.Session.InactivityTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing session.inactivity_timeout %q: %w", cfg.Session.InactivityTimeoutRaw, err)
		}
	}

	return nil
}
