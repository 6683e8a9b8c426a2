// ABOUTME: Configuration loading and parsing for the parley client.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parley client configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Status      StatusConfig      `yaml:"status"`
	Cache       CacheConfig       `yaml:"cache"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds gateway connection configuration.
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// AttachmentsConfig holds attachment staging configuration.
type AttachmentsConfig struct {
	MaxSizeBytes  int64         `yaml:"max_size_bytes"`
	UploadTimeout time.Duration `yaml:"-"`

	UploadTimeoutRaw string `yaml:"upload_timeout"`
}

// StatusConfig holds narration channel timing configuration.
type StatusConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"-"`
	MaxBackoff     time.Duration `yaml:"-"`
	HealthInterval time.Duration `yaml:"-"`
	SessionWait    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	InitialBackoffRaw string `yaml:"initial_backoff"`
	MaxBackoffRaw     string `yaml:"max_backoff"`
	HealthIntervalRaw string `yaml:"health_interval"`
	SessionWaitRaw    string `yaml:"session_wait"`
}

// CacheConfig holds the local conversation cache configuration.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// CatalogConfig holds the optional model catalog overlay.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given. The gateway
// URL still has to be set by flag or file; everything else has a working value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{BaseURL: "http://localhost:8080"},
		Attachments: AttachmentsConfig{
			MaxSizeBytes:  10 << 20,
			UploadTimeout: 2 * time.Minute,
		},
		Status: StatusConfig{
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
			HealthInterval: 30 * time.Second,
			SessionWait:    2 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values. Fields left unset
// fall back to Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Attachments.MaxSizeBytes <= 0 {
		return fmt.Errorf("attachments.max_size_bytes must be positive")
	}
	if c.Status.MaxAttempts < 0 {
		return fmt.Errorf("status.max_attempts must not be negative")
	}
	if c.Status.InitialBackoff <= 0 || c.Status.MaxBackoff < c.Status.InitialBackoff {
		return fmt.Errorf("status backoff bounds are invalid")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Attachments.UploadTimeoutRaw, "upload_timeout", &cfg.Attachments.UploadTimeout},
		{cfg.Status.InitialBackoffRaw, "initial_backoff", &cfg.Status.InitialBackoff},
		{cfg.Status.MaxBackoffRaw, "max_backoff", &cfg.Status.MaxBackoff},
		{cfg.Status.HealthIntervalRaw, "health_interval", &cfg.Status.HealthInterval},
		{cfg.Status.SessionWaitRaw, "session_wait", &cfg.Status.SessionWait},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
