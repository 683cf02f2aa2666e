// ABOUTME: Configuration loading and parsing for intake-gateway.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Number format modes accepted in provider.number_format.
const (
	NumberFormatStripMarker = "strip_marker"
	NumberFormatAddMarker   = "add_marker"
)

// Config represents the complete intake-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	History  HistoryConfig  `yaml:"history"`
	Menu     MenuConfig     `yaml:"menu"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// ProviderConfig holds the messaging provider credentials and sending
// address policy.
type ProviderConfig struct {
	APIBase      string `yaml:"api_base"`
	PhoneID      string `yaml:"phone_id"`
	Token        string `yaml:"token"`
	NumberFormat string `yaml:"number_format"`
}

// SecretsConfig holds webhook and operator secrets
type SecretsConfig struct {
	VerifyToken    string `yaml:"verify_token"`
	OperatorSecret string `yaml:"operator_secret"`
}

// RedisConfig holds the optional Redis connection. An empty addr means
// the gateway runs on in-process stores.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	SessionTTL time.Duration `yaml:"-"`
	SeenTTL    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	SessionTTLRaw string `yaml:"session_ttl"`
	SeenTTLRaw    string `yaml:"seen_ttl"`
}

// DatabaseConfig holds the chat log database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig holds per-conversation log bounds
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// MenuConfig points at the static content catalog
type MenuConfig struct {
	Catalog string `yaml:"catalog"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a config with every optional field filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: ":8080"},
		Provider: ProviderConfig{
			APIBase:      "https://graph.facebook.com/v20.0",
			NumberFormat: NumberFormatStripMarker,
		},
		Redis: RedisConfig{
			SessionTTL: 45 * time.Minute,
			SeenTTL:    24 * time.Hour,
		},
		Database: DatabaseConfig{Path: "intake.db"},
		History:  HistoryConfig{Capacity: 500},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Provider.NumberFormat {
	case NumberFormatStripMarker, NumberFormatAddMarker:
	default:
		return fmt.Errorf("provider.number_format must be %q or %q",
			NumberFormatStripMarker, NumberFormatAddMarker)
	}

	if c.Secrets.VerifyToken == "" {
		return fmt.Errorf("secrets.verify_token is required")
	}
	if c.Secrets.OperatorSecret == "" {
		return fmt.Errorf("secrets.operator_secret is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.History.Capacity < 1 {
		return fmt.Errorf("history.capacity must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Redis.SessionTTLRaw != "" {
		cfg.Redis.SessionTTL, err = time.ParseDuration(cfg.Redis.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session_ttl %q: %w", cfg.Redis.SessionTTLRaw, err)
		}
	}

	if cfg.Redis.SeenTTLRaw != "" {
		cfg.Redis.SeenTTL, err = time.ParseDuration(cfg.Redis.SeenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing seen_ttl %q: %w", cfg.Redis.SeenTTLRaw, err)
		}
	}

	return nil
}
