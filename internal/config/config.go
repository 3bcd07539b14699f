package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Feed    FeedConfig    `yaml:"feed"`
	Outbox  OutboxConfig  `yaml:"outbox"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type CacheConfig struct {
	// MaxNotes bounds the number of regular notes kept in memory. Zero keeps
	// everything.
	MaxNotes int `yaml:"max_notes"`
}

type FeedConfig struct {
	Window       time.Duration `yaml:"window"`
	DefaultLimit int           `yaml:"default_limit"`
}

type OutboxConfig struct {
	FallbackRelays []string `yaml:"fallback_relays"`
	IgnoreRelays   []string `yaml:"ignore_relays"`
}

type APIConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	CORSEnabled  bool          `yaml:"cors_enabled"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Load(path string) (*Config, error) {
	var config Config

	// Load from file if it exists
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Set defaults for any unset fields
	setDefaults(&config)

	// Apply environment variable overrides
	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var config Config
	setDefaults(&config)
	return &config
}

// setDefaults sets default configuration values
func setDefaults(config *Config) {
	// Feed defaults
	if config.Feed.Window == 0 {
		config.Feed.Window = 250 * time.Millisecond
	}
	if config.Feed.DefaultLimit == 0 {
		config.Feed.DefaultLimit = 500
	}

	// Outbox defaults
	if len(config.Outbox.FallbackRelays) == 0 {
		config.Outbox.FallbackRelays = []string{
			"wss://relay.damus.io",
			"wss://nos.lol",
		}
	}

	// API defaults
	if config.API.Host == "" {
		config.API.Host = "localhost"
	}
	if config.API.Port <= 0 {
		config.API.Port = 8090
	}
	if config.API.ReadTimeout == 0 {
		config.API.ReadTimeout = 30 * time.Second
	}
	if config.API.WriteTimeout == 0 {
		config.API.WriteTimeout = 30 * time.Second
	}

	// Logging defaults
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}

	// Metrics defaults
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *Config) {
	// Cache config
	if max := os.Getenv("MERCURY_CACHE_MAX_NOTES"); max != "" {
		if m, err := strconv.Atoi(max); err == nil {
			config.Cache.MaxNotes = m
		}
	}

	// Feed config
	if window := os.Getenv("MERCURY_FEED_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			config.Feed.Window = d
		}
	}
	if limit := os.Getenv("MERCURY_FEED_LIMIT"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			config.Feed.DefaultLimit = l
		}
	}

	// Outbox config
	if relays := os.Getenv("MERCURY_FALLBACK_RELAYS"); relays != "" {
		config.Outbox.FallbackRelays = splitList(relays)
	}
	if relays := os.Getenv("MERCURY_IGNORE_RELAYS"); relays != "" {
		config.Outbox.IgnoreRelays = splitList(relays)
	}

	// API config
	if enabled := os.Getenv("MERCURY_API_ENABLED"); enabled != "" {
		config.API.Enabled = enabled == "true"
	}
	if host := os.Getenv("MERCURY_API_HOST"); host != "" {
		config.API.Host = host
	}
	if port := os.Getenv("MERCURY_API_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.API.Port = p
		}
	}
	if cors := os.Getenv("MERCURY_CORS_ENABLED"); cors != "" {
		config.API.CORSEnabled = cors == "true"
	}

	// Logging config
	if level := os.Getenv("MERCURY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("MERCURY_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if file := os.Getenv("MERCURY_LOG_FILE"); file != "" {
		config.Logging.File = file
	}

	// Metrics config
	if enabled := os.Getenv("MERCURY_METRICS_ENABLED"); enabled != "" {
		config.Metrics.Enabled = enabled == "true"
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate cache config
	if c.Cache.MaxNotes < 0 {
		return fmt.Errorf("invalid cache config: max notes %d", c.Cache.MaxNotes)
	}

	// Validate feed config
	if c.Feed.Window < 0 {
		return fmt.Errorf("invalid feed config: negative window")
	}
	if c.Feed.DefaultLimit < 0 {
		return fmt.Errorf("invalid feed config: default limit %d", c.Feed.DefaultLimit)
	}

	// Validate API config
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api config: port %d", c.API.Port)
	}
	if c.API.ReadTimeout < 0 {
		return fmt.Errorf("invalid api config: negative read timeout")
	}
	if c.API.WriteTimeout < 0 {
		return fmt.Errorf("invalid api config: negative write timeout")
	}

	// Validate logging config
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging config: format %q", c.Logging.Format)
	}

	// Validate metrics config
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics config: path %q", c.Metrics.Path)
	}

	return nil
}
