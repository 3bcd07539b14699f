package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigLoading(t *testing.T) {
	t.Run("Load from YAML", func(t *testing.T) {
		path := writeConfig(t, `
cache:
  max_notes: 20000

feed:
  window: "500ms"
  default_limit: 100

outbox:
  fallback_relays:
    - "wss://relay.damus.io"
    - "wss://relay.primal.net"
  ignore_relays:
    - "wss://spam.example.com"

api:
  enabled: true
  host: "0.0.0.0"
  port: 8082
  cors_enabled: true
  read_timeout: "10s"

logging:
  level: "debug"
  format: "json"
  file: "/tmp/mercury.log"

metrics:
  enabled: true
  path: "/prometheus"
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 20000, cfg.Cache.MaxNotes)

		assert.Equal(t, 500*time.Millisecond, cfg.Feed.Window)
		assert.Equal(t, 100, cfg.Feed.DefaultLimit)

		assert.Equal(t, []string{"wss://relay.damus.io", "wss://relay.primal.net"}, cfg.Outbox.FallbackRelays)
		assert.Equal(t, []string{"wss://spam.example.com"}, cfg.Outbox.IgnoreRelays)

		assert.True(t, cfg.API.Enabled)
		assert.Equal(t, "0.0.0.0", cfg.API.Host)
		assert.Equal(t, 8082, cfg.API.Port)
		assert.True(t, cfg.API.CORSEnabled)
		assert.Equal(t, "10s", cfg.API.ReadTimeout.String())
		assert.Equal(t, "30s", cfg.API.WriteTimeout.String())

		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, "/tmp/mercury.log", cfg.Logging.File)

		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, "/prometheus", cfg.Metrics.Path)
	})

	t.Run("Environment variable override", func(t *testing.T) {
		t.Setenv("MERCURY_API_PORT", "9090")
		t.Setenv("MERCURY_FEED_WINDOW", "1s")
		t.Setenv("MERCURY_FALLBACK_RELAYS", "wss://a.example.com, wss://b.example.com,")
		t.Setenv("MERCURY_LOG_LEVEL", "warn")

		path := writeConfig(t, `
api:
  port: 8080
feed:
  window: "100ms"
logging:
  level: "info"
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.API.Port)
		assert.Equal(t, time.Second, cfg.Feed.Window)
		assert.Equal(t, []string{"wss://a.example.com", "wss://b.example.com"}, cfg.Outbox.FallbackRelays)
		assert.Equal(t, "warn", cfg.Logging.Level)
	})

	t.Run("Malformed overrides are ignored", func(t *testing.T) {
		t.Setenv("MERCURY_API_PORT", "not-a-port")
		t.Setenv("MERCURY_FEED_WINDOW", "soon")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 8090, cfg.API.Port)
		assert.Equal(t, 250*time.Millisecond, cfg.Feed.Window)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("Malformed file", func(t *testing.T) {
		_, err := Load(writeConfig(t, "api: [unterminated"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestConfigDefaultValues(t *testing.T) {
	t.Run("Missing optional config", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
api:
  host: "localhost"
`))
		require.NoError(t, err)

		assert.Equal(t, 0, cfg.Cache.MaxNotes)
		assert.Equal(t, 250*time.Millisecond, cfg.Feed.Window)
		assert.Equal(t, 500, cfg.Feed.DefaultLimit)
		assert.NotEmpty(t, cfg.Outbox.FallbackRelays)
		assert.Equal(t, 8090, cfg.API.Port)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "text", cfg.Logging.Format)
		assert.Equal(t, "/metrics", cfg.Metrics.Path)
	})

	t.Run("Negative port falls back to default", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
api:
  port: -1
`))
		require.NoError(t, err)
		assert.Equal(t, 8090, cfg.API.Port)
	})

	t.Run("Default matches an empty load", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})
}

func TestConfigValidation(t *testing.T) {
	t.Run("Valid config", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"Negative cache size", func(c *Config) { c.Cache.MaxNotes = -1 }, "invalid cache config"},
		{"Negative window", func(c *Config) { c.Feed.Window = -time.Second }, "invalid feed config"},
		{"Negative limit", func(c *Config) { c.Feed.DefaultLimit = -5 }, "invalid feed config"},
		{"Port out of range", func(c *Config) { c.API.Port = 70000 }, "invalid api config"},
		{"Negative timeout", func(c *Config) { c.API.ReadTimeout = -time.Second }, "invalid api config"},
		{"Unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging config"},
		{"Relative metrics path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "invalid metrics config"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	t.Run("Load rejects invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
logging:
  format: "xml"
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging config")
	})
}
