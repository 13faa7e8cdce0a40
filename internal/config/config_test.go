package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "livesync.yaml", `
push:
  url: wss://push.example.com/ws
  token: abc
api:
  url: https://api.example.com/v1
backoff:
  initial: 500ms
  max: 10s
session:
  linger: 2s
log:
  level: debug
tls:
  ca_file: /etc/livesync/ca.pem
  server_name: push.internal
`)
	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "wss://push.example.com/ws", cfg.Push.URL)
	assert.Equal(t, "websocket", cfg.Push.Transport, "default kept")
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.Initial)
	assert.Equal(t, 10*time.Second, cfg.Backoff.Max)
	assert.Equal(t, 2.0, cfg.Backoff.Multiplier, "default kept")
	assert.Equal(t, 2*time.Second, cfg.Session.Linger)
	assert.Equal(t, 5*time.Minute, cfg.Analytics.Refresh)
	assert.Equal(t, "/etc/livesync/ca.pem", cfg.TLS.CAFile)
	assert.Equal(t, "push.internal", cfg.TLS.ServerName)
	assert.False(t, cfg.TLS.InsecureSkipVerify)

	lvl, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "livesync.yaml", "push:\n  url: wss://file.example.com\n")
	t.Setenv("LIVESYNC_PUSH_URL", "https://sse.example.com/events")
	t.Setenv("LIVESYNC_TRANSPORT", "eventstream")
	t.Setenv("LIVESYNC_BACKOFF_MAX", "1m")
	t.Setenv("LIVESYNC_BACKOFF_JITTER", "0.2")

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "https://sse.example.com/events", cfg.Push.URL)
	assert.Equal(t, "eventstream", cfg.Push.Transport)
	assert.Equal(t, time.Minute, cfg.Backoff.Max)
	assert.Equal(t, 0.2, cfg.Backoff.Jitter)
}

func TestOverridesRunBeforeValidate(t *testing.T) {
	t.Setenv("LIVESYNC_PUSH_URL", "")
	t.Setenv("LIVESYNC_LOG_LEVEL", "warn")

	_, err := Load("", noEnvFile(t))
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg, err := Load("", noEnvFile(t), func(c *Config) {
		c.Push.URL = "ws://localhost:8080/push"
		c.Log.Level = "debug"
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/push", cfg.Push.URL)
	assert.Equal(t, "debug", cfg.Log.Level, "overrides win over the environment")
}

func TestDotEnv(t *testing.T) {
	env := writeFile(t, ".env", "LIVESYNC_PUSH_URL=wss://dotenv.example.com\nLIVESYNC_LINGER=3s\n")
	t.Cleanup(func() {
		os.Unsetenv("LIVESYNC_PUSH_URL")
		os.Unsetenv("LIVESYNC_LINGER")
	})

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "wss://dotenv.example.com", cfg.Push.URL)
	assert.Equal(t, 3*time.Second, cfg.Session.Linger)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), noEnvFile(t))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.yaml", "push: [\n"), noEnvFile(t))
		assert.Error(t, err)
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("LIVESYNC_PUSH_URL", "wss://x")
		t.Setenv("LIVESYNC_LINGER", "soon")
		_, err := Load("", noEnvFile(t))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Push.URL = "wss://push.example.com"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no url", func(c *Config) { c.Push.URL = "" }},
		{"scheme mismatch", func(c *Config) { c.Push.URL = "https://push.example.com" }},
		{"eventstream scheme", func(c *Config) { c.Push.Transport = "eventstream" }},
		{"unknown transport", func(c *Config) { c.Push.Transport = "carrier-pigeon" }},
		{"api url", func(c *Config) { c.API.URL = "ftp://api" }},
		{"zero initial", func(c *Config) { c.Backoff.Initial = 0 }},
		{"max below initial", func(c *Config) { c.Backoff.Max = c.Backoff.Initial / 2 }},
		{"multiplier", func(c *Config) { c.Backoff.Multiplier = 0.5 }},
		{"jitter", func(c *Config) { c.Backoff.Jitter = 1.5 }},
		{"linger", func(c *Config) { c.Session.Linger = -time.Second }},
		{"level", func(c *Config) { c.Log.Level = "chatty" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}
