// Package config loads livesync settings from a YAML file, an optional
// .env file and LIVESYNC_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sensorwatch/livesync/pkg/bridge"
	"github.com/sensorwatch/livesync/pkg/connection"
	"github.com/sensorwatch/livesync/pkg/transport"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete client configuration.
type Config struct {
	Push      PushConfig               `yaml:"push"`
	API       APIConfig                `yaml:"api"`
	Backoff   connection.BackoffConfig `yaml:"backoff"`
	Session   SessionConfig            `yaml:"session"`
	Analytics AnalyticsConfig          `yaml:"analytics"`
	Log       LogConfig                `yaml:"log"`
	Status    StatusConfig             `yaml:"status"`

	// TLS applies to both the push endpoint and the REST API.
	TLS transport.TLSConfig `yaml:"tls"`
}

// PushConfig selects the push endpoint.
type PushConfig struct {
	// URL is ws(s):// for websocket, http(s):// for eventstream.
	URL string `yaml:"url"`

	// Transport is "websocket" or "eventstream".
	Transport string `yaml:"transport"`

	// Token is a static bearer token. Empty means not signed in.
	Token string `yaml:"token"`
}

// APIConfig locates the REST API used for refetches.
type APIConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig tunes the reference-counted session.
type SessionConfig struct {
	Linger time.Duration `yaml:"linger"`
}

// AnalyticsConfig tunes the analytics refresher.
type AnalyticsConfig struct {
	Refresh time.Duration `yaml:"refresh"`
}

// LogConfig configures operational and protocol logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Protocol is the path of a CBOR protocol capture. Empty disables it.
	Protocol string `yaml:"protocol"`
}

// StatusConfig configures the local status endpoint.
type StatusConfig struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Push:      PushConfig{Transport: transport.NameWebSocket},
		API:       APIConfig{Timeout: 15 * time.Second},
		Backoff:   connection.DefaultBackoffConfig(),
		Analytics: AnalyticsConfig{Refresh: bridge.DefaultRefreshInterval},
		Log:       LogConfig{Level: "info"},
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty), envFile (missing is fine; empty means ".env") and
// the environment. overrides, e.g. command-line flags, run last. The
// result is validated.
func Load(path, envFile string, overrides ...func(*Config)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	for _, fn := range overrides {
		fn(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Push.URL, "LIVESYNC_PUSH_URL")
	setString(&c.Push.Transport, "LIVESYNC_TRANSPORT")
	setString(&c.Push.Token, "LIVESYNC_TOKEN")
	setString(&c.API.URL, "LIVESYNC_API_URL")
	setString(&c.Log.Level, "LIVESYNC_LOG_LEVEL")
	setString(&c.Log.Protocol, "LIVESYNC_PROTOCOL_LOG")
	setString(&c.Status.Addr, "LIVESYNC_STATUS_ADDR")
	setString(&c.TLS.CAFile, "LIVESYNC_TLS_CA_FILE")
	setString(&c.TLS.ServerName, "LIVESYNC_TLS_SERVER_NAME")

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.Backoff.Initial, "LIVESYNC_BACKOFF_INITIAL"},
		{&c.Backoff.Max, "LIVESYNC_BACKOFF_MAX"},
		{&c.Session.Linger, "LIVESYNC_LINGER"},
		{&c.Analytics.Refresh, "LIVESYNC_ANALYTICS_REFRESH"},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}
	if v, ok := lookup("LIVESYNC_BACKOFF_JITTER"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: LIVESYNC_BACKOFF_JITTER: %v", ErrInvalidConfig, err)
		}
		c.Backoff.Jitter = f
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Push.URL == "" {
		return fmt.Errorf("%w: push.url is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.Push.URL)
	if err != nil {
		return fmt.Errorf("%w: push.url: %v", ErrInvalidConfig, err)
	}
	switch c.Push.Transport {
	case transport.NameWebSocket:
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("%w: websocket push.url must use ws or wss", ErrInvalidConfig)
		}
	case transport.NameEventStream:
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: eventstream push.url must use http or https", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Push.Transport)
	}

	if c.API.URL != "" {
		u, err := url.Parse(c.API.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: api.url must be an http(s) URL", ErrInvalidConfig)
		}
	}
	if c.Backoff.Initial <= 0 || c.Backoff.Max < c.Backoff.Initial {
		return fmt.Errorf("%w: backoff needs 0 < initial <= max", ErrInvalidConfig)
	}
	if c.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: backoff.multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		return fmt.Errorf("%w: backoff.jitter must be within [0, 1]", ErrInvalidConfig)
	}
	if c.Session.Linger < 0 {
		return fmt.Errorf("%w: session.linger must not be negative", ErrInvalidConfig)
	}
	if c.Analytics.Refresh < 0 {
		return fmt.Errorf("%w: analytics.refresh must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, l.Level)
	}
	return lvl, nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	*dst = d
	return nil
}
