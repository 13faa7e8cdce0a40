package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sensorwatch/livesync/pkg/bridge"
	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/clock"
	"github.com/sensorwatch/livesync/pkg/connection"
	"github.com/sensorwatch/livesync/pkg/credential"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/log"
	"github.com/sensorwatch/livesync/pkg/transport"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateRunning - service is running normally.
	StateRunning

	// StateStopped - service has been closed.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Service.
type Config struct {
	// Transport opens push connections. Required.
	Transport transport.Transport

	// Credentials mints a token per connection attempt. Required.
	Credentials credential.Provider

	// Fetcher loads authoritative values. Without one, reconnect resync
	// and analytics refresh are disabled.
	Fetcher cache.Fetcher

	// Backoff bounds the reconnect delays.
	Backoff connection.BackoffConfig

	// Linger keeps the connection open after the last session release.
	Linger time.Duration

	// HistoryLimit bounds cached telemetry histories.
	HistoryLimit int

	// AnalyticsRefresh is the analytics refresh interval. Negative
	// disables the refresher.
	AnalyticsRefresh time.Duration

	// ResyncDomains are refetched after every reconnect. Empty means
	// alerts and devices.
	ResyncDomains []event.Domain

	// Clock drives timers. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backoff:          connection.DefaultBackoffConfig(),
		HistoryLimit:     bridge.DefaultHistoryLimit,
		AnalyticsRefresh: bridge.DefaultRefreshInterval,
		ResyncDomains:    []event.Domain{event.DomainAlerts, event.DomainDevices},
	}
}
