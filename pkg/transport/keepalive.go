package transport

import (
	"time"
)

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong response.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before disconnect.
	DefaultMaxMissedPongs = 3

	// DefaultWriteTimeout bounds every frame write.
	DefaultWriteTimeout = 10 * time.Second
)

// KeepAliveConfig configures liveness monitoring of a duplex connection.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration

	// PongTimeout is the extra time allowed for the last pong.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of missed pongs before the
	// connection is considered dead.
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// withDefaults fills zero fields.
func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// DetectionDelay is the longest a dead peer can go unnoticed: the read
// deadline, extended on every inbound frame or pong.
//
//	PingInterval * MaxMissedPongs + PongTimeout  (default 95s)
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	c = c.withDefaults()
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}
