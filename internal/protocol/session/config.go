package session

import "time"

// SecurityMode selects how strictly transport settings are validated.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// TLSConfig defines client-side wss settings.
type TLSConfig struct {
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines transport/session reliability defaults.
type Config struct {
	SecurityMode     SecurityMode
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
	MaxMessageBytes  int64
	Backoff          BackoffConfig
	TLS              TLSConfig
}

// DefaultBackoff is the reconnect policy of the status feed: 250ms base,
// doubling per consecutive failure, capped at 10s, no jitter.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
		Jitter:       false,
	}
}

// DefaultConfig returns transport defaults for the status feed.
func DefaultConfig() Config {
	return Config{
		SecurityMode:     SecurityModeDevelopment,
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     20 * time.Second,
		PongWait:         45 * time.Second,
		MaxMessageBytes:  128 * 1024,
		Backoff:          DefaultBackoff(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.SecurityMode == "" {
		c.SecurityMode = def.SecurityMode
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 2
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = def.MaxMessageBytes
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	return c
}
