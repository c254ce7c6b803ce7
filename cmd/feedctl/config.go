package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/promecieus/internal/protocol/session"
)

type fileConfig struct {
	Server             string  `toml:"server"`
	SecurityMode       string  `toml:"security_mode"`
	ConnectTimeout     string  `toml:"connect_timeout"`
	HandshakeTimeout   string  `toml:"handshake_timeout"`
	WriteTimeout       string  `toml:"write_timeout"`
	PingInterval       string  `toml:"ping_interval"`
	PongWait           string  `toml:"pong_wait"`
	MaxMessageBytes    int64   `toml:"max_message_bytes"`
	BackoffInitial     string  `toml:"backoff_initial"`
	BackoffMax         string  `toml:"backoff_max"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier"`
	TLSCAFile          string  `toml:"tls_ca_file"`
	TLSServerName      string  `toml:"tls_server_name"`
	InsecureSkipVerify bool    `toml:"tls_insecure_skip_verify"`
	LogLevel           string  `toml:"log_level"`
	MetricsAddr        string  `toml:"metrics_addr"`
}

type clientConfig struct {
	Server      string
	Session     session.Config
	LogLevel    string
	MetricsAddr string
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		Server:   "http://localhost:8080",
		Session:  session.DefaultConfig(),
		LogLevel: "info",
	}
}

func loadClientConfig(path string) (clientConfig, error) {
	cfg := defaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientConfig{}, fmt.Errorf("load feedctl config: %w", err)
	}

	if meta.IsDefined("server") {
		if v := strings.TrimSpace(raw.Server); v != "" {
			cfg.Server = v
		}
	}
	if meta.IsDefined("security_mode") {
		cfg.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"ping_interval", raw.PingInterval, &cfg.Session.PingInterval},
		{"pong_wait", raw.PongWait, &cfg.Session.PongWait},
		{"backoff_initial", raw.BackoffInitial, &cfg.Session.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if meta.IsDefined("max_message_bytes") {
		cfg.Session.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("backoff_multiplier") {
		if raw.BackoffMultiplier < 1.0 {
			return clientConfig{}, fmt.Errorf("backoff_multiplier must be >= 1, got %v", raw.BackoffMultiplier)
		}
		cfg.Session.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Session.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_server_name") {
		cfg.Session.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("tls_insecure_skip_verify") {
		cfg.Session.TLS.InsecureSkipVerify = raw.InsecureSkipVerify
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}
