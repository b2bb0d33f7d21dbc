// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

// Package config loads and validates Footfall configuration.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables
//   - Config file (config.yaml)
//   - Built-in defaults
//
// The admin credential (ADMIN_SECRET) is the only required setting; the
// process refuses to start without it.
package config

import "time"

// Config is the root configuration for the Footfall server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Store    StoreConfig    `koanf:"store"`
	Geo      GeoConfig      `koanf:"geo"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the listen address. Default: 0.0.0.0
	Host string `koanf:"host"`

	// Port is the listen port.
	Port int `koanf:"port"`

	// Timeout is the read/write timeout for HTTP requests.
	Timeout time.Duration `koanf:"timeout"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists allowed origins for the operator console.
	// Empty by default - requires explicit configuration.
	CORSOrigins []string `koanf:"cors_origins"`
}

// SecurityConfig holds authentication, session, and rate-limit settings.
type SecurityConfig struct {
	// AdminSecret is the encoded operator credential in the form
	// "scrypt$N$r$p$<salt-b64>$<hash-b64>". Required; the process fails
	// to start when missing or malformed.
	AdminSecret string `koanf:"admin_secret"`

	// SessionTTLMinutes is the sliding session lifetime in minutes.
	// Default 30, floor 5 (clamped with a warning).
	SessionTTLMinutes int `koanf:"session_ttl_minutes"`

	// TrustProxy enables the proxy-forwarded header chain when deriving
	// the client origin. Only enable behind a trusted reverse proxy.
	TrustProxy bool `koanf:"trust_proxy"`

	// LoginRateLimit / LoginRateWindow bound login attempts per client IP.
	LoginRateLimit  int           `koanf:"login_rate_limit"`
	LoginRateWindow time.Duration `koanf:"login_rate_window"`

	// TrackRateLimit / TrackRateWindow bound visit ingestion per client IP.
	TrackRateLimit  int           `koanf:"track_rate_limit"`
	TrackRateWindow time.Duration `koanf:"track_rate_window"`

	// APIRateLimit / APIRateWindow bound the remaining endpoints.
	APIRateLimit  int           `koanf:"api_rate_limit"`
	APIRateWindow time.Duration `koanf:"api_rate_window"`

	// RateLimitDisabled turns off all rate limiting (tests, development).
	RateLimitDisabled bool `koanf:"rate_limit_disabled"`
}

// StoreConfig holds visit store settings.
type StoreConfig struct {
	// Path is the BadgerDB directory for the visit log.
	Path string `koanf:"path"`

	// MaxRecords caps the stored visit count; oldest records are pruned
	// first. Default 5000, floor 100 (clamped with a warning).
	MaxRecords int `koanf:"max_records"`
}

// GeoConfig holds geolocation enrichment settings.
type GeoConfig struct {
	// Mode is "on" or "off". When off, records carry no geo data.
	Mode string `koanf:"mode"`

	// Endpoint is the lookup service base URL; the client IP is appended
	// as a path segment.
	Endpoint string `koanf:"endpoint"`

	// Timeout bounds a single lookup. Enrichment failures never fail
	// ingestion.
	Timeout time.Duration `koanf:"timeout"`

	// MaxPerMinute caps outbound lookups; public lookup services
	// throttle around 45 requests per minute.
	MaxPerMinute int `koanf:"max_per_minute"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// GeoEnabled reports whether geolocation enrichment is switched on.
func (c *Config) GeoEnabled() bool {
	return c.Geo.Mode == "on"
}

// SessionTTL returns the session lifetime as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Security.SessionTTLMinutes) * time.Minute
}

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8425,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{},
		},
		Security: SecurityConfig{
			AdminSecret:       "",
			SessionTTLMinutes: 30,
			TrustProxy:        false,
			LoginRateLimit:    8,
			LoginRateWindow:   15 * time.Minute,
			TrackRateLimit:    240,
			TrackRateWindow:   time.Minute,
			APIRateLimit:      100,
			APIRateWindow:     time.Minute,
			RateLimitDisabled: false,
		},
		Store: StoreConfig{
			Path:       "/data/footfall",
			MaxRecords: 5000,
		},
		Geo: GeoConfig{
			Mode:         "on",
			Endpoint:     "http://ip-api.com/json",
			Timeout:      3 * time.Second,
			MaxPerMinute: 40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
