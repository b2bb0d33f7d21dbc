// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tomtom215/footfall/internal/logging"
)

// Enforced floors. Values below these are clamped with a warning rather
// than rejected, so a typo cannot silently thrash sessions or the store.
const (
	// MinSessionTTLMinutes is the smallest accepted session lifetime.
	MinSessionTTLMinutes = 5

	// MinStoredRecords is the smallest accepted store capacity.
	MinStoredRecords = 100
)

// Validate checks that required configuration is present and valid, and
// clamps out-of-range values to their enforced floors.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateGeo(); err != nil {
		return err
	}
	return c.validateLogging()
}

// validateServer validates HTTP server settings.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	return nil
}

// validateSecurity validates the credential secret and session/rate settings.
// The secret's internal structure is checked by the credential package at
// startup; here we only require its presence.
func (c *Config) validateSecurity() error {
	if c.Security.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required; generate one with the footfall-secret script")
	}

	if c.Security.SessionTTLMinutes < MinSessionTTLMinutes {
		logging.Warn().
			Int("configured", c.Security.SessionTTLMinutes).
			Int("floor", MinSessionTTLMinutes).
			Msg("SESSION_TTL_MINUTES below floor, clamping")
		c.Security.SessionTTLMinutes = MinSessionTTLMinutes
	}

	if c.Security.LoginRateLimit < 1 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must be at least 1, got %d", c.Security.LoginRateLimit)
	}
	if c.Security.TrackRateLimit < 1 {
		return fmt.Errorf("TRACK_RATE_LIMIT must be at least 1, got %d", c.Security.TrackRateLimit)
	}
	if c.Security.LoginRateWindow <= 0 || c.Security.TrackRateWindow <= 0 || c.Security.APIRateWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive durations")
	}

	return nil
}

// validateStore validates visit store settings.
func (c *Config) validateStore() error {
	if c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH must not be empty")
	}

	if c.Store.MaxRecords < MinStoredRecords {
		logging.Warn().
			Int("configured", c.Store.MaxRecords).
			Int("floor", MinStoredRecords).
			Msg("MAX_RECORDS below floor, clamping")
		c.Store.MaxRecords = MinStoredRecords
	}

	return nil
}

// validateGeo validates geolocation enrichment settings.
func (c *Config) validateGeo() error {
	switch c.Geo.Mode {
	case "on", "off":
	default:
		return fmt.Errorf("GEO_MODE must be \"on\" or \"off\", got %q", c.Geo.Mode)
	}

	if c.Geo.Mode == "off" {
		return nil
	}

	u, err := url.Parse(c.Geo.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("GEO_ENDPOINT is not a valid http(s) URL: %q", c.Geo.Endpoint)
	}
	if c.Geo.Timeout <= 0 {
		c.Geo.Timeout = 3 * time.Second
	}
	if c.Geo.MaxPerMinute < 1 {
		return fmt.Errorf("GEO_MAX_PER_MINUTE must be at least 1, got %d", c.Geo.MaxPerMinute)
	}

	return nil
}

// validateLogging validates logging settings.
func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace/debug/info/warn/error/fatal, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"console\", got %q", c.Logging.Format)
	}

	return nil
}
