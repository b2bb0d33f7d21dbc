// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

// Package geo enriches visit records with coarse geolocation data.
//
// Lookups go to an external HTTP service (ip-api.com by default) and are
// strictly best-effort: every failure mode degrades to "no geo data", never
// to a failed ingestion. Outbound calls are bounded three ways:
//   - a per-request timeout
//   - a token-bucket rate limit matching the service's free-tier quota
//   - a circuit breaker that stops calling a service that keeps failing
//
// Private, loopback, and link-local client addresses are never sent out;
// they carry no geographic meaning and would leak internal topology.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/footfall/internal/config"
	"github.com/tomtom215/footfall/internal/logging"
	"github.com/tomtom215/footfall/internal/metrics"
	"github.com/tomtom215/footfall/internal/models"
)

// Outcome classifies the result of a lookup attempt.
type Outcome string

const (
	// OutcomeFound means the service returned usable geo data.
	OutcomeFound Outcome = "found"

	// OutcomeDisabled means enrichment is switched off by configuration.
	OutcomeDisabled Outcome = "disabled"

	// OutcomePrivate means the address is private, loopback, or link-local
	// and was never sent to the service.
	OutcomePrivate Outcome = "private"

	// OutcomeFailed covers everything else: timeouts, transport errors,
	// service-reported failures, rate-limit and breaker rejections.
	OutcomeFailed Outcome = "failed"
)

// Result is the outcome of one lookup. Data is non-nil only for
// OutcomeFound.
type Result struct {
	Outcome Outcome
	Data    *models.GeoData
}

// Client performs geolocation lookups. Safe for concurrent use.
type Client struct {
	enabled  bool
	endpoint string
	http     *http.Client
	cb       *gobreaker.CircuitBreaker[*models.GeoData]
	limiter  *rate.Limiter
}

// apiResponse is the ip-api.com JSON response shape.
type apiResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	AS          string  `json:"as"`
}

// NewClient creates a geolocation client from configuration.
//
// Circuit breaker configuration:
//   - opens after 60% failure rate with minimum 8 requests
//   - 1 minute measurement window
//   - 1 minute timeout before attempting recovery
func NewClient(cfg *config.GeoConfig, enabled bool) *Client {
	cb := gobreaker.NewCircuitBreaker[*models.GeoData](gobreaker.Settings{
		Name:        "geo-lookup",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 8 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("geo lookup circuit breaker state change")
		},
	})

	// Token bucket sized to the lookup service quota. Burst of a few
	// requests smooths page-load clusters without breaching the per-minute
	// ceiling.
	limit := rate.Limit(float64(cfg.MaxPerMinute) / 60.0)

	return &Client{
		enabled:  enabled,
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		cb:       cb,
		limiter:  rate.NewLimiter(limit, 4),
	}
}

// Lookup resolves geolocation data for the given client address.
// It never returns an error: every failure mode collapses into a Result
// with a non-found outcome, and the caller stores the visit regardless.
func (c *Client) Lookup(ctx context.Context, ip string) Result {
	if !c.enabled {
		metrics.RecordGeoLookup(string(OutcomeDisabled), 0)
		return Result{Outcome: OutcomeDisabled}
	}

	if isNonPublic(ip) {
		metrics.RecordGeoLookup(string(OutcomePrivate), 0)
		return Result{Outcome: OutcomePrivate}
	}

	if !c.limiter.Allow() {
		logging.Debug().Str("ip", ip).Msg("geo lookup skipped, outbound rate limit reached")
		metrics.RecordGeoLookup(string(OutcomeFailed), 0)
		return Result{Outcome: OutcomeFailed}
	}

	start := time.Now()
	data, err := c.cb.Execute(func() (*models.GeoData, error) {
		return c.fetch(ctx, ip)
	})
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Debug().Str("ip", ip).Msg("geo lookup rejected, circuit open")
		} else {
			logging.Warn().Err(err).Str("ip", ip).Msg("geo lookup failed")
		}
		metrics.RecordGeoLookup(string(OutcomeFailed), elapsed)
		return Result{Outcome: OutcomeFailed}
	}

	metrics.RecordGeoLookup(string(OutcomeFound), elapsed)
	return Result{Outcome: OutcomeFound, Data: data}
}

// fetch performs one HTTP lookup against the service.
func (c *Client) fetch(ctx context.Context, ip string) (*models.GeoData, error) {
	url := c.endpoint + "/" + ip

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build geo request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only response body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo service returned status %d", resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode geo response: %w", err)
	}

	if parsed.Status != "success" {
		return nil, fmt.Errorf("geo service reported failure: %s", parsed.Message)
	}

	return &models.GeoData{
		Country:     parsed.Country,
		CountryCode: parsed.CountryCode,
		Region:      parsed.RegionName,
		City:        parsed.City,
		Latitude:    parsed.Lat,
		Longitude:   parsed.Lon,
		ISP:         parsed.ISP,
		Org:         parsed.Org,
		ASN:         parsed.AS,
	}, nil
}

// isNonPublic reports whether the address must not be sent to the lookup
// service. Unparseable addresses are treated as non-public; nothing useful
// could come back for them anyway.
func isNonPublic(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return true
	}

	return addr.IsLoopback() ||
		addr.IsPrivate() || // RFC 1918 and RFC 4193 ULA
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
