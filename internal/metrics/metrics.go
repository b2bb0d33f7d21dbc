// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

// Package metrics defines the Prometheus instrumentation for Footfall.
//
// Metrics are registered via promauto on the default registry and served
// from GET /metrics. Instrumented concerns:
//   - visit ingestion and pruning
//   - geolocation lookups by outcome
//   - login attempts by result
//   - session registry size
//   - API request counts, latency, and rate-limit rejections
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Visit ingestion metrics
	VisitsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "footfall_visits_ingested_total",
			Help: "Total number of visits accepted and stored",
		},
	)

	VisitsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "footfall_visits_pruned_total",
			Help: "Total number of visits pruned to enforce the store cap",
		},
	)

	StoredVisits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "footfall_stored_visits",
			Help: "Current number of visits held in the store",
		},
	)

	// Geolocation lookup metrics
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "footfall_geo_lookups_total",
			Help: "Total geolocation lookups by outcome",
		},
		[]string{"outcome"}, // "found", "disabled", "private", "failed"
	)

	GeoLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "footfall_geo_lookup_duration_seconds",
			Help:    "Duration of outbound geolocation lookups in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
	)

	// Authentication metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "footfall_login_attempts_total",
			Help: "Total login attempts by result",
		},
		[]string{"result"}, // "success", "failure"
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "footfall_active_sessions",
			Help: "Current number of sessions in the registry",
		},
	)

	SessionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "footfall_sessions_reaped_total",
			Help: "Total expired sessions removed by the background reaper",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "footfall_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "footfall_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "footfall_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	RecordDuration(APIRequestDuration.WithLabelValues(method, endpoint), duration)
}

// RecordDuration observes a duration on a histogram observer.
func RecordDuration(observer prometheus.Observer, duration time.Duration) {
	observer.Observe(duration.Seconds())
}

// RecordGeoLookup records a geolocation lookup outcome and its duration.
// Lookups that never left the process (disabled, private) carry no duration.
func RecordGeoLookup(outcome string, duration time.Duration) {
	GeoLookups.WithLabelValues(outcome).Inc()
	if duration > 0 {
		GeoLookupDuration.Observe(duration.Seconds())
	}
}

// RecordLogin records one login attempt.
func RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	LoginAttempts.WithLabelValues(result).Inc()
}
