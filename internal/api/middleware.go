// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/footfall/internal/config"
	"github.com/tomtom215/footfall/internal/logging"
	"github.com/tomtom215/footfall/internal/metrics"
	"github.com/tomtom215/footfall/internal/session"
)

// ChiMiddleware provides Chi-compatible middleware factories built from
// configuration. Rate limits are per client IP via go-chi/httprate.
type ChiMiddleware struct {
	cfg  *config.SecurityConfig
	cors func(http.Handler) http.Handler
}

// NewChiMiddleware creates the middleware factory.
func NewChiMiddleware(security *config.SecurityConfig, corsOrigins []string) *ChiMiddleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	})

	return &ChiMiddleware{
		cfg:  security,
		cors: corsHandler,
	}
}

// CORS returns the CORS middleware using go-chi/cors.
// Origins default to empty, requiring explicit configuration; this prevents
// accidental deployment with wildcard CORS.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// rateLimit builds an IP-keyed limiter that emits the standard 429 envelope
// and counts rejections per endpoint.
func (m *ChiMiddleware) rateLimit(endpoint string, requests int, window time.Duration) func(http.Handler) http.Handler {
	if m.cfg.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(endpoint).Inc()
			WriteError(w, r, http.StatusTooManyRequests, ErrCodeTooManyRequests, "Rate limit exceeded, slow down")
		}),
	)
}

// RateLimitLogin returns the strict limiter for the login endpoint.
// Brute force prevention: the default allows 8 attempts per 15 minutes.
func (m *ChiMiddleware) RateLimitLogin() func(http.Handler) http.Handler {
	return m.rateLimit("/api/v1/login", m.cfg.LoginRateLimit, m.cfg.LoginRateWindow)
}

// RateLimitTrack returns the limiter for visit ingestion.
func (m *ChiMiddleware) RateLimitTrack() func(http.Handler) http.Handler {
	return m.rateLimit("/api/v1/track", m.cfg.TrackRateLimit, m.cfg.TrackRateWindow)
}

// RateLimitAPI returns the default limiter for the remaining endpoints.
func (m *ChiMiddleware) RateLimitAPI() func(http.Handler) http.Handler {
	return m.rateLimit("api", m.cfg.APIRateLimit, m.cfg.APIRateWindow)
}

// BearerAuth returns a middleware that requires a live session token in the
// Authorization header. Sliding expiry: a successful check renews the
// session.
//
// Expired, revoked, unknown, and missing tokens all produce the same 401
// UNAUTHORIZED envelope, distinct from an empty success payload, so clients
// can tell "logged out" from "no data".
func BearerAuth(registry *session.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || !registry.Authenticate(token) {
				logging.Ctx(r.Context()).Debug().
					Str("path", r.URL.Path).
					Msg("rejected request without live session")
				WriteError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns "" when the header is absent or not a bearer scheme.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// RequestIDWithLogging returns a middleware that ensures every request
// carries an X-Request-ID header and a logging context with that ID, so all
// log lines for one request correlate.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrometheusMetrics returns a middleware recording request counts and
// latency per route pattern.
func PrometheusMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			endpoint := chi.RouteContext(r.Context()).RoutePattern()
			if endpoint == "" {
				endpoint = r.URL.Path
			}
			metrics.RecordAPIRequest(r.Method, endpoint, ww.Status(), time.Since(start))
		})
	}
}

// SecurityHeaders returns a middleware that adds defensive headers to API
// responses.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
