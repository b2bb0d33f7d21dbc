// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/footfall/internal/config"
	"github.com/tomtom215/footfall/internal/session"
)

// Router wires handlers and middleware into the Chi route tree.
type Router struct {
	handler  *Handler
	mw       *ChiMiddleware
	sessions *session.Registry
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, cfg *config.Config, sessions *session.Registry) *Router {
	return &Router{
		handler:  handler,
		mw:       NewChiMiddleware(&cfg.Security, cfg.Server.CORSOrigins),
		sessions: sessions,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(RequestIDWithLogging())
	// RealIP rewrites RemoteAddr from forwarding headers, which also feeds
	// the per-IP rate limiters. Without a trusted proxy scrubbing those
	// headers, any client could forge its address, so the middleware is
	// only installed when proxy trust is configured.
	if router.mw.cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(router.mw.CORS())
	r.Use(SecurityHeaders())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, req, http.StatusNotFound, ErrCodeNotFound, "Resource not found")
	})

	// Public beacon and authentication endpoints, each with its own
	// per-IP rate limit.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics())

		r.With(router.mw.RateLimitLogin()).Post("/login", router.handler.Login)
		r.With(router.mw.RateLimitTrack()).Post("/track", router.handler.Track)

		r.Group(func(r chi.Router) {
			r.Use(router.mw.RateLimitAPI())

			r.Post("/logout", router.handler.Logout)
			r.Get("/health", router.handler.Health)

			// Operator read path behind bearer auth.
			r.Group(func(r chi.Router) {
				r.Use(BearerAuth(router.sessions))
				r.Get("/visitors", router.handler.Visitors)
			})
		})
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
