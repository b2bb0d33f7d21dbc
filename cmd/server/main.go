// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

// Package main is the entry point for the Footfall server.
//
// Footfall is a self-hosted website visit tracker: a lightweight beacon
// endpoint records page visits with optional geolocation enrichment, and an
// authenticated operator console reads them back.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: load settings from environment variables and config files (Koanf v2)
//  2. Credential: parse the scrypt operator credential (ADMIN_SECRET)
//  3. Store: open the bounded BadgerDB visit store
//  4. Sessions: create the in-memory bearer-token registry
//  5. Geolocation: build the rate-limited, circuit-broken lookup client
//  6. HTTP Server: Chi router with per-endpoint rate limits
//  7. Supervision: run the HTTP server and session reaper under suture
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables
//   - Config file (config.yaml)
//   - Built-in defaults
//
// The only required setting is the operator credential:
//
//	ADMIN_SECRET='scrypt$32768$8$1$<salt-b64>$<hash-b64>'
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - stops accepting new connections
//   - waits for in-flight requests to complete (10s timeout)
//   - closes the visit store
//
// # Example Usage
//
//	export ADMIN_SECRET='scrypt$32768$8$1$...'
//	export STORE_PATH=/var/lib/footfall
//	./footfall
//
// Docker:
//
//	docker run -d \
//	  -e ADMIN_SECRET='scrypt$32768$8$1$...' \
//	  -v footfall-data:/data/footfall \
//	  -p 8425:8425 \
//	  ghcr.io/tomtom215/footfall
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/footfall/internal/api"
	"github.com/tomtom215/footfall/internal/config"
	"github.com/tomtom215/footfall/internal/credential"
	"github.com/tomtom215/footfall/internal/geo"
	"github.com/tomtom215/footfall/internal/logging"
	"github.com/tomtom215/footfall/internal/session"
	"github.com/tomtom215/footfall/internal/store"
	"github.com/tomtom215/footfall/internal/supervisor"
	"github.com/tomtom215/footfall/internal/supervisor/services"
	"github.com/tomtom215/footfall/internal/tracker"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("store_path", cfg.Store.Path).
		Int("max_records", cfg.Store.MaxRecords).
		Bool("geo_enabled", cfg.GeoEnabled()).
		Bool("trust_proxy", cfg.Security.TrustProxy).
		Msg("Starting Footfall")

	// Parse the operator credential. A malformed secret is a configuration
	// error; refuse to start rather than serve with broken auth.
	verifier, err := credential.Parse(cfg.Security.AdminSecret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to parse ADMIN_SECRET")
	}

	// Open the visit store
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open visit store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing visit store")
		}
	}()

	visits, err := store.New(db, cfg.Store.MaxRecords)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize visit store")
	}

	// Sessions live in memory only; a restart logs the operator out.
	sessions := session.NewRegistry(cfg.SessionTTL())

	// Geolocation enrichment and ingestion pipeline
	geoClient := geo.NewClient(&cfg.Geo, cfg.GeoEnabled())
	ingestor := tracker.NewIngestor(visits, geoClient)

	// HTTP surface
	handler := api.NewHandler(verifier, sessions, ingestor, visits, cfg.Security.TrustProxy)
	router := api.NewRouter(handler, cfg, sessions)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Supervision tree: HTTP server plus the session reaper, restarted
	// with backoff on failure.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.Add(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	tree.Add(services.NewSessionReaperService(sessions, services.DefaultReapInterval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := tree.ServeBackground(ctx)

	logging.Info().Str("addr", server.Addr).Msg("Footfall listening")

	// Block until a shutdown signal arrives or the tree dies.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		<-errCh

	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree stopped unexpectedly")
		}
	}

	logging.Info().Msg("Footfall stopped")
}
