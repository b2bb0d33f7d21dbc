// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/footfall/internal/credential"
	"github.com/tomtom215/footfall/internal/logging"
	"github.com/tomtom215/footfall/internal/metrics"
	"github.com/tomtom215/footfall/internal/models"
	"github.com/tomtom215/footfall/internal/session"
	"github.com/tomtom215/footfall/internal/store"
	"github.com/tomtom215/footfall/internal/tracker"
	"github.com/tomtom215/footfall/internal/validation"
)

// maxBodyBytes caps request bodies. A legitimate track payload is a few
// hundred bytes; this bound only stops abuse.
const maxBodyBytes = 64 << 10

// VisitIngestor is the ingestion dependency; satisfied by *tracker.Ingestor.
type VisitIngestor interface {
	Ingest(ctx context.Context, origin, userAgent string, req *models.TrackRequest) (*models.VisitRecord, error)
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	verifier   *credential.Verifier
	sessions   *session.Registry
	ingestor   VisitIngestor
	store      store.VisitStore
	trustProxy bool
}

// NewHandler creates a Handler.
func NewHandler(verifier *credential.Verifier, sessions *session.Registry, ingestor VisitIngestor, s store.VisitStore, trustProxy bool) *Handler {
	return &Handler{
		verifier:   verifier,
		sessions:   sessions,
		ingestor:   ingestor,
		store:      s,
		trustProxy: trustProxy,
	}
}

// decodeJSON decodes a bounded JSON body into dst. A missing or empty body
// yields io.EOF, which callers may treat as an empty payload.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// Login handles POST /api/v1/login.
//
// A correct passphrase yields a fresh bearer token; a wrong one yields 401
// after the credential's full scrypt derivation, so response timing does
// not distinguish near-misses from garbage. The passphrase is never logged.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest("Invalid request body")
		return
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	if !h.verifier.Verify(req.Password) {
		metrics.RecordLogin(false)
		logging.Ctx(r.Context()).Warn().
			Str("origin", tracker.DeriveOrigin(r, h.trustProxy)).
			Msg("failed login attempt")
		rw.Unauthorized("Invalid passphrase")
		return
	}

	token, expiresAt, err := h.sessions.Issue()
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to issue session")
		rw.InternalError("Could not create session")
		return
	}

	metrics.RecordLogin(true)
	metrics.ActiveSessions.Set(float64(h.sessions.Len()))
	logging.Ctx(r.Context()).Info().Msg("operator logged in")

	rw.Success(models.LoginResponse{
		Token:     token,
		ExpiresIn: int64(h.sessions.TTL().Seconds()),
		ExpiresAt: expiresAt.UnixMilli(),
	})
}

// Logout handles POST /api/v1/logout.
//
// Always 204: revoking an expired, unknown, or absent token is
// indistinguishable from revoking a live one, so nothing about session
// state leaks to unauthenticated callers.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		h.sessions.Revoke(token)
		metrics.ActiveSessions.Set(float64(h.sessions.Len()))
	}

	NewResponseWriter(w, r).NoContent()
}

// Track handles POST /api/v1/track.
//
// The beacon endpoint: unauthenticated, rate limited per client IP. An
// empty or absent body is a valid visit with no client-reported fields.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req models.TrackRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		rw.BadRequest("Invalid request body")
		return
	}

	// No field validation here: oversized or odd values are truncated by
	// the ingestor rather than rejected. Only an unparseable body fails.

	origin := tracker.DeriveOrigin(r, h.trustProxy)

	record, err := h.ingestor.Ingest(r.Context(), origin, r.UserAgent(), &req)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("visit ingestion failed")
		rw.InternalError("Could not record visit")
		return
	}

	rw.Created(models.TrackResponse{ID: record.ID})
}

// Visitors handles GET /api/v1/visitors.
//
// Requires a live session (enforced by BearerAuth on the route). Returns
// stored visits newest first; ?limit=N narrows the page, clamped to the
// store's maximum.
func (h *Handler) Visitors(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			rw.BadRequest("limit must be a positive integer")
			return
		}
		limit = parsed
	}

	visits, err := h.store.List(r.Context(), limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to list visits")
		rw.InternalError("Could not read visits")
		return
	}

	rw.Success(models.VisitorsResponse{
		Visits: visits,
		Count:  len(visits),
	})
}

// Health handles GET /api/v1/health. Unauthenticated; reports liveness and
// coarse store state for monitoring.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":        "ok",
		"stored_visits": h.store.Count(),
	})
}
