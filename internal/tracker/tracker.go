// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

// Package tracker turns raw track requests into stored visit records.
//
// The ingestor owns everything between the HTTP handler and the store:
// client origin derivation, field sanitization, geolocation enrichment, and
// the append itself. All client-reported fields are treated as hostile
// input and are truncated and stripped of control characters before
// storage.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/tomtom215/footfall/internal/geo"
	"github.com/tomtom215/footfall/internal/logging"
	"github.com/tomtom215/footfall/internal/metrics"
	"github.com/tomtom215/footfall/internal/models"
	"github.com/tomtom215/footfall/internal/store"
)

// Field length caps applied after control-character stripping. Oversized
// values degrade to their prefix; they never fail the request.
const (
	maxUserAgentLen = 1024
	maxPageLen      = 512
	maxReferrerLen  = 512
	maxTimezoneLen  = 128
	maxScreenLen    = 64
	maxLanguageLen  = 32
	maxLanguages    = 10
)

// GeoLookup is the enrichment dependency; satisfied by *geo.Client.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) geo.Result
}

// Ingestor assembles and persists visit records.
type Ingestor struct {
	store store.VisitStore
	geo   GeoLookup

	// now is time.Now in production; tests pin it.
	now func() time.Time
}

// NewIngestor creates an ingestor over the given store and geo client.
func NewIngestor(s store.VisitStore, g GeoLookup) *Ingestor {
	return &Ingestor{
		store: s,
		geo:   g,
		now:   time.Now,
	}
}

// Ingest records one visit and returns the stored record.
//
// origin is the derived client IP (see DeriveOrigin) and userAgent comes
// from the User-Agent header; both are server-derived, never taken from the
// body. Geolocation enrichment is best-effort: a failed lookup produces a
// record without geo data, not an error.
func (i *Ingestor) Ingest(ctx context.Context, origin, userAgent string, req *models.TrackRequest) (*models.VisitRecord, error) {
	record := &models.VisitRecord{
		ID:           uuid.New(),
		Timestamp:    i.now().UTC(),
		ClientOrigin: origin,
		UserAgent:    sanitize(userAgent, maxUserAgentLen),
		Page:         sanitize(req.Page, maxPageLen),
		Referrer:     sanitize(req.Referrer, maxReferrerLen),
		Timezone:     sanitize(req.Timezone, maxTimezoneLen),
		Languages:    sanitizeLanguages(req.Languages),
		Screen:       sanitize(req.Screen, maxScreenLen),
	}

	if res := i.geo.Lookup(ctx, origin); res.Outcome == geo.OutcomeFound {
		record.Geo = res.Data
	}

	if err := i.store.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("store visit: %w", err)
	}

	metrics.VisitsIngested.Inc()

	logging.Ctx(ctx).Debug().
		Str("visit_id", record.ID.String()).
		Str("page", record.Page).
		Bool("geo", record.Geo != nil).
		Msg("visit recorded")

	return record, nil
}

// sanitize trims surrounding whitespace, strips control characters, and
// truncates to max bytes, cutting at a rune boundary so truncation cannot
// produce invalid UTF-8. Whitespace-only input sanitizes to empty, which
// callers store as an absent field.
func sanitize(s string, max int) string {
	if s == "" {
		return ""
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	if len(s) <= max {
		return s
	}

	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}

// isRuneStart reports whether b begins a UTF-8 encoded rune.
func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// sanitizeLanguages caps the language list in count and per-entry length,
// dropping entries that sanitize to empty.
func sanitizeLanguages(langs []string) []string {
	if len(langs) == 0 {
		return nil
	}

	out := make([]string, 0, min(len(langs), maxLanguages))
	for _, lang := range langs {
		if len(out) == maxLanguages {
			break
		}
		if cleaned := sanitize(lang, maxLanguageLen); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
