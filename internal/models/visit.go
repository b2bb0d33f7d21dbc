// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

// Package models defines the data structures shared across Footfall.
// These models represent visit records, geolocation data, and API payloads.
package models

import (
	"time"

	"github.com/google/uuid"
)

// VisitRecord is a single recorded website visit.
//
// Records are created by the tracker on ingestion and read back newest-first
// by the operator console. All fields beyond ID, Sequence, and Timestamp are
// client-reported and sanitized, or derived server-side:
//   - ClientOrigin: derived from the connection / trusted proxy headers,
//     never from the request body
//   - Geo: server-side enrichment; nil when lookup is disabled, skipped, or
//     failed
//
// JSON serialization uses omitempty for optional fields to keep read
// responses small.
type VisitRecord struct {
	// ID is the unique identifier assigned at ingestion.
	ID uuid.UUID `json:"id"`

	// Sequence is the store-assigned monotonic ordinal. It totally orders
	// records and breaks timestamp ties during pruning. Not exposed to
	// API clients.
	Sequence uint64 `json:"-"`

	// Timestamp is the server-side ingestion time in UTC.
	Timestamp time.Time `json:"timestamp"`

	// ClientOrigin is the derived client IP address.
	ClientOrigin string `json:"client_origin"`

	// UserAgent is the client-reported user agent, truncated.
	UserAgent string `json:"user_agent,omitempty"`

	// Page is the visited page path or URL, truncated.
	Page string `json:"page,omitempty"`

	// Referrer is the client-reported referrer, truncated.
	Referrer string `json:"referrer,omitempty"`

	// Timezone is the client-reported IANA timezone name, truncated.
	Timezone string `json:"timezone,omitempty"`

	// Languages are the client-reported preferred languages, capped in
	// count and per-entry length.
	Languages []string `json:"languages,omitempty"`

	// Screen is the client-reported screen dimensions, e.g. "1920x1080".
	Screen string `json:"screen,omitempty"`

	// Geo holds geolocation enrichment when a lookup succeeded.
	Geo *GeoData `json:"geo,omitempty"`
}

// GeoData is the geolocation enrichment attached to a visit.
// Field presence follows the lookup service response; any subset may be
// empty.
type GeoData struct {
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Region      string  `json:"region,omitempty"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"lat,omitempty"`
	Longitude   float64 `json:"lon,omitempty"`
	ISP         string  `json:"isp,omitempty"`
	Org         string  `json:"org,omitempty"`
	ASN         string  `json:"asn,omitempty"`
}

// TrackRequest is the client payload for POST /api/v1/track.
//
// Every field is optional: a bare {} is a valid visit beacon. Fields carry
// no validation constraints on purpose; an oversized or odd value degrades
// to its sanitized, truncated form in the tracker instead of failing the
// request. The request body size cap bounds the overall payload.
type TrackRequest struct {
	Page      string   `json:"page"`
	Referrer  string   `json:"referrer"`
	Timezone  string   `json:"timezone"`
	Languages []string `json:"languages"`
	Screen    string   `json:"screen"`
}

// LoginRequest is the client payload for POST /api/v1/login. The field is
// named password on the wire; operationally it is the operator passphrase.
type LoginRequest struct {
	Password string `json:"password" validate:"required,max=1024"`
}

// LoginResponse is the success payload for POST /api/v1/login.
type LoginResponse struct {
	// Token is the opaque bearer token for subsequent requests.
	Token string `json:"token"`

	// ExpiresIn is the initial session lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`

	// ExpiresAt is the absolute expiry as Unix milliseconds. Sliding
	// renewal pushes the real deadline past this value on every
	// authenticated request.
	ExpiresAt int64 `json:"expires_at"`
}

// TrackResponse is the success payload for POST /api/v1/track.
type TrackResponse struct {
	ID uuid.UUID `json:"id"`
}

// VisitorsResponse is the success payload for GET /api/v1/visitors.
type VisitorsResponse struct {
	// Visits are the stored records, newest first.
	Visits []VisitRecord `json:"visits"`

	// Count is len(Visits), for client convenience.
	Count int `json:"count"`
}
