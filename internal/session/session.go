// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

// Package session manages ephemeral bearer-token sessions for the operator
// console.
//
// Sessions live only in process memory: a restart revokes everything, which
// is acceptable for a single-operator deployment and avoids persisting
// secrets. Tokens are opaque 32-byte random values; possession of a token is
// the sole proof of authentication. Expiry is sliding: every authenticated
// request pushes the deadline out by the full TTL.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// tokenBytes is the entropy of a session token before encoding.
// 32 bytes gives 256 bits, comfortably beyond brute-force reach.
const tokenBytes = 32

// Registry holds the active sessions behind a mutex. All methods are safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	ttl     time.Duration
	expires map[string]time.Time

	// now is time.Now in production; tests swap it to control the clock.
	now func() time.Time
}

// NewRegistry creates a session registry with the given sliding TTL.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:     ttl,
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// TTL returns the sliding session lifetime.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Issue creates a new session and returns its opaque token together with
// the absolute expiry time. Each call produces an independent session;
// logging in twice yields two tokens that expire separately.
func (r *Registry) Issue() (token string, expiresAt time.Time, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)

	r.mu.Lock()
	defer r.mu.Unlock()

	expiresAt = r.now().Add(r.ttl)
	r.expires[token] = expiresAt
	return token, expiresAt, nil
}

// Authenticate reports whether the token names a live session. On success
// the session's expiry slides forward by the full TTL. Expired tokens are
// removed on sight and rejected; an expired session is indistinguishable
// from one that never existed.
func (r *Registry) Authenticate(token string) bool {
	if token == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	expiry, ok := r.expires[token]
	if !ok {
		return false
	}

	now := r.now()
	if now.After(expiry) {
		delete(r.expires, token)
		return false
	}

	r.expires[token] = now.Add(r.ttl)
	return true
}

// Revoke removes the session for the given token. Revoking an unknown or
// already-expired token is a no-op; logout never fails.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.expires, token)
}

// Reap removes all expired sessions and returns the count removed.
// Called periodically by the supervised reaper service so that abandoned
// sessions do not accumulate between authentication attempts.
func (r *Registry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	count := 0
	for token, expiry := range r.expires {
		if now.After(expiry) {
			delete(r.expires, token)
			count++
		}
	}
	return count
}

// Len returns the number of sessions currently held, expired or not.
// Exposed as a metrics gauge.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.expires)
}
