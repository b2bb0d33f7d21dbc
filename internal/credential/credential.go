// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

// Package credential verifies the operator passphrase against a precomputed
// scrypt credential.
//
// The credential is supplied once at startup (ADMIN_SECRET) in the form
//
//	scrypt$N$r$p$<salt-b64>$<hash-b64>
//
// with base64 raw-std encoded salt and hash. Parsing failures are startup
// errors; the process must not serve traffic with a malformed credential.
// Verification derives the candidate's hash with the stored cost parameters
// and compares in constant time.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// MinPassphraseLength is the hard floor on candidate passphrases.
// Shorter candidates are rejected before any key derivation work.
const MinPassphraseLength = 12

const (
	// minSaltLen is the minimum accepted salt length in bytes.
	minSaltLen = 16

	// minHashLen is the minimum accepted derived-hash length in bytes.
	minHashLen = 32
)

// ErrMalformedCredential is returned when the encoded credential cannot be
// parsed or fails the structural checks.
var ErrMalformedCredential = errors.New("malformed credential")

// Params holds the scrypt cost parameters.
type Params struct {
	// N is the CPU/memory cost; must be a power of two greater than 1.
	N int

	// R is the block size parameter.
	R int

	// P is the parallelization parameter.
	P int
}

// DefaultParams returns the recommended cost parameters for new credentials.
func DefaultParams() Params {
	return Params{N: 32768, R: 8, P: 1}
}

// Verifier validates candidate passphrases against a stored credential.
// It is immutable after construction and safe for concurrent use.
type Verifier struct {
	params Params
	salt   []byte
	hash   []byte

	// derive is scrypt.Key in production; tests swap it to observe
	// whether the short-circuit path skips derivation.
	derive func(password, salt []byte, n, r, p, keyLen int) ([]byte, error)
}

// Parse decodes an encoded credential string into a Verifier.
// Any structural problem (wrong field count, unparseable cost parameters,
// short salt or hash) is a fatal configuration error for the caller.
func Parse(secret string) (*Verifier, error) {
	fields := strings.Split(secret, "$")
	if len(fields) != 6 {
		return nil, fmt.Errorf("%w: expected 6 $-separated fields, got %d", ErrMalformedCredential, len(fields))
	}
	if fields[0] != "scrypt" {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedCredential, fields[0])
	}

	params, err := parseParams(fields[1], fields[2], fields[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return nil, fmt.Errorf("%w: salt is not valid base64: %v", ErrMalformedCredential, err)
	}
	if len(salt) < minSaltLen {
		return nil, fmt.Errorf("%w: salt is %d bytes, need at least %d", ErrMalformedCredential, len(salt), minSaltLen)
	}

	hash, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return nil, fmt.Errorf("%w: hash is not valid base64: %v", ErrMalformedCredential, err)
	}
	if len(hash) < minHashLen {
		return nil, fmt.Errorf("%w: hash is %d bytes, need at least %d", ErrMalformedCredential, len(hash), minHashLen)
	}

	return &Verifier{
		params: params,
		salt:   salt,
		hash:   hash,
		derive: scrypt.Key,
	}, nil
}

// parseParams parses and range-checks the scrypt cost parameters.
func parseParams(nStr, rStr, pStr string) (Params, error) {
	n, err := strconv.Atoi(nStr)
	if err != nil {
		return Params{}, fmt.Errorf("%w: cost parameter N %q: %v", ErrMalformedCredential, nStr, err)
	}
	r, err := strconv.Atoi(rStr)
	if err != nil {
		return Params{}, fmt.Errorf("%w: cost parameter r %q: %v", ErrMalformedCredential, rStr, err)
	}
	p, err := strconv.Atoi(pStr)
	if err != nil {
		return Params{}, fmt.Errorf("%w: cost parameter p %q: %v", ErrMalformedCredential, pStr, err)
	}

	if n <= 1 || n&(n-1) != 0 {
		return Params{}, fmt.Errorf("%w: N must be a power of two greater than 1, got %d", ErrMalformedCredential, n)
	}
	if r < 1 || p < 1 {
		return Params{}, fmt.Errorf("%w: r and p must be positive, got r=%d p=%d", ErrMalformedCredential, r, p)
	}
	// scrypt requires r*p < 2^30
	if uint64(r)*uint64(p) >= 1<<30 {
		return Params{}, fmt.Errorf("%w: r*p too large (r=%d p=%d)", ErrMalformedCredential, r, p)
	}

	return Params{N: n, R: r, P: p}, nil
}

// Verify reports whether the candidate passphrase matches the stored
// credential.
//
// Candidates shorter than MinPassphraseLength are rejected without invoking
// the key derivation function. Otherwise the candidate is derived with the
// stored cost parameters to the stored hash length and compared with a
// constant-time equality check.
//
// Verify is a pure function of (candidate, credential): no side effects,
// no state mutation, safe for concurrent use.
func (v *Verifier) Verify(candidate string) bool {
	if len(candidate) < MinPassphraseLength {
		return false
	}

	derived, err := v.derive([]byte(candidate), v.salt, v.params.N, v.params.R, v.params.P, len(v.hash))
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(derived, v.hash) == 1
}

// Params returns the stored cost parameters.
func (v *Verifier) Params() Params {
	return v.params
}

// Generate derives a new encoded credential from a passphrase with a fresh
// random salt. Used by tests and by operators preparing ADMIN_SECRET.
func Generate(passphrase string, params Params) (string, error) {
	if len(passphrase) < MinPassphraseLength {
		return "", fmt.Errorf("passphrase must be at least %d characters", MinPassphraseLength)
	}

	salt := make([]byte, minSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash, err := scrypt.Key([]byte(passphrase), salt, params.N, params.R, params.P, minHashLen)
	if err != nil {
		return "", fmt.Errorf("derive hash: %w", err)
	}

	return strings.Join([]string{
		"scrypt",
		strconv.Itoa(params.N),
		strconv.Itoa(params.R),
		strconv.Itoa(params.P),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	}, "$"), nil
}
