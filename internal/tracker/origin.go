// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

package tracker

import (
	"net"
	"net/http"
	"strings"
)

// DeriveOrigin resolves the client IP for a request.
//
// With trustProxy set, forwarded headers are consulted in order of
// reliability: True-Client-IP, then the leftmost X-Forwarded-For entry,
// then X-Real-IP. Without it all headers are ignored, since any client can
// forge them. The connection's remote address is the fallback either way.
func DeriveOrigin(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := strings.TrimSpace(r.Header.Get("True-Client-IP")); ip != "" {
			return ip
		}

		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Leftmost entry is the originating client; later entries
			// are the proxies that relayed it.
			first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
			if first != "" {
				return first
			}
		}

		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, e.g. in tests.
		return r.RemoteAddr
	}
	return host
}
