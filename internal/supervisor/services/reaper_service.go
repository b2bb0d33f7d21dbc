// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

package services

import (
	"context"
	"time"

	"github.com/tomtom215/footfall/internal/logging"
	"github.com/tomtom215/footfall/internal/metrics"
	"github.com/tomtom215/footfall/internal/session"
)

// DefaultReapInterval is how often the reaper sweeps expired sessions.
const DefaultReapInterval = time.Minute

// SessionReaperService periodically removes expired sessions from the
// registry. Expired sessions are also rejected lazily on authentication;
// the sweep only keeps abandoned ones from accumulating.
type SessionReaperService struct {
	registry *session.Registry
	interval time.Duration
}

// NewSessionReaperService creates the reaper for the given registry.
func NewSessionReaperService(registry *session.Registry, interval time.Duration) *SessionReaperService {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &SessionReaperService{
		registry: registry,
		interval: interval,
	}
}

// Serve implements suture.Service. Runs until the context is canceled.
func (s *SessionReaperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if reaped := s.registry.Reap(); reaped > 0 {
				metrics.SessionsReaped.Add(float64(reaped))
				logging.Debug().Int("reaped", reaped).Msg("reaped expired sessions")
			}
			metrics.ActiveSessions.Set(float64(s.registry.Len()))

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *SessionReaperService) String() string {
	return "session-reaper"
}
