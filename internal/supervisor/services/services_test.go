// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tomtom215/footfall/internal/session"
)

// mockServer implements HTTPServer with controllable behavior.
type mockServer struct {
	listenErr   error
	listenCh    chan struct{} // closed to release ListenAndServe
	shutdownErr error
	shutdowns   int
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.listenCh
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.shutdowns++
	if m.listenCh != nil {
		close(m.listenCh)
	}
	return m.shutdownErr
}

func TestHTTPServerServiceStartupFailure(t *testing.T) {
	srv := &mockServer{listenErr: errors.New("address already in use")}
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve() = nil, want startup error")
	}
	if !errors.Is(err, srv.listenErr) {
		t.Errorf("Serve() error = %v, want wrapped listen error", err)
	}
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := &mockServer{listenCh: make(chan struct{})}
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	// Give the server goroutine a moment to start, then request shutdown.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancellation")
	}

	if srv.shutdowns != 1 {
		t.Errorf("Shutdown called %d times, want 1", srv.shutdowns)
	}
}

func TestHTTPServerServiceString(t *testing.T) {
	svc := NewHTTPServerService(&mockServer{}, 0)
	if got := svc.String(); got != "http-server" {
		t.Errorf("String() = %q, want http-server", got)
	}
}

func TestSessionReaperService(t *testing.T) {
	registry := session.NewRegistry(time.Millisecond)

	if _, _, err := registry.Issue(); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond) // session is now expired

	svc := NewSessionReaperService(registry, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() error = %v, want context.DeadlineExceeded", err)
	}

	if got := registry.Len(); got != 0 {
		t.Errorf("Len() after reaper run = %d, want 0", got)
	}
}

func TestSessionReaperServiceString(t *testing.T) {
	svc := NewSessionReaperService(session.NewRegistry(time.Minute), 0)
	if got := svc.String(); got != "session-reaper" {
		t.Errorf("String() = %q, want session-reaper", got)
	}
	if svc.interval != DefaultReapInterval {
		t.Errorf("interval = %v, want default %v", svc.interval, DefaultReapInterval)
	}
}
