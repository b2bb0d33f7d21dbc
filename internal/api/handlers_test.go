// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/footfall/internal/config"
	"github.com/tomtom215/footfall/internal/credential"
	"github.com/tomtom215/footfall/internal/models"
	"github.com/tomtom215/footfall/internal/session"
	"github.com/tomtom215/footfall/internal/store"
)

const testPassphrase = "correct horse battery staple"

// fakeStore is an in-memory VisitStore for handler tests.
type fakeStore struct {
	records []models.VisitRecord
}

func (f *fakeStore) Append(_ context.Context, record *models.VisitRecord) error {
	record.Sequence = uint64(len(f.records) + 1)
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeStore) List(_ context.Context, limit int) ([]models.VisitRecord, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	out := make([]models.VisitRecord, 0, limit)
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.records[i])
	}
	return out, nil
}

func (f *fakeStore) Count() int { return len(f.records) }

// fakeIngestor stores records directly, skipping geo enrichment.
type fakeIngestor struct {
	store *fakeStore
}

func (f *fakeIngestor) Ingest(ctx context.Context, origin, userAgent string, req *models.TrackRequest) (*models.VisitRecord, error) {
	record := &models.VisitRecord{
		ID:           uuid.New(),
		Timestamp:    time.Now().UTC(),
		ClientOrigin: origin,
		UserAgent:    userAgent,
		Page:         req.Page,
	}
	if err := f.store.Append(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

type testServer struct {
	srv      *httptest.Server
	store    *fakeStore
	sessions *session.Registry
}

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		SessionTTLMinutes: 30,
		LoginRateLimit:    8,
		LoginRateWindow:   15 * time.Minute,
		TrackRateLimit:    240,
		TrackRateWindow:   time.Minute,
		APIRateLimit:      100,
		APIRateWindow:     time.Minute,
		RateLimitDisabled: true,
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	encoded, err := credential.Generate(testPassphrase, credential.Params{N: 1024, R: 8, P: 1})
	if err != nil {
		t.Fatalf("generate credential: %v", err)
	}
	verifier, err := credential.Parse(encoded)
	if err != nil {
		t.Fatalf("parse credential: %v", err)
	}

	cfg := &config.Config{Security: testSecurityConfig()}
	if mutate != nil {
		mutate(cfg)
	}

	sessions := session.NewRegistry(30 * time.Minute)
	st := &fakeStore{}
	handler := NewHandler(verifier, sessions, &fakeIngestor{store: st}, st, cfg.Security.TrustProxy)

	srv := httptest.NewServer(NewRouter(handler, cfg, sessions).Setup())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: st, sessions: sessions}
}

func (ts *testServer) request(t *testing.T, method, path, token, body string) (*http.Response, APIResponse) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var envelope APIResponse
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp, envelope
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()

	resp, envelope := ts.request(t, "POST", "/api/v1/login", "",
		fmt.Sprintf(`{"password": %q}`, testPassphrase))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	data, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("re-marshal login data: %v", err)
	}
	var login models.LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	if login.Token == "" {
		t.Fatal("login returned empty token")
	}
	return login.Token
}

func TestLoginSuccess(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, envelope := ts.request(t, "POST", "/api/v1/login", "",
		fmt.Sprintf(`{"password": %q}`, testPassphrase))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !envelope.Success {
		t.Error("envelope.Success = false, want true")
	}

	data, _ := json.Marshal(envelope.Data)
	var login models.LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if login.Token == "" {
		t.Error("empty token")
	}
	if login.ExpiresIn != 1800 {
		t.Errorf("ExpiresIn = %d, want 1800", login.ExpiresIn)
	}
	if wantAfter := time.Now().Add(25 * time.Minute).UnixMilli(); login.ExpiresAt < wantAfter {
		t.Errorf("ExpiresAt = %d, want at least %d", login.ExpiresAt, wantAfter)
	}
}

func TestLoginWrongPassphrase(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, envelope := ts.request(t, "POST", "/api/v1/login", "",
		`{"password": "totally wrong passphrase"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeUnauthorized {
		t.Errorf("error = %+v, want code UNAUTHORIZED", envelope.Error)
	}
	if ts.sessions.Len() != 0 {
		t.Errorf("sessions after failed login = %d, want 0", ts.sessions.Len())
	}
}

func TestLoginMalformedBody(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, envelope := ts.request(t, "POST", "/api/v1/login", "", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeBadRequest {
		t.Errorf("error = %+v, want code BAD_REQUEST", envelope.Error)
	}
}

func TestLoginMissingPassphrase(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, envelope := ts.request(t, "POST", "/api/v1/login", "", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v, want code VALIDATION_ERROR", envelope.Error)
	}
}

func TestLogoutAlways204(t *testing.T) {
	ts := newTestServer(t, nil)

	// Without any token.
	resp, _ := ts.request(t, "POST", "/api/v1/logout", "", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("logout without token status = %d, want 204", resp.StatusCode)
	}

	// With a garbage token.
	resp, _ = ts.request(t, "POST", "/api/v1/logout", "garbage", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("logout with garbage token status = %d, want 204", resp.StatusCode)
	}

	// With a live token; the session is gone afterwards.
	token := ts.login(t)
	resp, _ = ts.request(t, "POST", "/api/v1/logout", token, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("logout status = %d, want 204", resp.StatusCode)
	}
	resp, _ = ts.request(t, "GET", "/api/v1/visitors", token, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("visitors after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestTrack(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, envelope := ts.request(t, "POST", "/api/v1/track", "",
		`{"page": "/blog", "timezone": "Europe/Amsterdam"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	data, _ := json.Marshal(envelope.Data)
	var tracked models.TrackResponse
	if err := json.Unmarshal(data, &tracked); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tracked.ID == uuid.Nil {
		t.Error("track returned nil UUID")
	}
	if len(ts.store.records) != 1 {
		t.Fatalf("store holds %d records, want 1", len(ts.store.records))
	}
	if ts.store.records[0].Page != "/blog" {
		t.Errorf("stored page = %q, want /blog", ts.store.records[0].Page)
	}
}

func TestTrackEmptyBody(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.request(t, "POST", "/api/v1/track", "", "")
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("empty-body track status = %d, want 201", resp.StatusCode)
	}
}

func TestTrackInvalidJSON(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.request(t, "POST", "/api/v1/track", "", `{"page":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTrackOversizedFieldStillAccepted(t *testing.T) {
	ts := newTestServer(t, nil)

	// Oversized fields degrade to their truncated form in the ingestor;
	// the request itself succeeds.
	body := fmt.Sprintf(`{"page": %q}`, strings.Repeat("a", 3000))
	resp, envelope := ts.request(t, "POST", "/api/v1/track", "", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if !envelope.Success {
		t.Errorf("envelope = %+v, want success", envelope)
	}
	if len(ts.store.records) != 1 {
		t.Errorf("store holds %d records, want 1", len(ts.store.records))
	}
}

func TestTrackIgnoresForwardingHeadersWithoutProxyTrust(t *testing.T) {
	ts := newTestServer(t, nil) // TrustProxy defaults to false

	req, err := http.NewRequest("POST", ts.srv.URL+"/api/v1/track", strings.NewReader(`{"page": "/x"}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("True-Client-IP", "203.0.113.98")
	req.Header.Set("X-Forwarded-For", "203.0.113.99")
	req.Header.Set("X-Real-IP", "203.0.113.97")

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	if len(ts.store.records) != 1 {
		t.Fatalf("store holds %d records, want 1", len(ts.store.records))
	}
	origin := ts.store.records[0].ClientOrigin
	if strings.HasPrefix(origin, "203.0.113.") {
		t.Fatalf("forged forwarding header stored as origin %q", origin)
	}
	if origin != "127.0.0.1" && origin != "::1" {
		t.Errorf("origin = %q, want the transport-level loopback address", origin)
	}
}

func TestTrackHonorsForwardedHeaderBehindProxy(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.TrustProxy = true
	})

	req, err := http.NewRequest("POST", ts.srv.URL+"/api/v1/track", strings.NewReader(`{"page": "/x"}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.99, 198.51.100.1")

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	if len(ts.store.records) != 1 {
		t.Fatalf("store holds %d records, want 1", len(ts.store.records))
	}
	if origin := ts.store.records[0].ClientOrigin; origin != "203.0.113.99" {
		t.Errorf("origin = %q, want the client-nearest forwarded address 203.0.113.99", origin)
	}
}

func TestUnknownRouteReturnsNotFoundEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, envelope := ts.request(t, "GET", "/api/v1/nope", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v, want code NOT_FOUND", envelope.Error)
	}
}

func TestVisitorsRequiresAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage token", "not-a-session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, envelope := ts.request(t, "GET", "/api/v1/visitors", tt.token, "")
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", resp.StatusCode)
			}
			if envelope.Error == nil || envelope.Error.Code != ErrCodeUnauthorized {
				t.Errorf("error = %+v, want code UNAUTHORIZED", envelope.Error)
			}
		})
	}
}

func TestVisitorsEmptyDistinctFromUnauthorized(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.login(t)

	resp, envelope := ts.request(t, "GET", "/api/v1/visitors", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !envelope.Success || envelope.Error != nil {
		t.Errorf("empty store must be a success envelope, got %+v", envelope)
	}

	data, _ := json.Marshal(envelope.Data)
	var visitors models.VisitorsResponse
	if err := json.Unmarshal(data, &visitors); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if visitors.Count != 0 || len(visitors.Visits) != 0 {
		t.Errorf("visitors = %+v, want empty", visitors)
	}
}

func TestVisitorsReturnsNewestFirst(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.login(t)

	for i := 0; i < 3; i++ {
		resp, _ := ts.request(t, "POST", "/api/v1/track", "",
			fmt.Sprintf(`{"page": "/p%d"}`, i))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("track status = %d, want 201", resp.StatusCode)
		}
	}

	resp, envelope := ts.request(t, "GET", "/api/v1/visitors", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	data, _ := json.Marshal(envelope.Data)
	var visitors models.VisitorsResponse
	if err := json.Unmarshal(data, &visitors); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if visitors.Count != 3 {
		t.Fatalf("count = %d, want 3", visitors.Count)
	}
	if visitors.Visits[0].Page != "/p2" || visitors.Visits[2].Page != "/p0" {
		t.Errorf("order = [%s %s %s], want newest first",
			visitors.Visits[0].Page, visitors.Visits[1].Page, visitors.Visits[2].Page)
	}
}

func TestVisitorsLimitValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.login(t)

	for _, raw := range []string{"abc", "-1", "0", "1.5"} {
		resp, _ := ts.request(t, "GET", "/api/v1/visitors?limit="+raw, token, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%q status = %d, want 400", raw, resp.StatusCode)
		}
	}

	resp, _ := ts.request(t, "GET", "/api/v1/visitors?limit=5", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("limit=5 status = %d, want 200", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, envelope := ts.request(t, "GET", "/api/v1/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !envelope.Success {
		t.Error("health envelope.Success = false, want true")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.RateLimitDisabled = false
		cfg.Security.LoginRateLimit = 2
		cfg.Security.LoginRateWindow = time.Minute
	})

	// Two attempts pass the limiter (and fail auth), the third is rejected
	// before the credential check with a distinct error code.
	for i := 0; i < 2; i++ {
		resp, _ := ts.request(t, "POST", "/api/v1/login", "", `{"password": "wrong but long enough"}`)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, resp.StatusCode)
		}
	}

	resp, envelope := ts.request(t, "POST", "/api/v1/login", "", `{"password": "wrong but long enough"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("error = %+v, want code TOO_MANY_REQUESTS", envelope.Error)
	}
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.request(t, "GET", "/api/v1/health", "", "")
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestFullOperatorFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	// Visitor beacons arrive before the operator ever logs in.
	resp, _ := ts.request(t, "POST", "/api/v1/track", "", `{"page": "/landing"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("track status = %d, want 201", resp.StatusCode)
	}

	// Operator logs in and reads them.
	token := ts.login(t)

	resp, envelope := ts.request(t, "GET", "/api/v1/visitors", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("visitors status = %d, want 200", resp.StatusCode)
	}
	data, _ := json.Marshal(envelope.Data)
	var visitors models.VisitorsResponse
	if err := json.Unmarshal(data, &visitors); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if visitors.Count != 1 || visitors.Visits[0].Page != "/landing" {
		t.Errorf("visitors = %+v, want the /landing visit", visitors)
	}

	// Logout revokes the session; the read path closes.
	resp, _ = ts.request(t, "POST", "/api/v1/logout", token, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}
	resp, _ = ts.request(t, "GET", "/api/v1/visitors", token, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("visitors after logout status = %d, want 401", resp.StatusCode)
	}
}
