// Footfall - Website Visit Tracking and Operator Console
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/footfall

package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/footfall/internal/config"
)

func testConfig(endpoint string) *config.GeoConfig {
	return &config.GeoConfig{
		Mode:         "on",
		Endpoint:     endpoint,
		Timeout:      2 * time.Second,
		MaxPerMinute: 6000, // effectively unlimited for tests
	}
}

func TestLookupFound(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "success",
			"country": "Netherlands",
			"countryCode": "NL",
			"regionName": "North Holland",
			"city": "Amsterdam",
			"lat": 52.37,
			"lon": 4.89,
			"isp": "Example ISP",
			"org": "Example Org",
			"as": "AS64496 Example"
		}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), true)

	res := c.Lookup(context.Background(), "93.184.216.34")
	if res.Outcome != OutcomeFound {
		t.Fatalf("Lookup() outcome = %q, want %q", res.Outcome, OutcomeFound)
	}
	if gotPath != "/93.184.216.34" {
		t.Errorf("request path = %q, want /93.184.216.34", gotPath)
	}
	if res.Data == nil {
		t.Fatal("Lookup() data = nil, want geo data")
	}
	if res.Data.Country != "Netherlands" || res.Data.CountryCode != "NL" {
		t.Errorf("country = %q/%q, want Netherlands/NL", res.Data.Country, res.Data.CountryCode)
	}
	if res.Data.City != "Amsterdam" {
		t.Errorf("city = %q, want Amsterdam", res.Data.City)
	}
	if res.Data.Latitude != 52.37 || res.Data.Longitude != 4.89 {
		t.Errorf("coords = %v,%v, want 52.37,4.89", res.Data.Latitude, res.Data.Longitude)
	}
	if res.Data.ISP != "Example ISP" || res.Data.Org != "Example Org" || res.Data.ASN != "AS64496 Example" {
		t.Errorf("network fields = %q/%q/%q, want Example ISP/Example Org/AS64496 Example",
			res.Data.ISP, res.Data.Org, res.Data.ASN)
	}
}

func TestLookupDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("disabled client must not call the service")
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), false)

	res := c.Lookup(context.Background(), "93.184.216.34")
	if res.Outcome != OutcomeDisabled {
		t.Errorf("Lookup() outcome = %q, want %q", res.Outcome, OutcomeDisabled)
	}
	if res.Data != nil {
		t.Errorf("Lookup() data = %+v, want nil", res.Data)
	}
}

func TestLookupPrivateAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("private address leaked to lookup service: %s", r.URL.Path)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), true)

	tests := []string{
		"127.0.0.1",
		"10.1.2.3",
		"172.16.0.9",
		"192.168.1.50",
		"169.254.1.1",
		"::1",
		"fe80::1",
		"fd12:3456::1",
		"0.0.0.0",
		"not-an-ip",
		"",
	}

	for _, ip := range tests {
		res := c.Lookup(context.Background(), ip)
		if res.Outcome != OutcomePrivate {
			t.Errorf("Lookup(%q) outcome = %q, want %q", ip, res.Outcome, OutcomePrivate)
		}
	}
}

func TestLookupServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "fail", "message": "reserved range"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), true)

	res := c.Lookup(context.Background(), "93.184.216.34")
	if res.Outcome != OutcomeFailed {
		t.Errorf("Lookup() outcome = %q, want %q", res.Outcome, OutcomeFailed)
	}
	if res.Data != nil {
		t.Errorf("Lookup() data = %+v, want nil", res.Data)
	}
}

func TestLookupServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), true)

	if res := c.Lookup(context.Background(), "93.184.216.34"); res.Outcome != OutcomeFailed {
		t.Errorf("Lookup() outcome = %q, want %q", res.Outcome, OutcomeFailed)
	}
}

func TestLookupUnreachableService(t *testing.T) {
	// Closed port: connection refused immediately.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(testConfig(srv.URL), true)

	if res := c.Lookup(context.Background(), "93.184.216.34"); res.Outcome != OutcomeFailed {
		t.Errorf("Lookup() outcome = %q, want %q", res.Outcome, OutcomeFailed)
	}
}

func TestLookupRateLimited(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"status": "success", "country": "X"}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxPerMinute = 1 // burst of 4, then dry
	c := NewClient(cfg, true)

	var failed int
	for i := 0; i < 10; i++ {
		if res := c.Lookup(context.Background(), "93.184.216.34"); res.Outcome == OutcomeFailed {
			failed++
		}
	}

	if failed == 0 {
		t.Error("expected rate limiter to reject some lookups, none rejected")
	}
	if calls > 5 {
		t.Errorf("service received %d calls, want at most burst size", calls)
	}
}

func TestIsNonPublic(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"93.184.216.34", false},
		{"2606:2800:220:1::1", false},
		{"8.8.8.8", false},
		{"192.168.0.1", true},
		{"10.0.0.1", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"fe80::abcd", true},
		{"fc00::1", true},
		{"garbage", true},
	}

	for _, tt := range tests {
		if got := isNonPublic(tt.ip); got != tt.want {
			t.Errorf("isNonPublic(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}
