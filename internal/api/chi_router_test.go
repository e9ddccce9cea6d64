// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/marquee/internal/metrics"
)

func TestNewChiMiddleware_DefaultConfig(t *testing.T) {
	m := NewChiMiddleware(nil)

	if len(m.config.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins = %v, want []", m.config.CORSAllowedOrigins)
	}
	if m.config.CORSMaxAge != 86400 {
		t.Errorf("CORSMaxAge = %d, want 86400", m.config.CORSMaxAge)
	}
	if m.config.RateLimitRequests != 100 || m.config.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d/%v, want 100/1m", m.config.RateLimitRequests, m.config.RateLimitWindow)
	}
}

func TestNewChiMiddleware_FillsZeroValues(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{CORSAllowedOrigins: []string{"https://app.example"}})

	if len(m.config.CORSAllowedMethods) == 0 || len(m.config.CORSAllowedHeaders) == 0 {
		t.Error("methods and headers should default when empty")
	}
	if m.config.RateLimitRequests != 100 {
		t.Errorf("RateLimitRequests = %d, want 100", m.config.RateLimitRequests)
	}
}

func TestCORS(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = []string{"https://app.example"}
	cfg.RateLimitDisabled = true
	router := NewRouter(NewHandler(newTestOverlay(), &fakeSession{}, "test"), NewChiMiddleware(cfg), nil).SetupChi()

	tests := []struct {
		origin string
		want   string
	}{
		{"https://app.example", "https://app.example"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
		req.Header.Set("Origin", tt.origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: Access-Control-Allow-Origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	m := NewChiMiddleware(nil)
	handler := m.RateLimitCustom(RateLimitConfig{Requests: 2, Window: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})
	handler := m.RateLimitCustom(RateLimitConfig{Requests: 1, Window: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	for i := range 5 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	router := newTestRouter(newTestOverlay(), &fakeSession{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/series/GR123", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-Request-Id":              "req-abc",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	rec = serve(router, http.MethodGet, "/api/v1/health/live", "")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("request id should be generated when absent")
	}
}

func TestPrometheusMetricsUsesRoutePattern(t *testing.T) {
	router := newTestRouter(newTestOverlay(), &fakeSession{})
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/series/{id}", "200")
	before := testutil.ToFloat64(counter)

	serve(router, http.MethodGet, "/api/v1/series/GR123", "")

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("requests recorded under route pattern = %v, want 1", got)
	}
}

func TestRouterNotFoundAndMetrics(t *testing.T) {
	router := newTestRouter(newTestOverlay(), &fakeSession{})

	rec := serve(router, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "NOT_FOUND") {
		t.Errorf("not found: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "marquee_") {
		t.Errorf("metrics: status = %d", rec.Code)
	}
}

func TestRouterMountsBridge(t *testing.T) {
	bridge := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true
	router := NewRouter(NewHandler(newTestOverlay(), &fakeSession{}, "test"), NewChiMiddleware(cfg), bridge).SetupChi()

	if rec := serve(router, http.MethodGet, "/bridge", ""); rec.Code != http.StatusTeapot {
		t.Errorf("bridge status = %d, want 418", rec.Code)
	}
}
