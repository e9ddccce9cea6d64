// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/ratelimit"
	"github.com/tomtom215/marquee/internal/storage"
)

type staticToken struct {
	token string
	ok    bool
}

func (s staticToken) AccessToken() (string, bool) { return s.token, s.ok }

// newTestPipeline returns a pipeline with a memory cache and no request spacing.
func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *cache.Store) {
	t.Helper()
	store := cache.New(storage.NewMemoryBackend(0), nil)
	tracker := ratelimit.New(ratelimit.Config{MinInterval: -1})
	return New(http.DefaultClient, store, tracker, opts...), store
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   Outcome
	}{
		{200, OutcomeSuccess},
		{204, OutcomeSuccess},
		{429, OutcomeRateLimited},
		{500, OutcomeTemporary},
		{502, OutcomeTemporary},
		{503, OutcomeTemporary},
		{408, OutcomeTemporary},
		{400, OutcomeHard},
		{401, OutcomeHard},
		{404, OutcomeHard},
		{301, OutcomeHard},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			if got := Classify(tt.status); got != tt.want {
				t.Errorf("Classify(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestFetchSuccessCachesPayload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Write([]byte(`{"id":"GR1","title":"Frieren"}`))
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t)
	ctx := context.Background()
	req := Request{Upstream: "catalog", URL: srv.URL, CacheKey: "catalog:series:GR1"}

	res, err := p.FetchWithFallback(ctx, req, Options{})
	if err != nil {
		t.Fatalf("FetchWithFallback: %v", err)
	}
	if res.Source != SourceUpstream || res.Status != 200 {
		t.Errorf("first fetch = %+v", res)
	}

	res, err = p.FetchWithFallback(ctx, req, Options{})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if res.Source != SourceCache {
		t.Errorf("second fetch source = %s, want cache", res.Source)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}

	if _, err := p.FetchWithFallback(ctx, req, Options{ForceRefresh: true}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("ForceRefresh should bypass cache, calls = %d", calls.Load())
	}
}

func TestFetch503ServesCachedValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, store := newTestPipeline(t)
	ctx := context.Background()
	store.Set(ctx, "catalog:series:GR1", map[string]string{"id": "GR1"}, time.Hour)

	res, err := p.FetchWithFallback(ctx,
		Request{Upstream: "catalog", URL: srv.URL, CacheKey: "catalog:series:GR1"},
		Options{ForceRefresh: true})
	if err != nil {
		t.Fatalf("503 must not surface an error: %v", err)
	}
	if res.Source != SourceCache || res.Status != 503 {
		t.Errorf("result = %+v, want cache with status 503", res)
	}
	if got := p.Tracker().Snapshot("catalog").Errors; got != 1 {
		t.Errorf("errors recorded = %d, want 1", got)
	}
}

func TestFetch429WithoutCacheReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t)
	res, err := p.FetchWithFallback(context.Background(),
		Request{Upstream: "metadata", URL: srv.URL, CacheKey: "metadata:search:x"}, Options{})
	if err != nil {
		t.Fatalf("429 must not surface an error: %v", err)
	}
	if res.OK() || res.Source != SourceNone {
		t.Errorf("result = %+v, want no data", res)
	}

	st := p.Tracker().Snapshot("metadata")
	if st.State != ratelimit.StateRateLimited {
		t.Fatalf("state = %v, want rate_limited", st.State)
	}
	if until := time.Until(st.RetryAfter); until < 110*time.Second {
		t.Errorf("Retry-After header not honored, window = %v", until)
	}
}

func TestFetchSkipsLimitedUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t)
	p.Tracker().RecordError("catalog", http.StatusTooManyRequests)

	res, err := p.FetchWithFallback(context.Background(),
		Request{Upstream: "catalog", URL: srv.URL, CacheKey: "k"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceNone {
		t.Errorf("Source = %s, want none", res.Source)
	}
	if calls.Load() != 0 {
		t.Error("limited upstream must not be called")
	}
}

func TestFetchHardFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such series", http.StatusNotFound)
	}))
	defer srv.Close()

	p, store := newTestPipeline(t)
	ctx := context.Background()
	store.Set(ctx, "k", "stale", time.Hour)

	_, err := p.FetchWithFallback(ctx,
		Request{Upstream: "catalog", URL: srv.URL, CacheKey: "k"}, Options{ForceRefresh: true})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if httpErr.Status != 404 || httpErr.Body != "no such series" {
		t.Errorf("HTTPError = %+v", httpErr)
	}
	if p.Tracker().Snapshot("catalog").Errors != 1 {
		t.Error("hard failure should be recorded")
	}
}

func TestFetchMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": `))
	}))
	defer srv.Close()

	p, store := newTestPipeline(t)
	ctx := context.Background()
	_, err := p.FetchWithFallback(ctx, Request{Upstream: "catalog", URL: srv.URL, CacheKey: "k"}, Options{})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if _, ok := store.Get(ctx, "k"); ok {
		t.Error("malformed payload must not be cached")
	}
}

func TestFetchTimeoutIsRecoverable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p, _ := newTestPipeline(t)
	start := time.Now()
	res, err := p.FetchWithFallback(context.Background(),
		Request{Upstream: "catalog", URL: srv.URL, CacheKey: "k"},
		Options{Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("timeout must not surface an error: %v", err)
	}
	if res.Source != SourceNone {
		t.Errorf("Source = %s", res.Source)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("request was not aborted at the timeout")
	}
}

func TestFetchNetworkErrorIsRecoverable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, _ := newTestPipeline(t)
	res, err := p.FetchWithFallback(context.Background(),
		Request{Upstream: "catalog", URL: url, CacheKey: "k"}, Options{})
	if err != nil {
		t.Fatalf("network error must not surface: %v", err)
	}
	if res.OK() {
		t.Error("expected no data")
	}
}

func TestFetchAuthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	req := Request{Upstream: "catalog", URL: srv.URL, CacheKey: "k", Authenticated: true}

	t.Run("with token", func(t *testing.T) {
		p, _ := newTestPipeline(t, WithTokenSource(staticToken{"tok-1", true}))
		res, err := p.FetchWithFallback(context.Background(), req, Options{})
		if err != nil || res.Source != SourceUpstream {
			t.Fatalf("res = %+v, err = %v", res, err)
		}
	})

	t.Run("without token", func(t *testing.T) {
		p, _ := newTestPipeline(t, WithTokenSource(staticToken{}))
		res, err := p.FetchWithFallback(context.Background(), req, Options{})
		if err != nil {
			t.Fatalf("missing token must be recoverable: %v", err)
		}
		if res.Source != SourceNone {
			t.Errorf("Source = %s", res.Source)
		}
	})
}

func TestFetchCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := p.FetchWithFallback(ctx, Request{Upstream: "catalog", URL: srv.URL}, Options{Timeout: 5 * time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCircuitBreakerOpensAndIsRecoverable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := cache.New(storage.NewMemoryBackend(0), nil)
	// A huge threshold keeps the backoff tracker out of the way.
	tracker := ratelimit.New(ratelimit.Config{MinInterval: -1, ErrorThreshold: 1000})
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 3
	cfg.FailureRatio = 0.5
	p := New(http.DefaultClient, store, tracker, WithBreakerConfig(cfg))

	req := Request{Upstream: "catalog", URL: srv.URL}
	for i := 0; i < 3; i++ {
		if _, err := p.FetchWithFallback(context.Background(), req, Options{}); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if p.BreakerState("catalog") != "open" {
		t.Fatalf("breaker = %s, want open", p.BreakerState("catalog"))
	}

	res, err := p.FetchWithFallback(context.Background(), req, Options{})
	if err != nil {
		t.Fatalf("open breaker must be recoverable: %v", err)
	}
	if res.Source != SourceNone {
		t.Errorf("Source = %s", res.Source)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, open breaker should not reach upstream", calls.Load())
	}
}

func TestHardFailuresDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tracker := ratelimit.New(ratelimit.Config{MinInterval: -1, ErrorThreshold: 1000})
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 2
	p := New(http.DefaultClient, nil, tracker, WithBreakerConfig(cfg))

	for i := 0; i < 5; i++ {
		_, _ = p.FetchWithFallback(context.Background(), Request{Upstream: "catalog", URL: srv.URL}, Options{})
	}
	if p.BreakerState("catalog") != "closed" {
		t.Errorf("breaker = %s, want closed", p.BreakerState("catalog"))
	}
}

func TestFetchBatchPreservesOrderAndDegradesIndependently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		switch id {
		case "A":
			time.Sleep(30 * time.Millisecond)
		case "B":
			w.WriteHeader(http.StatusNotFound)
			return
		case "C":
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"id":%q}`, id)
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t)
	ids := []string{"A", "B", "C", "D"}
	reqs := make([]Request, len(ids))
	for i, id := range ids {
		reqs[i] = Request{Upstream: "catalog", URL: srv.URL + "?id=" + id, CacheKey: "catalog:series:" + id}
	}

	results := p.FetchBatch(context.Background(), reqs, Options{})
	if len(results) != 4 {
		t.Fatalf("len = %d", len(results))
	}
	if string(results[0].Result.Data) != `{"id":"A"}` || results[0].Err != nil {
		t.Errorf("A = %+v", results[0])
	}
	if results[1].Err == nil {
		t.Error("B should carry its hard error")
	}
	if results[2].Err != nil || results[2].Result.Source != SourceNone {
		t.Errorf("C = %+v, want degraded without error", results[2])
	}
	if string(results[3].Result.Data) != `{"id":"D"}` {
		t.Errorf("D = %+v", results[3])
	}
}

func TestDecode(t *testing.T) {
	type item struct {
		ID string `json:"id"`
	}

	v, ok, err := Decode[item](Result{Data: []byte(`{"id":"GR1"}`), Source: SourceCache})
	if err != nil || !ok || v.ID != "GR1" {
		t.Errorf("Decode = %+v, %v, %v", v, ok, err)
	}

	_, ok, err = Decode[item](Result{Source: SourceNone})
	if ok || err != nil {
		t.Errorf("no data: ok=%v err=%v", ok, err)
	}

	_, _, err = Decode[item](Result{Data: []byte(`[1,2]`), Source: SourceUpstream})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{"-5", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
