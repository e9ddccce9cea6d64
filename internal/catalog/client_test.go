// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/ratelimit"
	"github.com/tomtom215/marquee/internal/storage"
)

type staticToken string

func (s staticToken) AccessToken() (string, bool) { return string(s), s != "" }

// fakeCatalog serves a tiny catalog and counts requests.
func fakeCatalog(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/content/v2/series/", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("locale") != "en-US" {
			t.Errorf("locale = %q", r.URL.Query().Get("locale"))
		}
		id := strings.TrimPrefix(r.URL.Path, "/content/v2/series/")
		if id == "MISSING" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"id":%q,"title":"Series %s","rating":{"average":8.0,"vote_count":100}}`, id, id)
	})
	mux.HandleFunc("/content/v2/search", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("q") != "frieren" || r.URL.Query().Get("n") != "5" {
			t.Errorf("query = %v", r.URL.Query())
		}
		w.Write([]byte(`{"items":[{"id":"GR1","title":"Frieren"}]}`))
	})
	mux.HandleFunc("/content/v2/browse", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("sort_by") != SortNewlyAdded {
			t.Errorf("sort_by = %q", r.URL.Query().Get("sort_by"))
		}
		w.Write([]byte(`{"items":[{"id":"A","title":"A"},{"id":"B","title":"B"}],"total":40}`))
	})
	mux.HandleFunc("/content/v2/seasons", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `{"series_id":%q}`, r.URL.Query().Get("series_id"))
	})
	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()
	store := cache.New(storage.NewMemoryBackend(0), nil)
	tracker := ratelimit.New(ratelimit.Config{MinInterval: -1})
	p := fetch.New(srv.Client(), store, tracker, fetch.WithTokenSource(staticToken(token)))
	c, err := New(Config{BaseURL: srv.URL + "/content/v2/", Locale: "en-us"}, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	p := fetch.New(nil, nil, nil)
	if _, err := New(Config{BaseURL: "not a url"}, p); err == nil {
		t.Error("relative base url should fail")
	}
	if _, err := New(Config{BaseURL: "https://example.com", Locale: "xx-!!"}, p); err == nil {
		t.Error("invalid locale should fail")
	}
	c, err := New(Config{BaseURL: "https://example.com", Locale: "en-us"}, p)
	if err != nil {
		t.Fatal(err)
	}
	if c.locale != "en-US" {
		t.Errorf("locale = %q, want canonical en-US", c.locale)
	}
}

func TestGetCachesSeries(t *testing.T) {
	var calls atomic.Int32
	srv := fakeCatalog(t, &calls)
	defer srv.Close()
	c := newTestClient(t, srv, "tok")
	ctx := context.Background()

	rec, src, err := c.Get(ctx, "GR1", false)
	if err != nil || rec == nil {
		t.Fatalf("Get = %v, %v", rec, err)
	}
	if rec.Title != "Series GR1" || rec.Rating.Average != 8.0 || src != fetch.SourceUpstream {
		t.Errorf("rec = %+v, src = %s", rec, src)
	}

	if _, src, _ := c.Get(ctx, "GR1", false); src != fetch.SourceCache {
		t.Errorf("second Get source = %s, want cache", src)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGetInvalidAndMissing(t *testing.T) {
	var calls atomic.Int32
	srv := fakeCatalog(t, &calls)
	defer srv.Close()
	c := newTestClient(t, srv, "tok")

	if _, _, err := c.Get(context.Background(), "../etc", false); !errors.Is(err, ErrInvalidID) {
		t.Errorf("err = %v, want ErrInvalidID", err)
	}

	var httpErr *fetch.HTTPError
	if _, _, err := c.Get(context.Background(), "MISSING", false); !errors.As(err, &httpErr) || httpErr.Status != 404 {
		t.Errorf("err = %v, want 404", err)
	}
}

func TestGetWithoutCredentialDegrades(t *testing.T) {
	var calls atomic.Int32
	srv := fakeCatalog(t, &calls)
	defer srv.Close()
	c := newTestClient(t, srv, "")

	rec, src, err := c.Get(context.Background(), "GR1", false)
	if err != nil || rec != nil || src != fetch.SourceNone {
		t.Errorf("Get = %v, %s, %v; want no data and no error", rec, src, err)
	}
	if calls.Load() != 0 {
		t.Error("unauthenticated request should not reach the catalog")
	}
}

func TestGetMany(t *testing.T) {
	var calls atomic.Int32
	srv := fakeCatalog(t, &calls)
	defer srv.Close()
	c := newTestClient(t, srv, "tok")

	recs, degraded := c.GetMany(context.Background(), []string{"C", "MISSING", "A", "bad id"})
	if len(recs) != 2 || recs[0].ID != "C" || recs[1].ID != "A" {
		t.Errorf("records = %+v", recs)
	}
	if !degraded {
		t.Error("skipped entries should mark the batch degraded")
	}
}

func TestSearchAndBrowse(t *testing.T) {
	var calls atomic.Int32
	srv := fakeCatalog(t, &calls)
	defer srv.Close()
	c := newTestClient(t, srv, "tok")
	ctx := context.Background()

	page, err := c.Search(ctx, "  frieren ", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Items) != 1 || page.Total != 1 || page.Source != fetch.SourceUpstream {
		t.Errorf("search page = %+v", page)
	}

	empty, err := c.Search(ctx, "   ", 5)
	if err != nil || len(empty.Items) != 0 {
		t.Errorf("blank search = %+v, %v", empty, err)
	}

	page, err = c.Browse(ctx, BrowseParams{Sort: SortNewlyAdded, Limit: 500})
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if len(page.Items) != 2 || page.Total != 40 {
		t.Errorf("browse page = %+v", page)
	}

	if _, err := c.Browse(ctx, BrowseParams{Sort: "random"}); err == nil {
		t.Error("unsupported sort should fail")
	}
}

func TestProxy(t *testing.T) {
	var calls atomic.Int32
	srv := fakeCatalog(t, &calls)
	defer srv.Close()
	c := newTestClient(t, srv, "tok")
	ctx := context.Background()

	res, err := c.Proxy(ctx, "seasons", map[string]string{"series_id": "GR1"})
	if err != nil {
		t.Fatalf("Proxy: %v", err)
	}
	if string(res.Data) != `{"series_id":"GR1"}` {
		t.Errorf("data = %s", res.Data)
	}
	if res, _ := c.Proxy(ctx, "/seasons/", map[string]string{"series_id": "GR1"}); res.Source != fetch.SourceCache {
		t.Errorf("equivalent endpoint should hit cache, source = %s", res.Source)
	}

	for _, bad := range []string{"", "https://evil.example/x", "../admin", "//evil", "seasons?x=1"} {
		if _, err := c.Proxy(ctx, bad, nil); !errors.Is(err, ErrInvalidEndpoint) {
			t.Errorf("Proxy(%q) err = %v", bad, err)
		}
	}
}
