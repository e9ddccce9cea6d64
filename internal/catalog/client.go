// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package catalog is the client for the streaming site's own catalog API.
//
// Every call goes through the fetch pipeline under the upstream name
// "catalog" with bearer authentication, so a missing credential, a rate
// limit or an outage degrades to cached data instead of an error.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/validation"
)

// Upstream is the rate limiter and breaker bucket for catalog calls.
const Upstream = "catalog"

// Defaults for Config.
const (
	DefaultSeriesTTL   = 6 * time.Hour
	DefaultSearchTTL   = 15 * time.Minute
	DefaultBrowseTTL   = 30 * time.Minute
	DefaultProxyTTL    = 5 * time.Minute
	DefaultSearchLimit = 20
	MaxLimit           = 100
)

// Browse sort orders accepted by the catalog.
const (
	SortPopularity   = "popularity"
	SortNewlyAdded   = "newly_added"
	SortAlphabetical = "alphabetical"
)

var (
	// ErrInvalidID is returned for empty or malformed series ids.
	ErrInvalidID = errors.New("catalog: invalid series id")

	// ErrInvalidEndpoint is returned when a proxied endpoint is not a relative catalog path.
	ErrInvalidEndpoint = errors.New("catalog: invalid endpoint")
)

// Config configures the client.
type Config struct {
	BaseURL   string        `koanf:"base_url"`
	Locale    string        `koanf:"locale"`
	SeriesTTL time.Duration `koanf:"series_ttl"`
	SearchTTL time.Duration `koanf:"search_ttl"`
	BrowseTTL time.Duration `koanf:"browse_ttl"`
	Timeout   time.Duration `koanf:"timeout"`
}

// Page is a list result.
type Page struct {
	Items  []models.PrimaryRecord `json:"items"`
	Total  int                    `json:"total"`
	Source fetch.Source           `json:"source"`
}

// BrowseParams selects a browse listing.
type BrowseParams struct {
	Sort  string
	Limit int
	Start int
}

// Client talks to the catalog API.
type Client struct {
	base     *url.URL
	locale   string
	pipeline *fetch.Pipeline
	cfg      Config
}

// New creates a Client. The locale is canonicalized as a BCP 47 tag.
func New(cfg Config, pipeline *fetch.Pipeline) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("catalog: invalid base url %q", cfg.BaseURL)
	}

	locale := ""
	if cfg.Locale != "" {
		tag, err := language.Parse(cfg.Locale)
		if err != nil {
			return nil, fmt.Errorf("catalog: invalid locale %q: %w", cfg.Locale, err)
		}
		locale = tag.String()
	}

	if cfg.SeriesTTL <= 0 {
		cfg.SeriesTTL = DefaultSeriesTTL
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = DefaultSearchTTL
	}
	if cfg.BrowseTTL <= 0 {
		cfg.BrowseTTL = DefaultBrowseTTL
	}

	return &Client{base: base, locale: locale, pipeline: pipeline, cfg: cfg}, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	if c.locale != "" {
		if q == nil {
			q = url.Values{}
		}
		q.Set("locale", c.locale)
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) request(path string, q url.Values, cacheKey string) fetch.Request {
	return fetch.Request{
		Upstream:      Upstream,
		URL:           c.endpoint(path, q),
		CacheKey:      cacheKey,
		Authenticated: true,
	}
}

func (c *Client) opts(ttl time.Duration, force bool) fetch.Options {
	return fetch.Options{TTL: ttl, Timeout: c.cfg.Timeout, ForceRefresh: force}
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultSearchLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// Get fetches one series. A nil record with a nil error means no data is
// available right now.
func (c *Client) Get(ctx context.Context, id string, force bool) (*models.PrimaryRecord, fetch.Source, error) {
	if !validation.ValidSeriesID(id) {
		return nil, fetch.SourceNone, ErrInvalidID
	}

	res, err := c.pipeline.FetchWithFallback(ctx,
		c.request("series/"+id, nil, cache.Key("catalog", "series", id)),
		c.opts(c.cfg.SeriesTTL, force))
	if err != nil {
		return nil, fetch.SourceNone, err
	}

	rec, ok, err := fetch.Decode[models.PrimaryRecord](res)
	if err != nil || !ok {
		return nil, res.Source, err
	}
	return &rec, res.Source, nil
}

// GetMany fetches several series concurrently, in input order. Entries with
// no data or a hard failure are skipped; degraded reports whether any were
// skipped or served from cache.
func (c *Client) GetMany(ctx context.Context, ids []string) (records []models.PrimaryRecord, degraded bool) {
	reqs := make([]fetch.Request, 0, len(ids))
	for _, id := range ids {
		if validation.ValidSeriesID(id) {
			reqs = append(reqs, c.request("series/"+id, nil, cache.Key("catalog", "series", id)))
		} else {
			degraded = true
		}
	}

	records = make([]models.PrimaryRecord, 0, len(reqs))
	for _, br := range c.pipeline.FetchBatch(ctx, reqs, c.opts(c.cfg.SeriesTTL, false)) {
		if br.Err != nil {
			degraded = true
			continue
		}
		rec, ok, err := fetch.Decode[models.PrimaryRecord](br.Result)
		if err != nil || !ok {
			degraded = true
			continue
		}
		if br.Result.Source != fetch.SourceUpstream {
			degraded = true
		}
		records = append(records, rec)
	}
	return records, degraded
}

// Search runs a title search.
func (c *Client) Search(ctx context.Context, query string, limit int) (Page, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Page{Source: fetch.SourceNone}, nil
	}
	limit = clampLimit(limit)

	q := url.Values{}
	q.Set("q", query)
	q.Set("n", strconv.Itoa(limit))
	key := cache.Key("catalog", "search", strings.ToLower(query), strconv.Itoa(limit))

	return c.page(ctx, c.request("search", q, key), c.cfg.SearchTTL)
}

// Browse lists the catalog in the given order.
func (c *Client) Browse(ctx context.Context, p BrowseParams) (Page, error) {
	switch p.Sort {
	case "":
		p.Sort = SortPopularity
	case SortPopularity, SortNewlyAdded, SortAlphabetical:
	default:
		return Page{}, fmt.Errorf("catalog: unsupported sort %q", p.Sort)
	}
	p.Limit = clampLimit(p.Limit)
	if p.Start < 0 {
		p.Start = 0
	}

	q := url.Values{}
	q.Set("sort_by", p.Sort)
	q.Set("n", strconv.Itoa(p.Limit))
	if p.Start > 0 {
		q.Set("start", strconv.Itoa(p.Start))
	}
	key := cache.Key("catalog", "browse", p.Sort, strconv.Itoa(p.Limit), strconv.Itoa(p.Start))

	return c.page(ctx, c.request("browse", q, key), c.cfg.BrowseTTL)
}

func (c *Client) page(ctx context.Context, req fetch.Request, ttl time.Duration) (Page, error) {
	res, err := c.pipeline.FetchWithFallback(ctx, req, c.opts(ttl, false))
	if err != nil {
		return Page{Source: fetch.SourceNone}, err
	}
	page, ok, err := fetch.Decode[Page](res)
	if err != nil {
		return Page{Source: fetch.SourceNone}, err
	}
	if !ok {
		return Page{Items: []models.PrimaryRecord{}, Source: res.Source}, nil
	}
	if page.Items == nil {
		page.Items = []models.PrimaryRecord{}
	}
	if page.Total == 0 {
		page.Total = len(page.Items)
	}
	page.Source = res.Source
	return page, nil
}

// Proxy performs a GET against a relative catalog endpoint and returns the
// raw result. It serves the bridge's generic api_request messages.
func (c *Client) Proxy(ctx context.Context, endpoint string, params map[string]string) (fetch.Result, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || strings.Contains(endpoint, "://") || strings.Contains(endpoint, "..") ||
		strings.HasPrefix(endpoint, "//") || strings.ContainsAny(endpoint, "?#") {
		return fetch.Result{Source: fetch.SourceNone}, ErrInvalidEndpoint
	}

	q := url.Values{}
	keys := make([]string, 0, len(params))
	for k, v := range params {
		q.Set(k, v)
		keys = append(keys, k)
	}
	sort.Strings(keys)
	keyParts := make([]string, 0, len(keys)*2+1)
	keyParts = append(keyParts, strings.Trim(endpoint, "/"))
	for _, k := range keys {
		keyParts = append(keyParts, k, params[k])
	}

	req := c.request(endpoint, q, cache.HashKey("catalog:proxy", keyParts))
	return c.pipeline.FetchWithFallback(ctx, req, c.opts(DefaultProxyTTL, false))
}
