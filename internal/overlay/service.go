// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package overlay is the facade the outer surfaces talk to. It resolves
// application paths into views and serves enriched series, search and
// browse results composed from the catalog client and the enrichment engine.
package overlay

import (
	"context"
	"errors"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/credential"
	"github.com/tomtom215/marquee/internal/enrich"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/ratelimit"
)

// Catalog is the subset of the catalog client the overlay uses.
type Catalog interface {
	Get(ctx context.Context, id string, force bool) (*models.PrimaryRecord, fetch.Source, error)
	GetMany(ctx context.Context, ids []string) ([]models.PrimaryRecord, bool)
	Search(ctx context.Context, query string, limit int) (catalog.Page, error)
	Browse(ctx context.Context, p catalog.BrowseParams) (catalog.Page, error)
	Proxy(ctx context.Context, endpoint string, params map[string]string) (fetch.Result, error)
}

// Enricher joins primary records with secondary metadata.
type Enricher interface {
	Enrich(ctx context.Context, records []models.PrimaryRecord, opts enrich.Options) ([]models.EnrichedRecord, error)
	Cached(ctx context.Context, records []models.PrimaryRecord) ([]models.EnrichedRecord, bool)
}

// Credentials reports the session credential state.
type Credentials interface {
	Status() credential.Status
}

// Limits reports upstream limiter state.
type Limits interface {
	Snapshots() []ratelimit.Status
}

// CacheStats reports cache counters.
type CacheStats interface {
	Stats() cache.Stats
}

// Deps are the collaborators of a Service. Limits and Cache are optional.
type Deps struct {
	Catalog     Catalog
	Enricher    Enricher
	Credentials Credentials
	Limits      Limits
	Cache       CacheStats
}

// ErrNotFound is returned when a series has no data upstream or in cache.
var ErrNotFound = errors.New("overlay: series not found")

// Result is an enriched list page.
type Result struct {
	Items  []models.EnrichedRecord `json:"items"`
	Total  int                     `json:"total"`
	Source fetch.Source            `json:"source"`
}

// Status summarizes session and upstream health.
type Status struct {
	Credential credential.Status  `json:"credential"`
	Upstreams  []ratelimit.Status `json:"upstreams"`
	Cache      *cache.Stats       `json:"cache,omitempty"`
}

// Service composes the catalog, enrichment and credential state.
type Service struct {
	deps Deps
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{deps: deps}
}

// Series returns one enriched series. force bypasses the catalog cache and
// the enriched batch cache.
func (s *Service) Series(ctx context.Context, id string, force bool) (*models.EnrichedRecord, fetch.Source, error) {
	rec, source, err := s.deps.Catalog.Get(ctx, id, force)
	if err != nil {
		return nil, source, err
	}
	if rec == nil {
		return nil, source, ErrNotFound
	}

	out, err := s.enrich(ctx, []models.PrimaryRecord{*rec}, enrich.SortNone, force)
	if err != nil {
		return nil, source, err
	}
	return &out[0], source, nil
}

// SeriesBatch returns enriched series for ids in input order. Ids with no
// data are skipped; degraded reports whether any were skipped or stale.
func (s *Service) SeriesBatch(ctx context.Context, ids []string, sortBy enrich.SortKey) ([]models.EnrichedRecord, bool, error) {
	records, degraded := s.deps.Catalog.GetMany(ctx, ids)
	out, err := s.enrich(ctx, records, sortBy, false)
	return out, degraded, err
}

// Search runs a catalog search and enriches the results.
func (s *Service) Search(ctx context.Context, query string, limit int, sortBy enrich.SortKey) (Result, error) {
	page, err := s.deps.Catalog.Search(ctx, query, limit)
	if err != nil {
		return Result{Items: []models.EnrichedRecord{}, Source: fetch.SourceNone}, err
	}
	return s.enrichPage(ctx, page, sortBy)
}

// Browse lists the catalog and enriches the results.
func (s *Service) Browse(ctx context.Context, p catalog.BrowseParams, sortBy enrich.SortKey) (Result, error) {
	page, err := s.deps.Catalog.Browse(ctx, p)
	if err != nil {
		return Result{Items: []models.EnrichedRecord{}, Source: fetch.SourceNone}, err
	}
	return s.enrichPage(ctx, page, sortBy)
}

// Status reports the credential, limiter and cache state.
func (s *Service) Status() Status {
	st := Status{Upstreams: []ratelimit.Status{}}
	if s.deps.Credentials != nil {
		st.Credential = s.deps.Credentials.Status()
	}
	if s.deps.Limits != nil {
		st.Upstreams = s.deps.Limits.Snapshots()
	}
	if s.deps.Cache != nil {
		stats := s.deps.Cache.Stats()
		st.Cache = &stats
	}
	return st
}

func (s *Service) enrichPage(ctx context.Context, page catalog.Page, sortBy enrich.SortKey) (Result, error) {
	items, err := s.enrich(ctx, page.Items, sortBy, false)
	if err != nil {
		return Result{Items: []models.EnrichedRecord{}, Source: fetch.SourceNone}, err
	}
	return Result{Items: items, Total: page.Total, Source: page.Source}, nil
}

func (s *Service) enrich(ctx context.Context, records []models.PrimaryRecord, sortBy enrich.SortKey, force bool) ([]models.EnrichedRecord, error) {
	if len(records) == 0 {
		return []models.EnrichedRecord{}, nil
	}
	if !force {
		if cached, ok := s.deps.Enricher.Cached(ctx, records); ok && len(cached) == len(records) {
			return enrich.Sort(cached, sortBy), nil
		}
	}
	return s.deps.Enricher.Enrich(ctx, records, enrich.Options{SortBy: sortBy})
}
