// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package enrich joins catalog records with metadata from the secondary
// source and derives combined scores.
//
// Lookups run concurrently and are zipped back by index, so output order
// always matches input order before any sort is applied. A failed lookup
// degrades only its own record.
package enrich

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
)

// Defaults for Engine.
const (
	DefaultConcurrency = 4
	DefaultTTL         = 15 * time.Minute
)

// SecondaryLookup searches the secondary source by title.
type SecondaryLookup interface {
	Search(ctx context.Context, title string) ([]models.SecondaryRecord, error)
}

// LookupFunc adapts a function to SecondaryLookup.
type LookupFunc func(ctx context.Context, title string) ([]models.SecondaryRecord, error)

// Search calls f.
func (f LookupFunc) Search(ctx context.Context, title string) ([]models.SecondaryRecord, error) {
	return f(ctx, title)
}

// Options tune one Enrich call.
type Options struct {
	SortBy      SortKey
	Concurrency int
}

// Engine enriches primary records.
type Engine struct {
	lookup      SecondaryLookup
	store       *cache.Store
	ttl         time.Duration
	concurrency int
	logger      zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTTL sets how long enriched batches stay cached.
func WithTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// WithConcurrency sets the default number of parallel lookups.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine. store may be nil to disable batch caching.
func New(lookup SecondaryLookup, store *cache.Store, opts ...Option) *Engine {
	e := &Engine{
		lookup:      lookup,
		store:       store,
		ttl:         DefaultTTL,
		concurrency: DefaultConcurrency,
		logger:      logging.WithComponent("enrich"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich looks up every record and returns the joined results, sorted by
// opts.SortBy. The only error is cancellation of ctx. A batch in which any
// lookup failed is not cached, so the next call retries the secondary.
func (e *Engine) Enrich(ctx context.Context, records []models.PrimaryRecord, opts Options) ([]models.EnrichedRecord, error) {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = e.concurrency
	}

	out := make([]models.EnrichedRecord, len(records))
	var failed atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, rec := range records {
		g.Go(func() error {
			var ok bool
			out[i], ok = e.enrichOne(gctx, rec)
			if !ok {
				failed.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if e.store != nil && len(records) > 0 && !failed.Load() {
		e.store.Set(ctx, batchKey(records), out, e.ttl)
	}
	return Sort(out, opts.SortBy), nil
}

// Cached returns a previously enriched batch for the same records, in input
// order.
func (e *Engine) Cached(ctx context.Context, records []models.PrimaryRecord) ([]models.EnrichedRecord, bool) {
	if e.store == nil || len(records) == 0 {
		return nil, false
	}
	return cache.GetAs[[]models.EnrichedRecord](ctx, e.store, batchKey(records))
}

// enrichOne joins rec with its secondary match. ok is false when the lookup
// failed rather than found nothing.
func (e *Engine) enrichOne(ctx context.Context, rec models.PrimaryRecord) (_ models.EnrichedRecord, ok bool) {
	var secondary *models.SecondaryRecord

	candidates, err := e.lookup.Search(ctx, rec.Title)
	ok = err == nil
	switch {
	case err != nil:
		metrics.RecordEnrichment("failed")
		e.logger.Warn().Err(err).Str("id", rec.ID).Str("title", rec.Title).Msg("Secondary lookup failed")
	default:
		secondary = BestMatch(rec.Title, candidates)
		if secondary != nil {
			metrics.RecordEnrichment("matched")
		} else {
			metrics.RecordEnrichment("unmatched")
		}
	}

	return models.EnrichedRecord{
		Primary:            rec,
		Secondary:          secondary,
		CombinedScore:      CombinedScore(rec, secondary),
		CombinedPopularity: CombinedPopularity(rec, secondary),
	}, ok
}

func batchKey(records []models.PrimaryRecord) string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return cache.HashKey("enriched", ids)
}
