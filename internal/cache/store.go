// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/storage"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 5 * time.Minute

// Stats tracks cache performance.
type Stats struct {
	Hits           int64     `json:"hits"`
	Misses         int64     `json:"misses"`
	Expired        int64     `json:"expired"`
	FallbackWrites int64     `json:"fallback_writes"`
	BackendErrors  int64     `json:"backend_errors"`
	Purged         int64     `json:"purged"`
	LastSweep      time.Time `json:"last_sweep"`
}

// HitRate returns the hit percentage, 0 when nothing was looked up.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total) * 100.0
}

// Store is a TTL cache over a durable backend with a fallback backend.
// Either backend may be nil; a Store with neither behaves as an always-miss cache.
type Store struct {
	durable  storage.Backend
	fallback storage.Backend
	now      func() time.Time
	logger   zerolog.Logger

	mu    sync.Mutex
	stats Stats
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store.
func New(durable, fallback storage.Backend, opts ...Option) *Store {
	s := &Store{
		durable:  durable,
		fallback: fallback,
		now:      time.Now,
		logger:   logging.WithComponent("cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set stores value under key for ttl. The durable backend is tried first;
// any failure there sends the write to the fallback. Errors are logged only.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache value not serializable, skipping")
		return
	}

	now := s.now()
	rec := storage.Record{
		Data:      data,
		Timestamp: now,
		ExpiresAt: now.Add(ttl),
	}

	if s.durable != nil {
		err := s.durable.Set(ctx, key, rec)
		metrics.RecordCacheWrite(s.durable.Name(), err)
		if err == nil {
			return
		}
		s.recordBackendError()
		s.logger.Warn().Err(err).Str("key", key).Str("backend", s.durable.Name()).
			Msg("Durable cache write failed, using fallback")
	}

	if s.fallback == nil {
		return
	}
	err = s.fallback.Set(ctx, key, rec)
	metrics.RecordCacheWrite(s.fallback.Name(), err)
	if err != nil {
		s.recordBackendError()
		s.logger.Warn().Err(err).Str("key", key).Str("backend", s.fallback.Name()).
			Msg("Fallback cache write failed")
		return
	}
	if s.durable != nil {
		s.mu.Lock()
		s.stats.FallbackWrites++
		s.mu.Unlock()
	}
}

// Get returns the payload stored under key if it has not expired.
// A miss or failure on the durable backend consults the fallback.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	for _, b := range s.backends() {
		if data, found := s.lookup(ctx, b, key); found {
			s.recordHit()
			return data, true
		}
	}
	s.recordMiss()
	return nil, false
}

// lookup reads key from b. Expired records are deleted and reported as absent.
func (s *Store) lookup(ctx context.Context, b storage.Backend, key string) (json.RawMessage, bool) {
	rec, err := b.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		metrics.RecordCacheLookup(b.Name(), "miss")
		return nil, false
	case err != nil:
		s.recordBackendError()
		metrics.RecordCacheLookup(b.Name(), "error")
		s.logger.Debug().Err(err).Str("key", key).Str("backend", b.Name()).Msg("Cache read failed")
		return nil, false
	}

	if rec.Expired(s.now()) {
		metrics.RecordCacheLookup(b.Name(), "expired")
		s.mu.Lock()
		s.stats.Expired++
		s.mu.Unlock()
		if err := b.Delete(ctx, key); err != nil {
			s.logger.Debug().Err(err).Str("key", key).Msg("Opportunistic delete of expired entry failed")
		}
		return nil, false
	}

	metrics.RecordCacheLookup(b.Name(), "hit")
	return rec.Data, true
}

// GetAs decodes the cached payload under key into T.
// An undecodable payload is treated as a miss.
func GetAs[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var v T
	data, ok := s.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cached payload does not match expected type")
		return v, false
	}
	return v, true
}

// Delete removes key from both backends.
func (s *Store) Delete(ctx context.Context, key string) {
	for _, b := range s.backends() {
		if err := b.Delete(ctx, key); err != nil {
			s.recordBackendError()
			s.logger.Warn().Err(err).Str("key", key).Str("backend", b.Name()).Msg("Cache delete failed")
		}
	}
}

// ClearExpired purges expired records from both backends and returns how many were removed.
func (s *Store) ClearExpired(ctx context.Context) int {
	now := s.now()
	total := 0
	for _, b := range s.backends() {
		n, err := b.DeleteExpired(ctx, now)
		if err != nil {
			s.recordBackendError()
			s.logger.Warn().Err(err).Str("backend", b.Name()).Msg("Expired cache purge failed")
		}
		total += n
	}

	s.mu.Lock()
	s.stats.Purged += int64(total)
	s.stats.LastSweep = now
	s.mu.Unlock()
	metrics.CacheExpiredPurged.Add(float64(total))

	return total
}

// Stats returns a snapshot of cache statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close closes both backends.
func (s *Store) Close() error {
	var errs []error
	for _, b := range s.backends() {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) backends() []storage.Backend {
	out := make([]storage.Backend, 0, 2)
	if s.durable != nil {
		out = append(out, s.durable)
	}
	if s.fallback != nil {
		out = append(out, s.fallback)
	}
	return out
}

func (s *Store) recordHit() {
	s.mu.Lock()
	s.stats.Hits++
	s.mu.Unlock()
}

func (s *Store) recordMiss() {
	s.mu.Lock()
	s.stats.Misses++
	s.mu.Unlock()
}

func (s *Store) recordBackendError() {
	s.mu.Lock()
	s.stats.BackendErrors++
	s.mu.Unlock()
}
