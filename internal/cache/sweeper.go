// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package cache

import (
	"context"
	"time"
)

// DefaultSweepInterval is how often the Sweeper purges expired entries.
const DefaultSweepInterval = 10 * time.Minute

// Sweeper periodically calls ClearExpired. It implements suture.Service.
type Sweeper struct {
	store    *Store
	interval time.Duration
}

// NewSweeper creates a sweeper for store.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval}
}

// Serve runs until ctx is canceled.
func (w *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := w.store.ClearExpired(ctx); n > 0 {
				w.store.logger.Debug().Int("purged", n).Msg("Expired cache entries purged")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (w *Sweeper) String() string {
	return "cache-sweeper"
}
