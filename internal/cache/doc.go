// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package cache provides the two-tier TTL cache that backs every upstream fetch.

A Store writes to a durable storage.Backend (badger) first and falls back to a
secondary backend (sqlite or memory) when the durable write fails. Reads follow
the same order. Backend failures are logged and counted; they never reach the
caller, who only ever sees a hit or a miss.

Entries are readable while now < timestamp + ttl. An expired entry found on
read is reported as a miss and deleted opportunistically; the Sweeper service
purges the rest on an interval.

Usage:

	store := cache.New(durable, fallback)
	store.Set(ctx, cache.Key("catalog", "series", id), record, 6*time.Hour)

	rec, ok := cache.GetAs[models.PrimaryRecord](ctx, store, cache.Key("catalog", "series", id))
*/
package cache
