// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package storage provides the key/value backends behind the cache store and the
persisted credential record.

Every backend implements Backend and reports failures as errors; collapsing
those errors into cache misses is the job of internal/cache, not of this
package.

# Backends

  - BadgerBackend: durable embedded database (BadgerDB v4). Entries are also
    written with a native badger TTL so the value log can drop them without a
    sweep.
  - SQLiteBackend: a single kv table in a pure-Go SQLite file. Used as the
    simpler persistent fallback.
  - MemoryBackend: process-local map guarded by a RWMutex. Used as the
    fallback when no SQLite path is configured and in tests.

# Record Layout

	{"data": <payload>, "timestamp": "...", "expires_at": "..."}

A zero ExpiresAt means the record never expires.
*/
package storage
