// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("storage: key not found")

	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("storage: backend closed")
)

// Record is the unit persisted by every backend.
type Record struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the record is no longer readable at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Backend is a key/value store with explicit error reporting.
type Backend interface {
	// Get returns ErrNotFound when the key is absent. Expiry is not checked.
	Get(ctx context.Context, key string) (Record, error)

	// Set creates or overwrites the record for key.
	Set(ctx context.Context, key string, rec Record) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteExpired removes every record with ExpiresAt <= now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Name identifies the backend in logs and metrics.
	Name() string

	Close() error
}
