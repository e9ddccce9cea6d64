// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package storage

import (
	"errors"

	"github.com/tomtom215/marquee/internal/logging"
)

// Tier is the durable cache backend and its fallback. Either may be nil.
type Tier struct {
	Durable  Backend
	Fallback Backend
}

// OpenTier opens the durable backend and, when fallback is non-nil, the
// fallback. A backend that fails to open is logged and left nil, so a
// broken durable store degrades to fallback-only. The error is non-nil
// only when nothing could be opened at all.
func OpenTier(durable Options, fallback *Options) (Tier, error) {
	logger := logging.WithComponent("storage")
	var tier Tier

	b, durableErr := Open(durable)
	if durableErr != nil {
		logger.Warn().Err(durableErr).Str("kind", durable.Kind).Str("path", durable.Path).
			Msg("Durable cache backend unavailable, running on fallback only")
	} else {
		tier.Durable = b
	}

	if fallback == nil {
		if durableErr != nil {
			return tier, durableErr
		}
		return tier, nil
	}

	b, fallbackErr := Open(*fallback)
	if fallbackErr != nil {
		logger.Warn().Err(fallbackErr).Str("kind", fallback.Kind).Msg("Fallback cache backend unavailable")
	} else {
		tier.Fallback = b
	}

	if tier.Durable == nil && tier.Fallback == nil {
		return tier, errors.Join(durableErr, fallbackErr)
	}
	return tier, nil
}

// Persistent returns the backend for records that should outlive the
// fallback's eviction: the durable backend, else the fallback, else a new
// in-memory backend.
func (t Tier) Persistent() Backend {
	switch {
	case t.Durable != nil:
		return t.Durable
	case t.Fallback != nil:
		return t.Fallback
	default:
		return NewMemoryBackend(0)
	}
}

// Close closes both backends.
func (t Tier) Close() error {
	var errs []error
	for _, b := range []Backend{t.Durable, t.Fallback} {
		if b == nil {
			continue
		}
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
