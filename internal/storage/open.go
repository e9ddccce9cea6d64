// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package storage

import "fmt"

// Backend kinds accepted by Open.
const (
	KindBadger = "badger"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Kind           string
	Path           string
	InMemory       bool
	MemoryCapacity int
}

// Open constructs the backend named by opts.Kind.
func Open(opts Options) (Backend, error) {
	switch opts.Kind {
	case KindBadger:
		b, err := OpenBadger(opts.Path, opts.InMemory)
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindSQLite:
		path := opts.Path
		if opts.InMemory || path == "" {
			path = ":memory:"
		}
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindMemory, "":
		return NewMemoryBackend(opts.MemoryCapacity), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}
