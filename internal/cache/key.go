// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// maxKeyLength is the longest key stored verbatim. Longer keys are hashed.
const maxKeyLength = 200

// Key joins kind and parts into a cache key such as "catalog:series:GR1".
// Keys longer than maxKeyLength keep their kind prefix and hash the rest.
func Key(kind string, parts ...string) string {
	key := kind
	if len(parts) > 0 {
		key = kind + ":" + strings.Join(parts, ":")
	}
	if len(key) <= maxKeyLength {
		return key
	}
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%x", kind, hash[:16])
}

// HashKey creates a key from kind and the JSON encoding of params.
func HashKey(kind string, params any) string {
	data, err := json.Marshal(params)
	if err != nil {
		return Key(kind, fmt.Sprintf("%v", params))
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", kind, hash[:16])
}
