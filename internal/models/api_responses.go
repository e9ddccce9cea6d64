// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import (
	"time"
)

// APIResponse is the envelope every companion HTTP endpoint returns.
//
// Status is "success" or "error". Data carries the payload on success and
// Error the machine-readable failure otherwise.
//
//	{
//	  "status": "success",
//	  "data": {"records": [...]},
//	  "metadata": {"timestamp": "2026-01-02T12:00:00Z", "source": "cache"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata describes how a response was produced.
//
// Source is "upstream", "cache" or "none". Degraded is set when at least one
// upstream call fell back to cached or partial data.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Source      string    `json:"source,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
}

// APIError is the structured error payload.
//
// Common codes:
//   - VALIDATION_ERROR: invalid input parameters
//   - UPSTREAM_ERROR: the catalog rejected the request (hard failure)
//   - NO_CREDENTIAL: no valid credential is available
//   - NOT_FOUND: unknown resource
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
