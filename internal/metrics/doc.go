// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package metrics provides Prometheus metrics collection and export for observability.

Metrics are registered on the default registry through promauto and exposed at
/metrics by internal/api.

# Available Metrics

Cache:
  - marquee_cache_requests_total{backend,result}: lookups by backend and
    result (hit, miss, expired, error)
  - marquee_cache_writes_total{backend,result}: writes by backend
  - marquee_cache_expired_purged_total: records removed by the sweeper

Fetch pipeline:
  - marquee_fetch_requests_total{upstream,outcome}: upstream calls by outcome
    (success, rate_limited, temporary, timeout, network, hard, circuit_open,
    unauthenticated)
  - marquee_fetch_results_total{upstream,source}: where results came from
    (upstream, cache, none)
  - marquee_fetch_duration_seconds{upstream}: upstream latency
  - marquee_circuit_breaker_state{upstream}: 0 closed, 1 half-open, 2 open

Rate limiter:
  - marquee_ratelimit_transitions_total{upstream,state}
  - marquee_ratelimit_skipped_total{upstream}: calls served from cache

Credential:
  - marquee_credential_refresh_total{result}
  - marquee_credential_notifications_total
  - marquee_credential_valid: 1 while a valid credential is held

Enrichment:
  - marquee_enrich_records_total{result}: matched, unmatched, failed

HTTP:
  - marquee_http_requests_total{method,endpoint,status}
  - marquee_http_request_duration_seconds{method,endpoint}
  - marquee_http_requests_in_flight
  - marquee_bridge_connections
*/
package metrics
