// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package api is the HTTP surface of the companion service.

Routes (all JSON bodies use the models.APIResponse envelope):

	GET    /api/v1/health              liveness plus credential and upstream state
	GET    /api/v1/health/live         process liveness only
	GET    /api/v1/credential          credential status (never token values)
	POST   /api/v1/credential          hand over an observed credential
	POST   /api/v1/credential/refresh  refresh with the held or supplied refresh token
	DELETE /api/v1/credential          clear the credential
	POST   /api/v1/navigate            resolve an application path into a view
	GET    /api/v1/series/{id}         one enriched series
	GET    /api/v1/search?q=           enriched search results
	GET    /api/v1/browse?sort_by=     enriched browse listing
	GET    /bridge                     WebSocket bridge
	GET    /metrics                    Prometheus metrics

Recoverable upstream failures never surface as errors: responses carry
metadata.source ("upstream", "cache" or "none") and metadata.degraded
instead. Hard upstream failures map to 502 UPSTREAM_ERROR.

CORS and per-IP rate limiting come from go-chi/cors and go-chi/httprate.
*/
package api
