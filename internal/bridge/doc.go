// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package bridge is the request/response channel between the in-page script
and the overlay core.

Every inbound message names a type and a correlation id:

	{"type": "api_request", "id": "7", "endpoint": "seasons", "params": {"series_id": "GR1"}}

and is answered with exactly one response carrying the same type and id:

	{"type": "api_request", "id": "7", "success": true, "data": {...}}
	{"type": "api_request", "id": "7", "success": false, "error": "no data available"}

Message types:

  - api_request: GET a relative catalog endpoint through the fetch pipeline
  - token_status: report whether a credential is held and when it expires
  - credential_observed: hand a captured credential to the manager
  - navigate: resolve an application path into an overlay view
  - enrich: fetch and enrich a list of series ids

Dispatcher.Handle is transport agnostic. Server carries it over a WebSocket
at /bridge, and Hub pushes unsolicited token_changed messages to every
connected client when the credential changes. The pushed payload never
includes the access token itself.
*/
package bridge
