// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package config loads Marquee configuration with koanf v2.

Sources are layered, later ones winning:

 1. Struct defaults (providers/structs)
 2. An optional YAML file: CONFIG_PATH, else the first of DefaultConfigPaths
 3. Environment variables (providers/env)

Environment names are mapped in envTransformFunc. A short list of
conventional names (HTTP_PORT, LOG_LEVEL, CATALOG_BASE_URL, CREDENTIAL_KEY,
...) is mapped explicitly; every other setting is reachable as
MARQUEE_<SECTION>_<FIELD>, for example MARQUEE_CACHE_FALLBACK_KIND=sqlite
or MARQUEE_RATELIMIT_BASE_DELAY=2s. List settings accept comma-separated
values.

Example config.yaml:

	server:
	  port: 8620
	  cors_origins: ["https://www.example-streaming.com"]
	catalog:
	  base_url: https://catalog.example-streaming.com/cms/v2
	  locale: en-US
	cache:
	  kind: badger
	  path: /data/marquee/cache
	  fallback_kind: memory
	auth:
	  token_endpoint: https://auth.example-streaming.com/oauth/token
	  client_id: marquee

Load validates the result; the only required setting is catalog.base_url.
*/
package config
