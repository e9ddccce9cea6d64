// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package fetch implements the cache-first, rate-limit-aware upstream pipeline.

Every outbound call goes through Pipeline.FetchWithFallback:

 1. Unless ForceRefresh is set, a cache hit returns immediately.
 2. If the upstream is backing off or rate limited, the call is skipped.
 3. The call waits out the upstream's minimum request spacing, then runs
    through the upstream's circuit breaker with a per-request timeout.
 4. The response status is classified (see Classify).
 5. Success: the payload is validated, cached, and returned.
 6. Rate limit, temporary failure, timeout, network error, open breaker or a
    missing credential: the error is recorded and the cached value (or an
    empty Result with Source == SourceNone) is returned. These are never errors.
 7. Hard failure (a non-429 4xx or a malformed payload): the error is recorded
    and returned as *HTTPError or ErrMalformed.

Callers distinguish "no data" from data with Result.OK.

# Circuit Breakers

Each upstream name has its own gobreaker breaker. Only recoverable failures
count toward tripping it; a 404 says nothing about upstream health.
*/
package fetch
