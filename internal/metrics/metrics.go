// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Metrics
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_cache_requests_total",
			Help: "Total cache lookups by backend and result",
		},
		[]string{"backend", "result"}, // "hit", "miss", "expired", "error"
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_cache_writes_total",
			Help: "Total cache writes by backend and result",
		},
		[]string{"backend", "result"}, // "ok", "error"
	)

	CacheExpiredPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_cache_expired_purged_total",
			Help: "Total expired cache records removed by sweeps",
		},
	)

	// Fetch Pipeline Metrics
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_fetch_requests_total",
			Help: "Total upstream fetch attempts by outcome",
		},
		[]string{"upstream", "outcome"},
	)

	FetchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_fetch_results_total",
			Help: "Total fetch results by the source that served them",
		},
		[]string{"upstream", "source"}, // "upstream", "cache", "none"
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_fetch_duration_seconds",
			Help:    "Duration of upstream requests in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 3, 5},
		},
		[]string{"upstream"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_circuit_breaker_state",
			Help: "Circuit breaker state per upstream (0=closed, 1=half-open, 2=open)",
		},
		[]string{"upstream"},
	)

	// Rate Limiter Metrics
	RateLimitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_ratelimit_transitions_total",
			Help: "Total rate limiter state transitions by target state",
		},
		[]string{"upstream", "state"}, // "normal", "backoff", "rate_limited"
	)

	RateLimitSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_ratelimit_skipped_total",
			Help: "Total upstream calls skipped in favor of cache",
		},
		[]string{"upstream"},
	)

	// Credential Metrics
	CredentialRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_credential_refresh_total",
			Help: "Total credential refresh attempts by result",
		},
		[]string{"result"}, // "success", "failure", "shared"
	)

	CredentialNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_credential_notifications_total",
			Help: "Total credential change notifications delivered to listeners",
		},
	)

	CredentialValid = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_credential_valid",
			Help: "1 while a credential is held, 0 otherwise",
		},
	)

	// Enrichment Metrics
	EnrichRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_enrich_records_total",
			Help: "Total records processed by enrichment by result",
		},
		[]string{"result"}, // "matched", "unmatched", "failed"
	)

	// HTTP Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	BridgeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_bridge_connections",
			Help: "Number of connected bridge clients",
		},
	)

	BridgeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_bridge_messages_total",
			Help: "Total bridge messages handled by type and result",
		},
		[]string{"type", "result"}, // "ok", "error"
	)
)

// RecordCacheLookup records one cache lookup against a backend.
func RecordCacheLookup(backend, result string) {
	CacheRequests.WithLabelValues(backend, result).Inc()
}

// RecordCacheWrite records one cache write against a backend.
func RecordCacheWrite(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CacheWrites.WithLabelValues(backend, result).Inc()
}

// RecordFetch records an upstream attempt and its latency.
func RecordFetch(upstream, outcome string, duration time.Duration) {
	FetchRequests.WithLabelValues(upstream, outcome).Inc()
	if duration > 0 {
		FetchDuration.WithLabelValues(upstream).Observe(duration.Seconds())
	}
}

// RecordFetchResult records which source served a fetch.
func RecordFetchResult(upstream, source string) {
	FetchResults.WithLabelValues(upstream, source).Inc()
}

// SetCircuitBreakerState publishes a breaker state (0 closed, 1 half-open, 2 open).
func SetCircuitBreakerState(upstream string, state int) {
	CircuitBreakerState.WithLabelValues(upstream).Set(float64(state))
}

// RecordRateLimitTransition records a limiter entering state.
func RecordRateLimitTransition(upstream, state string) {
	RateLimitTransitions.WithLabelValues(upstream, state).Inc()
}

// RecordRateLimitSkip records a call served from cache because the upstream is limited.
func RecordRateLimitSkip(upstream string) {
	RateLimitSkipped.WithLabelValues(upstream).Inc()
}

// RecordCredentialRefresh records the result of a refresh attempt.
func RecordCredentialRefresh(result string) {
	CredentialRefreshes.WithLabelValues(result).Inc()
}

// SetCredentialValid publishes whether a credential is currently held.
func SetCredentialValid(valid bool) {
	if valid {
		CredentialValid.Set(1)
		return
	}
	CredentialValid.Set(0)
}

// RecordEnrichment records the enrichment result for one record.
func RecordEnrichment(result string) {
	EnrichRecords.WithLabelValues(result).Inc()
}

// RecordAPIRequest records an API request with its status and duration.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBridgeMessage records one handled bridge message.
func RecordBridgeMessage(msgType string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	BridgeMessages.WithLabelValues(msgType, result).Inc()
}
