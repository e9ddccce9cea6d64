// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/text/language"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/storage"
)

// Bounds checked by Validate.
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
	maxEnrichConcurrency = 32
	maxFailureRatio      = 1.0
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateCatalog,
		c.validateMetadata,
		c.validateAuth,
		c.validateCache,
		c.validateRateLimit,
		c.validateFetch,
		c.validateEnrich,
		c.validateBridge,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	switch c.Server.Environment {
	case "", "development", "staging", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, staging or production")
	}
	for _, origin := range c.Server.CORSOrigins {
		if err := validateOrigin(origin, "CORS_ORIGINS"); err != nil {
			return err
		}
	}
	if c.IsProduction() && slices.Contains(c.Server.CORSOrigins, "*") {
		return errors.New("CORS_ORIGINS=* is not allowed when ENVIRONMENT=production: " +
			"the API exposes credential endpoints, set explicit origins instead")
	}
	if c.Server.RateLimitDisabled {
		return nil
	}
	if c.Server.RateLimitRequests < minRateLimitRequests || c.Server.RateLimitRequests > maxRateLimitRequests {
		return fmt.Errorf("server.rate_limit_requests must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Server.RateLimitWindow < minRateLimitWindow || c.Server.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("server.rate_limit_window must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.BaseURL == "" {
		return errors.New("CATALOG_BASE_URL is required")
	}
	if err := validateHTTPURL(c.Catalog.BaseURL, "CATALOG_BASE_URL"); err != nil {
		return err
	}
	if c.Catalog.Locale != "" {
		if _, err := language.Parse(c.Catalog.Locale); err != nil {
			return fmt.Errorf("CATALOG_LOCALE %q is not a BCP 47 tag: %w", c.Catalog.Locale, err)
		}
	}
	return nonNegative(map[string]time.Duration{
		"catalog.series_ttl": c.Catalog.SeriesTTL,
		"catalog.search_ttl": c.Catalog.SearchTTL,
		"catalog.browse_ttl": c.Catalog.BrowseTTL,
		"catalog.timeout":    c.Catalog.Timeout,
	})
}

func (c *Config) validateMetadata() error {
	if err := validateHTTPURL(c.Metadata.Endpoint, "METADATA_ENDPOINT"); err != nil {
		return err
	}
	if c.Metadata.PerPage < 0 || c.Metadata.PerPage > 50 {
		return fmt.Errorf("metadata.per_page must be between 0 and 50")
	}
	return nonNegative(map[string]time.Duration{
		"metadata.ttl":     c.Metadata.TTL,
		"metadata.timeout": c.Metadata.Timeout,
	})
}

func (c *Config) validateAuth() error {
	if c.Auth.TokenEndpoint != "" {
		if err := validateHTTPURL(c.Auth.TokenEndpoint, "AUTH_TOKEN_ENDPOINT"); err != nil {
			return err
		}
	}
	if c.Auth.EncryptionKey == "" && c.IsProduction() {
		logging.Warn().Msg("CREDENTIAL_KEY is empty: the persisted credential is stored unencrypted")
	}
	if c.Auth.RefreshThreshold >= c.Auth.DefaultLifetime && c.Auth.DefaultLifetime > 0 {
		return fmt.Errorf("auth.refresh_threshold (%v) must be shorter than auth.default_lifetime (%v)",
			c.Auth.RefreshThreshold, c.Auth.DefaultLifetime)
	}
	return nonNegative(map[string]time.Duration{
		"auth.default_lifetime":  c.Auth.DefaultLifetime,
		"auth.refresh_threshold": c.Auth.RefreshThreshold,
		"auth.refresh_timeout":   c.Auth.RefreshTimeout,
		"auth.sweep_interval":    c.Auth.SweepInterval,
	})
}

var (
	durableKinds  = []string{storage.KindBadger, storage.KindSQLite, storage.KindMemory}
	fallbackKinds = []string{storage.KindMemory, storage.KindSQLite, "none"}
)

func (c *Config) validateCache() error {
	if !slices.Contains(durableKinds, c.Cache.Kind) {
		return fmt.Errorf("CACHE_KIND must be one of %v, got %q", durableKinds, c.Cache.Kind)
	}
	if c.Cache.Kind != storage.KindMemory && c.Cache.Path == "" && !c.Cache.InMemory {
		return fmt.Errorf("CACHE_PATH is required for the %s backend", c.Cache.Kind)
	}
	if c.Cache.FallbackKind != "" && !slices.Contains(fallbackKinds, c.Cache.FallbackKind) {
		return fmt.Errorf("cache.fallback_kind must be one of %v, got %q", fallbackKinds, c.Cache.FallbackKind)
	}
	if c.Cache.FallbackKind == c.Cache.Kind && c.Cache.Kind != storage.KindMemory {
		return errors.New("cache.fallback_kind must differ from cache.kind")
	}
	if c.Cache.MemoryCapacity < 0 {
		return errors.New("cache.memory_capacity must not be negative")
	}
	return nonNegative(map[string]time.Duration{"cache.sweep_interval": c.Cache.SweepInterval})
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.ErrorThreshold < 0 {
		return errors.New("ratelimit.error_threshold must not be negative")
	}
	if c.RateLimit.MaxDelay > 0 && c.RateLimit.BaseDelay > c.RateLimit.MaxDelay {
		return fmt.Errorf("ratelimit.base_delay (%v) exceeds ratelimit.max_delay (%v)",
			c.RateLimit.BaseDelay, c.RateLimit.MaxDelay)
	}
	return nonNegative(map[string]time.Duration{
		"ratelimit.base_delay":        c.RateLimit.BaseDelay,
		"ratelimit.max_delay":         c.RateLimit.MaxDelay,
		"ratelimit.rate_limit_window": c.RateLimit.RateLimitWindow,
		"ratelimit.min_interval":      c.RateLimit.MinInterval,
	})
}

func (c *Config) validateFetch() error {
	b := c.Fetch.Breaker
	if b.FailureRatio < 0 || b.FailureRatio > maxFailureRatio {
		return fmt.Errorf("fetch.breaker.failure_ratio must be between 0 and %v", maxFailureRatio)
	}
	return nonNegative(map[string]time.Duration{
		"fetch.timeout":          c.Fetch.Timeout,
		"fetch.breaker.interval": b.Interval,
		"fetch.breaker.timeout":  b.Timeout,
	})
}

func (c *Config) validateEnrich() error {
	if c.Enrich.Concurrency < 0 || c.Enrich.Concurrency > maxEnrichConcurrency {
		return fmt.Errorf("enrich.concurrency must be between 0 and %d", maxEnrichConcurrency)
	}
	return nonNegative(map[string]time.Duration{"enrich.ttl": c.Enrich.TTL})
}

func (c *Config) validateBridge() error {
	for _, origin := range c.Bridge.AllowedOrigins {
		if err := validateOrigin(origin, "bridge.allowed_origins"); err != nil {
			return err
		}
	}
	if c.Bridge.Enabled && c.IsProduction() && slices.Contains(c.Bridge.AllowedOrigins, "*") {
		return errors.New("bridge.allowed_origins=* is not allowed when ENVIRONMENT=production")
	}
	return nonNegative(map[string]time.Duration{"bridge.request_timeout": c.Bridge.RequestTimeout})
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

func nonNegative(durations map[string]time.Duration) error {
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, d)
		}
	}
	return nil
}
