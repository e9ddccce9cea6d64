// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/credential"
	"github.com/tomtom215/marquee/internal/enrich"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/metadata"
	"github.com/tomtom215/marquee/internal/ratelimit"
	"github.com/tomtom215/marquee/internal/storage"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/marquee/config.yaml",
	"/etc/marquee/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix is stripped from environment variable names.
const EnvPrefix = "MARQUEE_"

// Server defaults.
const (
	DefaultPort            = 8620
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRateLimitReqs   = 100
	DefaultBridgeTimeout   = 15 * time.Second
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              DefaultPort,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   DefaultShutdownTimeout,
			Environment:       "development",
			CORSOrigins:       []string{},
			RateLimitRequests: DefaultRateLimitReqs,
			RateLimitWindow:   time.Minute,
		},
		Catalog: catalog.Config{
			BaseURL:   "",
			Locale:    "en-US",
			SeriesTTL: catalog.DefaultSeriesTTL,
			SearchTTL: catalog.DefaultSearchTTL,
			BrowseTTL: catalog.DefaultBrowseTTL,
		},
		Metadata: metadata.Config{
			Endpoint: metadata.DefaultEndpoint,
			TTL:      metadata.DefaultTTL,
			PerPage:  metadata.DefaultPerPage,
		},
		Auth: AuthConfig{
			DefaultLifetime:  credential.DefaultLifetime,
			RefreshThreshold: credential.DefaultRefreshThreshold,
			RefreshTimeout:   credential.DefaultRefreshTimeout,
			SweepInterval:    credential.DefaultSweepInterval,
		},
		Cache: CacheConfig{
			Kind:           storage.KindBadger,
			Path:           "/data/marquee/cache",
			FallbackKind:   storage.KindMemory,
			MemoryCapacity: storage.DefaultMemoryCapacity,
			SweepInterval:  10 * time.Minute,
		},
		RateLimit: ratelimit.DefaultConfig(),
		Fetch: FetchConfig{
			Timeout: fetch.DefaultTimeout,
			Breaker: fetch.DefaultBreakerConfig(),
		},
		Enrich: EnrichConfig{
			Concurrency: enrich.DefaultConcurrency,
			TTL:         enrich.DefaultTTL,
		},
		Bridge: BridgeConfig{
			Enabled:        true,
			AllowedOrigins: []string{},
			RequestTimeout: DefaultBridgeTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads defaults, the optional config file and the environment, then
// validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set via env.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"bridge.allowed_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased variable names to config paths. Unprefixed
// names are the conventional ones operators already set; everything else
// goes through the MARQUEE_ prefix.
var envMappings = map[string]string{
	"http_host":           "server.host",
	"http_port":           "server.port",
	"environment":         "server.environment",
	"cors_origins":        "server.cors_origins",
	"disable_rate_limit":  "server.rate_limit_disabled",
	"log_level":           "logging.level",
	"log_format":          "logging.format",
	"log_caller":          "logging.caller",
	"catalog_base_url":    "catalog.base_url",
	"catalog_locale":      "catalog.locale",
	"metadata_endpoint":   "metadata.endpoint",
	"auth_token_endpoint": "auth.token_endpoint",
	"auth_client_id":      "auth.client_id",
	"credential_key":      "auth.encryption_key",
	"cache_kind":          "cache.kind",
	"cache_path":          "cache.path",

	"marquee_fetch_breaker_enabled":       "fetch.breaker.enabled",
	"marquee_fetch_breaker_min_requests":  "fetch.breaker.min_requests",
	"marquee_fetch_breaker_failure_ratio": "fetch.breaker.failure_ratio",
	"marquee_fetch_breaker_interval":      "fetch.breaker.interval",
	"marquee_fetch_breaker_timeout":       "fetch.breaker.timeout",
	"marquee_fetch_breaker_max_half_open": "fetch.breaker.max_half_open",
}

// configSections are the top-level keys a MARQUEE_<SECTION>_<FIELD> name may
// address.
var configSections = []string{
	"server", "catalog", "metadata", "auth", "cache",
	"ratelimit", "fetch", "enrich", "bridge", "logging",
}

// envTransformFunc maps an environment variable name to a koanf path, or ""
// to ignore it.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - MARQUEE_CACHE_FALLBACK_KIND -> cache.fallback_kind
//   - MARQUEE_RATELIMIT_BASE_DELAY -> ratelimit.base_delay
func envTransformFunc(key string) string {
	lower := strings.ToLower(key)
	if path, ok := envMappings[lower]; ok {
		return path
	}

	rest, ok := strings.CutPrefix(lower, strings.ToLower(EnvPrefix))
	if !ok {
		return ""
	}
	for _, section := range configSections {
		if field, ok := strings.CutPrefix(rest, section+"_"); ok && field != "" {
			return section + "." + field
		}
	}
	return ""
}
