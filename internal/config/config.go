// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/metadata"
	"github.com/tomtom215/marquee/internal/ratelimit"
)

// Config holds all application configuration.
//
// Loading order (highest priority last):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Catalog   catalog.Config   `koanf:"catalog"`
	Metadata  metadata.Config  `koanf:"metadata"`
	Auth      AuthConfig       `koanf:"auth"`
	Cache     CacheConfig      `koanf:"cache"`
	RateLimit ratelimit.Config `koanf:"ratelimit"`
	Fetch     FetchConfig      `koanf:"fetch"`
	Enrich    EnrichConfig     `koanf:"enrich"`
	Bridge    BridgeConfig     `koanf:"bridge"`
	Logging   LoggingConfig    `koanf:"logging"`
}

// ServerConfig configures the HTTP listener and its middleware.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging, production

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AuthConfig configures the credential manager and its token endpoint.
type AuthConfig struct {
	// TokenEndpoint receives grant_type=refresh_token requests. Empty
	// disables refresh: credentials are only ever observed.
	TokenEndpoint string `koanf:"token_endpoint"`
	ClientID      string `koanf:"client_id"`

	// EncryptionKey is a base64 key of at least 16 bytes. Empty stores the
	// credential unencrypted.
	EncryptionKey string `koanf:"encryption_key"`

	DefaultLifetime  time.Duration `koanf:"default_lifetime"`
	RefreshThreshold time.Duration `koanf:"refresh_threshold"`
	RefreshTimeout   time.Duration `koanf:"refresh_timeout"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
}

// CacheConfig selects the durable and fallback storage backends.
type CacheConfig struct {
	Kind     string `koanf:"kind"` // badger, sqlite, memory
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	FallbackKind string `koanf:"fallback_kind"` // memory, sqlite, none
	FallbackPath string `koanf:"fallback_path"`

	MemoryCapacity int           `koanf:"memory_capacity"`
	SweepInterval  time.Duration `koanf:"sweep_interval"`
}

// FetchConfig tunes the upstream HTTP pipeline.
type FetchConfig struct {
	Timeout   time.Duration       `koanf:"timeout"`
	UserAgent string              `koanf:"user_agent"`
	Breaker   fetch.BreakerConfig `koanf:"breaker"`
}

// EnrichConfig tunes the enrichment engine.
type EnrichConfig struct {
	Concurrency int           `koanf:"concurrency"`
	TTL         time.Duration `koanf:"ttl"`
}

// BridgeConfig configures the WebSocket bridge.
type BridgeConfig struct {
	Enabled        bool          `koanf:"enabled"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether Environment is production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// IsDevelopment reports whether Environment is development or unset.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "" || c.Server.Environment == "development"
}

// Summary returns non-secret settings for the startup log line.
func (c *Config) Summary() map[string]string {
	return map[string]string{
		"addr":           c.Server.Addr(),
		"environment":    c.Server.Environment,
		"catalog":        c.Catalog.BaseURL,
		"metadata":       c.Metadata.Endpoint,
		"cache":          c.Cache.Kind,
		"cache_fallback": c.Cache.FallbackKind,
		"refresh":        fmt.Sprintf("%t", c.Auth.TokenEndpoint != ""),
		"encrypted":      fmt.Sprintf("%t", c.Auth.EncryptionKey != ""),
		"bridge":         fmt.Sprintf("%t", c.Bridge.Enabled),
	}
}
