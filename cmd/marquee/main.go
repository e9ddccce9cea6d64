// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package main is the entry point for the Marquee server.
//
// Marquee sits next to a streaming web application. It holds the session
// credential the page observes, fetches catalog data through a cached and
// rate-limited pipeline, joins each series with community metadata and
// serves the result to the page over REST and a WebSocket bridge.
//
// # Startup Order
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Logging (zerolog)
//  3. Storage backends and the cache store
//  4. Rate limiter and fetch pipeline, authenticated by the credential manager
//  5. Credential manager, restored from the durable backend
//  6. Catalog and metadata clients, enrichment engine, overlay service
//  7. Bridge hub and dispatcher, REST handlers and chi router
//  8. Supervisor tree: cache sweeper, credential sweeper, bridge hub, HTTP server
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The HTTP server drains for
// server.shutdown_timeout, bridge clients receive a close frame and the
// storage backends are closed last.
//
// # Example
//
//	export CATALOG_BASE_URL=https://catalog.example-streaming.com/cms/v2
//	export CORS_ORIGINS=https://www.example-streaming.com
//	export CREDENTIAL_KEY=$(openssl rand -base64 32)
//	./marquee
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/marquee/internal/api"
	"github.com/tomtom215/marquee/internal/bridge"
	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/credential"
	"github.com/tomtom215/marquee/internal/enrich"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metadata"
	"github.com/tomtom215/marquee/internal/overlay"
	"github.com/tomtom215/marquee/internal/ratelimit"
	"github.com/tomtom215/marquee/internal/storage"
	"github.com/tomtom215/marquee/internal/supervisor"
	"github.com/tomtom215/marquee/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // sequential wiring
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: os.Stderr,
	})

	event := logging.Info().Str("version", version)
	for k, v := range cfg.Summary() {
		event = event.Str(k, v)
	}
	event.Msg("Starting Marquee")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tier, err := openTier(cfg.Cache)
	if err != nil {
		logging.Warn().Err(err).Msg("No cache storage could be opened, caching disabled")
	}
	defer func() {
		if err := tier.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage backends")
		}
	}()

	store := cache.New(tier.Durable, tier.Fallback)
	tracker := ratelimit.New(cfg.RateLimit)

	encryptor, err := credential.NewEncryptor(cfg.Auth.EncryptionKey, "")
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid credential encryption key")
	}
	if encryptor == nil {
		logging.Warn().Msg("Credential encryption disabled (CREDENTIAL_KEY unset)")
	}

	var refresher credential.Refresher
	if cfg.Auth.TokenEndpoint != "" {
		refresher = credential.NewHTTPRefresher(cfg.Auth.TokenEndpoint, cfg.Auth.ClientID,
			&http.Client{Timeout: cfg.Auth.RefreshTimeout})
	} else {
		logging.Info().Msg("No token endpoint configured: credentials are observe-only")
	}

	// The credential lives in the durable backend so the fallback LRU cannot
	// evict it. Without one it falls back to whatever storage opened.
	manager := credential.NewManager(
		credential.NewBackendStore(tier.Persistent(), encryptor),
		refresher,
		credential.WithDefaultLifetime(cfg.Auth.DefaultLifetime),
		credential.WithRefreshThreshold(cfg.Auth.RefreshThreshold),
		credential.WithRefreshTimeout(cfg.Auth.RefreshTimeout),
		credential.WithSweepInterval(cfg.Auth.SweepInterval),
	)
	defer func() {
		if err := manager.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing credential manager")
		}
	}()
	if err := manager.Restore(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to restore persisted credential")
	}

	pipeline := fetch.New(&http.Client{}, store, tracker,
		fetch.WithTokenSource(manager),
		fetch.WithDefaultTimeout(cfg.Fetch.Timeout),
		fetch.WithBreakerConfig(cfg.Fetch.Breaker),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
	)

	catalogClient, err := catalog.New(cfg.Catalog, pipeline)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create catalog client")
	}
	metadataClient := metadata.New(cfg.Metadata, pipeline)

	engine := enrich.New(metadataClient, store,
		enrich.WithTTL(cfg.Enrich.TTL),
		enrich.WithConcurrency(cfg.Enrich.Concurrency),
	)

	ov := overlay.New(overlay.Deps{
		Catalog:     catalogClient,
		Enricher:    engine,
		Credentials: manager,
		Limits:      tracker,
		Cache:       store,
	})

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	var bridgeHandler http.Handler
	if cfg.Bridge.Enabled {
		hub := bridge.NewHub()
		bridgeServer := bridge.NewServer(hub, bridge.NewDispatcher(catalogClient, manager, ov), bridge.ServerConfig{
			AllowedOrigins: cfg.Bridge.AllowedOrigins,
			RequestTimeout: cfg.Bridge.RequestTimeout,
		})
		stopWatching := bridgeServer.WatchCredentials(manager)
		defer stopWatching()

		tree.AddSessionService(hub)
		bridgeHandler = bridgeServer
		logging.Info().Strs("origins", cfg.Bridge.AllowedOrigins).Msg("Bridge enabled at /bridge")
	}

	router := api.NewRouter(
		api.NewHandler(ov, manager, version),
		api.NewChiMiddleware(&api.ChiMiddlewareConfig{
			CORSAllowedOrigins: cfg.Server.CORSOrigins,
			RateLimitRequests:  cfg.Server.RateLimitRequests,
			RateLimitWindow:    cfg.Server.RateLimitWindow,
			RateLimitDisabled:  cfg.Server.RateLimitDisabled,
			CORSMaxAge:         86400,
		}),
		bridgeHandler,
	)
	if cfg.Server.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	server := &http.Server{
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree.AddDataService(cache.NewSweeper(store, cfg.Cache.SweepInterval))
	tree.AddSessionService(manager)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Addr(), cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", cfg.Server.Addr()).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Marquee stopped")
}

// openTier opens the durable cache backend and its fallback. A fallback
// kind of "none" opens no fallback.
func openTier(cfg config.CacheConfig) (storage.Tier, error) {
	durable := storage.Options{
		Kind:           cfg.Kind,
		Path:           cfg.Path,
		InMemory:       cfg.InMemory,
		MemoryCapacity: cfg.MemoryCapacity,
	}
	if cfg.FallbackKind == "none" {
		return storage.OpenTier(durable, nil)
	}
	return storage.OpenTier(durable, &storage.Options{
		Kind:           cfg.FallbackKind,
		Path:           cfg.FallbackPath,
		InMemory:       cfg.FallbackPath == "",
		MemoryCapacity: cfg.MemoryCapacity,
	})
}
