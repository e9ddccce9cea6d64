// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	bridge        http.Handler
}

// NewRouter creates a Router. bridge may be nil to disable /bridge.
func NewRouter(handler *Handler, mw *ChiMiddleware, bridge http.Handler) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw, bridge: bridge}
}

// SetupChi builds the route tree.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(router.chiMiddleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
	})

	r.Route("/api/v1/credential", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitCredential))
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics)
		r.Get("/", router.handler.CredentialStatus)
		r.Post("/", router.handler.CredentialObserve)
		r.Delete("/", router.handler.CredentialClear)
		r.Post("/refresh", router.handler.CredentialRefresh)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics)
		r.Post("/navigate", router.handler.Navigate)
		r.Get("/series/{id}", router.handler.Series)
		r.Get("/search", router.handler.Search)
		r.Get("/browse", router.handler.Browse)
	})

	if router.bridge != nil {
		r.With(router.chiMiddleware.RateLimitCustom(RateLimitBridge)).Handle("/bridge", router.bridge)
	}

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}
