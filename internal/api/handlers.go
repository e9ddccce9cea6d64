// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"time"

	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/credential"
	"github.com/tomtom215/marquee/internal/enrich"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/overlay"
)

// Overlay is the core facade the handlers call.
type Overlay interface {
	Navigate(ctx context.Context, path string) (overlay.View, error)
	Series(ctx context.Context, id string, force bool) (*models.EnrichedRecord, fetch.Source, error)
	Search(ctx context.Context, query string, limit int, sortBy enrich.SortKey) (overlay.Result, error)
	Browse(ctx context.Context, p catalog.BrowseParams, sortBy enrich.SortKey) (overlay.Result, error)
	Status() overlay.Status
}

// Session is the credential manager surface the handlers call.
type Session interface {
	Status() credential.Status
	ObserveCredential(ctx context.Context, obs credential.Observation) (credential.Credential, error)
	RefreshToken(ctx context.Context, refreshToken string) bool
	RefreshCurrent(ctx context.Context) bool
	ClearToken(ctx context.Context)
}

// Handler serves the REST endpoints.
type Handler struct {
	overlay   Overlay
	session   Session
	version   string
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(ov Overlay, session Session, version string) *Handler {
	return &Handler{
		overlay:   ov,
		session:   session,
		version:   version,
		startTime: time.Now(),
	}
}
