// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/credential"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/overlay"
)

// Error codes.
const (
	codeValidation   = "VALIDATION_ERROR"
	codeNotFound     = "NOT_FOUND"
	codeNoCredential = "NO_CREDENTIAL"
	codeUpstream     = "UPSTREAM_ERROR"
	codeTimeout      = "TIMEOUT"
	codeBadRequest   = "BAD_REQUEST"
	codeRefresh      = "REFRESH_FAILED"
)

// respondServiceError maps core errors to HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidID), errors.Is(err, catalog.ErrInvalidEndpoint):
		respondError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
	case errors.Is(err, credential.ErrInvalidObservation), errors.Is(err, credential.ErrExpiredObservation):
		respondError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
	case errors.Is(err, overlay.ErrNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, "Series not found", nil)
	case errors.Is(err, credential.ErrNoCredential):
		respondError(w, http.StatusUnauthorized, codeNoCredential, "No valid credential", nil)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, codeTimeout, "Request timed out", err)
	case errors.Is(err, fetch.ErrMalformed):
		respondError(w, http.StatusBadGateway, codeUpstream, "Upstream returned a malformed payload", err)
	default:
		var httpErr *fetch.HTTPError
		if errors.As(err, &httpErr) {
			respondError(w, http.StatusBadGateway, codeUpstream, "Upstream rejected the request", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", err)
	}
}
