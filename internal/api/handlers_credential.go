// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/marquee/internal/credential"
	"github.com/tomtom215/marquee/internal/logging"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"omitempty,min=8"`
}

// CredentialStatus handles GET /api/v1/credential.
func (h *Handler) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, h.session.Status(), "", false, time.Now())
}

// CredentialObserve handles POST /api/v1/credential.
func (h *Handler) CredentialObserve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var obs credential.Observation
	if err := decodeJSONBody(r, &obs); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, "Invalid JSON body", nil)
		return
	}
	if apiErr := validateRequest(&obs); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if _, err := h.session.ObserveCredential(r.Context(), obs); err != nil {
		respondServiceError(w, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("account_id", sanitizeLogValue(obs.AccountID)).Msg("Credential observed")
	respondSuccess(w, h.session.Status(), "", false, start)
}

// CredentialRefresh handles POST /api/v1/credential/refresh. An empty body
// refreshes with the held refresh token.
func (h *Handler) CredentialRefresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req refreshRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, codeBadRequest, "Invalid JSON body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	var ok bool
	if req.RefreshToken != "" {
		ok = h.session.RefreshToken(r.Context(), req.RefreshToken)
	} else {
		ok = h.session.RefreshCurrent(r.Context())
	}
	if !ok {
		respondError(w, http.StatusUnauthorized, codeRefresh, "Credential refresh failed", nil)
		return
	}
	respondSuccess(w, h.session.Status(), "", false, start)
}

// CredentialClear handles DELETE /api/v1/credential.
func (h *Handler) CredentialClear(w http.ResponseWriter, r *http.Request) {
	h.session.ClearToken(r.Context())
	respondSuccess(w, h.session.Status(), "", false, time.Now())
}
