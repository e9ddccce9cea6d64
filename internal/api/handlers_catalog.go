// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/enrich"
)

type navigateRequest struct {
	Path string `json:"path" validate:"required,apppath,max=2048"`
}

type listRequest struct {
	Query  string `json:"q" validate:"omitempty,max=200"`
	Limit  int    `json:"n" validate:"gte=0,lte=100"`
	Start  int    `json:"start" validate:"gte=0"`
	SortBy string `json:"sort_by" validate:"omitempty,oneof=popularity newly_added alphabetical"`
	Sort   string `json:"sort" validate:"omitempty,oneof=combined primary secondary popularity"`
}

type seriesRequest struct {
	ID string `json:"id" validate:"required,seriesid"`
}

func parseListRequest(r *http.Request) listRequest {
	q := r.URL.Query()
	return listRequest{
		Query:  q.Get("q"),
		Limit:  getIntParam(r, "n", 0),
		Start:  getIntParam(r, "start", 0),
		SortBy: q.Get("sort_by"),
		Sort:   q.Get("sort"),
	}
}

// Navigate handles POST /api/v1/navigate.
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req navigateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, "Invalid JSON body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	view, err := h.overlay.Navigate(r.Context(), req.Path)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, view, view.Source, false, start)
}

// Series handles GET /api/v1/series/{id}. ?force=true bypasses caches.
func (h *Handler) Series(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := seriesRequest{ID: chi.URLParam(r, "id")}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	rec, source, err := h.overlay.Series(r.Context(), req.ID, getBoolParam(r, "force"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, rec, source, false, start)
}

// Search handles GET /api/v1/search?q=&n=&sort=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := parseListRequest(r)
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	res, err := h.overlay.Search(r.Context(), req.Query, req.Limit, enrich.SortKey(req.Sort))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, res, res.Source, false, start)
}

// Browse handles GET /api/v1/browse?sort_by=&n=&start=&sort=.
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := parseListRequest(r)
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	res, err := h.overlay.Browse(r.Context(), catalog.BrowseParams{
		Sort:  req.SortBy,
		Limit: req.Limit,
		Start: req.Start,
	}, enrich.SortKey(req.Sort))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, res, res.Source, false, start)
}
