// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/marquee/internal/overlay"
	"github.com/tomtom215/marquee/internal/ratelimit"
)

// HealthStatus is the payload of GET /api/v1/health.
type HealthStatus struct {
	Status  string         `json:"status"` // "healthy" or "degraded"
	Version string         `json:"version"`
	Uptime  float64        `json:"uptime_seconds"`
	Overlay overlay.Status `json:"overlay"`
}

// Health reports credential, upstream limiter and cache state. Any upstream
// outside the normal state marks the service degraded; the status code stays
// 200 since cached data is still served.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	st := h.overlay.Status()

	status := "healthy"
	for _, u := range st.Upstreams {
		if u.State != ratelimit.StateNormal {
			status = "degraded"
			break
		}
	}

	respondSuccess(w, HealthStatus{
		Status:  status,
		Version: h.version,
		Uptime:  time.Since(h.startTime).Seconds(),
		Overlay: st,
	}, "", status == "degraded", start)
}

// HealthLive reports that the process is serving requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, map[string]string{"status": "alive"}, "", false, time.Now())
}
