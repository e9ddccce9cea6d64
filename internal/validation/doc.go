// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package validation wraps go-playground/validator v10 with a shared
// instance, the custom tags used by request types, and translation of field
// errors into the API's VALIDATION_ERROR format.
//
// Custom tags:
//   - seriesid: catalog series identifier, 1-64 of [A-Za-z0-9_-]
//   - apppath: absolute application path such as "/series/GR1"
//
// Field names in errors come from json tags, so messages name the wire field:
//
//	type observeRequest struct {
//	    Token     string `json:"token" validate:"required,min=8"`
//	    ExpiresIn int    `json:"expires_in" validate:"gte=0"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	    return
//	}
package validation
