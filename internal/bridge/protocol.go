// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package bridge

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/credential"
)

// Message types.
const (
	TypeAPIRequest         = "api_request"
	TypeTokenStatus        = "token_status"
	TypeCredentialObserved = "credential_observed"
	TypeNavigate           = "navigate"
	TypeEnrich             = "enrich"

	// Pushed by the server, never requested.
	TypeTokenChanged = "token_changed"
	TypePing         = "ping"
	TypePong         = "pong"
)

// Request is one inbound message. Params is decoded per type.
type Request struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Endpoint string          `json:"endpoint,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// Response answers exactly one Request.
type Response struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Push is a server-initiated message.
type Push struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func ok(req Request, data any) Response {
	return Response{Type: req.Type, ID: req.ID, Success: true, Data: data}
}

func fail(req Request, msg string) Response {
	return Response{Type: req.Type, ID: req.ID, Success: false, Error: msg}
}

// observedParams uses the page script's camelCase field names.
type observedParams struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	AccountID    string `json:"accountId"`
	ProfileID    string `json:"profileId"`
}

func (p observedParams) observation() credential.Observation {
	return credential.Observation{
		Token:        p.Token,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    p.ExpiresIn,
		AccountID:    p.AccountID,
		ProfileID:    p.ProfileID,
	}
}

type navigateParams struct {
	Path string `json:"path" validate:"required,apppath,max=2048"`
}

type enrichParams struct {
	IDs  []string `json:"ids" validate:"required,min=1,max=100,dive,seriesid"`
	Sort string   `json:"sort" validate:"omitempty,oneof=combined primary secondary popularity"`
}
