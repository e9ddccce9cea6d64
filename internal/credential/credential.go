// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package credential

import (
	"errors"
	"time"
)

var (
	// ErrNoCredential is returned when no valid credential is held and none can be obtained.
	ErrNoCredential = errors.New("credential: no valid credential")

	// ErrRefreshRejected means the token endpoint refused the refresh token.
	ErrRefreshRejected = errors.New("credential: refresh rejected")

	// ErrNoRefresher means refresh was requested but no Refresher is configured.
	ErrNoRefresher = errors.New("credential: no refresher configured")

	// ErrInvalidObservation means an observed credential carried no token.
	ErrInvalidObservation = errors.New("credential: observed credential has no token")

	// ErrExpiredObservation means an observed JWT carried an exp in the past.
	ErrExpiredObservation = errors.New("credential: observed credential has already expired")
)

// Credential is an opaque bearer token with its absolute expiry.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccountID    string    `json:"account_id,omitempty"`
	ProfileID    string    `json:"profile_id,omitempty"`
}

// ValidAt reports whether c can be used at now.
func (c Credential) ValidAt(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt)
}

// CanRefresh reports whether c carries a refresh token.
func (c Credential) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Observation is a credential captured from the host application.
type Observation struct {
	Token        string `json:"token" validate:"required,min=8"`
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the lifetime in seconds. Zero means unknown.
	ExpiresIn int    `json:"expires_in,omitempty" validate:"gte=0"`
	AccountID string `json:"account_id,omitempty" validate:"omitempty,max=128"`
	ProfileID string `json:"profile_id,omitempty" validate:"omitempty,max=128"`
}

// Grant is a successful token endpoint response.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	AccountID    string
	ProfileID    string
}

// Status summarizes the held credential without exposing token values.
type Status struct {
	HasToken   bool      `json:"has_token"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	ExpiresIn  float64   `json:"expires_in_seconds,omitempty"`
	CanRefresh bool      `json:"can_refresh"`
	AccountID  string    `json:"account_id,omitempty"`
	ProfileID  string    `json:"profile_id,omitempty"`
}
