// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package credential

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Refresher exchanges a refresh token for a new credential.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (Grant, error)

// Refresh implements Refresher.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	return f(ctx, refreshToken)
}

// HTTPRefresher calls an OAuth2-style token endpoint with grant_type=refresh_token.
type HTTPRefresher struct {
	endpoint string
	clientID string
	client   *http.Client
}

// NewHTTPRefresher creates a refresher for endpoint. client may be nil.
func NewHTTPRefresher(endpoint, clientID string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRefresher{endpoint: endpoint, clientID: clientID, client: client}
}

// tokenResponse is the token endpoint payload.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	AccountID        string `json:"account_id"`
	ProfileID        string `json:"profile_id"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh implements Refresher. A non-2xx status, an error field in the
// payload or a missing access token all yield ErrRefreshRejected.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	if r.clientID != "" {
		form.Set("client_id", r.clientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Grant{}, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Grant{}, fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Grant{}, fmt.Errorf("%w: HTTP %d", ErrRefreshRejected, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Grant{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if tr.Error != "" {
		return Grant{}, fmt.Errorf("%w: %s %s", ErrRefreshRejected, tr.Error, tr.ErrorDescription)
	}
	if tr.AccessToken == "" {
		return Grant{}, fmt.Errorf("%w: no access token in response", ErrRefreshRejected)
	}

	return Grant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    time.Duration(tr.ExpiresIn) * time.Second,
		AccountID:    tr.AccountID,
		ProfileID:    tr.ProfileID,
	}, nil
}
