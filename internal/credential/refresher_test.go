// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package credential

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPRefresher(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantAccess string
		wantTTL    time.Duration
	}{
		{
			name:       "success",
			status:     http.StatusOK,
			body:       `{"access_token":"new","refresh_token":"r2","expires_in":900,"account_id":"acct"}`,
			wantAccess: "new",
			wantTTL:    15 * time.Minute,
		},
		{
			name:    "reported error",
			status:  http.StatusOK,
			body:    `{"error":"invalid_grant","error_description":"expired"}`,
			wantErr: ErrRefreshRejected,
		},
		{
			name:    "non-2xx",
			status:  http.StatusUnauthorized,
			body:    `{}`,
			wantErr: ErrRefreshRejected,
		},
		{
			name:    "missing access token",
			status:  http.StatusOK,
			body:    `{"expires_in":900}`,
			wantErr: ErrRefreshRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s", r.Method)
				}
				if err := r.ParseForm(); err != nil {
					t.Fatal(err)
				}
				if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "r1" {
					t.Errorf("form = %v", r.PostForm)
				}
				if r.PostForm.Get("client_id") != "marquee" {
					t.Errorf("client_id = %q", r.PostForm.Get("client_id"))
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			grant, err := NewHTTPRefresher(srv.URL, "marquee", nil).Refresh(context.Background(), "r1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Refresh: %v", err)
			}
			if grant.AccessToken != tt.wantAccess || grant.ExpiresIn != tt.wantTTL {
				t.Errorf("grant = %+v", grant)
			}
		})
	}
}

func TestRefresherFunc(t *testing.T) {
	f := RefresherFunc(func(_ context.Context, rt string) (Grant, error) {
		return Grant{AccessToken: "for-" + rt}, nil
	})
	g, err := f.Refresh(context.Background(), "x")
	if err != nil || g.AccessToken != "for-x" {
		t.Errorf("grant = %+v, %v", g, err)
	}
}
