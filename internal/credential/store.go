// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/storage"
)

// StorageKey is where BackendStore keeps the credential record.
const StorageKey = "auth:credential"

// Store persists the current credential.
type Store interface {
	// Load returns ok=false when nothing is stored.
	Load(ctx context.Context) (cred Credential, ok bool, err error)
	Save(ctx context.Context, cred Credential) error
	Clear(ctx context.Context) error
}

// BackendStore keeps the credential in a storage.Backend.
type BackendStore struct {
	backend storage.Backend
	enc     *Encryptor
	now     func() time.Time
}

// NewBackendStore creates a Store over backend. enc may be nil.
func NewBackendStore(backend storage.Backend, enc *Encryptor) *BackendStore {
	return &BackendStore{backend: backend, enc: enc, now: time.Now}
}

// Load implements Store.
func (s *BackendStore) Load(ctx context.Context) (Credential, bool, error) {
	rec, err := s.backend.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("load credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(rec.Data, &cred); err != nil {
		return Credential{}, false, fmt.Errorf("decode credential: %w", err)
	}
	if cred.AccessToken, err = s.enc.Open(cred.AccessToken); err != nil {
		return Credential{}, false, fmt.Errorf("open access token: %w", err)
	}
	if cred.RefreshToken, err = s.enc.Open(cred.RefreshToken); err != nil {
		return Credential{}, false, fmt.Errorf("open refresh token: %w", err)
	}
	return cred, true, nil
}

// Save implements Store. The record carries no storage expiry: an expired
// credential with a refresh token must survive restarts.
func (s *BackendStore) Save(ctx context.Context, cred Credential) error {
	var err error
	if cred.AccessToken, err = s.enc.Seal(cred.AccessToken); err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	if cred.RefreshToken, err = s.enc.Seal(cred.RefreshToken); err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	return s.backend.Set(ctx, StorageKey, storage.Record{Data: data, Timestamp: s.now()})
}

// Clear implements Store.
func (s *BackendStore) Clear(ctx context.Context) error {
	return s.backend.Delete(ctx, StorageKey)
}
