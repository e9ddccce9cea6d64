// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package credential owns the short-lived bearer credential used against the
catalog upstream.

A Manager holds exactly one current Credential, mirrors it into a Store, and
notifies subscribers whenever it changes. It is the only writer; everything
else reads through GetToken, HasToken or a subscription.

# Lifecycle

	Absent --SetToken/ObserveCredential--> Valid(expiry)
	Valid --expiry near, refresh token held--> Refreshing --ok--> Valid
	Refreshing --failure--> Absent (the refresh token is discarded)
	Valid --expired, no refresh token--> Absent

Refreshes are single-flight: concurrent callers share one upstream call and
its outcome. A background sweep (Serve) refreshes credentials that expire
within the refresh threshold and clears expired ones that cannot be refreshed.

# Persistence

The persisted record is

	{"access_token": "...", "refresh_token": "...", "expires_at": "..."}

When an Encryptor is configured, both token fields are sealed with AES-GCM
using a key derived from the configured master key with HKDF-SHA256.

# Notifications

Listeners run synchronously, in subscription order, after the new value has
been persisted. A new subscriber is immediately called with the current
credential (or nil). Panicking listeners are recovered and logged. Listeners
must not call SetToken, ObserveCredential or ClearToken from inside the
callback.
*/
package credential
