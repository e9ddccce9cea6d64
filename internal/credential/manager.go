// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package credential

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

// Defaults for Manager options.
const (
	DefaultLifetime         = 300 * time.Second
	DefaultSweepInterval    = 30 * time.Second
	DefaultRefreshThreshold = 60 * time.Second
	DefaultRefreshTimeout   = 10 * time.Second
)

// refreshKey is the single-flight key. One refresh runs per Manager at a time.
const refreshKey = "refresh"

// Listener receives the new credential, or nil when it was cleared.
type Listener func(cred *Credential)

type subscriber struct {
	id uint64
	fn Listener
}

// notification is one queued delivery of cred to subs.
type notification struct {
	cred *Credential
	subs []subscriber
}

// Manager owns the current credential.
type Manager struct {
	store     Store
	refresher Refresher
	now       func() time.Time
	logger    zerolog.Logger

	lifetime         time.Duration
	sweepInterval    time.Duration
	refreshThreshold time.Duration
	refreshTimeout   time.Duration

	// mu guards current.
	mu      sync.RWMutex
	current *Credential

	// writeMu serializes change+persist and the enqueueing of its
	// notification, so the queue order is the change order.
	writeMu     sync.Mutex
	subscribers []subscriber
	nextID      uint64

	// notifyMu guards pending and delivering. Listeners run with no lock
	// held; a change made from inside a listener is queued and delivered
	// after the current one.
	notifyMu   sync.Mutex
	pending    []notification
	delivering bool

	flight  singleflight.Group
	resetCh chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSweepInterval sets how often Serve sweeps.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithRefreshThreshold sets how close to expiry the sweep refreshes.
func WithRefreshThreshold(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshThreshold = d
		}
	}
}

// WithDefaultLifetime sets the lifetime used when none is known.
func WithDefaultLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

// WithRefreshTimeout bounds each refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager. store and refresher may be nil.
func NewManager(store Store, refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		store:            store,
		refresher:        refresher,
		now:              time.Now,
		logger:           logging.WithComponent("credential"),
		lifetime:         DefaultLifetime,
		sweepInterval:    DefaultSweepInterval,
		refreshThreshold: DefaultRefreshThreshold,
		refreshTimeout:   DefaultRefreshTimeout,
		resetCh:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads the persisted credential, if any. Subscribers are not notified.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	cred, ok, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore credential: %w", err)
	}
	if !ok {
		return nil
	}

	m.mu.Lock()
	m.current = &cred
	m.mu.Unlock()
	metrics.SetCredentialValid(cred.ValidAt(m.now()))

	m.logger.Info().Time("expires_at", cred.ExpiresAt).Bool("can_refresh", cred.CanRefresh()).
		Msg("Restored persisted credential")
	return nil
}

// snapshot returns a copy of the current credential.
func (m *Manager) snapshot() (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Credential{}, false
	}
	return *m.current, true
}

// GetToken returns the current credential if it is valid. An expired
// credential with a refresh token starts a background refresh; one without
// is cleared. In both cases no credential is returned.
func (m *Manager) GetToken() (Credential, bool) {
	cred, ok := m.snapshot()
	if !ok {
		return Credential{}, false
	}
	if cred.ValidAt(m.now()) {
		return cred, true
	}

	if cred.CanRefresh() {
		go m.RefreshToken(context.Background(), cred.RefreshToken)
		return Credential{}, false
	}

	m.logger.Debug().Time("expired_at", cred.ExpiresAt).Msg("Credential expired without refresh token, clearing")
	m.clearIf(context.Background(), func(c *Credential) bool { return c.AccessToken == cred.AccessToken })
	return Credential{}, false
}

// AccessToken returns the bearer token for outbound requests.
func (m *Manager) AccessToken() (string, bool) {
	cred, ok := m.GetToken()
	if !ok {
		return "", false
	}
	return cred.AccessToken, true
}

// HasToken reports whether a valid credential is held.
func (m *Manager) HasToken() bool {
	_, ok := m.GetToken()
	return ok
}

// Status describes the held credential without token values.
func (m *Manager) Status() Status {
	cred, ok := m.snapshot()
	now := m.now()
	if !ok || !cred.ValidAt(now) {
		return Status{CanRefresh: ok && cred.CanRefresh()}
	}
	return Status{
		HasToken:   true,
		ExpiresAt:  cred.ExpiresAt,
		ExpiresIn:  cred.ExpiresAt.Sub(now).Seconds(),
		CanRefresh: cred.CanRefresh(),
		AccountID:  cred.AccountID,
		ProfileID:  cred.ProfileID,
	}
}

// AwaitValidToken returns a valid credential, refreshing and waiting for the
// result when the held one has expired.
func (m *Manager) AwaitValidToken(ctx context.Context) (Credential, error) {
	cred, ok := m.snapshot()
	if !ok {
		return Credential{}, ErrNoCredential
	}
	if cred.ValidAt(m.now()) {
		return cred, nil
	}
	if !cred.CanRefresh() {
		m.clearIf(ctx, func(c *Credential) bool { return c.AccessToken == cred.AccessToken })
		return Credential{}, ErrNoCredential
	}

	if !m.RefreshToken(ctx, cred.RefreshToken) {
		if err := ctx.Err(); err != nil {
			return Credential{}, err
		}
		return Credential{}, ErrNoCredential
	}
	if cred, ok := m.snapshot(); ok && cred.ValidAt(m.now()) {
		return cred, nil
	}
	return Credential{}, ErrNoCredential
}

// SetToken installs a new credential. A non-positive expiresIn uses the
// default lifetime. It persists the credential, notifies subscribers and
// restarts the sweep timer.
func (m *Manager) SetToken(ctx context.Context, accessToken, refreshToken string, expiresIn time.Duration) Credential {
	if expiresIn <= 0 {
		expiresIn = m.lifetime
	}
	cred := Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    m.now().Add(expiresIn),
	}
	m.apply(ctx, cred)
	return cred
}

// ObserveCredential installs a credential captured from the host
// application. Without ExpiresIn the JWT exp claim is used when present,
// otherwise the default lifetime. A JWT that has already expired is rejected. A missing refresh token keeps the one
// already held.
func (m *Manager) ObserveCredential(ctx context.Context, obs Observation) (Credential, error) {
	if obs.Token == "" {
		return Credential{}, ErrInvalidObservation
	}

	now := m.now()
	var expiresAt time.Time
	switch {
	case obs.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(obs.ExpiresIn) * time.Second)
	default:
		exp, ok := expiryFromJWT(obs.Token)
		switch {
		case !ok:
			expiresAt = now.Add(m.lifetime)
		case !exp.After(now):
			return Credential{}, ErrExpiredObservation
		default:
			expiresAt = exp
		}
	}

	refresh := obs.RefreshToken
	if refresh == "" {
		if cur, ok := m.snapshot(); ok {
			refresh = cur.RefreshToken
		}
	}

	cred := Credential{
		AccessToken:  obs.Token,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		AccountID:    obs.AccountID,
		ProfileID:    obs.ProfileID,
	}
	m.apply(ctx, cred)
	m.logger.Debug().Time("expires_at", expiresAt).Str("account_id", obs.AccountID).Msg("Observed credential installed")
	return cred, nil
}

// RefreshToken exchanges refreshToken for a new credential. Concurrent calls
// share one upstream request and its outcome. On failure the credential is
// cleared and false is returned. If ctx ends first, false is returned while
// the shared refresh carries on.
func (m *Manager) RefreshToken(ctx context.Context, refreshToken string) bool {
	if m.refresher == nil {
		m.logger.Debug().Err(ErrNoRefresher).Msg("Refresh skipped")
		return false
	}

	ch := m.flight.DoChan(refreshKey, func() (any, error) {
		return nil, m.doRefresh(context.WithoutCancel(ctx), refreshToken)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordCredentialRefresh("shared")
		}
		return res.Err == nil
	case <-ctx.Done():
		return false
	}
}

// RefreshCurrent refreshes with the held refresh token. It returns false
// without side effects when no refreshable credential is held.
func (m *Manager) RefreshCurrent(ctx context.Context) bool {
	cred, ok := m.snapshot()
	if !ok || !cred.CanRefresh() {
		return false
	}
	return m.RefreshToken(ctx, cred.RefreshToken)
}

func (m *Manager) doRefresh(ctx context.Context, refreshToken string) error {
	ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	grant, err := m.refresher.Refresh(ctx, refreshToken)
	// The refresh deadline must not cut short persisting its outcome.
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		metrics.RecordCredentialRefresh("failure")
		m.logger.Warn().Err(err).Msg("Credential refresh failed, clearing credential")
		m.clearIf(persistCtx, func(c *Credential) bool { return c.RefreshToken == refreshToken })
		return err
	}

	expiresIn := grant.ExpiresIn
	if expiresIn <= 0 {
		if exp, ok := expiryFromJWT(grant.AccessToken); ok {
			expiresIn = exp.Sub(m.now())
		}
	}
	if expiresIn <= 0 {
		expiresIn = m.lifetime
	}

	next := Credential{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    m.now().Add(expiresIn),
		AccountID:    grant.AccountID,
		ProfileID:    grant.ProfileID,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = refreshToken
	}
	if cur, ok := m.snapshot(); ok {
		if next.AccountID == "" {
			next.AccountID = cur.AccountID
		}
		if next.ProfileID == "" {
			next.ProfileID = cur.ProfileID
		}
	}

	m.apply(persistCtx, next)
	metrics.RecordCredentialRefresh("success")
	m.logger.Info().Time("expires_at", next.ExpiresAt).Msg("Credential refreshed")
	return nil
}

// ClearToken drops the credential and notifies subscribers with nil.
func (m *Manager) ClearToken(ctx context.Context) {
	m.clearIf(ctx, func(*Credential) bool { return true })
}

// clearIf clears the credential when match accepts the current one.
// A credential replaced since the caller looked is left alone.
func (m *Manager) clearIf(ctx context.Context, match func(c *Credential) bool) {
	m.writeMu.Lock()

	m.mu.Lock()
	if m.current == nil || !match(m.current) {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to clear persisted credential")
		}
	}
	metrics.SetCredentialValid(false)
	m.enqueueLocked(nil, m.subscribers)
	m.writeMu.Unlock()

	m.deliver()
}

// apply installs cred, persists it, notifies and resets the sweep timer.
func (m *Manager) apply(ctx context.Context, cred Credential) {
	m.writeMu.Lock()

	m.mu.Lock()
	m.current = &cred
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Save(ctx, cred); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to persist credential")
		}
	}
	metrics.SetCredentialValid(cred.ValidAt(m.now()))

	c := cred
	m.enqueueLocked(&c, m.subscribers)
	m.writeMu.Unlock()

	select {
	case m.resetCh <- struct{}{}:
	default:
	}
	m.deliver()
}

// Subscribe registers fn and immediately calls it with the current valid
// credential (or nil). Called from inside a listener, the replay follows the
// delivery in progress. The returned func unsubscribes.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	m.writeMu.Lock()
	m.nextID++
	id := m.nextID
	sub := subscriber{id: id, fn: fn}
	m.subscribers = append(m.subscribers, sub)

	var replay *Credential
	if cred, ok := m.snapshot(); ok && cred.ValidAt(m.now()) {
		replay = &cred
	}
	m.enqueueLocked(replay, []subscriber{sub})
	m.writeMu.Unlock()

	m.deliver()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.writeMu.Lock()
			defer m.writeMu.Unlock()
			for i, s := range m.subscribers {
				if s.id == id {
					m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// enqueueLocked queues cred for subs. Caller holds writeMu.
func (m *Manager) enqueueLocked(cred *Credential, subs []subscriber) {
	if len(subs) == 0 {
		return
	}
	m.notifyMu.Lock()
	m.pending = append(m.pending, notification{cred: cred, subs: slices.Clone(subs)})
	m.notifyMu.Unlock()
}

// deliver drains the queue in order unless another call is already draining
// it, in which case that call delivers what was queued. Listeners run with
// no lock held.
func (m *Manager) deliver() {
	m.notifyMu.Lock()
	if m.delivering {
		m.notifyMu.Unlock()
		return
	}
	m.delivering = true
	for len(m.pending) > 0 {
		n := m.pending[0]
		m.pending[0] = notification{}
		m.pending = m.pending[1:]
		m.notifyMu.Unlock()

		for _, s := range n.subs {
			var arg *Credential
			if n.cred != nil {
				c := *n.cred
				arg = &c
			}
			m.safeCall(s.fn, arg)
			metrics.CredentialNotifications.Inc()
		}

		m.notifyMu.Lock()
	}
	m.delivering = false
	m.notifyMu.Unlock()
}

func (m *Manager) safeCall(fn Listener, cred *Credential) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("Credential listener panicked")
		}
	}()
	fn(cred)
}

// Sweep refreshes a credential that expires within the refresh threshold and
// clears an expired one that cannot be refreshed.
func (m *Manager) Sweep(ctx context.Context) {
	cred, ok := m.snapshot()
	if !ok {
		return
	}
	remaining := cred.ExpiresAt.Sub(m.now())

	switch {
	case cred.CanRefresh() && remaining < m.refreshThreshold:
		m.logger.Debug().Dur("remaining", remaining).Msg("Credential near expiry, refreshing")
		m.RefreshToken(ctx, cred.RefreshToken)
	case !cred.CanRefresh() && remaining <= 0:
		m.logger.Debug().Msg("Credential expired, clearing")
		m.clearIf(ctx, func(c *Credential) bool { return c.AccessToken == cred.AccessToken })
	}
}

// Serve runs the periodic sweep until ctx is canceled. Every credential
// change restarts the interval. It implements suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.resetCh:
			ticker.Reset(m.sweepInterval)
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (m *Manager) String() string {
	return "credential-sweeper"
}

// Close drops every subscriber.
func (m *Manager) Close() error {
	m.writeMu.Lock()
	m.subscribers = nil
	m.writeMu.Unlock()
	return nil
}
