// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package ratelimit tracks per-upstream rate limiting and error backoff.
//
// Each upstream name has its own state machine:
//
//	Normal --(ErrorThreshold consecutive errors)--> Backoff
//	Normal/Backoff --(HTTP 429)--> RateLimited
//	Backoff/RateLimited --(first check at or after retryAfter)--> Normal
//
// While an upstream is Backoff or RateLimited, ShouldUseCache reports true
// and callers serve cached data instead of calling it. State is created
// lazily on first use and never destroyed. Every decision and the mutation
// it implies happen under one lock.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

// Defaults for Config.
const (
	DefaultErrorThreshold  = 3
	DefaultBaseDelay       = 1 * time.Second
	DefaultMaxDelay        = 60 * time.Second
	DefaultRateLimitWindow = 60 * time.Second
	DefaultMinInterval     = 100 * time.Millisecond
)

// State is an upstream's limiter state.
type State int

const (
	StateNormal State = iota
	StateBackoff
	StateRateLimited
)

// String returns the metric label for s.
func (s State) String() string {
	switch s {
	case StateBackoff:
		return "backoff"
	case StateRateLimited:
		return "rate_limited"
	default:
		return "normal"
	}
}

// MarshalText lets State serialize as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the backoff constants.
type Config struct {
	// ErrorThreshold is the consecutive error count that enters Backoff.
	ErrorThreshold int `koanf:"error_threshold"`

	// BaseDelay is the first backoff delay. Each further error doubles it.
	BaseDelay time.Duration `koanf:"base_delay"`

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration `koanf:"max_delay"`

	// RateLimitWindow is how long an upstream stays RateLimited after a 429
	// when it does not send a longer Retry-After.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// MinInterval is the minimum spacing between requests to one upstream.
	MinInterval time.Duration `koanf:"min_interval"`
}

// DefaultConfig returns the stock backoff constants.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold:  DefaultErrorThreshold,
		BaseDelay:       DefaultBaseDelay,
		MaxDelay:        DefaultMaxDelay,
		RateLimitWindow: DefaultRateLimitWindow,
		MinInterval:     DefaultMinInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = d.ErrorThreshold
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = d.RateLimitWindow
	}
	if c.MinInterval < 0 {
		c.MinInterval = 0
	}
	return c
}

// Status is a point-in-time view of one upstream.
type Status struct {
	Upstream    string    `json:"upstream"`
	State       State     `json:"state"`
	Errors      int       `json:"consecutive_errors"`
	RetryAfter  time.Time `json:"retry_after,omitempty"`
	LastRequest time.Time `json:"last_request,omitempty"`
}

type upstreamState struct {
	state       State
	limited     bool
	retryAfter  time.Time
	errors      int
	lastRequest time.Time
	spacing     *rate.Limiter
}

// Tracker holds the state of every upstream.
type Tracker struct {
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger

	mu     sync.Mutex
	states map[string]*upstreamState
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker. Zero fields in cfg take their defaults.
func New(cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		logger: logging.WithComponent("ratelimit"),
		states: make(map[string]*upstreamState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// state returns the state for name, creating it. Caller holds t.mu.
func (t *Tracker) state(name string) *upstreamState {
	s, ok := t.states[name]
	if !ok {
		limit := rate.Inf
		if t.cfg.MinInterval > 0 {
			limit = rate.Every(t.cfg.MinInterval)
		}
		s = &upstreamState{spacing: rate.NewLimiter(limit, 1)}
		t.states[name] = s
	}
	return s
}

// transition moves s to next and logs it. Caller holds t.mu.
func (t *Tracker) transition(name string, s *upstreamState, next State) {
	if s.state == next {
		return
	}
	t.logger.Debug().Str("upstream", name).Str("from", s.state.String()).Str("to", next.String()).
		Time("retry_after", s.retryAfter).Msg("Rate limiter state changed")
	s.state = next
	metrics.RecordRateLimitTransition(name, next.String())
}

// reset returns s to Normal. Caller holds t.mu.
func (t *Tracker) reset(name string, s *upstreamState) {
	s.limited = false
	s.retryAfter = time.Time{}
	s.errors = 0
	t.transition(name, s, StateNormal)
}

// ShouldUseCache reports whether calls to name should be skipped in favor of
// cache. The first check at or after retryAfter returns the upstream to Normal.
func (t *Tracker) ShouldUseCache(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[name]
	if !ok || !s.limited {
		return false
	}
	if t.now().Before(s.retryAfter) {
		return true
	}
	t.reset(name, s)
	return false
}

// RecordSuccess resets name to Normal and stamps the request time.
func (t *Tracker) RecordSuccess(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(name)
	t.reset(name, s)
	s.lastRequest = t.now()
}

// RecordError records a failed call. status 0 means no HTTP status (network
// error or timeout).
func (t *Tracker) RecordError(name string, status int) {
	t.RecordErrorWithRetryAfter(name, status, 0)
}

// RecordErrorWithRetryAfter is RecordError with the upstream's Retry-After
// hint. A 429 limits the upstream for max(RateLimitWindow, retryAfter)
// regardless of the error count. Any other error increments the counter and,
// at ErrorThreshold or more, enters Backoff for BackoffDelay(errors).
func (t *Tracker) RecordErrorWithRetryAfter(name string, status int, retryAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(name)
	now := t.now()
	s.lastRequest = now

	if status == http.StatusTooManyRequests {
		window := t.cfg.RateLimitWindow
		if retryAfter > window {
			window = retryAfter
		}
		s.limited = true
		s.retryAfter = now.Add(window)
		t.transition(name, s, StateRateLimited)
		t.logger.Warn().Str("upstream", name).Dur("window", window).Msg("Upstream rate limited, serving from cache")
		return
	}

	s.errors++
	if s.errors < t.cfg.ErrorThreshold {
		return
	}

	s.limited = true
	s.retryAfter = now.Add(t.BackoffDelay(s.errors))
	t.transition(name, s, StateBackoff)
	t.logger.Warn().Str("upstream", name).Int("errors", s.errors).Time("retry_after", s.retryAfter).
		Msg("Upstream failing, backing off")
}

// BackoffDelay returns BaseDelay * 2^(errors-1), capped at MaxDelay.
// It is monotonic in errors and never overflows.
func (t *Tracker) BackoffDelay(errors int) time.Duration {
	if errors <= 0 {
		return 0
	}
	// Beyond 2^50 any sane base is past the cap.
	if errors > 50 {
		return t.cfg.MaxDelay
	}

	multiplier := math.Pow(2, float64(errors-1))
	delay := time.Duration(float64(t.cfg.BaseDelay) * multiplier)
	if delay < 0 || delay > t.cfg.MaxDelay {
		delay = t.cfg.MaxDelay
	}
	return delay
}

// Wait blocks until MinInterval has passed since the previous request to
// name, then stamps the request time. It returns ctx.Err() if ctx ends first.
func (t *Tracker) Wait(ctx context.Context, name string) error {
	t.mu.Lock()
	s := t.state(name)
	now := t.now()
	reservation := s.spacing.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	s.lastRequest = now.Add(delay)
	t.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		reservation.CancelAt(t.now())
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Snapshot returns the status of name. Unknown upstreams report Normal.
func (t *Tracker) Snapshot(name string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[name]
	if !ok {
		return Status{Upstream: name, State: StateNormal}
	}
	return Status{
		Upstream:    name,
		State:       s.state,
		Errors:      s.errors,
		RetryAfter:  s.retryAfter,
		LastRequest: s.lastRequest,
	}
}

// Snapshots returns the status of every known upstream sorted by name.
func (t *Tracker) Snapshots() []Status {
	t.mu.Lock()
	names := make([]string, 0, len(t.states))
	for name := range t.states {
		names = append(names, name)
	}
	t.mu.Unlock()

	sort.Strings(names)
	out := make([]Status, 0, len(names))
	for _, name := range names {
		out = append(out, t.Snapshot(name))
	}
	return out
}
