// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/ratelimit"
)

// Defaults for Options and the pipeline.
const (
	DefaultTimeout     = 3 * time.Second
	DefaultTTL         = 5 * time.Minute
	maxResponseBytes   = 10 << 20
	maxErrorBodyBytes  = 512
	defaultUserAgent   = "marquee/1.0"
	defaultConcurrency = 6
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies the bearer token for authenticated upstreams.
type TokenSource interface {
	AccessToken() (string, bool)
}

// Source says where a Result came from.
type Source string

const (
	SourceUpstream Source = "upstream"
	SourceCache    Source = "cache"
	SourceNone     Source = "none"
)

// Request describes one upstream call.
type Request struct {
	// Upstream names the rate limiter and breaker bucket, e.g. "catalog".
	Upstream string
	Method   string
	URL      string
	Body     []byte
	Header   http.Header

	// CacheKey is where the payload is cached. Empty disables caching.
	CacheKey string

	// Authenticated requests carry "Authorization: Bearer <token>".
	Authenticated bool
}

// Options tune a single fetch.
type Options struct {
	TTL          time.Duration
	Timeout      time.Duration
	ForceRefresh bool
}

// Result is the payload returned by a fetch. Source == SourceNone means no
// data was available, which is not an error.
type Result struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Source Source          `json:"source"`
	Status int             `json:"status,omitempty"`
}

// OK reports whether r carries data.
func (r Result) OK() bool {
	return r.Source != SourceNone && len(r.Data) > 0
}

// BreakerConfig tunes the per-upstream circuit breakers.
type BreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MaxHalfOpen  uint32        `koanf:"max_half_open"`
}

// DefaultBreakerConfig opens a breaker at a 60% failure rate over at least
// 10 requests and probes again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:      true,
		MinRequests:  10,
		FailureRatio: 0.6,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MaxHalfOpen:  3,
	}
}

// upstreamResponse is what the breaker-wrapped call returns.
type upstreamResponse struct {
	status int
	body   []byte
}

// Pipeline runs fetches against upstreams with cache fallback.
type Pipeline struct {
	client         Doer
	cache          *cache.Store
	tracker        *ratelimit.Tracker
	tokens         TokenSource
	defaultTimeout time.Duration
	breakerCfg     BreakerConfig
	userAgent      string
	now            func() time.Time
	logger         zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*upstreamResponse]
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTokenSource sets the credential used for authenticated requests.
func WithTokenSource(ts TokenSource) Option {
	return func(p *Pipeline) { p.tokens = ts }
}

// WithDefaultTimeout overrides the 3 second per-request timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.defaultTimeout = d
		}
	}
}

// WithBreakerConfig overrides the circuit breaker settings.
func WithBreakerConfig(cfg BreakerConfig) Option {
	return func(p *Pipeline) { p.breakerCfg = cfg }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(p *Pipeline) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithClock injects the time source used for Retry-After dates.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. A nil client uses http.DefaultClient.
func New(client Doer, store *cache.Store, tracker *ratelimit.Tracker, opts ...Option) *Pipeline {
	if client == nil {
		client = http.DefaultClient
	}
	if tracker == nil {
		tracker = ratelimit.New(ratelimit.DefaultConfig())
	}
	if store == nil {
		store = cache.New(nil, nil)
	}
	p := &Pipeline{
		client:         client,
		cache:          store,
		tracker:        tracker,
		defaultTimeout: DefaultTimeout,
		breakerCfg:     DefaultBreakerConfig(),
		userAgent:      defaultUserAgent,
		now:            time.Now,
		logger:         logging.WithComponent("fetch"),
		breakers:       make(map[string]*gobreaker.CircuitBreaker[*upstreamResponse]),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tracker returns the rate limiter shared by this pipeline.
func (p *Pipeline) Tracker() *ratelimit.Tracker {
	return p.tracker
}

// Cache returns the cache store used by this pipeline.
func (p *Pipeline) Cache() *cache.Store {
	return p.cache
}

// FetchWithFallback performs req with cache fallback. The returned error is
// non-nil only for hard failures and for cancellation of ctx itself.
func (p *Pipeline) FetchWithFallback(ctx context.Context, req Request, opts Options) (Result, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = p.defaultTimeout
	}

	log := logging.Ctx(ctx).With().Str("upstream", req.Upstream).Str("cache_key", req.CacheKey).Logger()

	if !opts.ForceRefresh {
		if res, ok := p.fromCache(ctx, req); ok {
			return res, nil
		}
	}

	if p.tracker.ShouldUseCache(req.Upstream) {
		metrics.RecordRateLimitSkip(req.Upstream)
		log.Debug().Msg("Upstream limited, skipping call")
		return p.fallback(ctx, req, 0), nil
	}

	var token string
	if req.Authenticated {
		var ok bool
		if p.tokens != nil {
			token, ok = p.tokens.AccessToken()
		}
		if !ok {
			metrics.RecordFetch(req.Upstream, OutcomeUnauthenticated.String(), 0)
			log.Debug().Err(errNoCredential).Msg("Authenticated request without credential, using cache")
			return p.fallback(ctx, req, 0), nil
		}
	}

	if err := p.tracker.Wait(ctx, req.Upstream); err != nil {
		return Result{Source: SourceNone}, fmt.Errorf("wait for %s: %w", req.Upstream, err)
	}

	start := time.Now()
	resp, err := p.breaker(req.Upstream).Execute(func() (*upstreamResponse, error) {
		return p.do(ctx, req, token, opts.Timeout)
	})
	elapsed := time.Since(start)

	if err == nil {
		return p.handleSuccess(ctx, req, opts, resp, elapsed, log)
	}

	// Cancellation by the caller is not an upstream failure.
	if ctx.Err() != nil {
		return Result{Source: SourceNone}, ctx.Err()
	}

	outcome, status := classifyErr(err)
	metrics.RecordFetch(req.Upstream, outcome.String(), elapsed)

	var httpErr *HTTPError
	errors.As(err, &httpErr)

	switch {
	case outcome == OutcomeCircuitOpen:
		log.Debug().Err(err).Msg("Circuit open, using cache")
	case outcome == OutcomeRateLimited:
		var retryAfter time.Duration
		if httpErr != nil {
			retryAfter = httpErr.RetryAfter
		}
		p.tracker.RecordErrorWithRetryAfter(req.Upstream, status, retryAfter)
	case outcome.Recoverable():
		p.tracker.RecordError(req.Upstream, status)
		log.Warn().Err(err).Str("outcome", outcome.String()).Msg("Upstream unavailable, using cache")
	default:
		p.tracker.RecordError(req.Upstream, status)
		log.Error().Err(err).Int("status", status).Msg("Upstream request failed")
		return Result{Source: SourceNone, Status: status}, err
	}

	return p.fallback(ctx, req, status), nil
}

func (p *Pipeline) handleSuccess(ctx context.Context, req Request, opts Options, resp *upstreamResponse, elapsed time.Duration, log zerolog.Logger) (Result, error) {
	if !json.Valid(resp.body) {
		metrics.RecordFetch(req.Upstream, OutcomeMalformed.String(), elapsed)
		p.tracker.RecordError(req.Upstream, resp.status)
		log.Error().Int("status", resp.status).Msg("Upstream returned malformed payload")
		return Result{Source: SourceNone, Status: resp.status},
			fmt.Errorf("%s: %w", req.Upstream, ErrMalformed)
	}

	metrics.RecordFetch(req.Upstream, OutcomeSuccess.String(), elapsed)
	metrics.RecordFetchResult(req.Upstream, string(SourceUpstream))
	p.tracker.RecordSuccess(req.Upstream)

	data := json.RawMessage(resp.body)
	if req.CacheKey != "" {
		p.cache.Set(ctx, req.CacheKey, data, opts.TTL)
	}
	return Result{Data: data, Source: SourceUpstream, Status: resp.status}, nil
}

// do performs the HTTP call. Non-2xx responses become *HTTPError.
func (p *Pipeline) do(ctx context.Context, req Request, token string, timeout time.Duration) (*upstreamResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		// A request that cannot be built will never succeed.
		return nil, &HTTPError{Upstream: req.Upstream, Status: http.StatusBadRequest, Body: err.Error()}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", p.userAgent)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if Classify(resp.StatusCode) != OutcomeSuccess {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &HTTPError{
			Upstream:   req.Upstream,
			Status:     resp.StatusCode,
			Body:       string(bytes.TrimSpace(snippet)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), p.now()),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &upstreamResponse{status: resp.StatusCode, body: data}, nil
}

// classifyErr maps a breaker or transport error to an outcome and status.
func classifyErr(err error) (Outcome, int) {
	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Outcome(), httpErr.Status
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return OutcomeCircuitOpen, 0
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout, 0
	}
	return OutcomeNetwork, 0
}

// fromCache returns the cached payload for req, if any.
func (p *Pipeline) fromCache(ctx context.Context, req Request) (Result, bool) {
	if req.CacheKey == "" {
		return Result{}, false
	}
	data, ok := p.cache.Get(ctx, req.CacheKey)
	if !ok {
		return Result{}, false
	}
	metrics.RecordFetchResult(req.Upstream, string(SourceCache))
	return Result{Data: data, Source: SourceCache}, true
}

// fallback returns the cached payload or the no-data sentinel.
func (p *Pipeline) fallback(ctx context.Context, req Request, status int) Result {
	if res, ok := p.fromCache(ctx, req); ok {
		res.Status = status
		return res
	}
	metrics.RecordFetchResult(req.Upstream, string(SourceNone))
	return Result{Source: SourceNone, Status: status}
}

// breaker returns the circuit breaker for upstream, creating it on first use.
func (p *Pipeline) breaker(upstream string) *gobreaker.CircuitBreaker[*upstreamResponse] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[upstream]; ok {
		return cb
	}

	cfg := p.breakerCfg
	settings := gobreaker.Settings{
		Name:        upstream,
		MaxRequests: cfg.MaxHalfOpen,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if !cfg.Enabled || counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		// Hard failures say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var httpErr *HTTPError
			return errors.As(err, &httpErr) && httpErr.Outcome() == OutcomeHard
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info().Str("upstream", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.SetCircuitBreakerState(name, breakerStateValue(to))
		},
	}

	cb := gobreaker.NewCircuitBreaker[*upstreamResponse](settings)
	metrics.SetCircuitBreakerState(upstream, 0)
	p.breakers[upstream] = cb
	return cb
}

// BreakerState returns the breaker state name for upstream ("closed" if unused).
func (p *Pipeline) BreakerState(upstream string) string {
	p.mu.Lock()
	cb, ok := p.breakers[upstream]
	p.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

func breakerStateValue(state gobreaker.State) int {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
