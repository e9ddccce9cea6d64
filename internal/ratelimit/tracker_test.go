// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestShouldUseCacheWithNoState(t *testing.T) {
	tr := New(Config{})
	if tr.ShouldUseCache("catalog") {
		t.Error("unknown upstream must not be limited")
	}
	if got := tr.Snapshot("catalog").State; got != StateNormal {
		t.Errorf("State = %v, want normal", got)
	}
}

func TestRateLimitedShortCircuitsCounting(t *testing.T) {
	clock := newFakeClock()
	tr := New(Config{}, WithClock(clock.Now))

	tr.RecordError("catalog", http.StatusTooManyRequests)

	st := tr.Snapshot("catalog")
	if st.State != StateRateLimited {
		t.Fatalf("State = %v, want rate_limited", st.State)
	}
	if st.Errors != 0 {
		t.Errorf("429 must not count toward backoff, errors = %d", st.Errors)
	}
	if want := clock.Now().Add(60 * time.Second); !st.RetryAfter.Equal(want) {
		t.Errorf("RetryAfter = %v, want %v", st.RetryAfter, want)
	}
	if !tr.ShouldUseCache("catalog") {
		t.Error("rate limited upstream should use cache")
	}

	clock.Advance(59 * time.Second)
	if !tr.ShouldUseCache("catalog") {
		t.Error("still inside window")
	}

	clock.Advance(time.Second)
	if tr.ShouldUseCache("catalog") {
		t.Error("first check at retryAfter must return to normal")
	}
	if st := tr.Snapshot("catalog"); st.State != StateNormal || st.Errors != 0 {
		t.Errorf("after window: %+v", st)
	}
}

func TestRetryAfterHeaderExtendsWindow(t *testing.T) {
	clock := newFakeClock()
	tr := New(Config{}, WithClock(clock.Now))

	tr.RecordErrorWithRetryAfter("catalog", http.StatusTooManyRequests, 2*time.Minute)
	if want := clock.Now().Add(2 * time.Minute); !tr.Snapshot("catalog").RetryAfter.Equal(want) {
		t.Errorf("RetryAfter = %v, want %v", tr.Snapshot("catalog").RetryAfter, want)
	}

	// A shorter hint never shortens the configured window.
	tr.RecordErrorWithRetryAfter("metadata", http.StatusTooManyRequests, 5*time.Second)
	if want := clock.Now().Add(60 * time.Second); !tr.Snapshot("metadata").RetryAfter.Equal(want) {
		t.Errorf("RetryAfter = %v, want %v", tr.Snapshot("metadata").RetryAfter, want)
	}
}

func TestBackoffAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	tr := New(Config{}, WithClock(clock.Now))

	tr.RecordError("metadata", http.StatusServiceUnavailable)
	tr.RecordError("metadata", 0)
	if tr.ShouldUseCache("metadata") {
		t.Fatal("two errors must not trigger backoff")
	}

	tr.RecordError("metadata", http.StatusInternalServerError)
	st := tr.Snapshot("metadata")
	if st.State != StateBackoff {
		t.Fatalf("State = %v, want backoff", st.State)
	}
	// 1s * 2^(3-1)
	if want := clock.Now().Add(4 * time.Second); !st.RetryAfter.Equal(want) {
		t.Errorf("RetryAfter = %v, want %v", st.RetryAfter, want)
	}
	if !tr.ShouldUseCache("metadata") {
		t.Error("backoff should use cache")
	}

	clock.Advance(4 * time.Second)
	if tr.ShouldUseCache("metadata") {
		t.Error("backoff should clear at retryAfter")
	}
}

func TestRecordSuccessResets(t *testing.T) {
	clock := newFakeClock()
	tr := New(Config{}, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		tr.RecordError("catalog", http.StatusBadGateway)
	}
	tr.RecordSuccess("catalog")

	st := tr.Snapshot("catalog")
	if st.State != StateNormal || st.Errors != 0 || !st.RetryAfter.IsZero() {
		t.Errorf("after success: %+v", st)
	}
	if !st.LastRequest.Equal(clock.Now()) {
		t.Errorf("LastRequest = %v, want %v", st.LastRequest, clock.Now())
	}
	if tr.ShouldUseCache("catalog") {
		t.Error("success must clear limiting")
	}
}

func TestBackoffDelayMonotonicAndCapped(t *testing.T) {
	tr := New(Config{})

	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, 60 * time.Second},
		{100, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := tr.BackoffDelay(tt.errors); got != tt.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}

	prev := time.Duration(0)
	for n := 1; n <= 200; n++ {
		d := tr.BackoffDelay(n)
		if d < prev {
			t.Fatalf("BackoffDelay not monotonic at %d: %v < %v", n, d, prev)
		}
		if d > 60*time.Second {
			t.Fatalf("BackoffDelay(%d) = %v exceeds cap", n, d)
		}
		prev = d
	}
}

func TestConfigDefaults(t *testing.T) {
	got := New(Config{BaseDelay: 2 * time.Second}).Config()
	if got.BaseDelay != 2*time.Second {
		t.Errorf("BaseDelay = %v", got.BaseDelay)
	}
	if got.ErrorThreshold != 3 || got.MaxDelay != 60*time.Second ||
		got.RateLimitWindow != 60*time.Second || got.MinInterval != 100*time.Millisecond {
		t.Errorf("defaults not applied: %+v", got)
	}
}

func TestWaitSpacesRequests(t *testing.T) {
	tr := New(Config{MinInterval: 50 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	if err := tr.Wait(ctx, "catalog"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	if time.Since(start) > 25*time.Millisecond {
		t.Error("first request should not wait")
	}

	start = time.Now()
	if err := tr.Wait(ctx, "catalog"); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second request waited %v, want about 50ms", elapsed)
	}

	// Other upstreams are spaced independently.
	start = time.Now()
	_ = tr.Wait(ctx, "metadata")
	if time.Since(start) > 25*time.Millisecond {
		t.Error("independent upstream should not wait")
	}
}

func TestWaitNoDelayAfterInterval(t *testing.T) {
	clock := newFakeClock()
	tr := New(Config{}, WithClock(clock.Now))
	ctx := context.Background()

	_ = tr.Wait(ctx, "catalog")
	clock.Advance(100 * time.Millisecond)

	start := time.Now()
	if err := tr.Wait(ctx, "catalog"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) > 25*time.Millisecond {
		t.Error("no wait expected once the interval has elapsed")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	tr := New(Config{MinInterval: time.Hour})
	_ = tr.Wait(context.Background(), "catalog")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tr.Wait(ctx, "catalog"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := New(Config{MinInterval: -1})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				tr.RecordError("catalog", http.StatusServiceUnavailable)
			case 1:
				tr.RecordSuccess("catalog")
			default:
				tr.ShouldUseCache("catalog")
			}
			_ = tr.Wait(context.Background(), "catalog")
		}(i)
	}
	wg.Wait()

	if n := len(tr.Snapshots()); n != 1 {
		t.Errorf("Snapshots = %d, want 1", n)
	}
}

func TestStateMarshalText(t *testing.T) {
	for s, want := range map[State]string{
		StateNormal:      "normal",
		StateBackoff:     "backoff",
		StateRateLimited: "rate_limited",
	} {
		b, _ := s.MarshalText()
		if string(b) != want {
			t.Errorf("%d -> %q, want %q", s, b, want)
		}
	}
}
