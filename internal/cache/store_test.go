// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/storage"
)

// fakeClock is a settable time source.
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

// failingBackend fails every operation.
type failingBackend struct{}

var errBackendDown = errors.New("backend down")

func (failingBackend) Get(context.Context, string) (storage.Record, error) {
	return storage.Record{}, errBackendDown
}
func (failingBackend) Set(context.Context, string, storage.Record) error { return errBackendDown }
func (failingBackend) Delete(context.Context, string) error              { return errBackendDown }
func (failingBackend) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, errBackendDown
}
func (failingBackend) Name() string { return "failing" }
func (failingBackend) Close() error { return nil }

type series struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestStoreSetGet(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemoryBackend(0), storage.NewMemoryBackend(0))

	s.Set(ctx, "catalog:series:GR1", series{ID: "GR1", Title: "Frieren"}, time.Minute)

	got, ok := GetAs[series](ctx, s, "catalog:series:GR1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Title != "Frieren" {
		t.Errorf("Title = %q", got.Title)
	}

	if _, ok := s.Get(ctx, "catalog:series:missing"); ok {
		t.Error("expected miss for unknown key")
	}

	stats := s.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}
	if stats.HitRate() != 50 {
		t.Errorf("HitRate = %v, want 50", stats.HitRate())
	}
}

func TestStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	durable := storage.NewMemoryBackend(0)
	s := New(durable, nil, WithClock(clock.Now))

	s.Set(ctx, "k", "v", 10*time.Second)

	clock.Advance(9 * time.Second)
	if _, ok := s.Get(ctx, "k"); !ok {
		t.Fatal("entry should still be readable before ttl")
	}

	clock.Advance(time.Second)
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatal("entry should be absent once now - created >= ttl")
	}
	if durable.Len() != 0 {
		t.Errorf("expired entry not deleted opportunistically, len = %d", durable.Len())
	}
	if s.Stats().Expired != 1 {
		t.Errorf("Expired = %d, want 1", s.Stats().Expired)
	}
}

func TestStoreSetIsIdempotentLastWriteWins(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := New(storage.NewMemoryBackend(0), nil, WithClock(clock.Now))

	s.Set(ctx, "k", "first", time.Hour)
	s.Set(ctx, "k", "second", 5*time.Second)

	got, ok := GetAs[string](ctx, s, "k")
	if !ok || got != "second" {
		t.Fatalf("got %q, %v; want second", got, ok)
	}

	clock.Advance(6 * time.Second)
	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("second ttl should govern expiry")
	}
}

func TestStoreFallsBackOnDurableWriteFailure(t *testing.T) {
	ctx := context.Background()
	fallback := storage.NewMemoryBackend(0)
	s := New(failingBackend{}, fallback)

	s.Set(ctx, "k", map[string]int{"n": 1}, time.Minute)

	if fallback.Len() != 1 {
		t.Fatalf("fallback len = %d, want 1", fallback.Len())
	}
	got, ok := GetAs[map[string]int](ctx, s, "k")
	if !ok || got["n"] != 1 {
		t.Fatalf("got %v, %v", got, ok)
	}

	stats := s.Stats()
	if stats.FallbackWrites != 1 {
		t.Errorf("FallbackWrites = %d, want 1", stats.FallbackWrites)
	}
	if stats.BackendErrors == 0 {
		t.Error("BackendErrors should count the durable failures")
	}
}

func TestStoreFallbackReadAppliesExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	fallback := storage.NewMemoryBackend(0)
	s := New(failingBackend{}, fallback, WithClock(clock.Now))

	s.Set(ctx, "k", 1, time.Second)
	clock.Advance(2 * time.Second)

	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("expired fallback entry must read as absent")
	}
}

func TestStoreWithoutBackendsNeverFails(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)

	s.Set(ctx, "k", "v", time.Minute)
	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("store without backends should always miss")
	}
	s.Delete(ctx, "k")
	if n := s.ClearExpired(ctx); n != 0 {
		t.Errorf("ClearExpired = %d", n)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStoreFailingBackendsSurfaceNoErrors(t *testing.T) {
	ctx := context.Background()
	s := New(failingBackend{}, failingBackend{})

	s.Set(ctx, "k", "v", time.Minute)
	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("expected miss")
	}
	s.Delete(ctx, "k")
	s.ClearExpired(ctx)
}

func TestStoreUnserializableValue(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend(0)
	s := New(backend, nil)

	s.Set(ctx, "k", make(chan int), time.Minute)
	if backend.Len() != 0 {
		t.Error("unserializable value should not be stored")
	}
}

func TestStoreDeleteAndClearExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	durable := storage.NewMemoryBackend(0)
	fallback := storage.NewMemoryBackend(0)
	s := New(durable, fallback, WithClock(clock.Now))

	s.Set(ctx, "short", 1, time.Second)
	s.Set(ctx, "long", 2, time.Hour)
	_ = fallback.Set(ctx, "stale", storage.Record{
		Data:      []byte(`3`),
		Timestamp: clock.Now(),
		ExpiresAt: clock.Now().Add(time.Second),
	})

	clock.Advance(time.Minute)
	if n := s.ClearExpired(ctx); n != 2 {
		t.Errorf("ClearExpired = %d, want 2", n)
	}
	if !s.Stats().LastSweep.Equal(clock.Now()) {
		t.Error("LastSweep not recorded")
	}

	s.Delete(ctx, "long")
	if _, ok := s.Get(ctx, "long"); ok {
		t.Error("deleted key still readable")
	}
}

func TestGetAsTypeMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemoryBackend(0), nil)
	s.Set(ctx, "k", "not a number", time.Minute)

	if _, ok := GetAs[int](ctx, s, "k"); ok {
		t.Error("type mismatch should read as a miss")
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		kind  string
		parts []string
		want  string
	}{
		{"kind only", "catalog", nil, "catalog"},
		{"series", "catalog", []string{"series", "GR1"}, "catalog:series:GR1"},
		{"search", "catalog", []string{"search", "frieren", "20"}, "catalog:search:frieren:20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.kind, tt.parts...); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}

	long := Key("metadata", "search", strings.Repeat("x", 300))
	if len(long) > maxKeyLength {
		t.Errorf("long key not hashed: len %d", len(long))
	}
	if !strings.HasPrefix(long, "metadata:") {
		t.Errorf("hashed key lost its kind: %q", long)
	}
	if long != Key("metadata", "search", strings.Repeat("x", 300)) {
		t.Error("hashed key must be deterministic")
	}
}

func TestHashKey(t *testing.T) {
	a := HashKey("enriched", []string{"GR1", "GR2"})
	b := HashKey("enriched", []string{"GR1", "GR2"})
	c := HashKey("enriched", []string{"GR2", "GR1"})
	if a != b {
		t.Error("same params should yield same key")
	}
	if a == c {
		t.Error("different order should yield different key")
	}
	if !strings.HasPrefix(a, "enriched:") {
		t.Errorf("key = %q", a)
	}
}

func TestSweeperStopsOnCancel(t *testing.T) {
	s := New(storage.NewMemoryBackend(0), nil)
	w := NewSweeper(s, time.Millisecond)
	if w.String() != "cache-sweeper" {
		t.Errorf("String() = %q", w.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	if s.Stats().LastSweep.IsZero() {
		t.Error("sweeper never ran")
	}
}
