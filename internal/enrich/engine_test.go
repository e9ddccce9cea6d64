// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package enrich

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/storage"
)

func primary(id, title string, avg float64, votes int) models.PrimaryRecord {
	return models.PrimaryRecord{ID: id, Title: title, Rating: models.Rating{Average: avg, VoteCount: votes}}
}

func secondary(id int, title string, mean, popularity int) models.SecondaryRecord {
	return models.SecondaryRecord{ID: id, Title: title, MeanScore: mean, Popularity: popularity}
}

// gatedLookup blocks each title until the test releases it.
type gatedLookup struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	done  chan string
	fail  map[string]bool
}

func newGatedLookup(titles ...string) *gatedLookup {
	l := &gatedLookup{gates: map[string]chan struct{}{}, done: make(chan string, len(titles)), fail: map[string]bool{}}
	for _, t := range titles {
		l.gates[t] = make(chan struct{})
	}
	return l
}

func (l *gatedLookup) Search(ctx context.Context, title string) ([]models.SecondaryRecord, error) {
	l.mu.Lock()
	gate := l.gates[title]
	fail := l.fail[title]
	l.mu.Unlock()

	select {
	case <-gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { l.done <- title }()
	if fail {
		return nil, errors.New("lookup failed")
	}
	return []models.SecondaryRecord{secondary(len(title), title, 70, 100)}, nil
}

func (l *gatedLookup) release(t *testing.T, title string) {
	t.Helper()
	close(l.gates[title])
	select {
	case got := <-l.done:
		if got != title {
			t.Fatalf("completed %q, want %q", got, title)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("lookup %q did not complete", title)
	}
}

func TestEnrichPreservesOrder(t *testing.T) {
	lookup := newGatedLookup("A", "B", "C")
	engine := New(lookup, nil)
	records := []models.PrimaryRecord{primary("a", "A", 8, 10), primary("b", "B", 7, 10), primary("c", "C", 6, 10)}

	type result struct {
		out []models.EnrichedRecord
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		out, err := engine.Enrich(context.Background(), records, Options{Concurrency: 3})
		resCh <- result{out, err}
	}()

	lookup.release(t, "C")
	lookup.release(t, "A")
	lookup.release(t, "B")

	res := <-resCh
	if res.err != nil {
		t.Fatalf("Enrich: %v", res.err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if res.out[i].Primary.ID != want {
			t.Errorf("out[%d] = %s, want %s", i, res.out[i].Primary.ID, want)
		}
		if res.out[i].Secondary == nil || res.out[i].Secondary.Title != records[i].Title {
			t.Errorf("out[%d].Secondary = %+v", i, res.out[i].Secondary)
		}
	}
}

func TestEnrichDegradesFailedLookup(t *testing.T) {
	lookup := LookupFunc(func(ctx context.Context, title string) ([]models.SecondaryRecord, error) {
		if title == "B" {
			return nil, errors.New("upstream down")
		}
		return []models.SecondaryRecord{secondary(1, title, 70, 100)}, nil
	})
	engine := New(lookup, nil)

	out, err := engine.Enrich(context.Background(), []models.PrimaryRecord{
		primary("a", "A", 8, 0), primary("b", "B", 8, 0), primary("c", "C", 8, 0),
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out[1].Secondary != nil {
		t.Errorf("B secondary = %+v, want nil", out[1].Secondary)
	}
	if out[1].CombinedScore != 2.4 {
		t.Errorf("B combined = %v, want 2.4", out[1].CombinedScore)
	}
	if out[0].Secondary == nil || out[2].Secondary == nil {
		t.Error("A and C should be enriched")
	}
	if out[0].CombinedScore != 3.8 {
		t.Errorf("A combined = %v, want 3.8", out[0].CombinedScore)
	}
}

func TestEnrichSortsResult(t *testing.T) {
	scores := map[string]int{"low": 40, "high": 90, "mid": 60}
	lookup := LookupFunc(func(ctx context.Context, title string) ([]models.SecondaryRecord, error) {
		return []models.SecondaryRecord{secondary(1, title, scores[title], 0)}, nil
	})
	engine := New(lookup, nil)

	out, err := engine.Enrich(context.Background(), []models.PrimaryRecord{
		primary("1", "low", 5, 0), primary("2", "high", 5, 0), primary("3", "mid", 5, 0),
	}, Options{SortBy: SortSecondary})
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"2", "3", "1"} {
		if out[i].Primary.ID != want {
			t.Errorf("out[%d] = %s, want %s", i, out[i].Primary.ID, want)
		}
	}
}

func TestEnrichCanceled(t *testing.T) {
	lookup := newGatedLookup("A")
	engine := New(lookup, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Enrich(ctx, []models.PrimaryRecord{primary("a", "A", 1, 1)}, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestEnrichCachesBatch(t *testing.T) {
	var calls atomic.Int32
	lookup := LookupFunc(func(ctx context.Context, title string) ([]models.SecondaryRecord, error) {
		calls.Add(1)
		return []models.SecondaryRecord{secondary(1, title, 80, 10)}, nil
	})
	store := cache.New(storage.NewMemoryBackend(0), nil)
	engine := New(lookup, store, WithTTL(time.Minute))
	ctx := context.Background()
	records := []models.PrimaryRecord{primary("x", "X", 6, 1), primary("y", "Y", 9, 1)}

	if _, ok := engine.Cached(ctx, records); ok {
		t.Fatal("unexpected cache hit before Enrich")
	}
	if _, err := engine.Enrich(ctx, records, Options{SortBy: SortPrimary}); err != nil {
		t.Fatal(err)
	}

	got, ok := engine.Cached(ctx, records)
	if !ok || len(got) != 2 {
		t.Fatalf("Cached = %v, %v", got, ok)
	}
	if got[0].Primary.ID != "x" {
		t.Errorf("cached batch should keep input order, got %s first", got[0].Primary.ID)
	}
	if calls.Load() != 2 {
		t.Errorf("lookups = %d, want 2", calls.Load())
	}
	if _, ok := engine.Cached(ctx, records[:1]); ok {
		t.Error("different id set must not hit")
	}
}

func TestEnrichDoesNotCacheDegradedBatch(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	lookup := LookupFunc(func(ctx context.Context, title string) ([]models.SecondaryRecord, error) {
		if down.Load() {
			return nil, errors.New("upstream down")
		}
		return []models.SecondaryRecord{secondary(1, title, 80, 10)}, nil
	})
	store := cache.New(storage.NewMemoryBackend(0), nil)
	engine := New(lookup, store, WithTTL(time.Minute))
	ctx := context.Background()
	records := []models.PrimaryRecord{primary("x", "X", 6, 1)}

	if _, err := engine.Enrich(ctx, records, Options{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := engine.Cached(ctx, records); ok {
		t.Fatal("degraded batch must not be cached")
	}

	down.Store(false)
	out, err := engine.Enrich(ctx, records, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Secondary == nil {
		t.Error("recovered lookup should enrich the record")
	}
	if _, ok := engine.Cached(ctx, records); !ok {
		t.Error("complete batch should be cached")
	}
}
