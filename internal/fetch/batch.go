// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package fetch

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

// BatchResult pairs a Result with the hard error, if any, for one request.
type BatchResult struct {
	Result Result
	Err    error
}

// FetchBatch runs reqs concurrently and returns results in input order.
// Each request degrades independently; one failure never cancels the others.
func (p *Pipeline) FetchBatch(ctx context.Context, reqs []Request, opts Options) []BatchResult {
	results := make([]BatchResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(defaultConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := p.FetchWithFallback(ctx, req, opts)
			results[i] = BatchResult{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Decode unmarshals r.Data into T. ok is false when r carries no data.
func Decode[T any](r Result) (v T, ok bool, err error) {
	if !r.OK() {
		return v, false, nil
	}
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return v, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, true, nil
}
