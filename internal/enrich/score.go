// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package enrich

import (
	"math"
	"slices"

	"github.com/tomtom215/marquee/internal/models"
)

// Score weights. The primary average (0-10) is halved and the secondary mean
// (0-100) divided by 20 so both land on a 0-5 scale.
const (
	primaryWeight   = 0.6
	secondaryWeight = 0.4
	voteWeight      = 0.3
	popularityScale = 5
)

// SortKey selects the ordering applied by Sort.
type SortKey string

// Sort keys. SortNone keeps input order.
const (
	SortNone       SortKey = ""
	SortCombined   SortKey = "combined"
	SortPrimary    SortKey = "primary"
	SortSecondary  SortKey = "secondary"
	SortPopularity SortKey = "popularity"
)

// Valid reports whether k is a known sort key.
func (k SortKey) Valid() bool {
	switch k {
	case SortNone, SortCombined, SortPrimary, SortSecondary, SortPopularity:
		return true
	}
	return false
}

// CombinedScore blends the primary average rating with the secondary mean
// score, rounded to two decimals. A nil secondary contributes zero.
func CombinedScore(primary models.PrimaryRecord, secondary *models.SecondaryRecord) float64 {
	mean := 0.0
	if secondary != nil {
		mean = float64(secondary.MeanScore)
	}
	score := (primary.Rating.Average/2)*primaryWeight + (mean/20)*secondaryWeight
	return math.Round(score*100) / 100
}

// CombinedPopularity blends primary vote count with secondary popularity.
func CombinedPopularity(primary models.PrimaryRecord, secondary *models.SecondaryRecord) float64 {
	popularity := 0.0
	if secondary != nil {
		popularity = float64(secondary.Popularity)
	}
	return float64(primary.Rating.VoteCount)*voteWeight + popularity*popularityScale
}

// Sort returns a copy of records ordered descending by key. Ties keep their
// input order. Unknown keys and SortNone return an unsorted copy.
func Sort(records []models.EnrichedRecord, key SortKey) []models.EnrichedRecord {
	out := slices.Clone(records)

	var value func(models.EnrichedRecord) float64
	switch key {
	case SortCombined:
		value = func(r models.EnrichedRecord) float64 { return r.CombinedScore }
	case SortPrimary:
		value = func(r models.EnrichedRecord) float64 { return r.Primary.Rating.Average }
	case SortSecondary:
		value = func(r models.EnrichedRecord) float64 {
			if r.Secondary == nil {
				return 0
			}
			return float64(r.Secondary.MeanScore)
		}
	case SortPopularity:
		value = func(r models.EnrichedRecord) float64 { return r.CombinedPopularity }
	default:
		return out
	}

	slices.SortStableFunc(out, func(a, b models.EnrichedRecord) int {
		va, vb := value(a), value(b)
		switch {
		case va > vb:
			return -1
		case va < vb:
			return 1
		}
		return 0
	})
	return out
}
