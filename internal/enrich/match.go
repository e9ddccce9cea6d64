// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package enrich

import (
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/titles"
)

// minSimilarity is the word-set Dice score (titles.Similarity) a fuzzy
// match needs to beat the source's own ranking.
const minSimilarity = 0.5

// NormalizeTitle is the comparison form used for matching and cache keys.
func NormalizeTitle(title string) string {
	return titles.Normalize(title)
}

// BestMatch picks the candidate for query. An exact normalized match on any
// title variant wins, then the most similar candidate at or above
// minSimilarity, then the source's first result. Nil when there are none.
func BestMatch(query string, candidates []models.SecondaryRecord) *models.SecondaryRecord {
	if len(candidates) == 0 {
		return nil
	}
	want := titles.Normalize(query)

	best, bestScore := -1, 0.0
	for i, c := range candidates {
		for _, t := range c.Titles() {
			if titles.Normalize(t) == want {
				return &candidates[i]
			}
			if s := titles.Similarity(query, t); s > bestScore {
				best, bestScore = i, s
			}
		}
	}
	if best >= 0 && bestScore >= minSimilarity {
		return &candidates[best]
	}
	return &candidates[0]
}
