// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

// Image is a sized artwork reference returned by the catalog.
type Image struct {
	Kind   string `json:"kind"` // "poster_tall", "poster_wide", "thumbnail"
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Rating is the catalog's own audience rating.
//
// Average is on a 0-10 scale; the enrichment engine halves it to compare
// against the metadata source's 0-100 mean score.
type Rating struct {
	Average   float64 `json:"average"`
	VoteCount int     `json:"vote_count"`
}

// PrimaryRecord is a catalog item from the streaming site's own API.
type PrimaryRecord struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Images       []Image  `json:"images,omitempty"`
	Rating       Rating   `json:"rating"`
	EpisodeCount int      `json:"episode_count,omitempty"`
	SeasonCount  int      `json:"season_count,omitempty"`
	Year         int      `json:"year,omitempty"`
	MaturityTags []string `json:"maturity_tags,omitempty"`
}

// SecondaryRecord is metadata from the auxiliary source. Its ID lives in an
// unrelated numbering space, so records are joined by title.
type SecondaryRecord struct {
	ID            int      `json:"id"`
	Title         string   `json:"title"`
	EnglishTitle  string   `json:"english_title,omitempty"`
	NativeTitle   string   `json:"native_title,omitempty"`
	Synonyms      []string `json:"synonyms,omitempty"`
	MeanScore     int      `json:"mean_score"` // 0-100
	Popularity    int      `json:"popularity"`
	Genres        []string `json:"genres,omitempty"`
	Studios       []string `json:"studios,omitempty"`
	SiteURL       string   `json:"site_url,omitempty"`
	EpisodeCount  int      `json:"episode_count,omitempty"`
	SeasonYear    int      `json:"season_year,omitempty"`
	Format        string   `json:"format,omitempty"`
	CoverImageURL string   `json:"cover_image_url,omitempty"`
}

// Titles returns every title variant the record is known by, in preference order.
func (r SecondaryRecord) Titles() []string {
	titles := make([]string, 0, 3+len(r.Synonyms))
	for _, t := range []string{r.Title, r.EnglishTitle, r.NativeTitle} {
		if t != "" {
			titles = append(titles, t)
		}
	}
	return append(titles, r.Synonyms...)
}

// EnrichedRecord joins a primary record with its best secondary match.
//
// It is derived data: recomputed for every batch and cached only as an
// artifact with its own TTL.
type EnrichedRecord struct {
	Primary            PrimaryRecord    `json:"primary"`
	Secondary          *SecondaryRecord `json:"secondary"`
	CombinedScore      float64          `json:"combined_score"`
	CombinedPopularity float64          `json:"combined_popularity"`
}
