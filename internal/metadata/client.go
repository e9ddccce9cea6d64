// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package metadata is the client for the auxiliary anime metadata source, a
// public GraphQL API. Lookups run through the fetch pipeline under their own
// upstream name, so their rate limiting and backoff are tracked separately
// from the catalog.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/titles"
)

// Upstream is the rate limiter and breaker bucket for metadata calls.
const Upstream = "metadata"

// Defaults for Config.
const (
	DefaultEndpoint = "https://graphql.anilist.co"
	DefaultTTL      = 24 * time.Hour
	DefaultPerPage  = 5
)

var (
	// ErrGraphQL is returned when the API answers 2xx with a GraphQL error list.
	ErrGraphQL = errors.New("metadata: graphql error")

	// ErrUnavailable means the upstream could not be reached and nothing was
	// cached. It tells a transient outage apart from a search with no hits.
	ErrUnavailable = errors.New("metadata: no data available")
)

// Config configures the client.
type Config struct {
	Endpoint string        `koanf:"endpoint"`
	TTL      time.Duration `koanf:"ttl"`
	PerPage  int           `koanf:"per_page"`
	Timeout  time.Duration `koanf:"timeout"`
}

const searchQuery = `query ($search: String, $perPage: Int) {
  Page(perPage: $perPage) {
    media(search: $search, type: ANIME) {
      id
      title { romaji english native }
      synonyms
      meanScore
      popularity
      genres
      studios(isMain: true) { nodes { name } }
      siteUrl
      episodes
      seasonYear
      format
      coverImage { large }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type media struct {
	ID    int `json:"id"`
	Title struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	} `json:"title"`
	Synonyms   []string `json:"synonyms"`
	MeanScore  *int     `json:"meanScore"`
	Popularity *int     `json:"popularity"`
	Genres     []string `json:"genres"`
	Studios    struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"studios"`
	SiteURL    string `json:"siteUrl"`
	Episodes   int    `json:"episodes"`
	SeasonYear int    `json:"seasonYear"`
	Format     string `json:"format"`
	CoverImage struct {
		Large string `json:"large"`
	} `json:"coverImage"`
}

type searchResponse struct {
	Data struct {
		Page struct {
			Media []media `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Client searches the metadata source by title.
type Client struct {
	pipeline *fetch.Pipeline
	cfg      Config
}

// New creates a Client.
func New(cfg Config, pipeline *fetch.Pipeline) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	return &Client{pipeline: pipeline, cfg: cfg}
}

// Search returns candidate records for title, best match first as ranked by
// the source. ErrUnavailable is returned when the upstream is degraded and
// nothing is cached.
func (c *Client) Search(ctx context.Context, title string) ([]models.SecondaryRecord, error) {
	normalized := titles.Normalize(title)
	if normalized == "" {
		return nil, nil
	}

	body, err := json.Marshal(graphQLRequest{
		Query:     searchQuery,
		Variables: map[string]any{"search": strings.TrimSpace(title), "perPage": c.cfg.PerPage},
	})
	if err != nil {
		return nil, fmt.Errorf("encode metadata query: %w", err)
	}

	res, err := c.pipeline.FetchWithFallback(ctx, fetch.Request{
		Upstream: Upstream,
		Method:   http.MethodPost,
		URL:      c.cfg.Endpoint,
		Body:     body,
		CacheKey: cache.Key("metadata", "search", normalized),
	}, fetch.Options{TTL: c.cfg.TTL, Timeout: c.cfg.Timeout})
	if err != nil {
		return nil, err
	}

	resp, ok, err := fetch.Decode[searchResponse](res)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnavailable
	}
	if len(resp.Errors) > 0 {
		// The payload is cached already; drop it so the error is not replayed.
		c.pipeline.Cache().Delete(ctx, cache.Key("metadata", "search", normalized))
		return nil, fmt.Errorf("%w: %s", ErrGraphQL, resp.Errors[0].Message)
	}

	out := make([]models.SecondaryRecord, 0, len(resp.Data.Page.Media))
	for _, m := range resp.Data.Page.Media {
		out = append(out, m.toRecord())
	}
	return out, nil
}

func (m media) toRecord() models.SecondaryRecord {
	rec := models.SecondaryRecord{
		ID:            m.ID,
		Title:         m.Title.Romaji,
		EnglishTitle:  m.Title.English,
		NativeTitle:   m.Title.Native,
		Synonyms:      m.Synonyms,
		Genres:        m.Genres,
		SiteURL:       m.SiteURL,
		EpisodeCount:  m.Episodes,
		SeasonYear:    m.SeasonYear,
		Format:        m.Format,
		CoverImageURL: m.CoverImage.Large,
	}
	if rec.Title == "" {
		rec.Title = m.Title.English
	}
	if m.MeanScore != nil {
		rec.MeanScore = *m.MeanScore
	}
	if m.Popularity != nil {
		rec.Popularity = *m.Popularity
	}
	for _, s := range m.Studios.Nodes {
		rec.Studios = append(rec.Studios, s.Name)
	}
	return rec
}
