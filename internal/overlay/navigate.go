// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package overlay

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/text/language"

	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/enrich"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/validation"
)

// ViewKind names the page a path resolved to.
type ViewKind string

// View kinds. ViewNone means the path is not one the overlay decorates.
const (
	ViewNone   ViewKind = "none"
	ViewSeries ViewKind = "series"
	ViewWatch  ViewKind = "watch"
	ViewSearch ViewKind = "search"
	ViewBrowse ViewKind = "browse"
)

// View is what the overlay shows for an application path.
type View struct {
	Kind   ViewKind                `json:"kind"`
	Path   string                  `json:"path"`
	ID     string                  `json:"id,omitempty"`
	Query  string                  `json:"query,omitempty"`
	Sort   string                  `json:"sort,omitempty"`
	Series *models.EnrichedRecord  `json:"series,omitempty"`
	Items  []models.EnrichedRecord `json:"items,omitempty"`
	Total  int                     `json:"total,omitempty"`
	Data   json.RawMessage         `json:"data,omitempty"`
	Source fetch.Source            `json:"source,omitempty"`
}

// Navigate resolves an application path such as "/series/GR1/frieren" or
// "/search?q=frieren" into a View. Unknown paths yield a ViewNone view and no
// error. An optional leading locale segment ("/fr/series/...") is ignored.
func (s *Service) Navigate(ctx context.Context, rawPath string) (View, error) {
	u, err := url.Parse(rawPath)
	if err != nil {
		return View{Kind: ViewNone, Path: rawPath}, nil
	}
	clean := path.Clean("/" + strings.TrimPrefix(u.Path, "/"))
	segs := splitPath(clean)
	view := View{Kind: ViewNone, Path: clean}

	log := logging.Ctx(ctx).With().Str("path", clean).Logger()

	switch route(segs) {
	case ViewSeries:
		view.Kind, view.ID = ViewSeries, segs[1]
		rec, source, err := s.Series(ctx, view.ID, false)
		view.Source = source
		if errors.Is(err, ErrNotFound) {
			return view, nil
		}
		if err != nil {
			return view, err
		}
		view.Series = rec

	case ViewWatch:
		view.Kind, view.ID = ViewWatch, segs[1]
		res, err := s.deps.Catalog.Proxy(ctx, "episodes/"+view.ID, nil)
		if err != nil {
			return view, err
		}
		view.Data, view.Source = res.Data, res.Source

	case ViewSearch:
		view.Kind = ViewSearch
		view.Query = strings.TrimSpace(u.Query().Get("q"))
		res, err := s.Search(ctx, view.Query, queryInt(u.Query(), "n"), enrich.SortNone)
		if err != nil {
			return view, err
		}
		view.Items, view.Total, view.Source = res.Items, res.Total, res.Source

	case ViewBrowse:
		view.Kind = ViewBrowse
		view.Sort = u.Query().Get("sort")
		res, err := s.Browse(ctx, catalog.BrowseParams{
			Sort:  view.Sort,
			Limit: queryInt(u.Query(), "n"),
			Start: queryInt(u.Query(), "start"),
		}, enrich.SortNone)
		if err != nil {
			return view, err
		}
		view.Items, view.Total, view.Source = res.Items, res.Total, res.Source
	}

	log.Debug().Str("view", string(view.Kind)).Str("source", string(view.Source)).Msg("Navigated")
	return view, nil
}

func splitPath(p string) []string {
	segs := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	if len(segs) > 1 && route(segs) == ViewNone {
		if _, err := language.Parse(segs[0]); err == nil && len(segs[0]) <= 5 {
			return segs[1:]
		}
	}
	return segs
}

func route(segs []string) ViewKind {
	if len(segs) == 0 {
		return ViewNone
	}
	switch segs[0] {
	case "series":
		if len(segs) >= 2 && validation.ValidSeriesID(segs[1]) {
			return ViewSeries
		}
	case "watch":
		if len(segs) >= 2 && validation.ValidSeriesID(segs[1]) {
			return ViewWatch
		}
	case "search":
		if len(segs) == 1 {
			return ViewSearch
		}
	case "browse":
		if len(segs) == 1 {
			return ViewBrowse
		}
	}
	return ViewNone
}

func queryInt(q url.Values, key string) int {
	n, err := strconv.Atoi(q.Get(key))
	if err != nil {
		return 0
	}
	return n
}
