// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package bridge

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/credential"
	"github.com/tomtom215/marquee/internal/enrich"
	"github.com/tomtom215/marquee/internal/fetch"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/overlay"
	"github.com/tomtom215/marquee/internal/validation"
)

// Proxy performs raw catalog calls.
type Proxy interface {
	Proxy(ctx context.Context, endpoint string, params map[string]string) (fetch.Result, error)
}

// Session is the credential manager surface the bridge needs.
type Session interface {
	Status() credential.Status
	ObserveCredential(ctx context.Context, obs credential.Observation) (credential.Credential, error)
}

// Overlay resolves paths and enriches series.
type Overlay interface {
	Navigate(ctx context.Context, path string) (overlay.View, error)
	SeriesBatch(ctx context.Context, ids []string, sortBy enrich.SortKey) ([]models.EnrichedRecord, bool, error)
}

const errNoData = "no data available"

// Dispatcher routes requests to the core.
type Dispatcher struct {
	proxy   Proxy
	session Session
	overlay Overlay
	logger  zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(proxy Proxy, session Session, ov Overlay) *Dispatcher {
	return &Dispatcher{
		proxy:   proxy,
		session: session,
		overlay: ov,
		logger:  logging.WithComponent("bridge"),
	}
}

// Handle answers req. It never panics on malformed input and always echoes
// the request type and id.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	resp := d.handle(ctx, req)
	metrics.RecordBridgeMessage(metricType(req.Type), resp.Success)
	if !resp.Success {
		d.logger.Debug().Str("type", req.Type).Str("id", req.ID).Str("error", resp.Error).Msg("Bridge request failed")
	}
	return resp
}

func (d *Dispatcher) handle(ctx context.Context, req Request) Response {
	switch req.Type {
	case TypeAPIRequest:
		return d.apiRequest(ctx, req)
	case TypeTokenStatus:
		return ok(req, d.session.Status())
	case TypeCredentialObserved:
		return d.credentialObserved(ctx, req)
	case TypeNavigate:
		return d.navigate(ctx, req)
	case TypeEnrich:
		return d.enrich(ctx, req)
	case TypePing:
		return ok(Request{Type: TypePong, ID: req.ID}, nil)
	}
	return fail(req, "unknown message type")
}

func (d *Dispatcher) apiRequest(ctx context.Context, req Request) Response {
	params := map[string]string{}
	if err := decodeParams(req.Params, &params); err != nil {
		return fail(req, err.Error())
	}

	res, err := d.proxy.Proxy(ctx, req.Endpoint, params)
	switch {
	case errors.Is(err, catalog.ErrInvalidEndpoint):
		return fail(req, "invalid endpoint")
	case err != nil:
		return fail(req, err.Error())
	case !res.OK():
		return fail(req, errNoData)
	}
	return ok(req, res)
}

func (d *Dispatcher) credentialObserved(ctx context.Context, req Request) Response {
	var p observedParams
	if err := decodeParams(req.Params, &p); err != nil {
		return fail(req, err.Error())
	}
	obs := p.observation()
	if verr := validation.ValidateStruct(&obs); verr != nil {
		return fail(req, verr.Error())
	}
	if _, err := d.session.ObserveCredential(ctx, obs); err != nil {
		return fail(req, err.Error())
	}
	return ok(req, d.session.Status())
}

func (d *Dispatcher) navigate(ctx context.Context, req Request) Response {
	var p navigateParams
	if err := decodeParams(req.Params, &p); err != nil {
		return fail(req, err.Error())
	}
	if verr := validation.ValidateStruct(&p); verr != nil {
		return fail(req, verr.Error())
	}
	view, err := d.overlay.Navigate(ctx, p.Path)
	if err != nil {
		return fail(req, err.Error())
	}
	return ok(req, view)
}

func (d *Dispatcher) enrich(ctx context.Context, req Request) Response {
	var p enrichParams
	if err := decodeParams(req.Params, &p); err != nil {
		return fail(req, err.Error())
	}
	if verr := validation.ValidateStruct(&p); verr != nil {
		return fail(req, verr.Error())
	}
	items, degraded, err := d.overlay.SeriesBatch(ctx, p.IDs, enrich.SortKey(p.Sort))
	if err != nil {
		return fail(req, err.Error())
	}
	return ok(req, map[string]any{"items": items, "degraded": degraded})
}

var errBadParams = errors.New("invalid params")

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errBadParams
	}
	return nil
}

// metricType bounds label cardinality to known types.
func metricType(t string) string {
	switch t {
	case TypeAPIRequest, TypeTokenStatus, TypeCredentialObserved, TypeNavigate, TypeEnrich, TypePing:
		return t
	}
	return "unknown"
}
