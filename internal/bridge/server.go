// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package bridge

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/marquee/internal/credential"
	"github.com/tomtom215/marquee/internal/logging"
)

// DefaultRequestTimeout bounds one bridge request.
const DefaultRequestTimeout = 15 * time.Second

// Subscriber publishes credential changes.
type Subscriber interface {
	Subscribe(fn credential.Listener) (unsubscribe func())
}

// TokenChange is the payload of a token_changed push.
type TokenChange struct {
	HasToken  bool      `json:"has_token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	ProfileID string    `json:"profile_id,omitempty"`
}

func tokenChange(cred *credential.Credential) TokenChange {
	if cred == nil {
		return TokenChange{}
	}
	return TokenChange{
		HasToken:  true,
		ExpiresAt: cred.ExpiresAt,
		AccountID: cred.AccountID,
		ProfileID: cred.ProfileID,
	}
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// AllowedOrigins lists page origins allowed to connect. "*" allows any.
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server upgrades HTTP requests to bridge connections.
type Server struct {
	hub      *Hub
	dispatch *Dispatcher
	cfg      ServerConfig
	upgrader websocket.Upgrader
}

// NewServer creates a Server. The hub must be served separately.
func NewServer(hub *Hub, d *Dispatcher, cfg ServerConfig) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{hub: hub, dispatch: d, cfg: cfg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

// WatchCredentials pushes token_changed to every client on each credential
// change. The returned func stops watching.
func (s *Server) WatchCredentials(sub Subscriber) (stop func()) {
	return sub.Subscribe(func(cred *credential.Credential) {
		s.hub.Broadcast(Push{Type: TypeTokenChanged, Data: tokenChange(cred)})
	})
}

// ServeHTTP upgrades the connection and starts the client pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Bridge upgrade failed")
		return
	}

	// The connection outlives the upgrade request but keeps its logger.
	ctx := context.WithoutCancel(r.Context())
	c := newClient(s.hub, conn, s.dispatch, s.cfg.RequestTimeout, *logging.Ctx(ctx))
	if err := s.hub.join(r.Context(), c); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Bridge client could not join hub")
		_ = conn.Close()
		return
	}
	c.start(ctx)
	c.enqueue(Push{Type: TypeTokenChanged, Data: s.currentToken()})
}

func (s *Server) currentToken() TokenChange {
	st := s.dispatch.session.Status()
	return TokenChange{
		HasToken:  st.HasToken,
		ExpiresAt: st.ExpiresAt,
		AccountID: st.AccountID,
		ProfileID: st.ProfileID,
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("Bridge connection rejected: missing Origin header")
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeOrigin(origin)).Msg("Bridge connection rejected from unauthorized origin")
	return false
}

// sanitizeOrigin strips control characters before logging.
func sanitizeOrigin(s string) string {
	if len(s) > 256 {
		s = s[:256]
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
