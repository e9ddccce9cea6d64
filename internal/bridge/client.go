// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 64
	maxInFlight    = 8
)

var clientIDCounter atomic.Uint64

// client is one WebSocket connection. Requests are handled concurrently up
// to maxInFlight; responses and pushes share the send queue.
type client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	dispatch *Dispatcher
	timeout  time.Duration
	logger   zerolog.Logger

	send      chan any
	done      chan struct{}
	closeOnce sync.Once
	inflight  chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, d *Dispatcher, timeout time.Duration, logger zerolog.Logger) *client {
	id := clientIDCounter.Add(1)
	return &client{
		id:       id,
		hub:      hub,
		conn:     conn,
		dispatch: d,
		timeout:  timeout,
		logger:   logger.With().Uint64("client", id).Logger(),
		send:     make(chan any, sendBuffer),
		done:     make(chan struct{}),
		inflight: make(chan struct{}, maxInFlight),
	}
}

// close signals the write pump to send a close frame and exit.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue reports false when the send queue is full.
func (c *client) enqueue(msg any) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) start(ctx context.Context) {
	go c.writePump()
	go c.readPump(ctx)
}

func (c *client) readPump(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.hub.leave(c)
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("Unexpected bridge close")
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
			c.enqueue(Response{Type: "error", Error: "invalid message"})
			continue
		}

		select {
		case c.inflight <- struct{}{}:
		case <-ctx.Done():
			return
		}
		go func() {
			defer func() { <-c.inflight }()
			reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			if !c.enqueue(c.dispatch.Handle(reqCtx, req)) {
				c.logger.Warn().Str("type", req.Type).Msg("Bridge send queue full, dropping response")
			}
		}()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("Bridge write failed")
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
