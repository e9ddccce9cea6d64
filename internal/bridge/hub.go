// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package bridge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

const registerTimeout = 5 * time.Second

// ErrHubUnavailable is returned when the hub is not running.
var ErrHubUnavailable = errors.New("bridge: hub unavailable")

// Hub tracks connected clients and fans out pushes to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Push
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

// NewHub creates a Hub. It must be served before clients can register.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Push, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Serve runs the hub until ctx is canceled, then disconnects every client.
// It implements suture.Service.
//
// Lifecycle events are drained before pushes so a push never races a
// registration that was already pending.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case p := <-h.broadcast:
			h.pushToClients(p)
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (h *Hub) String() string {
	return "bridge-hub"
}

// Broadcast queues p for every connected client. It never blocks; when the
// queue is full the push is dropped.
func (h *Hub) Broadcast(p Push) {
	select {
	case h.broadcast <- p:
	default:
		logging.Warn().Str("type", p.Type).Msg("Bridge broadcast queue full, dropping push")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) join(ctx context.Context, c *client) error {
	timer := time.NewTimer(registerTimeout)
	defer timer.Stop()
	select {
	case h.register <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrHubUnavailable
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-c.done:
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.BridgeConnections.Set(float64(n))
	logging.Debug().Uint64("client", c.id).Int("total_clients", n).Msg("Bridge client connected")
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.BridgeConnections.Set(float64(n))
	logging.Debug().Uint64("client", c.id).Int("total_clients", n).Msg("Bridge client disconnected")
}

// sortedClients returns clients in id order. Caller holds mu.
func (h *Hub) sortedClients() []*client {
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

func (h *Hub) pushToClients(p Push) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedClients() {
		if !c.enqueue(p) {
			c.close()
			delete(h.clients, c)
		}
	}
	metrics.BridgeConnections.Set(float64(len(h.clients)))
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := h.sortedClients()
	for _, c := range clients {
		c.close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.BridgeConnections.Set(0)

	reason := ShutdownReasonContextCanceled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ShutdownReasonContextDeadline
	}
	logging.Info().
		Str("component", "bridge-hub").
		Str("reason", string(reason)).
		Int("clients_closed", len(clients)).
		Msg("Bridge hub stopped")
}
