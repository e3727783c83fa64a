// Package progressws serves sync progress snapshots over a local websocket;
// emagsyncd mounts the Hub at /watch. The connection-handling shape (accept,
// read loop, clean teardown on disconnect) mirrors the reconnect/read-loop
// pair this codebase already uses for its market data feed, just inverted:
// here the process is the server. The emagsync CLI has no client for it.
package progressws

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Snapshot is one progress payload pushed to connected watchers.
type Snapshot struct {
	SyncLogID      uint    `json:"sync_log_id"`
	CurrentPage    int     `json:"current_page"`
	TotalItems     int     `json:"total_items"`
	Processed      int     `json:"processed"`
	ItemsPerSecond float64 `json:"items_per_second"`
	ETASeconds     float64 `json:"eta_seconds"`
}

// Hub tracks connected watchers and broadcasts snapshots to all of them.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*websocket.Conn
	lastSeen map[string]time.Time
}

func NewHub() *Hub {
	return &Hub{
		conns:    make(map[string]*websocket.Conn),
		lastSeen: make(map[string]time.Time),
	}
}

// ServeHTTP upgrades the connection and registers it under a fresh
// connection id, then blocks reading (and discarding) frames until the
// client disconnects, at which point the connection is deregistered.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("progressws: upgrade failed")
		return
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = conn
	h.lastSeen[id] = time.Now()
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, id)
		delete(h.lastSeen, id)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast pushes snap as JSON to every connected watcher, dropping any
// connection that fails to write rather than blocking the publisher.
func (h *Hub) Broadcast(snap Snapshot) {
	h.mu.RLock()
	targets := make(map[string]*websocket.Conn, len(h.conns))
	for id, c := range h.conns {
		targets[id] = c
	}
	h.mu.RUnlock()

	for id, c := range targets {
		if err := c.WriteJSON(snap); err != nil {
			log.Warn().Err(err).Str("conn", id).Msg("progressws: broadcast failed, dropping connection")
			h.mu.Lock()
			delete(h.conns, id)
			delete(h.lastSeen, id)
			h.mu.Unlock()
			c.Close()
		}
	}
}
