package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/meanfield/game"
	"github.com/brensch/meanfield/rollout"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The viewer API already allows any origin for its JSON endpoints.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts live density frames to every connected websocket client.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	slog.Info("watch client connected", "remote", conn.RemoteAddr().String())

	// Drain reads so close frames and pings are processed; frames flow
	// one way, hub to client.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	h.mu.Unlock()
}

// Broadcast sends a frame to every client, dropping clients whose writes
// fail.
func (h *Hub) Broadcast(frame LiveFrame) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteJSON(frame); err != nil {
			h.remove(c)
		}
	}
}

// runLiveLoop evolves the mean field under the uniform policy and streams
// one frame per step, restarting from the initial distribution after each
// horizon.
func runLiveLoop(ctx context.Context, g *game.Game, hub *Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tracker := rollout.NewDensityTracker(g)
	policy := rollout.UniformPolicy{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		grids := make([][]float64, g.Populations())
		for q := 0; q < g.Populations(); q++ {
			grids[q] = tracker.Grid(q)
		}
		hub.Broadcast(LiveFrame{
			T:        tracker.Time(),
			Size:     g.Size(),
			Geometry: g.Geometry().String(),
			Grids:    grids,
		})

		if tracker.Time() >= g.Horizon() {
			tracker = rollout.NewDensityTracker(g)
			continue
		}
		if err := tracker.Step(policy); err != nil {
			slog.Error("live tracker step failed", "err", err)
			return
		}
	}
}
