// Package transport pushes live position and gate-decision events to
// operator dashboards over WebSocket. Grounded in the teacher's hub.go:
// the same mutex-guarded client map, ping/pong heartbeat constants, and
// register/unregister/Broadcast shape, with PriceThrottler's coalescing
// ticker retargeted from raw trade-price ticks to position snapshots so a
// busy monitor cycle can't flood a slow dashboard connection.
package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// PositionEvent reports a position lifecycle transition: opened, a
// breakeven trim, or a close with its exit reason.
type PositionEvent struct {
	Type     string  `json:"type"`
	Token    string  `json:"token"`
	Status   string  `json:"status"`
	PnLPct   float64 `json:"pnl_pct"`
	ExitType string  `json:"exit_type,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// DecisionEvent reports one gate or risk verdict for the dashboard's
// live decision feed.
type DecisionEvent struct {
	Type    string   `json:"type"`
	Token   string   `json:"token"`
	Gate    string   `json:"gate"`
	Verdict string   `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`
}

// Hub fans out JSON events to every connected dashboard client, adapted
// from the teacher's Hub (clients map[*websocket.Conn]bool guarded by a
// plain mutex, no client-specific send buffering).
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	upgrader  websocket.Upgrader
	log       *telemetry.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: telemetry.New("transport"),
	}
}

// HandleWebSocket upgrades the connection, sends a connection_init
// handshake, and runs the ping/pong heartbeat until the client
// disconnects, mirroring the teacher's HandleWebSocket.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed: %v", err)
		return
	}

	h.register(conn)
	defer h.unregister(conn)

	init := map[string]interface{}{
		"type":      "connection_init",
		"service":   "sentinel",
		"timestamp": time.Now().Unix(),
	}
	if b, err := json.Marshal(init); err == nil {
		conn.WriteMessage(websocket.TextMessage, b)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[conn] = true
	h.log.Info("dashboard client connected, total=%d", len(h.clients))
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		h.log.Info("dashboard client disconnected, total=%d", len(h.clients))
	}
}

// Broadcast writes msg as JSON to every connected client, dropping (and
// unregistering) any client whose write fails, matching the teacher's
// Broadcast.
func (h *Hub) Broadcast(msg interface{}) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("broadcast marshal failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// PositionThrottler coalesces rapid position updates into one broadcast
// per symbol per tick, adapted from PriceThrottler — the teacher throttles
// raw ticker prices at 5x/sec; here it throttles position PnL snapshots at
// the same rate so a fast monitor cycle never spams the dashboard faster
// than it can render.
type PositionThrottler struct {
	hub      *Hub
	pending  map[string]PositionEvent
	mu       sync.Mutex
	interval time.Duration
}

func NewPositionThrottler(hub *Hub) *PositionThrottler {
	return &PositionThrottler{
		hub:      hub,
		pending:  make(map[string]PositionEvent),
		interval: 200 * time.Millisecond,
	}
}

func (pt *PositionThrottler) Update(ev PositionEvent) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.pending[ev.Token] = ev
}

// Pending reports the most recently queued, not-yet-flushed event for a
// token, for tests and diagnostics.
func (pt *PositionThrottler) Pending(token string) (PositionEvent, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	ev, ok := pt.pending[token]
	return ev, ok
}

// Start drains the pending map on a fixed tick, mirroring PriceThrottler's
// unbounded time.NewTicker loop. It has no stop condition and never
// returns; the loop runs until the process exits.
func (pt *PositionThrottler) Start() {
	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	for range ticker.C {
		pt.mu.Lock()
		if len(pt.pending) == 0 {
			pt.mu.Unlock()
			continue
		}
		snapshot := make([]PositionEvent, 0, len(pt.pending))
		for _, ev := range pt.pending {
			snapshot = append(snapshot, ev)
		}
		pt.pending = make(map[string]PositionEvent)
		pt.mu.Unlock()

		for _, ev := range snapshot {
			pt.hub.Broadcast(ev)
		}
	}
}

// BroadcastDecision publishes a gate verdict immediately; decisions are
// low-frequency enough (one per candidate evaluation) to skip throttling.
func (h *Hub) BroadcastDecision(token domain.TokenFingerprint, v domain.GateVerdict) {
	h.Broadcast(DecisionEvent{
		Type:    "decision",
		Token:   token.String(),
		Gate:    v.Gate,
		Verdict: string(v.Verdict),
		Reasons: v.Reasons,
	})
}
