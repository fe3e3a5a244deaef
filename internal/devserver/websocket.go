// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/noldarim/wfbuilder/internal/protocol"
)

const (
	// WebSocket limits
	maxMessageSize = 4096
	maxFilters     = 50
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
	maxClients     = 1000
	sendBuffer     = 256
)

// newUpgrader creates a WebSocket upgrader that respects the configured allowed
// origins. When allowedOrigins is empty the upgrader accepts any origin.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}
}

// wsClient represents a single connected WebSocket client. A client without
// workflow filters receives every event.
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	workflows map[string]struct{}
	mu        sync.RWMutex
}

// ClientRegistry manages all connected WebSocket clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	metrics *Metrics
}

// NewClientRegistry creates a new client registry. metrics may be nil.
func NewClientRegistry(metrics *Metrics) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[*wsClient]struct{}),
		metrics: metrics,
	}
}

// Broadcast sends an event to every client interested in its workflow.
// Clients whose send buffer is full miss the event.
func (r *ClientRegistry) Broadcast(event protocol.Event) {
	data, err := protocol.Encode(event)
	if err != nil {
		getLog().Error().Err(err).Msg("Failed to encode event for WebSocket broadcast")
		return
	}
	workflowID := protocol.WorkflowID(event)
	r.metrics.broadcast(string(event.Kind()))

	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.clients {
		if !c.wants(workflowID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// client too slow, skip
			r.metrics.dropped()
			getLog().Warn().Str("workflow_id", workflowID).Msg("Dropping event for slow WebSocket client")
		}
	}
}

// Len returns the number of connected clients.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *ClientRegistry) add(c *wsClient) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients) >= maxClients {
		return false
	}
	r.clients[c] = struct{}{}
	r.metrics.clientConnected()
	return true
}

func (r *ClientRegistry) remove(c *wsClient) {
	r.mu.Lock()
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		r.metrics.clientDisconnected()
	}
	r.mu.Unlock()
}

// wants reports whether the client subscribed to workflowID. Events without a
// workflow go to everybody.
func (c *wsClient) wants(workflowID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.workflows) == 0 || workflowID == "" {
		return true
	}
	_, ok := c.workflows[workflowID]
	return ok
}

// wsMessage is the envelope for client → server WebSocket messages.
type wsMessage struct {
	Type       string `json:"type"` // "subscribe" or "unsubscribe"
	WorkflowID string `json:"workflow_id"`
}

// HandleWebSocket upgrades an HTTP connection and manages the client lifecycle.
func HandleWebSocket(registry *ClientRegistry, allowedOrigins []string) http.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			getLog().Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		client := &wsClient{
			conn:      conn,
			send:      make(chan []byte, sendBuffer),
			workflows: make(map[string]struct{}),
		}
		if !registry.add(client) {
			getLog().Warn().Msg("WebSocket connection limit reached")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
			_ = conn.Close()
			return
		}
		getLog().Info().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

		go client.writePump()
		client.readPump(registry)
	}
}

func (c *wsClient) readPump(registry *ClientRegistry) {
	defer func() {
		registry.remove(c)
		close(c.send) // signals writePump to exit
		_ = c.conn.Close()
		getLog().Info().Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				getLog().Error().Err(err).Msg("WebSocket read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type == "" {
			c.echo(message)
			continue
		}

		switch msg.Type {
		case "subscribe":
			c.mu.Lock()
			if len(c.workflows) >= maxFilters {
				getLog().Warn().Msg("WebSocket client hit max filter limit")
			} else if msg.WorkflowID != "" {
				c.workflows[msg.WorkflowID] = struct{}{}
				getLog().Debug().Str("workflow_id", msg.WorkflowID).Msg("WebSocket client subscribed")
			}
			c.mu.Unlock()
		case "unsubscribe":
			c.mu.Lock()
			delete(c.workflows, msg.WorkflowID)
			c.mu.Unlock()
			getLog().Debug().Str("workflow_id", msg.WorkflowID).Msg("WebSocket client unsubscribed")
		default:
			c.echo(message)
		}
	}
}

// echo answers unrecognized client messages, which helps when debugging a
// client by hand.
func (c *wsClient) echo(message []byte) {
	data, err := json.Marshal(map[string]string{"type": "echo", "data": string(message)})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed by readPump, send close frame.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				getLog().Error().Err(err).Msg("WebSocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
