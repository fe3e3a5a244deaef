// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// WSServer is a progress endpoint for tests. Every accepted connection is
// handed to the test through Accept; frames sent by clients are collected in
// Received.
type WSServer struct {
	*httptest.Server
	URL      string // ws:// URL of the endpoint
	Received chan []byte

	conns    chan *websocket.Conn
	mu       sync.Mutex
	accepted []*websocket.Conn
	reject   bool
}

// NewWSServer starts a server and registers its shutdown with t.Cleanup.
func NewWSServer(t testing.TB) *WSServer {
	t.Helper()

	s := &WSServer{
		Received: make(chan []byte, 64),
		conns:    make(chan *websocket.Conn, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		reject := s.reject
		s.mu.Unlock()
		if reject {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.accepted = append(s.accepted, conn)
		s.mu.Unlock()
		s.conns <- conn

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case s.Received <- msg:
			default:
			}
		}
	}))
	s.URL = "ws" + strings.TrimPrefix(s.Server.URL, "http")

	t.Cleanup(s.Close)
	return s
}

// Accept waits for the next client connection.
func (s *WSServer) Accept(t testing.TB, timeout time.Duration) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(timeout):
		require.FailNow(t, "no websocket client connected in time")
		return nil
	}
}

// Reject makes the server refuse upgrades until called again with false.
func (s *WSServer) Reject(reject bool) {
	s.mu.Lock()
	s.reject = reject
	s.mu.Unlock()
}

// Close drops every client and stops the server.
func (s *WSServer) Close() {
	s.mu.Lock()
	for _, c := range s.accepted {
		_ = c.Close()
	}
	s.accepted = nil
	s.mu.Unlock()
	s.Server.CloseClientConnections()
	s.Server.Close()
}

// SendText writes a text frame to a client, failing the test on error.
func SendText(t testing.TB, c *websocket.Conn, frame []byte) {
	t.Helper()
	require.NoError(t, c.WriteMessage(websocket.TextMessage, frame))
}

// CloseFromServer performs a clean close handshake from the server side.
func CloseFromServer(c *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")
	_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.Close()
}
