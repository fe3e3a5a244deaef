// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected is returned by Send when no connection is open.
	ErrNotConnected = errors.New("stream: not connected")
	// ErrClosed is returned after Close on components that cannot be reused.
	ErrClosed = errors.New("stream: closed")
	// ErrEmptyEndpoint is returned by Open for an empty endpoint.
	ErrEmptyEndpoint = errors.New("stream: empty endpoint")
	// ErrSuperseded is returned by Open when a later Open or Close replaced
	// the attempt before it completed.
	ErrSuperseded = errors.New("stream: connection attempt superseded")
)

// ConnectionState is the lifecycle state of a Conn.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// Handler receives the lifecycle of one connection attempt. Callbacks run on
// the goroutine that dialed (OnOpen, OnClose for dial failures) or on the
// receive goroutine (OnFrame, OnClose for peer closures), never concurrently
// for the same attempt.
type Handler interface {
	OnOpen()
	OnFrame(frame []byte)
	OnClose(err error)
}

// Transport is the part of Conn a Reconnector drives.
type Transport interface {
	Open(ctx context.Context, endpoint string, h Handler) error
	Close() error
}

// Options tunes a Conn. Zero values fall back to defaults.
type Options struct {
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	ReadTimeout      time.Duration // 0 disables the idle read deadline
	ReadLimit        int64
	Header           http.Header
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultReadLimit        = 1 << 20
)

// Conn is a single WebSocket connection that can be reopened. All methods are
// safe for concurrent use.
type Conn struct {
	opts   Options
	dialer *websocket.Dialer

	mu    sync.Mutex
	state ConnectionState
	ws    *websocket.Conn
	gen   uint64 // bumped by every Open and Close; stale attempts compare against it

	writeMu sync.Mutex
}

var _ Transport = (*Conn)(nil)

// NewConn creates a disconnected Conn.
func NewConn(opts Options) *Conn {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	return &Conn{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
	}
}

// State returns the current connection state.
func (c *Conn) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open dials endpoint. An already open connection is torn down first without
// notifying its handler. On success h.OnOpen is called and frames are
// delivered to h.OnFrame until the peer goes away, at which point h.OnClose
// reports the cause. A failed dial also reports through h.OnClose.
func (c *Conn) Open(ctx context.Context, endpoint string, h Handler) error {
	if endpoint == "" {
		return ErrEmptyEndpoint
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	old := c.ws
	c.ws = nil
	c.state = Connecting
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	getLog().Debug().Str("endpoint", endpoint).Uint64("gen", gen).Msg("Dialing progress stream")
	ws, _, err := c.dialer.DialContext(ctx, endpoint, c.opts.Header)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if ws != nil {
			_ = ws.Close()
		}
		return ErrSuperseded
	}
	if err != nil {
		c.state = Disconnected
		c.mu.Unlock()
		h.OnClose(err)
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	c.configure(ws)
	c.ws = ws
	c.state = Connected
	c.mu.Unlock()

	getLog().Info().Str("endpoint", endpoint).Msg("Progress stream connected")
	h.OnOpen()
	go c.readLoop(ws, gen, h)
	return nil
}

func (c *Conn) configure(ws *websocket.Conn) {
	ws.SetReadLimit(c.opts.ReadLimit)
	if c.opts.ReadTimeout <= 0 {
		return
	}
	_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	ws.SetPingHandler(func(appData string) error {
		_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
}

func (c *Conn) readLoop(ws *websocket.Conn, gen uint64, h Handler) {
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := gen == c.gen
			if current {
				c.ws = nil
				c.state = Disconnected
			}
			c.mu.Unlock()

			_ = ws.Close()
			if !current {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				getLog().Warn().Err(err).Msg("Progress stream closed unexpectedly")
			} else {
				getLog().Info().Err(err).Msg("Progress stream closed")
			}
			h.OnClose(err)
			return
		}

		if c.opts.ReadTimeout > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		c.dispatch(h, frame)
	}
}

// dispatch keeps a panicking handler from killing the receive loop.
func (c *Conn) dispatch(h Handler, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			getLog().Error().Interface("panic", r).Msg("Frame handler panicked")
		}
	}()
	h.OnFrame(frame)
}

// Send writes v as a JSON text frame. It returns ErrNotConnected unless the
// connection is open.
func (c *Conn) Send(v any) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected || ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := ws.WriteJSON(v); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close tears down the current connection, if any. No OnClose notification is
// raised for it. The Conn may be opened again afterwards.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.gen++
	ws := c.ws
	c.ws = nil
	c.state = Disconnected
	c.mu.Unlock()

	if ws == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
	return ws.Close()
}
