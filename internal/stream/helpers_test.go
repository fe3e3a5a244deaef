// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every timer that came due, in order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Pending returns the remaining delay of every active timer.
func (c *manualClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.at-c.now)
		}
	}
	return out
}

var errRefused = errors.New("connection refused")

// fakeTransport fails every attempt unless succeed says otherwise.
type fakeTransport struct {
	mu       sync.Mutex
	opens    int
	closes   int
	handlers []Handler
	ctxs     []context.Context
	succeed  func(attempt int) bool
}

func (f *fakeTransport) Open(ctx context.Context, endpoint string, h Handler) error {
	f.mu.Lock()
	f.opens++
	n := f.opens
	f.handlers = append(f.handlers, h)
	f.ctxs = append(f.ctxs, ctx)
	ok := f.succeed != nil && f.succeed(n)
	f.mu.Unlock()

	if !ok {
		h.OnClose(errRefused)
		return errRefused
	}
	h.OnOpen()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTransport) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) Handler(i int) Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[i]
}

func (f *fakeTransport) Ctx(i int) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxs[i]
}

// recordingHandler collects Conn callbacks.
type recordingHandler struct {
	opened chan struct{}
	frames chan []byte
	closed chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		opened: make(chan struct{}, 4),
		frames: make(chan []byte, 64),
		closed: make(chan error, 4),
	}
}

func (h *recordingHandler) OnOpen()              { h.opened <- struct{}{} }
func (h *recordingHandler) OnFrame(frame []byte) { h.frames <- frame }
func (h *recordingHandler) OnClose(err error)    { h.closed <- err }
