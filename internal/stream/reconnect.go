// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the supervision state of a Reconnector.
type State int

const (
	StateIdle       State = iota // not started
	StateAttempting              // a dial is in flight
	StateConnected               // the transport is connected
	StateWaiting                 // a retry is scheduled
	StateStopped                 // closed for good
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateConnected:
		return "connected"
	case StateWaiting:
		return "waiting"
	case StateStopped:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a point-in-time view of a Reconnector, meant for passive display.
type Status struct {
	State     State
	Failures  int           // consecutive failures since the last successful open
	RetryIn   time.Duration // delay of the scheduled retry, while waiting
	LastError error
}

// FrameFunc receives every frame of the supervised connection.
type FrameFunc func(frame []byte)

// ReconnectorOption configures a Reconnector.
type ReconnectorOption func(*Reconnector)

// WithClock replaces the real clock.
func WithClock(c Clock) ReconnectorOption {
	return func(r *Reconnector) { r.clock = c }
}

// WithBackoff replaces the default 1s..30s backoff.
func WithBackoff(b *Backoff) ReconnectorOption {
	return func(r *Reconnector) { r.backoff = b }
}

// WithStatusFunc registers a callback for every status change.
func WithStatusFunc(f func(Status)) ReconnectorOption {
	return func(r *Reconnector) { r.onStatus = f }
}

// WithFrameFunc registers the consumer of inbound frames.
func WithFrameFunc(f FrameFunc) ReconnectorOption {
	return func(r *Reconnector) { r.onFrame = f }
}

// WithOpenFunc registers a callback run after every successful open.
func WithOpenFunc(f func()) ReconnectorOption {
	return func(r *Reconnector) { r.onOpen = f }
}

// Reconnector keeps a Transport connected to one endpoint. At most one retry
// is scheduled at any time; scheduling a new one invalidates the previous.
type Reconnector struct {
	endpoint  string
	transport Transport
	backoff   *Backoff
	clock     Clock
	onStatus  func(Status)
	onFrame   FrameFunc
	onOpen    func()

	mu       sync.Mutex
	state    State
	failures int
	retryIn  time.Duration
	lastErr  error
	timer    Timer
	token    uint64 // identifies the only retry allowed to run
	ctx      context.Context
	cancel   context.CancelFunc
	stopCtx  func() bool

	statusMu sync.Mutex // keeps status callbacks ordered
}

// NewReconnector creates an idle Reconnector. Call Start to connect.
func NewReconnector(endpoint string, transport Transport, opts ...ReconnectorOption) *Reconnector {
	r := &Reconnector{
		endpoint:  endpoint,
		transport: transport,
		clock:     RealClock(),
		backoff:   NewBackoff(DefaultFloor, DefaultCeiling),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start makes the first connection attempt in the background. Cancelling ctx
// has the same effect as Close. Starting twice is a no-op.
func (r *Reconnector) Start(ctx context.Context) error {
	if r.endpoint == "" {
		return ErrEmptyEndpoint
	}

	r.mu.Lock()
	switch r.state {
	case StateStopped:
		r.mu.Unlock()
		return ErrClosed
	case StateIdle:
	default:
		r.mu.Unlock()
		return nil
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.stopCtx = context.AfterFunc(r.ctx, func() { _ = r.Close() })
	r.state = StateAttempting
	r.token++
	token := r.token
	attemptCtx := r.ctx
	st := r.statusLocked()
	r.mu.Unlock()

	r.emit(st)
	go r.dial(attemptCtx, token)
	return nil
}

func (r *Reconnector) dial(ctx context.Context, token uint64) {
	err := r.transport.Open(ctx, r.endpoint, handler{r, token})
	if err != nil && !errors.Is(err, ErrSuperseded) {
		getLog().Debug().Err(err).Str("endpoint", r.endpoint).Msg("Connection attempt failed")
	}
}

// fire runs a scheduled retry, unless it has been superseded.
func (r *Reconnector) fire(token uint64) {
	r.mu.Lock()
	if token != r.token || r.state != StateWaiting {
		r.mu.Unlock()
		return
	}
	r.state = StateAttempting
	r.timer = nil
	r.retryIn = 0
	ctx := r.ctx
	st := r.statusLocked()
	r.mu.Unlock()

	r.emit(st)
	r.dial(ctx, token)
}

func (r *Reconnector) opened(token uint64) {
	r.mu.Lock()
	if token != r.token || r.state == StateStopped {
		r.mu.Unlock()
		return
	}
	r.backoff.Reset()
	r.state = StateConnected
	r.failures = 0
	r.retryIn = 0
	r.lastErr = nil
	st := r.statusLocked()
	r.mu.Unlock()

	getLog().Info().Str("endpoint", r.endpoint).Msg("Progress stream established")
	r.emit(st)
	if r.onOpen != nil {
		r.onOpen()
	}
}

func (r *Reconnector) closed(token uint64, cause error) {
	r.mu.Lock()
	if token != r.token || r.state == StateStopped {
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	delay := r.backoff.Next()
	r.token++
	next := r.token
	r.state = StateWaiting
	r.failures++
	r.retryIn = delay
	r.lastErr = cause
	r.timer = r.clock.AfterFunc(delay, func() { r.fire(next) })
	st := r.statusLocked()
	r.mu.Unlock()

	getLog().Warn().Err(cause).Dur("retry_in", delay).Int("failures", st.Failures).
		Msg("Progress stream lost, scheduling reconnect")
	r.emit(st)
}

// Close stops supervision: the pending retry is cancelled, an in-flight dial
// is aborted and the transport is closed. It is idempotent.
func (r *Reconnector) Close() error {
	r.mu.Lock()
	if r.state == StateStopped {
		r.mu.Unlock()
		return nil
	}
	r.state = StateStopped
	r.token++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.retryIn = 0
	if r.stopCtx != nil {
		r.stopCtx()
	}
	if r.cancel != nil {
		r.cancel()
	}
	st := r.statusLocked()
	r.mu.Unlock()

	r.emit(st)
	return r.transport.Close()
}

// Status returns the current supervision status.
func (r *Reconnector) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Reconnector) statusLocked() Status {
	return Status{State: r.state, Failures: r.failures, RetryIn: r.retryIn, LastError: r.lastErr}
}

func (r *Reconnector) emit(st Status) {
	if r.onStatus == nil {
		return
	}
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.onStatus(st)
}

// handler binds transport callbacks to the attempt that produced them.
type handler struct {
	r     *Reconnector
	token uint64
}

func (h handler) OnOpen() { h.r.opened(h.token) }
func (h handler) OnClose(err error) { h.r.closed(h.token, err) }

func (h handler) OnFrame(frame []byte) {
	if h.r.onFrame != nil {
		h.r.onFrame(frame)
	}
}
