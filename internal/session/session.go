// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session assembles the realtime progress subsystem: one supervised
// connection, the decoder, the observer hub and the stage aggregator.
//
// Frames are decoded and published on the connection's receive goroutine, so
// observers see events in transport order.
package session

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/noldarim/wfbuilder/internal/config"
	"github.com/noldarim/wfbuilder/internal/hub"
	"github.com/noldarim/wfbuilder/internal/logger"
	"github.com/noldarim/wfbuilder/internal/progress"
	"github.com/noldarim/wfbuilder/internal/protocol"
	"github.com/noldarim/wfbuilder/internal/stream"
	"github.com/rs/zerolog"
)

func getLog() *zerolog.Logger {
	l := logger.GetSessionLogger()
	return &l
}

// Options configures a Session.
type Options struct {
	Endpoint string
	Stream   stream.Options
	Floor    time.Duration
	Ceiling  time.Duration
	Clock    stream.Clock        // nil means the real clock
	OnStatus func(stream.Status) // passive connection indicator
}

// OptionsFromConfig maps application configuration to session options.
func OptionsFromConfig(cfg *config.AppConfig) Options {
	return Options{
		Endpoint: cfg.Service.StreamURL,
		Stream: stream.Options{
			HandshakeTimeout: cfg.Stream.HandshakeTimeout,
			WriteWait:        cfg.Stream.WriteWait,
			ReadTimeout:      cfg.Stream.ReadTimeout,
			ReadLimit:        cfg.Stream.ReadLimit,
		},
		Floor:   cfg.Reconnect.Floor,
		Ceiling: cfg.Reconnect.Ceiling,
	}
}

// Session owns the progress subsystem for one observing client.
type Session struct {
	conn        *stream.Conn
	reconnector *stream.Reconnector
	registry    *hub.Registry
	progress    *progress.Aggregator
}

// New validates opts and builds an idle Session. Call Start to connect.
func New(opts Options) (*Session, error) {
	if err := validateEndpoint(opts.Endpoint); err != nil {
		return nil, err
	}

	s := &Session{
		conn:     stream.NewConn(opts.Stream),
		registry: hub.NewRegistry(),
		progress: progress.NewAggregator(),
	}
	s.registry.Subscribe(s.progress)

	ropts := []stream.ReconnectorOption{
		stream.WithBackoff(stream.NewBackoff(opts.Floor, opts.Ceiling)),
		stream.WithFrameFunc(s.handleFrame),
	}
	if opts.Clock != nil {
		ropts = append(ropts, stream.WithClock(opts.Clock))
	}
	if opts.OnStatus != nil {
		ropts = append(ropts, stream.WithStatusFunc(opts.OnStatus))
	}
	s.reconnector = stream.NewReconnector(opts.Endpoint, s.conn, ropts...)
	return s, nil
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return stream.ErrEmptyEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("stream endpoint must include scheme and host")
	}
	return nil
}

// Start begins connecting in the background. Connection failures never
// surface here; they are retried and reported through the status callback.
func (s *Session) Start(ctx context.Context) error {
	return s.reconnector.Start(ctx)
}

// Close stops reconnection and closes the connection. Subscriptions stay
// registered but receive nothing further.
func (s *Session) Close() error {
	return s.reconnector.Close()
}

// Subscribe registers an observer for every decoded event.
func (s *Session) Subscribe(o hub.Observer) hub.Token {
	return s.registry.Subscribe(o)
}

// Unsubscribe removes an observer. Unknown tokens are ignored.
func (s *Session) Unsubscribe(t hub.Token) {
	s.registry.Unsubscribe(t)
}

// Progress returns the current stage snapshot.
func (s *Session) Progress() progress.Snapshot {
	return s.progress.Snapshot()
}

// Aggregator exposes the stage aggregator, e.g. to register a change callback.
func (s *Session) Aggregator() *progress.Aggregator {
	return s.progress
}

// BeginRun clears stage progress before a new generation is submitted.
func (s *Session) BeginRun() {
	s.progress.Reset()
}

// State returns the transport state.
func (s *Session) State() stream.ConnectionState {
	return s.conn.State()
}

// Status returns the reconnection status.
func (s *Session) Status() stream.Status {
	return s.reconnector.Status()
}

// Send writes v to the service when connected and returns
// stream.ErrNotConnected otherwise.
func (s *Session) Send(v any) error {
	return s.conn.Send(v)
}

func (s *Session) handleFrame(frame []byte) {
	ev, err := protocol.Decode(frame)
	if err != nil {
		getLog().Warn().Err(err).Msg("Dropping undecodable frame")
		return
	}

	if err := s.registry.Publish(ev); err != nil {
		getLog().Warn().Err(err).Str("kind", string(ev.Kind())).
			Str("workflow_id", protocol.WorkflowID(ev)).Msg("Subscriber failed to handle event")
	}
}
