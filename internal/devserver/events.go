// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package devserver is a local stand-in for the workflow service. It serves
// the REST API and the progress WebSocket, and simulates the 14-stage
// pipeline for every generation request so the client can be exercised
// without the real backend.
package devserver

import (
	"context"

	"github.com/noldarim/wfbuilder/internal/logger"
	"github.com/noldarim/wfbuilder/internal/protocol"
	"github.com/rs/zerolog"
)

func getLog() *zerolog.Logger {
	l := logger.GetDevServerLogger()
	return &l
}

// EventBroadcaster reads every event the generator emits and fans them out
// to all connected WebSocket clients.
type EventBroadcaster struct {
	eventChan <-chan protocol.Event
	clients   *ClientRegistry
}

// NewEventBroadcaster creates a broadcaster for eventChan.
func NewEventBroadcaster(eventChan <-chan protocol.Event, clients *ClientRegistry) *EventBroadcaster {
	return &EventBroadcaster{
		eventChan: eventChan,
		clients:   clients,
	}
}

// Run reads events until the channel is closed or context is cancelled.
func (b *EventBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case event, ok := <-b.eventChan:
			if !ok {
				getLog().Info().Msg("Event broadcaster stopped (channel closed)")
				return
			}
			b.clients.Broadcast(event)
		case <-ctx.Done():
			getLog().Info().Msg("Event broadcaster stopped (context cancelled)")
			return
		}
	}
}
