// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package testutil

import (
	"sync"
	"time"

	"github.com/noldarim/wfbuilder/internal/protocol"
)

// EventRecorder is an observer that keeps every event it receives. Err, when
// set, is returned from every HandleEvent call.
type EventRecorder struct {
	mu     sync.Mutex
	events []protocol.Event
	notify chan struct{}
	Err    error
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{notify: make(chan struct{}, 1)}
}

// HandleEvent records ev.
func (r *EventRecorder) HandleEvent(ev protocol.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return r.Err
}

// Events returns a copy of everything recorded so far.
func (r *EventRecorder) Events() []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded events.
func (r *EventRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// WaitFor blocks until at least n events were recorded or timeout passes.
func (r *EventRecorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if r.Count() >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return r.Count() >= n
		}
	}
}
