// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipelineview

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/noldarim/wfbuilder/internal/progress"
	"github.com/noldarim/wfbuilder/internal/stream"
)

// Feed carries state from the progress session into the program. Producers
// never block: only the latest snapshot and connection status are kept, and
// the program picks them up on its next read. The finish notice is sticky.
type Feed struct {
	mu      sync.Mutex
	pending feedMsg
	notify  chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// feedMsg bundles everything published since the last read.
type feedMsg struct {
	snapshot *progress.Snapshot
	conn     *stream.Status
	finished *RunFinishedMsg
}

func (f feedMsg) empty() bool {
	return f.snapshot == nil && f.conn == nil && f.finished == nil
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Snapshot publishes the current aggregate.
func (f *Feed) Snapshot(s progress.Snapshot) {
	f.publish(func(p *feedMsg) { p.snapshot = &s })
}

// ConnStatus publishes a connection state change. It matches the session's
// status callback signature.
func (f *Feed) ConnStatus(st stream.Status) {
	f.publish(func(p *feedMsg) { p.conn = &st })
}

// Finish tells the program the run is over.
func (f *Feed) Finish(msg RunFinishedMsg) {
	f.publish(func(p *feedMsg) {
		if p.finished == nil {
			p.finished = &msg
		}
	})
}

// Close releases a program blocked on the feed.
func (f *Feed) Close() {
	f.once.Do(func() { close(f.closed) })
}

func (f *Feed) publish(apply func(*feedMsg)) {
	f.mu.Lock()
	apply(&f.pending)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *Feed) take() feedMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = feedMsg{}
	return out
}

// next waits for the next publication.
func (f *Feed) next() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case <-f.notify:
				if msg := f.take(); !msg.empty() {
					return msg
				}
			case <-f.closed:
				return nil
			}
		}
	}
}
