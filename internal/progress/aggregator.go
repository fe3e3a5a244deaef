// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"sync"

	"github.com/noldarim/wfbuilder/internal/logger"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/protocol"
)

// Aggregator holds the authoritative mapping for the current run. It is an
// observer for the event hub; every mutation goes through Apply.
type Aggregator struct {
	mu       sync.Mutex
	records  map[string]Record
	onChange func(Snapshot)

	notifyMu sync.Mutex
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{records: map[string]Record{}}
}

// OnChange registers f to receive the new snapshot after every mutation,
// replacing any previous callback. f must not mutate the aggregator.
func (a *Aggregator) OnChange(f func(Snapshot)) {
	a.mu.Lock()
	a.onChange = f
	a.mu.Unlock()
}

// HandleEvent folds ev into the mapping. It never fails.
func (a *Aggregator) HandleEvent(ev protocol.Event) error {
	if _, ok := ev.(protocol.AgentProgressEvent); !ok {
		return nil
	}
	a.update(func(m map[string]Record) map[string]Record { return Apply(m, ev) })
	return nil
}

// Record sets stage directly, as if an agent progress event had arrived.
func (a *Aggregator) Record(stage string, status pipeline.StageStatus, message string) {
	a.update(func(m map[string]Record) map[string]Record {
		return Apply(m, protocol.AgentProgressEvent{Agent: stage, Status: status, Message: message})
	})
}

// Reset forgets every record. Used when a new run begins.
func (a *Aggregator) Reset() {
	l := logger.GetProgressLogger()
	l.Debug().Msg("Resetting stage progress")
	a.update(func(map[string]Record) map[string]Record { return map[string]Record{} })
}

// Snapshot returns an immutable view of the current mapping.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	// The map is never written after being stored, so it can be shared.
	return Snapshot{records: a.records}
}

func (a *Aggregator) update(f func(map[string]Record) map[string]Record) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	a.records = f(a.records)
	snap := Snapshot{records: a.records}
	cb := a.onChange
	a.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}
