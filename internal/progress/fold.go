// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package progress folds progress events into a per-stage view of the
// current run.
//
// The fold is last-write-wins per stage: events carry no sequence number, so
// a late or duplicated event simply overwrites what is stored. Replaying a
// stream of events therefore always produces the same mapping.
package progress

import (
	"maps"

	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/protocol"
)

// Record is the latest known state of one stage.
type Record struct {
	Stage   string
	Status  pipeline.StageStatus
	Message string
}

// Apply returns current with the stage named by ev replaced. Events other than
// agent progress leave the mapping untouched and current is returned as is.
// current is never modified.
func Apply(current map[string]Record, ev protocol.Event) map[string]Record {
	ap, ok := ev.(protocol.AgentProgressEvent)
	if !ok {
		return current
	}
	return set(current, Record{Stage: ap.Agent, Status: ap.Status, Message: ap.Message})
}

func set(current map[string]Record, r Record) map[string]Record {
	next := make(map[string]Record, len(current)+1)
	maps.Copy(next, current)
	next[r.Stage] = r
	return next
}

// Fold applies events in order to an empty mapping.
func Fold(events []protocol.Event) map[string]Record {
	m := map[string]Record{}
	for _, ev := range events {
		m = Apply(m, ev)
	}
	return m
}
