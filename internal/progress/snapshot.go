// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"maps"
	"sort"

	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/samber/lo"
)

// Snapshot is an immutable view of the records at one point in time.
type Snapshot struct {
	records map[string]Record
}

// NewSnapshot copies records into a Snapshot.
func NewSnapshot(records map[string]Record) Snapshot {
	return Snapshot{records: maps.Clone(records)}
}

// Get returns the stored record for stage.
func (s Snapshot) Get(stage string) (Record, bool) {
	r, ok := s.records[stage]
	return r, ok
}

// Status returns the status of stage, pending when nothing was reported.
func (s Snapshot) Status(stage string) pipeline.StageStatus {
	if r, ok := s.records[stage]; ok {
		return r.Status
	}
	return pipeline.StatusPending
}

// Len is the number of stored records, catalogue or not.
func (s Snapshot) Len() int { return len(s.records) }

// Records returns a copy of the full mapping.
func (s Snapshot) Records() map[string]Record {
	return maps.Clone(s.records)
}

// Ordered returns one record per catalogue stage, in execution order. Stages
// without a report are pending with an empty message.
func (s Snapshot) Ordered() []Record {
	return lo.Map(pipeline.Stages(), func(st pipeline.Stage, _ int) Record {
		if r, ok := s.records[st.Name]; ok {
			return r
		}
		return Record{Stage: st.Name, Status: pipeline.StatusPending}
	})
}

// Informational returns records for stages outside the catalogue, sorted by
// stage name. They are kept but never shown as pipeline steps.
func (s Snapshot) Informational() []Record {
	out := lo.Filter(lo.Values(s.records), func(r Record, _ int) bool {
		return !pipeline.Contains(r.Stage)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Counts tallies catalogue stages by status.
type Counts struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// Done reports whether every catalogue stage reached a terminal status.
func (c Counts) Done() bool { return c.Completed+c.Failed == c.Total }

// Counts summarizes the catalogue stages.
func (s Snapshot) Counts() Counts {
	by := lo.CountValuesBy(s.Ordered(), func(r Record) pipeline.StageStatus { return r.Status })
	return Counts{
		Total:     pipeline.Len(),
		Pending:   by[pipeline.StatusPending],
		Running:   by[pipeline.StatusRunning],
		Completed: by[pipeline.StatusCompleted],
		Failed:    by[pipeline.StatusFailed],
	}
}

// Current returns the first running catalogue stage, if any.
func (s Snapshot) Current() (Record, bool) {
	return lo.Find(s.Ordered(), func(r Record) bool { return r.Status == pipeline.StatusRunning })
}
