// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"testing"
	"time"

	"github.com/noldarim/wfbuilder/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeAt(start time.Time) *Store {
	s := NewStore()
	tick := start
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore()
	wf := s.Create(api.WorkflowRequest{Description: "a cat", ModelType: api.ModelFlux, Width: 512, Height: 768})

	assert.Regexp(t, `^wf_\d{8}_\d{6}_[0-9a-f]{8}$`, wf.ID)
	assert.Equal(t, api.WorkflowPending, wf.Status)
	assert.Equal(t, "512x768", wf.Metadata["dimensions"])
	assert.Equal(t, "flux", wf.Metadata["model_type"])

	got, ok := s.Get(wf.ID)
	require.True(t, ok)
	assert.Equal(t, wf.ID, got.ID)

	_, ok = s.Get("wf_missing")
	assert.False(t, ok)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore()
	wf := s.Create(api.WorkflowRequest{Description: "x"})

	got, _ := s.Get(wf.ID)
	got.Metadata["description"] = "mutated"
	got.AgentProgress = append(got.AgentProgress, api.AgentProgress{Name: "x"})

	again, _ := s.Get(wf.ID)
	assert.Equal(t, "x", again.Metadata["description"])
	assert.Empty(t, again.AgentProgress)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	s := NewStore()
	wf := s.Create(api.WorkflowRequest{Description: "x"})

	assert.True(t, s.Update(wf.ID, func(w *api.Workflow) { w.Status = api.WorkflowProcessing }))
	got, _ := s.Get(wf.ID)
	assert.Equal(t, api.WorkflowProcessing, got.Status)

	assert.True(t, s.Delete(wf.ID))
	assert.False(t, s.Delete(wf.ID))
	assert.False(t, s.Update(wf.ID, func(*api.Workflow) {}))
	assert.Equal(t, 0, s.Len())
}

func TestStore_HistoryNewestFirstWithPaging(t *testing.T) {
	s := storeAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var ids []string
	for _, d := range []string{"one", "two", "three", "four"} {
		ids = append(ids, s.Create(api.WorkflowRequest{Description: d}).ID)
	}

	all := s.History(-1, 0)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].ID)
	assert.Equal(t, "four", all[0].Description)
	assert.Equal(t, ids[0], all[3].ID)

	page := s.History(2, 1)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	assert.Empty(t, s.History(10, 4))
	assert.NotNil(t, s.History(10, 40))
	assert.Len(t, s.History(0, 0), 0)
}
