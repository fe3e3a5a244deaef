// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipelineview

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/progress"
	"github.com/noldarim/wfbuilder/internal/stream"
	"github.com/noldarim/wfbuilder/internal/tui/components/elapsedtimer"
	"github.com/noldarim/wfbuilder/internal/tui/components/pipelinesummary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(statuses map[string]pipeline.StageStatus) progress.Snapshot {
	recs := map[string]progress.Record{}
	for name, st := range statuses {
		recs[name] = progress.Record{Stage: name, Status: st, Message: name + " " + string(st)}
	}
	return progress.NewSnapshot(recs)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModel_RendersSnapshotAndConnection(t *testing.T) {
	m := New(100, 40, "wf_1", nil)
	m, _ = update(t, m, SnapshotMsg{Snapshot: snapshot(map[string]pipeline.StageStatus{
		"parameter-extractor": pipeline.StatusCompleted,
		"asset-finder":        pipeline.StatusRunning,
	})})
	m, _ = update(t, m, ConnStatusMsg{Status: stream.Status{State: stream.StateConnected}})

	out := ansi.Strip(m.View())
	assert.Contains(t, out, "wfbuilder")
	assert.Contains(t, out, "wf_1")
	assert.Contains(t, out, "✓ Parameter Extraction parameter-extractor completed")
	assert.Contains(t, out, "2/14 Asset Discovery")
	assert.Contains(t, out, "● live")
	assert.Equal(t, pipeline.StatusRunning, m.Snapshot().Status("asset-finder"))
}

func TestModel_ReconnectIndicator(t *testing.T) {
	m := New(100, 40, "", nil)
	m, _ = update(t, m, ConnStatusMsg{Status: stream.Status{State: stream.StateWaiting, Failures: 2, RetryIn: 4 * time.Second}})
	assert.Contains(t, ansi.Strip(m.ViewStatusBar()), "reconnecting in 4s (attempt 3)")

	m, _ = update(t, m, ConnStatusMsg{Status: stream.Status{State: stream.StateStopped}})
	assert.Contains(t, ansi.Strip(m.ViewStatusBar()), "offline")
}

func TestModel_FinishQuitsWithSummary(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timer := elapsedtimer.New().WithClock(func() time.Time { return now }).Start()
	m := New(80, 24, "wf_1", nil).WithTimer(timer)

	all := map[string]pipeline.StageStatus{}
	for _, n := range pipeline.Names() {
		all[n] = pipeline.StatusCompleted
	}
	m, _ = update(t, m, SnapshotMsg{Snapshot: snapshot(all)})

	now = now.Add(42 * time.Second)
	m, cmd := update(t, m, RunFinishedMsg{Status: pipelinesummary.StatusCompleted, Message: "Workflow generated successfully!"})
	assert.True(t, isQuit(cmd))
	assert.Empty(t, m.View())

	now = now.Add(time.Hour)
	s := m.Summary()
	assert.Equal(t, pipelinesummary.StatusCompleted, s.Status)
	assert.Equal(t, "wf_1", s.WorkflowID)
	assert.Equal(t, 42*time.Second, s.Duration)
	assert.Equal(t, pipeline.Len(), s.Counts.Completed)
	assert.Equal(t, "Workflow generated successfully!", s.Message)

	// A second finish does not overwrite the first.
	m, _ = update(t, m, RunFinishedMsg{Status: pipelinesummary.StatusFailed})
	assert.Equal(t, pipelinesummary.StatusCompleted, m.Finished().Status)
}

func TestModel_QuitKeyInterrupts(t *testing.T) {
	m := New(80, 24, "wf_1", nil)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.True(t, isQuit(cmd))
	assert.Nil(t, m.Finished())
	assert.Equal(t, pipelinesummary.StatusInterrupted, m.Summary().Status)
}

func TestModel_WindowResize(t *testing.T) {
	m := New(80, 24, "", nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 10})
	assert.Equal(t, 120, m.viewport.Width)
	assert.Equal(t, 7, m.viewport.Height)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 40, Height: 2})
	assert.Equal(t, 3, m.viewport.Height)
}

func TestFeed_CoalescesUpdates(t *testing.T) {
	f := NewFeed()
	f.Snapshot(snapshot(map[string]pipeline.StageStatus{"parameter-extractor": pipeline.StatusRunning}))
	f.Snapshot(snapshot(map[string]pipeline.StageStatus{"parameter-extractor": pipeline.StatusCompleted}))
	f.ConnStatus(stream.Status{State: stream.StateConnected, LastError: errors.New("old")})

	msg, ok := f.next()().(feedMsg)
	require.True(t, ok)
	require.NotNil(t, msg.snapshot)
	assert.Equal(t, pipeline.StatusCompleted, msg.snapshot.Status("parameter-extractor"))
	require.NotNil(t, msg.conn)
	assert.Equal(t, stream.StateConnected, msg.conn.State)
	assert.Nil(t, msg.finished)

	f.Finish(RunFinishedMsg{Status: pipelinesummary.StatusFailed, Error: "boom"})
	f.Finish(RunFinishedMsg{Status: pipelinesummary.StatusCompleted})
	msg = f.next()().(feedMsg)
	require.NotNil(t, msg.finished)
	assert.Equal(t, "boom", msg.finished.Error)
}

func TestFeed_CloseReleasesReader(t *testing.T) {
	f := NewFeed()
	done := make(chan tea.Msg, 1)
	go func() { done <- f.next()() }()

	f.Close()
	f.Close()
	select {
	case msg := <-done:
		assert.Nil(t, msg)
	case <-time.After(time.Second):
		t.Fatal("reader not released")
	}
}

func TestModel_FeedDrivesUpdates(t *testing.T) {
	f := NewFeed()
	m := New(80, 24, "wf_1", f)

	f.Snapshot(snapshot(map[string]pipeline.StageStatus{"parameter-extractor": pipeline.StatusRunning}))
	m, cmd := update(t, m, f.next()())
	assert.Equal(t, pipeline.StatusRunning, m.Snapshot().Status("parameter-extractor"))
	require.NotNil(t, cmd)

	f.Finish(RunFinishedMsg{Status: pipelinesummary.StatusFailed, Error: "Node Selection: simulated failure"})
	m, cmd = update(t, m, f.next()())
	assert.True(t, isQuit(cmd))
	assert.Equal(t, pipelinesummary.StatusFailed, m.Summary().Status)
	assert.Equal(t, "Node Selection: simulated failure", m.Summary().ErrorMessage)
}
