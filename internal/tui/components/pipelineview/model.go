// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipelineview

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/noldarim/wfbuilder/internal/progress"
	"github.com/noldarim/wfbuilder/internal/stream"
	"github.com/noldarim/wfbuilder/internal/tui/components/elapsedtimer"
	"github.com/noldarim/wfbuilder/internal/tui/components/pipelinesummary"
	"github.com/noldarim/wfbuilder/internal/tui/components/stagelist"
	"github.com/noldarim/wfbuilder/internal/tui/components/stepprogress"
)

// SnapshotMsg replaces the displayed progress.
type SnapshotMsg struct {
	Snapshot progress.Snapshot
}

// ConnStatusMsg updates the connection indicator.
type ConnStatusMsg struct {
	Status stream.Status
}

// RunFinishedMsg ends the view once the watched run completed or failed.
type RunFinishedMsg struct {
	Status  pipelinesummary.Status
	Message string
	Error   string
}

// Model is the live progress view - a scrollable stage checklist with a fixed
// status bar at the bottom
type Model struct {
	// Layout
	viewport viewport.Model
	width    int
	height   int

	// Sub-components
	stages   stagelist.Model
	timer    elapsedtimer.Model
	progress stepprogress.Model

	// State
	title      string
	workflowID string
	snapshot   progress.Snapshot
	conn       stream.Status
	hasConn    bool
	finished   *RunFinishedMsg
	quit       bool

	feed *Feed
}

// New creates the view for workflowID. feed may be nil when all messages are
// sent to the program directly.
func New(width, height int, workflowID string, feed *Feed) Model {
	m := Model{
		viewport:   viewport.New(width, 3),
		width:      width,
		height:     height,
		stages:     stagelist.New().SetWidth(width),
		timer:      elapsedtimer.New().Start(),
		progress:   stepprogress.New().SetWidth(15),
		title:      "wfbuilder",
		workflowID: workflowID,
		feed:       feed,
	}
	m.updateViewportSize()
	m = m.applySnapshot(progress.NewSnapshot(nil))
	return m
}

// WithTitle replaces the header text.
func (m Model) WithTitle(title string) Model {
	m.title = title
	return m
}

// WithTimer replaces the elapsed timer, e.g. one driven by a test clock.
func (m Model) WithTimer(t elapsedtimer.Model) Model {
	m.timer = t
	return m
}

// Init starts the spinner, the timer and the feed reader
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.stages.Init(), m.timer.Init()}
	if m.feed != nil {
		cmds = append(cmds, m.feed.next())
	}
	return tea.Batch(cmds...)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// Leaving the view never touches the run itself.
			m.quit = true
			m.timer = m.timer.Stop()
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.stages = m.stages.SetWidth(msg.Width)
		m.updateViewportSize()
		m.refreshViewportContent()

	case elapsedtimer.TickMsg:
		var cmd tea.Cmd
		m.timer, cmd = m.timer.Update(msg)
		cmds = append(cmds, cmd)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.stages, cmd = m.stages.Update(msg)
		m.refreshViewportContent()
		cmds = append(cmds, cmd)

	case SnapshotMsg:
		m = m.applySnapshot(msg.Snapshot)

	case ConnStatusMsg:
		m.conn = msg.Status
		m.hasConn = true

	case RunFinishedMsg:
		return m.finish(msg)

	case feedMsg:
		if msg.snapshot != nil {
			m = m.applySnapshot(*msg.snapshot)
		}
		if msg.conn != nil {
			m.conn = *msg.conn
			m.hasConn = true
		}
		if msg.finished != nil {
			return m.finish(*msg.finished)
		}
		cmds = append(cmds, m.feed.next())
	}

	return m, tea.Batch(cmds...)
}

func (m Model) finish(msg RunFinishedMsg) (tea.Model, tea.Cmd) {
	if m.finished == nil {
		m.finished = &msg
	}
	m.timer = m.timer.Stop()
	return m, tea.Quit
}

func (m Model) applySnapshot(s progress.Snapshot) Model {
	m.snapshot = s
	m.stages = m.stages.SetSnapshot(s)
	m.progress = m.progress.SetRecords(s.Ordered())
	m.refreshViewportContent()
	return m
}

// refreshViewportContent renders the checklist into the viewport
func (m *Model) refreshViewportContent() {
	m.viewport.SetContent(m.stages.View())
}

// updateViewportSize recalculates viewport dimensions
func (m *Model) updateViewportSize() {
	// header + separator + status bar
	const chrome = 3
	vpHeight := m.height - chrome
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = vpHeight
}

// Snapshot is the last progress shown.
func (m Model) Snapshot() progress.Snapshot {
	return m.snapshot
}

// Finished reports how the run ended, or nil when the viewer quit first.
func (m Model) Finished() *RunFinishedMsg {
	return m.finished
}

// Summary describes the watched run for printing after the program exits.
func (m Model) Summary() pipelinesummary.SummaryData {
	data := pipelinesummary.FromSnapshot(m.snapshot)
	data.WorkflowID = m.workflowID
	data.Duration = m.timer.Elapsed()
	switch {
	case m.finished != nil:
		data.Status = m.finished.Status
		data.Message = m.finished.Message
		data.ErrorMessage = m.finished.Error
	case m.quit:
		data.Status = pipelinesummary.StatusInterrupted
	default:
		data.Status = pipelinesummary.StatusRunning
	}
	return data
}
