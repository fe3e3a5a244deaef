// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package elapsedtimer

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TickMsg is sent every second while the timer runs
type TickMsg time.Time

// Model represents the elapsed timer component
type Model struct {
	startTime time.Time
	elapsed   time.Duration
	running   bool
	now       func() time.Time
}

// New creates a stopped timer reading zero.
func New() Model {
	return Model{now: time.Now}
}

// WithClock replaces the time source, for tests.
func (m Model) WithClock(now func() time.Time) Model {
	m.now = now
	return m
}

// Start begins the timer from now
func (m Model) Start() Model {
	m.startTime = m.now()
	m.running = true
	return m
}

// Stop freezes the displayed duration. Stopping a stopped timer is a no-op.
func (m Model) Stop() Model {
	if !m.running {
		return m
	}
	m.elapsed = m.now().Sub(m.startTime)
	m.running = false
	return m
}

// Running reports whether the timer is ticking.
func (m Model) Running() bool {
	return m.running
}

func (m Model) Init() tea.Cmd {
	if m.running {
		return tick()
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(TickMsg); ok && m.running {
		return m, tick()
	}
	return m, nil
}

// View renders: "⏱ 2m 34s"
func (m Model) View() string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color("75"))

	return dim.Render("⏱") + " " + accent.Render(Format(m.Elapsed()))
}

// Elapsed returns the current elapsed duration
func (m Model) Elapsed() time.Duration {
	if m.running {
		return m.now().Sub(m.startTime)
	}
	return m.elapsed
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Format renders d rounded to the second, e.g. "1h 2m 3s" or "45s".
func Format(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
