// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stagelist renders the pipeline as a checklist, one line per
// catalogue stage, followed by stages the catalogue does not know.
package stagelist

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/progress"
)

var (
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
)

type Model struct {
	snapshot progress.Snapshot
	spinner  spinner.Model
	width    int
}

func New() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle
	return Model{spinner: s}
}

// SetSnapshot replaces the rendered state.
func (m Model) SetSnapshot(s progress.Snapshot) Model {
	m.snapshot = s
	return m
}

// SetWidth bounds line length; 0 disables truncation.
func (m Model) SetWidth(w int) Model {
	m.width = w
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(spinner.TickMsg); ok {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	mode := pipeline.Mode("")
	for _, r := range m.snapshot.Ordered() {
		stage, _ := pipeline.Lookup(r.Stage)
		if stage.Mode != mode {
			if mode != "" {
				b.WriteString("\n")
			}
			mode = stage.Mode
			b.WriteString(headerStyle.Render(modeTitle(mode)))
			b.WriteString("\n")
		}
		b.WriteString(m.line(r, stage.Label))
		b.WriteString("\n")
	}

	if extra := m.snapshot.Informational(); len(extra) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Other activity"))
		b.WriteString("\n")
		for _, r := range extra {
			b.WriteString(m.line(r, r.Stage))
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func (m Model) line(r progress.Record, label string) string {
	icon, style := m.icon(r.Status)
	text := "  " + icon + " " + style.Render(label)
	if r.Message != "" && r.Status != pipeline.StatusPending {
		text += " " + messageStyle.Render(r.Message)
	}
	if m.width > 0 {
		text = lipgloss.NewStyle().MaxWidth(m.width).Render(text)
	}
	return text
}

func (m Model) icon(s pipeline.StageStatus) (string, lipgloss.Style) {
	switch s {
	case pipeline.StatusRunning:
		return m.spinner.View(), runningStyle
	case pipeline.StatusCompleted:
		return doneStyle.Render("✓"), doneStyle
	case pipeline.StatusFailed:
		return failedStyle.Render("✗"), failedStyle
	default:
		return pendingStyle.Render("○"), pendingStyle
	}
}

func modeTitle(m pipeline.Mode) string {
	switch m {
	case pipeline.ModeGeneration:
		return "Generation"
	case pipeline.ModeOrganization:
		return "Organization"
	default:
		return string(m)
	}
}
