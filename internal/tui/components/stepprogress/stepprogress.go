// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepprogress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/progress"
)

// Model renders the one-line progress bar of a run.
type Model struct {
	records []progress.Record
	width   int
}

// New creates a new step progress model
func New() Model {
	return Model{
		width: 20,
	}
}

// SetRecords replaces the catalogue records, in canonical order.
func (m Model) SetRecords(records []progress.Record) Model {
	m.records = records
	return m
}

// SetWidth sets the progress bar width
func (m Model) SetWidth(w int) Model {
	if w < 1 {
		w = 1
	}
	m.width = w
	return m
}

// View renders: [▓▓▓▓▓▒░░░░] 6/14 Node Selection
func (m Model) View() string {
	if len(m.records) == 0 {
		return ""
	}

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	success := lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	fail := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	done, failed := 0, 0
	currentIdx := -1
	for i, r := range m.records {
		switch r.Status {
		case pipeline.StatusCompleted:
			done++
		case pipeline.StatusFailed:
			failed++
		case pipeline.StatusRunning:
			if currentIdx < 0 {
				currentIdx = i
			}
		}
	}

	total := len(m.records)
	finished := done + failed
	filled := (finished * m.width) / total
	half := currentIdx >= 0 && filled < m.width

	var bar strings.Builder
	for i := 0; i < m.width; i++ {
		switch {
		case i < filled:
			bar.WriteString(success.Render("▓"))
		case i == filled && half:
			bar.WriteString(accent.Render("▒"))
		default:
			bar.WriteString(dim.Render("░"))
		}
	}

	displayStep := finished
	if currentIdx >= 0 {
		displayStep = currentIdx + 1
	}

	label := ""
	switch {
	case currentIdx >= 0:
		label = accent.Render(stageLabel(m.records[currentIdx].Stage))
	case failed > 0:
		label = fail.Render(fmt.Sprintf("%d failed ✗", failed))
	case done == total:
		label = success.Render("Complete ✓")
	}

	return strings.TrimRight(fmt.Sprintf("[%s] %s %s", bar.String(), dim.Render(fmt.Sprintf("%d/%d", displayStep, total)), label), " ")
}

func stageLabel(name string) string {
	if s, ok := pipeline.Lookup(name); ok {
		return s.Label
	}
	return name
}
