// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipelinesummary

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/progress"
	"github.com/noldarim/wfbuilder/internal/tui/components/elapsedtimer"
)

// Status represents how a watched run ended
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusFailed
	StatusInterrupted // viewer quit before the run ended
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusInterrupted:
		return "interrupted"
	default:
		return "running"
	}
}

// SummaryData holds all the data for the run summary
type SummaryData struct {
	Status       Status
	WorkflowID   string
	Duration     time.Duration
	Counts       progress.Counts
	FailedStages []string
	Message      string
	ErrorMessage string
	OutputPath   string
}

// FromSnapshot fills the step related fields from s.
func FromSnapshot(s progress.Snapshot) SummaryData {
	var failed []string
	for _, r := range s.Ordered() {
		if r.Status == pipeline.StatusFailed {
			failed = append(failed, r.Stage)
		}
	}
	return SummaryData{Counts: s.Counts(), FailedStages: failed}
}

// Render prints the summary shown after the progress view exits.
func Render(data SummaryData) string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	success := lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	fail := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color("75"))

	var lines []string

	lines = append(lines, renderStatus(data.Status, success, fail, accent, label))

	if data.WorkflowID != "" {
		lines = append(lines, fmt.Sprintf("%s %s", label.Render("Workflow:"), accent.Render(data.WorkflowID)))
	}

	if data.Duration > 0 {
		lines = append(lines, fmt.Sprintf("%s %s", label.Render("Duration:"), value.Render(elapsedtimer.Format(data.Duration))))
	}

	stepsInfo := fmt.Sprintf("%d/%d", data.Counts.Completed, data.Counts.Total)
	if data.Counts.Failed > 0 {
		stepsInfo += fail.Render(fmt.Sprintf(" (%d failed: %s)", data.Counts.Failed, strings.Join(data.FailedStages, ", ")))
	}
	lines = append(lines, fmt.Sprintf("%s %s", label.Render("Stages:"), value.Render(stepsInfo)))

	if data.Message != "" && data.Status == StatusCompleted {
		lines = append(lines, value.Render(data.Message))
	}
	if data.OutputPath != "" {
		lines = append(lines, fmt.Sprintf("%s %s", label.Render("Saved:"), value.Render(data.OutputPath)))
	}

	if data.ErrorMessage != "" && data.Status == StatusFailed {
		lines = append(lines, fail.Render("Error: "+data.ErrorMessage))
	}

	return strings.Join(lines, "\n")
}

func renderStatus(s Status, success, fail, accent, label lipgloss.Style) string {
	switch s {
	case StatusCompleted:
		return success.Render("✓") + " " + success.Bold(true).Render("Completed")
	case StatusFailed:
		return fail.Render("✗") + " " + fail.Bold(true).Render("Failed")
	case StatusInterrupted:
		return label.Render("○") + " " + label.Bold(true).Render("Interrupted")
	default:
		return accent.Render("◦") + " " + accent.Bold(true).Render("Running")
	}
}
