// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipelineview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/noldarim/wfbuilder/internal/stream"
	"github.com/noldarim/wfbuilder/internal/tui/components/elapsedtimer"
)

var (
	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("239"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F3F4F6")).
			Background(lipgloss.Color("#7C3AED")).
			Bold(true).
			PaddingLeft(1).
			PaddingRight(1)

	workflowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Italic(true)
	liveStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	retryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	offlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

// View renders the progress view with scrollable content and fixed status bar
func (m Model) View() string {
	// Once finished the summary is printed to stdout after the program exits.
	if m.finished != nil || m.quit {
		return ""
	}

	header := headerStyle.Render(m.title)
	if m.workflowID != "" {
		header += " " + workflowStyle.Render(m.workflowID)
	}

	separator := separatorStyle.Render(strings.Repeat("─", max(m.width, 1)))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		m.viewport.View(),
		separator,
		statusBarStyle.Render(m.ViewStatusBar()),
	)
}

// ViewStatusBar renders only the status bar: progress │ timer │ connection
func (m Model) ViewStatusBar() string {
	parts := []string{m.progress.View(), m.timer.View()}
	if m.hasConn {
		parts = append(parts, connIndicator(m.conn))
	}
	return strings.Join(parts, " │ ")
}

func connIndicator(st stream.Status) string {
	switch st.State {
	case stream.StateConnected:
		return liveStyle.Render("● live")
	case stream.StateAttempting:
		return retryStyle.Render("◌ connecting")
	case stream.StateWaiting:
		return retryStyle.Render(fmt.Sprintf("◌ reconnecting in %s (attempt %d)",
			elapsedtimer.Format(st.RetryIn), st.Failures+1))
	default:
		return offlineStyle.Render("○ offline")
	}
}
