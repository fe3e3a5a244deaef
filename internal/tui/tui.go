// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui runs the live progress view of one workflow run.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/noldarim/wfbuilder/internal/hub"
	"github.com/noldarim/wfbuilder/internal/logger"
	"github.com/noldarim/wfbuilder/internal/progress"
	"github.com/noldarim/wfbuilder/internal/protocol"
	"github.com/noldarim/wfbuilder/internal/tui/components/pipelinesummary"
	"github.com/noldarim/wfbuilder/internal/tui/components/pipelineview"
	"github.com/rs/zerolog"
)

func getLog() *zerolog.Logger {
	l := logger.GetTUILogger()
	return &l
}

// Source is the part of a progress session the view reads from.
type Source interface {
	Subscribe(o hub.Observer) hub.Token
	Unsubscribe(t hub.Token)
	Progress() progress.Snapshot
}

// Publisher receives what the view shows.
type Publisher interface {
	Snapshot(progress.Snapshot)
	Finish(pipelineview.RunFinishedMsg)
}

// Follow returns an observer that republishes the aggregate after every
// event and finishes on the terminal event of workflowID. Events without a
// workflow id count as belonging to the watched run. src must have delivered
// the event to its aggregator before this observer runs.
func Follow(src Source, pub Publisher, workflowID string) hub.Observer {
	matches := func(ev protocol.Event) bool {
		id := protocol.WorkflowID(ev)
		return workflowID == "" || id == "" || id == workflowID
	}
	return hub.ObserverFunc(func(ev protocol.Event) error {
		pub.Snapshot(src.Progress())
		if !matches(ev) {
			return nil
		}
		switch e := ev.(type) {
		case protocol.CompleteEvent:
			pub.Finish(pipelineview.RunFinishedMsg{Status: pipelinesummary.StatusCompleted, Message: e.Message})
		case protocol.ErrorEvent:
			pub.Finish(pipelineview.RunFinishedMsg{Status: pipelinesummary.StatusFailed, Error: e.Error})
		}
		return nil
	})
}

// Watch runs the progress view until the run ends, the user quits or ctx is
// cancelled. feed must be the one wired to the session's status callback so
// the connection indicator stays current.
func Watch(ctx context.Context, src Source, feed *pipelineview.Feed, workflowID string, opts ...tea.ProgramOption) (pipelinesummary.SummaryData, error) {
	token := src.Subscribe(Follow(src, feed, workflowID))
	defer src.Unsubscribe(token)
	feed.Snapshot(src.Progress())

	return Run(ctx, feed, workflowID, opts...)
}

// Run shows the progress view for a feed the caller already keeps current,
// typically through a Follow subscription. It closes feed on return.
func Run(ctx context.Context, feed *pipelineview.Feed, workflowID string, opts ...tea.ProgramOption) (pipelinesummary.SummaryData, error) {
	model := pipelineview.New(80, 24, workflowID, feed)

	p := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)
	final, err := p.Run()
	feed.Close()

	m, ok := final.(pipelineview.Model)
	if !ok {
		m = model
	}
	summary := m.Summary()

	if err != nil {
		if ctx.Err() != nil {
			getLog().Debug().Str("workflow_id", workflowID).Msg("Progress view stopped by context")
			summary.Status = pipelinesummary.StatusInterrupted
			return summary, ctx.Err()
		}
		return summary, fmt.Errorf("progress view: %w", err)
	}
	return summary, nil
}
