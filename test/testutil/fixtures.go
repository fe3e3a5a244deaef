// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package testutil

import (
	"testing"

	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/protocol"
	"github.com/stretchr/testify/require"
)

// Sample events and frames for consistent testing

// Progress builds an agent_progress event.
func Progress(workflowID, agent string, status pipeline.StageStatus, message string) protocol.AgentProgressEvent {
	return protocol.AgentProgressEvent{
		WorkflowID: workflowID,
		Agent:      agent,
		Status:     status,
		Message:    message,
		Timestamp:  "2026-01-01T00:00:00Z",
	}
}

// Frame encodes an event, failing the test on error.
func Frame(t testing.TB, ev protocol.Event) []byte {
	t.Helper()
	b, err := protocol.Encode(ev)
	require.NoError(t, err)
	return b
}

// FullRun returns the events of a successful run: a status event, running and
// completed for every catalogue stage, then complete.
func FullRun(workflowID string) []protocol.Event {
	events := []protocol.Event{
		protocol.StatusEvent{WorkflowID: workflowID, Status: "processing", Message: "Starting workflow generation..."},
	}
	for _, s := range pipeline.Stages() {
		events = append(events,
			Progress(workflowID, s.Name, pipeline.StatusRunning, s.Label+"..."),
			Progress(workflowID, s.Name, pipeline.StatusCompleted, s.Label+" done"),
		)
	}
	return append(events, protocol.CompleteEvent{WorkflowID: workflowID, Status: "completed"})
}
