// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipelinesummary

import (
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/progress"
	"github.com/stretchr/testify/assert"
)

func TestFromSnapshot_ListsFailedStages(t *testing.T) {
	snap := progress.NewSnapshot(map[string]progress.Record{
		"parameter-extractor": {Stage: "parameter-extractor", Status: pipeline.StatusCompleted},
		"asset-finder":        {Stage: "asset-finder", Status: pipeline.StatusFailed},
	})
	data := FromSnapshot(snap)
	assert.Equal(t, 1, data.Counts.Completed)
	assert.Equal(t, 1, data.Counts.Failed)
	assert.Equal(t, []string{"asset-finder"}, data.FailedStages)
}

func TestRender_Completed(t *testing.T) {
	data := SummaryData{
		Status:     StatusCompleted,
		WorkflowID: "wf_1",
		Duration:   65 * time.Second,
		Counts:     progress.Counts{Total: 14, Completed: 14},
		Message:    "Workflow generated successfully!",
		OutputPath: "out.json",
	}
	assert.Equal(t, "✓ Completed\n"+
		"Workflow: wf_1\n"+
		"Duration: 1m 5s\n"+
		"Stages: 14/14\n"+
		"Workflow generated successfully!\n"+
		"Saved: out.json", ansi.Strip(Render(data)))
}

func TestRender_Failed(t *testing.T) {
	data := SummaryData{
		Status:       StatusFailed,
		Counts:       progress.Counts{Total: 14, Completed: 4, Failed: 1},
		FailedStages: []string{"node-curator"},
		Message:      "ignored when failed",
		ErrorMessage: "Node Selection: simulated failure",
	}
	assert.Equal(t, "✗ Failed\n"+
		"Stages: 4/14 (1 failed: node-curator)\n"+
		"Error: Node Selection: simulated failure", ansi.Strip(Render(data)))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "interrupted", StatusInterrupted.String())
	assert.Equal(t, "running", StatusRunning.String())
}
