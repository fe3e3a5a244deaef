// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/noldarim/wfbuilder/internal/api"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/protocol"
)

// orchestratorStage reports the transitions between pipeline halves. It is not
// a catalogue stage; clients keep it as informational.
const orchestratorStage = "orchestrator"

// failStageOption names a stage to fail, for exercising error paths.
const failStageOption = "fail_stage"

// Generator simulates the agent pipeline for stored workflows.
type Generator struct {
	store      *Store
	events     chan<- protocol.Event
	stageDelay time.Duration
	metrics    *Metrics
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewGenerator creates a generator emitting into events.
func NewGenerator(store *Store, events chan<- protocol.Event, stageDelay time.Duration, metrics *Metrics) *Generator {
	return &Generator{store: store, events: events, stageDelay: stageDelay, metrics: metrics, now: time.Now}
}

// Start runs the pipeline for id in the background.
func (g *Generator) Start(ctx context.Context, id string, req api.WorkflowRequest) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.run(ctx, id, req); err != nil {
			g.metrics.finished(string(api.WorkflowFailed))
			getLog().Warn().Err(err).Str("workflow_id", id).Msg("Workflow generation failed")
			return
		}
		g.metrics.finished(string(api.WorkflowCompleted))
		getLog().Info().Str("workflow_id", id).Msg("Workflow generated")
	}()
}

// Wait blocks until every started run has finished.
func (g *Generator) Wait() {
	g.wg.Wait()
}

func (g *Generator) run(ctx context.Context, id string, req api.WorkflowRequest) (err error) {
	failStage, _ := req.CustomOptions[failStageOption].(string)

	defer func() {
		if err == nil {
			return
		}
		g.store.Update(id, func(wf *api.Workflow) {
			wf.Status = api.WorkflowFailed
			wf.Error = err.Error()
		})
		// Report the failure even when ctx is already cancelled, but do not
		// block forever once nobody drains the channel.
		ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		g.emit(ectx, protocol.ErrorEvent{WorkflowID: id, Status: string(api.WorkflowFailed), Error: err.Error()})
	}()

	g.store.Update(id, func(wf *api.Workflow) { wf.Status = api.WorkflowProcessing })
	g.emit(ctx, protocol.StatusEvent{
		WorkflowID: id,
		Status:     string(api.WorkflowProcessing),
		Message:    "Starting workflow generation...",
	})

	halves := []struct {
		mode    pipeline.Mode
		message string
	}{
		{pipeline.ModeGeneration, "Starting Mode 1: Workflow Generation"},
		{pipeline.ModeOrganization, "Starting Mode 2: Workflow Organization"},
	}
	for _, half := range halves {
		g.progress(ctx, id, orchestratorStage, pipeline.StatusRunning, half.message)
		for _, stage := range pipeline.ByMode(half.mode) {
			if err := g.runStage(ctx, id, stage, failStage); err != nil {
				return err
			}
		}
	}
	g.progress(ctx, id, orchestratorStage, pipeline.StatusCompleted, "Workflow generation complete!")

	doc, err := sampleWorkflow(req)
	if err != nil {
		return fmt.Errorf("build workflow: %w", err)
	}
	completedAt := api.Time{Time: g.now()}
	g.store.Update(id, func(wf *api.Workflow) {
		wf.WorkflowJSON = doc
		wf.Status = api.WorkflowCompleted
		wf.CompletedAt = &completedAt
	})
	g.emit(ctx, protocol.CompleteEvent{
		WorkflowID: id,
		Status:     string(api.WorkflowCompleted),
		Message:    "Workflow generated successfully!",
	})
	return nil
}

func (g *Generator) runStage(ctx context.Context, id string, stage pipeline.Stage, failStage string) error {
	g.progress(ctx, id, stage.Name, pipeline.StatusRunning, fmt.Sprintf("Executing %s...", stage.Name))

	select {
	case <-time.After(g.stageDelay):
	case <-ctx.Done():
		return fmt.Errorf("generation cancelled: %w", ctx.Err())
	}

	if stage.Name == failStage {
		msg := fmt.Sprintf("%s failed", stage.Name)
		g.progress(ctx, id, stage.Name, pipeline.StatusFailed, msg)
		return fmt.Errorf("%s: simulated failure", stage.Label)
	}
	g.progress(ctx, id, stage.Name, pipeline.StatusCompleted, fmt.Sprintf("%s completed", stage.Name))
	return nil
}

// progress records the stage on the workflow and broadcasts it.
func (g *Generator) progress(ctx context.Context, id, stage string, status pipeline.StageStatus, message string) {
	now := g.now()
	g.store.Update(id, func(wf *api.Workflow) {
		ts := api.Time{Time: now}
		entry := api.AgentProgress{Name: stage, Status: string(status), Message: message}
		for i := range wf.AgentProgress {
			if wf.AgentProgress[i].Name == stage {
				entry.StartedAt = wf.AgentProgress[i].StartedAt
				updateTimes(&entry, status, &ts)
				wf.AgentProgress[i] = entry
				return
			}
		}
		updateTimes(&entry, status, &ts)
		wf.AgentProgress = append(wf.AgentProgress, entry)
	})

	g.emit(ctx, protocol.AgentProgressEvent{
		WorkflowID: id,
		Agent:      stage,
		Status:     status,
		Message:    message,
		Timestamp:  now.Format(time.RFC3339Nano),
	})
}

func updateTimes(entry *api.AgentProgress, status pipeline.StageStatus, ts *api.Time) {
	switch {
	case status == pipeline.StatusRunning:
		entry.StartedAt = ts
	case status.IsTerminal():
		entry.CompletedAt = ts
		if status == pipeline.StatusFailed {
			entry.Error = entry.Message
		}
	}
}

func (g *Generator) emit(ctx context.Context, ev protocol.Event) {
	select {
	case g.events <- ev:
	case <-ctx.Done():
	}
}

// sampleWorkflow builds a minimal ComfyUI text-to-image graph for req.
func sampleWorkflow(req api.WorkflowRequest) (json.RawMessage, error) {
	type node struct {
		ID            int              `json:"id"`
		Type          string           `json:"type"`
		Pos           [2]int           `json:"pos"`
		Inputs        []map[string]any `json:"inputs,omitempty"`
		Outputs       []map[string]any `json:"outputs,omitempty"`
		WidgetsValues []any            `json:"widgets_values,omitempty"`
	}
	link := func(name, typ string, id int) map[string]any {
		return map[string]any{"name": name, "type": typ, "link": id}
	}
	out := func(name, typ string, links ...int) map[string]any {
		return map[string]any{"name": name, "type": typ, "links": links}
	}

	nodes := []node{
		{ID: 1, Type: "CheckpointLoaderSimple", Pos: [2]int{50, 100},
			Outputs:       []map[string]any{out("MODEL", "MODEL", 1), out("CLIP", "CLIP", 2, 3), out("VAE", "VAE", 4)},
			WidgetsValues: []any{string(req.ModelType) + "_model.safetensors"}},
		{ID: 2, Type: "CLIPTextEncode", Pos: [2]int{420, 80},
			Inputs:        []map[string]any{link("clip", "CLIP", 2)},
			Outputs:       []map[string]any{out("CONDITIONING", "CONDITIONING", 5)},
			WidgetsValues: []any{req.Description}},
		{ID: 3, Type: "CLIPTextEncode", Pos: [2]int{420, 300},
			Inputs:        []map[string]any{link("clip", "CLIP", 3)},
			Outputs:       []map[string]any{out("CONDITIONING", "CONDITIONING", 6)},
			WidgetsValues: []any{"blurry, low quality"}},
		{ID: 4, Type: "EmptyLatentImage", Pos: [2]int{50, 300},
			Outputs:       []map[string]any{out("LATENT", "LATENT", 7)},
			WidgetsValues: []any{req.Width, req.Height, 1}},
		{ID: 5, Type: "KSampler", Pos: [2]int{900, 100},
			Inputs: []map[string]any{
				link("model", "MODEL", 1), link("positive", "CONDITIONING", 5),
				link("negative", "CONDITIONING", 6), link("latent_image", "LATENT", 7),
			},
			Outputs:       []map[string]any{out("LATENT", "LATENT", 8)},
			WidgetsValues: []any{0, "randomize", req.Steps, 7, "euler", "normal", 1}},
		{ID: 6, Type: "VAEDecode", Pos: [2]int{1250, 100},
			Inputs:  []map[string]any{link("samples", "LATENT", 8), link("vae", "VAE", 4)},
			Outputs: []map[string]any{out("IMAGE", "IMAGE", 9)}},
		{ID: 7, Type: "SaveImage", Pos: [2]int{1500, 100},
			Inputs:        []map[string]any{link("images", "IMAGE", 9)},
			WidgetsValues: []any{"wfbuilder"}},
	}

	doc := map[string]any{
		"last_node_id": len(nodes),
		"last_link_id": 9,
		"nodes":        nodes,
		"links": [][]any{
			{1, 1, 0, 5, 0, "MODEL"},
			{2, 1, 1, 2, 0, "CLIP"},
			{3, 1, 1, 3, 0, "CLIP"},
			{4, 1, 2, 6, 1, "VAE"},
			{5, 2, 0, 5, 1, "CONDITIONING"},
			{6, 3, 0, 5, 2, "CONDITIONING"},
			{7, 4, 0, 5, 3, "LATENT"},
			{8, 5, 0, 6, 0, "LATENT"},
			{9, 6, 0, 7, 0, "IMAGE"},
		},
		"groups":  []any{},
		"config":  map[string]any{},
		"extra":   map[string]any{"generator": "wfbuilder devserver"},
		"version": 0.4,
	}
	return json.Marshal(doc)
}
