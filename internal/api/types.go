// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ModelType selects the diffusion model family a workflow targets.
type ModelType string

const (
	ModelFlux ModelType = "flux"
	ModelSDXL ModelType = "sdxl"
	ModelPony ModelType = "pony"
	ModelSD15 ModelType = "sd1.5"
)

// ParseModelType validates a user supplied model type.
func ParseModelType(s string) (ModelType, error) {
	switch m := ModelType(strings.ToLower(s)); m {
	case ModelFlux, ModelSDXL, ModelPony, ModelSD15:
		return m, nil
	default:
		return "", fmt.Errorf("unknown model type %q (want flux, sdxl, pony or sd1.5)", s)
	}
}

// WorkflowStatus is the lifecycle of a generation request.
type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "pending"
	WorkflowProcessing WorkflowStatus = "processing"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowFailed     WorkflowStatus = "failed"
)

// WorkflowRequest is the body of a generation request. Zero fields are left
// to the service's defaults.
type WorkflowRequest struct {
	Description      string         `json:"description"`
	ModelType        ModelType      `json:"model_type,omitempty"`
	Width            int            `json:"width,omitempty"`
	Height           int            `json:"height,omitempty"`
	Steps            int            `json:"steps,omitempty"`
	IncludeUpscale   *bool          `json:"include_upscale,omitempty"`
	IncludeADetailer *bool          `json:"include_adetailer,omitempty"`
	LoraModels       []string       `json:"lora_models,omitempty"`
	CustomOptions    map[string]any `json:"custom_options,omitempty"`
}

// AgentProgress is the per-agent state stored with a workflow record.
type AgentProgress struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	StartedAt   *Time  `json:"started_at,omitempty"`
	CompletedAt *Time  `json:"completed_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Workflow is a workflow record as returned by the service.
type Workflow struct {
	ID            string          `json:"id"`
	Status        WorkflowStatus  `json:"status"`
	WorkflowJSON  json.RawMessage `json:"workflow_json,omitempty"`
	AgentProgress []AgentProgress `json:"agent_progress"`
	CreatedAt     Time            `json:"created_at"`
	CompletedAt   *Time           `json:"completed_at,omitempty"`
	Error         string          `json:"error,omitempty"`
	Metadata      map[string]any  `json:"metadata"`
}

// HistoryItem is one entry of the workflow history.
type HistoryItem struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	ModelType   ModelType      `json:"model_type"`
	Status      WorkflowStatus `json:"status"`
	CreatedAt   Time           `json:"created_at"`
	PreviewURL  *string        `json:"preview_url"`
}

// Agent describes one agent known to the service.
type Agent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// AgentList is the agent catalogue.
type AgentList struct {
	Agents []Agent `json:"agents"`
	Total  int     `json:"total"`
}

// PipelineMode is one half of the agent pipeline.
type PipelineMode struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Agents      []string `json:"agents"`
}

// PipelineInfo describes both pipeline halves.
type PipelineInfo struct {
	Generation   PipelineMode `json:"mode_1"`
	Organization PipelineMode `json:"mode_2"`
}

// ModelInfo describes a supported model type.
type ModelInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	DefaultResolution string `json:"default_resolution"`
}

// Lora is an installed LoRA model.
type Lora struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Resolution is a resolution preset.
type Resolution struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Name   string `json:"name"`
	Ratio  string `json:"ratio"`
}

// Health is the service health report.
type Health struct {
	Status        string `json:"status"`
	BuilderPath   string `json:"builder_path,omitempty"`
	WorkspacePath string `json:"workspace_path,omitempty"`
}

// Deleted is the reply to a delete request.
type Deleted struct {
	Message string `json:"message"`
}

// Time accepts both RFC 3339 timestamps and the zone-less ISO 8601 form the
// service emits.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		t.Time = time.Time{}
		return nil
	}
	s = strings.Trim(s, `"`)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("parse time %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
