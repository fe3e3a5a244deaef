// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline describes the fixed, ordered set of stages the workflow
// service runs for every generation request.
package pipeline

import (
	"fmt"

	"github.com/samber/lo"
)

// StageStatus represents the status of a single stage
type StageStatus string

// Stage status constants. StatusPending is implied for any stage that has not
// reported yet.
const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
)

// ParseStageStatus converts a wire value to a StageStatus.
func ParseStageStatus(s string) (StageStatus, error) {
	switch st := StageStatus(s); st {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown stage status %q", s)
	}
}

// IsTerminal reports whether the stage will not change again within a run.
func (s StageStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Mode groups stages into the two halves of the pipeline.
type Mode string

const (
	ModeGeneration   Mode = "generation"   // natural language -> workflow JSON
	ModeOrganization Mode = "organization" // workflow JSON -> organized workflow JSON
)

// Stage is the static identity of one pipeline step.
type Stage struct {
	Name        string
	Label       string
	Description string
	Category    string
	Mode        Mode
}

var stages = []Stage{
	{"parameter-extractor", "Parameter Extraction", "Extracts parameters from user requests", "generation", ModeGeneration},
	{"asset-finder", "Asset Discovery", "Searches for models, LoRAs, custom nodes", "generation", ModeGeneration},
	{"prompt-crafter", "Prompt Optimization", "Optimizes prompts with triggers", "generation", ModeGeneration},
	{"workflow-architect", "Workflow Design", "Designs workflow structure", "generation", ModeGeneration},
	{"node-curator", "Node Selection", "Selects appropriate ComfyUI nodes", "generation", ModeGeneration},
	{"graph-engineer", "Connection Wiring", "Wires node connections", "generation", ModeGeneration},
	{"graph-analyzer", "Graph Analysis", "Analyzes workflow topology", "organization", ModeOrganization},
	{"layout-strategist", "Layout Planning", "Plans optimal layout with data buses", "organization", ModeOrganization},
	{"reroute-engineer", "Route Optimization", "Implements orthogonal routing", "organization", ModeOrganization},
	{"layout-refiner", "Layout Refinement", "Resolves collisions via AABB", "organization", ModeOrganization},
	{"group-coordinator", "Group Organization", "Creates semantic groups", "organization", ModeOrganization},
	{"nomenclature-specialist", "Naming Convention", "Applies descriptive naming", "organization", ModeOrganization},
	{"workflow-validator", "Validation", "Technical validation", "validation", ModeOrganization},
	{"workflow-serializer", "Serialization", "JSON format conversion", "serialization", ModeOrganization},
}

var byName = lo.KeyBy(stages, func(s Stage) string { return s.Name })

// Stages returns the catalogue in canonical execution order. The returned
// slice is a copy.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// Names returns the stage names in canonical order.
func Names() []string {
	return lo.Map(stages, func(s Stage, _ int) string { return s.Name })
}

// Len is the number of stages in the catalogue.
func Len() int {
	return len(stages)
}

// Lookup finds a catalogue stage by name.
func Lookup(name string) (Stage, bool) {
	s, ok := byName[name]
	return s, ok
}

// Contains reports whether name is a catalogue member.
func Contains(name string) bool {
	_, ok := byName[name]
	return ok
}

// Index returns the position of name in the catalogue, or -1.
func Index(name string) int {
	_, idx, ok := lo.FindIndexOf(stages, func(s Stage) bool { return s.Name == name })
	if !ok {
		return -1
	}
	return idx
}

// ByMode returns the stages belonging to one half of the pipeline.
func ByMode(m Mode) []Stage {
	return lo.Filter(stages, func(s Stage, _ int) bool { return s.Mode == m })
}
