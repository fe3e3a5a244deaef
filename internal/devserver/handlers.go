// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/noldarim/wfbuilder/internal/api"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/samber/lo"
)

// Request defaults applied when a generation request leaves them out.
const (
	defaultModelType = api.ModelFlux
	defaultSize      = 1024
	defaultSteps     = 30
	defaultPageSize  = 20
)

// auxiliaryAgents are listed by the service but take no part in the pipeline.
var auxiliaryAgents = []api.Agent{
	{Name: "learning-agent", Description: "Pattern recognition and improvement", Category: "support"},
	{Name: "logger", Description: "Session and audit logging", Category: "support"},
	{Name: "memory-monitor", Description: "Resource usage tracking", Category: "support"},
	{Name: "node-verification", Description: "Schema validation", Category: "validation"},
}

var modelTypes = []api.ModelInfo{
	{ID: "flux", Name: "Flux", Description: "Flux AI models with advanced features", DefaultResolution: "1024x1024"},
	{ID: "sdxl", Name: "SDXL", Description: "Stable Diffusion XL models", DefaultResolution: "1024x1024"},
	{ID: "pony", Name: "Pony", Description: "Pony Diffusion models", DefaultResolution: "1024x1024"},
	{ID: "sd1.5", Name: "SD 1.5", Description: "Stable Diffusion 1.5 models", DefaultResolution: "512x512"},
}

var loras = []api.Lora{
	{Name: "detail_enhancer", Path: "detail_enhancer.safetensors"},
	{Name: "style_anime", Path: "anime_style.safetensors"},
	{Name: "quality_boost", Path: "quality_boost.safetensors"},
}

var resolutions = []api.Resolution{
	{Width: 512, Height: 512, Name: "SD 1.5 Square", Ratio: "1:1"},
	{Width: 768, Height: 512, Name: "SD 1.5 Landscape", Ratio: "3:2"},
	{Width: 512, Height: 768, Name: "SD 1.5 Portrait", Ratio: "2:3"},
	{Width: 1024, Height: 1024, Name: "SDXL Square", Ratio: "1:1"},
	{Width: 1216, Height: 832, Name: "SDXL Landscape", Ratio: "3:2"},
	{Width: 832, Height: 1216, Name: "SDXL Portrait", Ratio: "2:3"},
	{Width: 1344, Height: 768, Name: "Wide", Ratio: "16:9"},
	{Width: 768, Height: 1344, Name: "Tall", Ratio: "9:16"},
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store     *Store
	generator *Generator
	runCtx    context.Context // outlives requests; cancelled on shutdown
}

// NewHandlers creates the handler set.
func NewHandlers(runCtx context.Context, store *Store, generator *Generator) *Handlers {
	return &Handlers{store: store, generator: generator, runCtx: runCtx}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		getLog().Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeDetail answers with the service's error shape.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func applyDefaults(req *api.WorkflowRequest) {
	if req.ModelType == "" {
		req.ModelType = defaultModelType
	}
	if req.Width == 0 {
		req.Width = defaultSize
	}
	if req.Height == 0 {
		req.Height = defaultSize
	}
	if req.Steps == 0 {
		req.Steps = defaultSteps
	}
	if req.IncludeUpscale == nil {
		req.IncludeUpscale = lo.ToPtr(true)
	}
	if req.IncludeADetailer == nil {
		req.IncludeADetailer = lo.ToPtr(false)
	}
}

// --- workflows ---

// Generate handles POST /api/workflows/generate
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req api.WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "description is required")
		return
	}
	if req.ModelType != "" {
		if _, err := api.ParseModelType(string(req.ModelType)); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	applyDefaults(&req)

	wf := h.store.Create(req)
	getLog().Info().Str("workflow_id", wf.ID).Str("model_type", string(req.ModelType)).
		Str("request_id", GetRequestID(r.Context())).Msg("Workflow generation requested")
	h.generator.Start(h.runCtx, wf.ID, req)

	writeJSON(w, http.StatusOK, wf)
}

// GetWorkflow handles GET /api/workflows/{id}
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// DownloadWorkflow handles GET /api/workflows/{id}/download
func (h *Handlers) DownloadWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, ok := h.store.Get(id)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Workflow not found")
		return
	}
	if len(wf.WorkflowJSON) == 0 {
		writeDetail(w, http.StatusBadRequest, "Workflow not yet generated")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.json"`)
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(wf.WorkflowJSON); err != nil {
		getLog().Error().Err(err).Str("workflow_id", id).Msg("Failed to write workflow download")
	}
}

// History handles GET /api/workflows/?limit=&offset=
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.store.History(limit, offset))
}

// DeleteWorkflow handles DELETE /api/workflows/{id}
func (h *Handlers) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if !h.store.Delete(chi.URLParam(r, "id")) {
		writeDetail(w, http.StatusNotFound, "Workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, api.Deleted{Message: "Workflow deleted successfully"})
}

// --- catalogue ---

// ListAgents handles GET /api/agents/list
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents := lo.Map(pipeline.Stages(), func(s pipeline.Stage, _ int) api.Agent {
		return api.Agent{Name: s.Name, Description: s.Description, Category: s.Category}
	})
	agents = append(agents, auxiliaryAgents...)
	writeJSON(w, http.StatusOK, api.AgentList{Agents: agents, Total: len(agents)})
}

// Pipeline handles GET /api/agents/pipeline
func (h *Handlers) Pipeline(w http.ResponseWriter, r *http.Request) {
	names := func(m pipeline.Mode) []string {
		return lo.Map(pipeline.ByMode(m), func(s pipeline.Stage, _ int) string { return s.Name })
	}
	writeJSON(w, http.StatusOK, api.PipelineInfo{
		Generation: api.PipelineMode{
			Name:        "Workflow Generation",
			Description: "Natural Language → JSON",
			Agents:      names(pipeline.ModeGeneration),
		},
		Organization: api.PipelineMode{
			Name:        "Workflow Organization",
			Description: "JSON → Organized JSON",
			Agents:      names(pipeline.ModeOrganization),
		},
	})
}

// ModelTypes handles GET /api/models/types
func (h *Handlers) ModelTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": modelTypes})
}

// Loras handles GET /api/models/loras
func (h *Handlers) Loras(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"loras": loras})
}

// Resolutions handles GET /api/models/resolutions
func (h *Handlers) Resolutions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"resolutions": resolutions})
}

// Health handles GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Health{Status: "healthy"})
}
