// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/noldarim/wfbuilder/internal/api"
	"github.com/samber/lo"
)

// Store keeps workflow records in memory. Records are copied in and out so
// callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*api.Workflow
	now       func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{workflows: make(map[string]*api.Workflow), now: time.Now}
}

// newWorkflowID follows the service's wf_<date>_<time> scheme with a short
// random suffix so two requests in the same second do not collide.
func newWorkflowID(now time.Time) string {
	return fmt.Sprintf("wf_%s_%s", now.Format("20060102_150405"), uuid.New().String()[:8])
}

// Create stores a pending record for req and returns it.
func (s *Store) Create(req api.WorkflowRequest) api.Workflow {
	now := s.now()
	wf := &api.Workflow{
		ID:            newWorkflowID(now),
		Status:        api.WorkflowPending,
		AgentProgress: []api.AgentProgress{},
		CreatedAt:     api.Time{Time: now},
		Metadata: map[string]any{
			"description": req.Description,
			"model_type":  string(req.ModelType),
			"dimensions":  fmt.Sprintf("%dx%d", req.Width, req.Height),
		},
	}

	s.mu.Lock()
	s.workflows[wf.ID] = wf
	s.mu.Unlock()
	return clone(wf)
}

// Get returns a copy of the record.
func (s *Store) Get(id string) (api.Workflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return api.Workflow{}, false
	}
	return clone(wf), true
}

// Update applies f to the stored record. It reports false for unknown ids,
// e.g. when the record was deleted while generation was running.
func (s *Store) Update(id string, f func(*api.Workflow)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return false
	}
	f(wf)
	return true
}

// Delete removes a record.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return false
	}
	delete(s.workflows, id)
	return true
}

// History returns a page of records, newest first.
func (s *Store) History(limit, offset int) []api.HistoryItem {
	s.mu.RLock()
	items := lo.MapToSlice(s.workflows, func(_ string, wf *api.Workflow) api.HistoryItem {
		description, _ := wf.Metadata["description"].(string)
		modelType, _ := wf.Metadata["model_type"].(string)
		return api.HistoryItem{
			ID:          wf.ID,
			Description: description,
			ModelType:   api.ModelType(modelType),
			Status:      wf.Status,
			CreatedAt:   wf.CreatedAt,
		}
	})
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt.Time) {
			return items[i].CreatedAt.After(items[j].CreatedAt.Time)
		}
		return items[i].ID > items[j].ID
	})

	if offset >= len(items) {
		return []api.HistoryItem{}
	}
	items = items[offset:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Len is the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}

func clone(wf *api.Workflow) api.Workflow {
	out := *wf
	out.AgentProgress = slices.Clone(wf.AgentProgress)
	out.Metadata = maps.Clone(wf.Metadata)
	out.WorkflowJSON = slices.Clone(wf.WorkflowJSON)
	return out
}
