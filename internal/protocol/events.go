// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Here lies the definition of the data the workflow service pushes over the
// progress stream. Every frame is a JSON object with a "type" discriminator;
// the kinds this client understands get a concrete Event type, everything else
// is carried as UnknownEvent so observers still see it.
package protocol

import (
	"encoding/json"

	"github.com/noldarim/wfbuilder/internal/pipeline"
)

// Kind is the wire discriminator of an inbound frame.
type Kind string

// Known event kinds
const (
	KindAgentProgress Kind = "agent_progress"
	KindStatus        Kind = "status"
	KindComplete      Kind = "complete"
	KindError         Kind = "error"
)

// Event is any decoded inbound frame.
type Event interface {
	Kind() Kind
}

// Workflowed is implemented by events that name the workflow they belong to.
type Workflowed interface {
	GetWorkflowID() string
}

// AgentProgressEvent reports a status change of one pipeline stage.
type AgentProgressEvent struct {
	WorkflowID string
	Agent      string
	Status     pipeline.StageStatus
	Message    string
	Timestamp  string
}

func (e AgentProgressEvent) Kind() Kind            { return KindAgentProgress }
func (e AgentProgressEvent) GetWorkflowID() string { return e.WorkflowID }

// StatusEvent reports a workflow-level status change (e.g. "processing").
type StatusEvent struct {
	WorkflowID string
	Status     string
	Message    string
}

func (e StatusEvent) Kind() Kind            { return KindStatus }
func (e StatusEvent) GetWorkflowID() string { return e.WorkflowID }

// CompleteEvent is sent once a workflow has been generated.
type CompleteEvent struct {
	WorkflowID string
	Status     string
	Message    string
}

func (e CompleteEvent) Kind() Kind            { return KindComplete }
func (e CompleteEvent) GetWorkflowID() string { return e.WorkflowID }

// ErrorEvent is sent when generation of a workflow failed.
type ErrorEvent struct {
	WorkflowID string
	Status     string
	Error      string
}

func (e ErrorEvent) Kind() Kind            { return KindError }
func (e ErrorEvent) GetWorkflowID() string { return e.WorkflowID }

// UnknownEvent carries a well-formed frame of a kind this client does not
// interpret. Raw is the original frame.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) Kind() Kind { return Kind(e.Type) }

// WorkflowID returns the workflow an event belongs to, or "" when it carries none.
func WorkflowID(e Event) string {
	if w, ok := e.(Workflowed); ok {
		return w.GetWorkflowID()
	}
	return ""
}
