// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import "encoding/json"

// wireEvent is the outbound shape of every kind, matching what the service
// sends. Used by the development service and by tests that need frames.
type wireEvent struct {
	Type       string `json:"type"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Agent      string `json:"agent,omitempty"`
	Status     string `json:"status,omitempty"`
	Message    string `json:"message,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Encode renders an Event as a frame. UnknownEvent is returned verbatim.
func Encode(e Event) ([]byte, error) {
	var w wireEvent
	switch ev := e.(type) {
	case AgentProgressEvent:
		w = wireEvent{Type: string(KindAgentProgress), WorkflowID: ev.WorkflowID, Agent: ev.Agent,
			Status: string(ev.Status), Message: ev.Message, Timestamp: ev.Timestamp}
	case StatusEvent:
		w = wireEvent{Type: string(KindStatus), WorkflowID: ev.WorkflowID, Status: ev.Status, Message: ev.Message}
	case CompleteEvent:
		w = wireEvent{Type: string(KindComplete), WorkflowID: ev.WorkflowID, Status: ev.Status, Message: ev.Message}
	case ErrorEvent:
		w = wireEvent{Type: string(KindError), WorkflowID: ev.WorkflowID, Status: ev.Status, Error: ev.Error}
	case UnknownEvent:
		return ev.Raw, nil
	default:
		w = wireEvent{Type: string(e.Kind())}
	}
	return json.Marshal(w)
}
