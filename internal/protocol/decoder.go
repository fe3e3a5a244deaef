// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noldarim/wfbuilder/internal/pipeline"
)

const maxPreview = 128

// ErrMissingType is returned for frames without a "type" field.
var ErrMissingType = errors.New("missing message type")

// DecodeError describes a frame that could not be turned into an Event.
type DecodeError struct {
	Preview string // leading bytes of the frame, for logs
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %q: %v", e.Preview, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// envelope is the superset of fields any known kind carries. Unknown fields
// are ignored by encoding/json.
type envelope struct {
	Type       string  `json:"type"`
	WorkflowID string  `json:"workflow_id"`
	Agent      string  `json:"agent"`
	Status     string  `json:"status"`
	Message    *string `json:"message"`
	Timestamp  string  `json:"timestamp"`
	Error      string  `json:"error"`
}

// Decode parses one raw frame. It never panics; malformed input yields a
// *DecodeError and a nil Event.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, newDecodeError(frame, err)
	}
	if env.Type == "" {
		return nil, newDecodeError(frame, ErrMissingType)
	}

	switch Kind(env.Type) {
	case KindAgentProgress:
		if env.Agent == "" {
			return nil, newDecodeError(frame, errors.New("agent_progress without agent"))
		}
		status, err := pipeline.ParseStageStatus(env.Status)
		if err != nil {
			return nil, newDecodeError(frame, err)
		}
		return AgentProgressEvent{
			WorkflowID: env.WorkflowID,
			Agent:      env.Agent,
			Status:     status,
			Message:    deref(env.Message),
			Timestamp:  env.Timestamp,
		}, nil
	case KindStatus:
		return StatusEvent{WorkflowID: env.WorkflowID, Status: env.Status, Message: deref(env.Message)}, nil
	case KindComplete:
		return CompleteEvent{WorkflowID: env.WorkflowID, Status: env.Status, Message: deref(env.Message)}, nil
	case KindError:
		return ErrorEvent{WorkflowID: env.WorkflowID, Status: env.Status, Error: env.Error}, nil
	default:
		raw := make(json.RawMessage, len(frame))
		copy(raw, frame)
		return UnknownEvent{Type: env.Type, Raw: raw}, nil
	}
}

func newDecodeError(frame []byte, err error) *DecodeError {
	preview := frame
	if len(preview) > maxPreview {
		preview = preview[:maxPreview]
	}
	return &DecodeError{Preview: string(preview), Err: err}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
