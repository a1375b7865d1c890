package websocket

import (
	"encoding/json"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart    Action = "start"
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// Request is every client message. RequestID correlates the reply.
type Request struct {
	Action     Action                 `json:"action"`
	RequestID  string                 `json:"request_id"`
	QuizID     string                 `json:"quiz_id,omitempty"`
	Autosave   *model.AutosaveRequest `json:"autosave,omitempty"`
	Submission *model.SubmitRequest   `json:"submission,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventState  Event = "state"
	EventSaved  Event = "saved"
	EventGraded Event = "graded"
	EventPong   Event = "pong"
)

// Reply is every server message.
type Reply struct {
	Event     Event               `json:"event"`
	RequestID string              `json:"request_id,omitempty"`
	Data      json.RawMessage     `json:"data,omitempty"`
	Error     *response.ErrorBody `json:"error,omitempty"`
}
