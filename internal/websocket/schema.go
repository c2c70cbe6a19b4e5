package websocket

import (
	"encoding/json"

	"github.com/toanlab/lms-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelectAnswer Action = "select_answer"
	ActionUpdatePart   Action = "update_part"
	ActionNext         Action = "next"
	ActionPrevious     Action = "previous"
	ActionVisibility   Action = "visibility"
	ActionFinish       Action = "finish"
	ActionPing         Action = "ping"
)

// RequestPayload carries every action; fields not used by an action are ignored.
type RequestPayload struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
	Value  string `json:"value"`
	Part   string `json:"part"`
	Mark   string `json:"mark"`
	Hidden bool   `json:"hidden"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSnapshot Event = "snapshot"
	EventSaved    Event = "saved"
	EventMoved    Event = "moved"
	EventResult   Event = "result"
	EventAttempt  Event = "attempt_event"
	EventPong     Event = "pong"
)

// SnapshotResponse is sent on connect and after a visibility change.
type SnapshotResponse struct {
	Event   Event                 `json:"event"`
	Attempt model.AttemptSnapshot `json:"attempt"`
}

// SavedResponse acknowledges a stored answer.
type SavedResponse struct {
	Event  Event        `json:"event"`
	Index  int          `json:"index"`
	Answer model.Answer `json:"answer"`
}

// MovedResponse reports the new current question.
type MovedResponse struct {
	Event        Event `json:"event"`
	CurrentIndex int   `json:"current_index"`
}

// ResultResponse carries the final result of a finish action.
type ResultResponse struct {
	Event  Event            `json:"event"`
	Result model.QuizResult `json:"result"`
}

// AttemptEventResponse forwards a published lifecycle event unchanged.
type AttemptEventResponse struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
