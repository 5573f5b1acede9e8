// Package stream defines the ordered event protocol emitted by a reasoning run.
//
// Within one run the sequence is strict:
//
//	status* (tool_start tool_result)* token+ citations done
//
// or, on unrecoverable failure at any point:
//
//	... error done
//
// Exactly one done event terminates every run.
package stream

import (
	"github.com/google/uuid"

	"github.com/oriane-labs/wayfind/internal/domain/evidence"
)

// Type discriminates stream events.
type Type string

const (
	// TypeStatus is a human-readable progress note.
	TypeStatus Type = "status"
	// TypeToolStart marks the beginning of a tool call.
	TypeToolStart Type = "tool_start"
	// TypeToolResult marks the end of a tool call.
	TypeToolResult Type = "tool_result"
	// TypeToken is a chunk of final answer text.
	TypeToken Type = "token"
	// TypeCitations carries the evidence pack backing the answer.
	TypeCitations Type = "citations"
	// TypeDone terminates the run. Always last, exactly once.
	TypeDone Type = "done"
	// TypeError reports an unrecoverable failure. Followed only by done.
	TypeError Type = "error"
)

// Event is one tagged frame in a run's output stream.
type Event struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// StatusPayload is the payload for status events.
type StatusPayload struct {
	Message string `json:"message"`
}

// ToolStartPayload is the payload for tool_start events.
type ToolStartPayload struct {
	Tool string `json:"tool"`
}

// ToolResultPayload is the payload for tool_result events.
type ToolResultPayload struct {
	Tool    string `json:"tool"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TokenPayload is the payload for token events.
type TokenPayload struct {
	Text string `json:"text"`
}

// CitationsPayload is the payload for the citations event.
type CitationsPayload struct {
	Citations []evidence.Citation `json:"citations"`
}

// DonePayload is the payload for the done event.
type DonePayload struct {
	RunID  string `json:"run_id"`
	Cached bool   `json:"cached,omitempty"`
}

// ErrorPayload is the payload for error events.
type ErrorPayload struct {
	Message string `json:"message"`
}

func newEvent(t Type, payload any) Event {
	return Event{ID: uuid.NewString(), Type: t, Payload: payload}
}

// Status creates a status event.
func Status(message string) Event {
	return newEvent(TypeStatus, StatusPayload{Message: message})
}

// ToolStart creates a tool_start event.
func ToolStart(tool string) Event {
	return newEvent(TypeToolStart, ToolStartPayload{Tool: tool})
}

// ToolResult creates a tool_result event. err may be "".
func ToolResult(tool, summary, err string) Event {
	return newEvent(TypeToolResult, ToolResultPayload{Tool: tool, Summary: summary, Error: err})
}

// Token creates a token event.
func Token(text string) Event {
	return newEvent(TypeToken, TokenPayload{Text: text})
}

// Citations creates the citations event.
func Citations(cs []evidence.Citation) Event {
	if cs == nil {
		cs = []evidence.Citation{}
	}
	return newEvent(TypeCitations, CitationsPayload{Citations: cs})
}

// Done creates the terminal done event.
func Done(runID string, cached bool) Event {
	return newEvent(TypeDone, DonePayload{RunID: runID, Cached: cached})
}

// Error creates an error event.
func Error(message string) Event {
	return newEvent(TypeError, ErrorPayload{Message: message})
}
