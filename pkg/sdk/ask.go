package wayfind

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// EventType discriminates ask stream events.
type EventType string

// Stream event types, in protocol order.
const (
	EventStatus     EventType = "status"
	EventToolStart  EventType = "tool_start"
	EventToolResult EventType = "tool_result"
	EventToken      EventType = "token"
	EventCitations  EventType = "citations"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Citation names one evidence source backing the answer.
type Citation struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Locator  string `json:"locator"`
}

// Event is one frame of an ask run. Only the fields matching Type are set.
type Event struct {
	ID   string
	Type EventType

	Status     string     // EventStatus
	Tool       string     // EventToolStart, EventToolResult
	Summary    string     // EventToolResult
	ToolError  string     // EventToolResult
	Token      string     // EventToken
	Citations  []Citation // EventCitations
	RunID      string     // EventDone
	Cached     bool       // EventDone
	ErrMessage string     // EventError

	// Err is set when the stream itself broke (transport failure or a
	// malformed frame). The channel closes right after.
	Err error
}

// Turn is one prior exchange supplied as conversation context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AskRequest is the input to an ask run.
type AskRequest struct {
	Query          string `json:"query"`
	Language       string `json:"language,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	History        []Turn `json:"history,omitempty"`
}

// Answer is the collected outcome of a completed run.
type Answer struct {
	Text      string
	Citations []Citation
	RunID     string
	Cached    bool
}

// Ask starts a run and returns its event stream. The channel closes after
// the done event, on context cancellation, or on a stream error (delivered
// as a final Event with Err set).
func (c *Client) Ask(ctx context.Context, req AskRequest) (<-chan Event, error) {
	resp, err := c.send(ctx, http.MethodPost, "/v1/ask", req, "text/event-stream")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, apiErrorFrom(resp)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			ev, err := parseEvent(strings.TrimPrefix(line, "data: "))
			if err != nil {
				events <- Event{Err: err}
				return
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Type == EventDone {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			events <- Event{Err: fmt.Errorf("read stream: %w", err)}
		}
	}()
	return events, nil
}

// AskText runs a query to completion and returns the assembled answer.
// A run that ends with an error event is returned as an *APIError.
func (c *Client) AskText(ctx context.Context, query string) (Answer, error) {
	events, err := c.Ask(ctx, AskRequest{Query: query})
	if err != nil {
		return Answer{}, err
	}

	var (
		text    strings.Builder
		ans     Answer
		runErr  error
		gotDone bool
	)
	for ev := range events {
		switch {
		case ev.Err != nil:
			return Answer{}, ev.Err
		case ev.Type == EventToken:
			text.WriteString(ev.Token)
		case ev.Type == EventCitations:
			ans.Citations = ev.Citations
		case ev.Type == EventError:
			runErr = &APIError{Status: http.StatusOK, Code: CodeInternalError, Message: ev.ErrMessage}
		case ev.Type == EventDone:
			ans.RunID = ev.RunID
			ans.Cached = ev.Cached
			gotDone = true
		}
	}
	if runErr != nil {
		return Answer{}, runErr
	}
	if !gotDone {
		if ctx.Err() != nil {
			return Answer{}, ctx.Err()
		}
		return Answer{}, fmt.Errorf("stream ended without done event")
	}
	ans.Text = text.String()
	return ans, nil
}

func parseEvent(data string) (Event, error) {
	var frame struct {
		ID      string          `json:"id"`
		Type    EventType       `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return Event{}, fmt.Errorf("parse frame: %w", err)
	}

	ev := Event{ID: frame.ID, Type: frame.Type}
	switch frame.Type {
	case EventStatus:
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("parse status: %w", err)
		}
		ev.Status = p.Message
	case EventToolStart, EventToolResult:
		var p struct {
			Tool    string `json:"tool"`
			Summary string `json:"summary"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("parse tool event: %w", err)
		}
		ev.Tool = p.Tool
		ev.Summary = p.Summary
		ev.ToolError = p.Error
	case EventToken:
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("parse token: %w", err)
		}
		ev.Token = p.Text
	case EventCitations:
		var p struct {
			Citations []Citation `json:"citations"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("parse citations: %w", err)
		}
		ev.Citations = p.Citations
	case EventDone:
		var p struct {
			RunID  string `json:"run_id"`
			Cached bool   `json:"cached"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("parse done: %w", err)
		}
		ev.RunID = p.RunID
		ev.Cached = p.Cached
	case EventError:
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("parse error event: %w", err)
		}
		ev.ErrMessage = p.Message
	}
	return ev, nil
}
