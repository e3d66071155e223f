package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType is the discriminator of a chat stream record.
type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeAnswer EventType = "answer"
	EventTypeError  EventType = "error"
)

var (
	// ErrMissingEventType is returned for records without a "type" field.
	ErrMissingEventType = errors.New("event has no type")
	// ErrUnknownEventType is returned for records with an unrecognised "type".
	ErrUnknownEventType = errors.New("unknown event type")
)

// Event is one decoded record of the chat stream. The set of implementations
// is closed: StatusEvent, AnswerEvent and ErrorEvent.
type Event interface {
	Type() EventType
	Accept(v EventVisitor)
	sealed()
}

// EventVisitor handles every event kind. Adding a kind adds a method here, so
// every consumer fails to compile until it handles the new kind.
type EventVisitor interface {
	VisitStatus(StatusEvent)
	VisitAnswer(AnswerEvent)
	VisitError(ErrorEvent)
}

// StatusEvent is an intermediate progress update.
type StatusEvent struct {
	Content string
}

// AnswerEvent carries the final reply. SessionID is empty when the backend
// did not include one.
type AnswerEvent struct {
	Response  string
	Steps     []string
	SessionID ServerID
}

// ErrorEvent signals the backend failed the exchange. Detail is kept for
// logging only and never shown to users.
type ErrorEvent struct {
	Detail string
}

func (StatusEvent) Type() EventType { return EventTypeStatus }
func (AnswerEvent) Type() EventType { return EventTypeAnswer }
func (ErrorEvent) Type() EventType  { return EventTypeError }

func (e StatusEvent) Accept(v EventVisitor) { v.VisitStatus(e) }
func (e AnswerEvent) Accept(v EventVisitor) { v.VisitAnswer(e) }
func (e ErrorEvent) Accept(v EventVisitor)  { v.VisitError(e) }

func (StatusEvent) sealed() {}
func (AnswerEvent) sealed() {}
func (ErrorEvent) sealed()  {}

// envelope is the wire shape shared by all records.
type envelope struct {
	Type          EventType `json:"type"`
	Content       string    `json:"content"`
	Response      string    `json:"response"`
	ReasoningData *struct {
		Steps Steps `json:"steps"`
	} `json:"reasoning_data"`
	SessionID ServerID `json:"session_id"`
	Message   string   `json:"message"`
	Detail    string   `json:"detail"`
}

// ParseEvent decodes one NDJSON line.
func ParseEvent(line []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch env.Type {
	case EventTypeStatus:
		return StatusEvent{Content: env.Content}, nil
	case EventTypeAnswer:
		ev := AnswerEvent{Response: env.Response, SessionID: env.SessionID}
		if env.ReasoningData != nil {
			ev.Steps = []string(env.ReasoningData.Steps)
		}
		return ev, nil
	case EventTypeError:
		detail := env.Detail
		if detail == "" {
			detail = env.Message
		}
		if detail == "" {
			detail = env.Content
		}
		return ErrorEvent{Detail: detail}, nil
	case "":
		return nil, ErrMissingEventType
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
}

// Steps is a reasoning trace. Entries arrive either as strings or as objects
// with a content, status or thought field; objects without any of those are
// kept as their raw JSON.
type Steps []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Steps) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("steps must be an array: %w", err)
	}
	out := make(Steps, 0, len(raw))
	for _, item := range raw {
		out = append(out, stepText(item))
	}
	*s = out
	return nil
}

func stepText(item json.RawMessage) string {
	var text string
	if err := json.Unmarshal(item, &text); err == nil {
		return text
	}
	var obj struct {
		Content string `json:"content"`
		Status  string `json:"status"`
		Thought string `json:"thought"`
	}
	if err := json.Unmarshal(item, &obj); err == nil {
		for _, v := range []string{obj.Content, obj.Status, obj.Thought} {
			if v != "" {
				return v
			}
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, item); err != nil {
		return string(item)
	}
	return compact.String()
}

// Timestamp decodes RFC 3339 times as well as the zone-less ISO times the
// backend emits, which are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, v); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", v)
}

// MarshalJSON encodes the time as RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
