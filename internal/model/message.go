package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole maps a history "sender" value to a Role. The backend labels
// assistant messages "ai".
func ParseRole(sender string) Role {
	switch sender {
	case "user":
		return RoleUser
	default:
		return RoleAssistant
	}
}

// Origin tells whether an identifier was minted here or by the backend.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginServer Origin = "server"
)

// MessageID identifies a message within a conversation log. Local and server
// ids live in separate namespaces: equal values with different origins are
// different ids.
type MessageID struct {
	Origin Origin `json:"origin"`
	Value  string `json:"value"`
}

// NewLocalID mints a time-ordered local identifier.
func NewLocalID() MessageID {
	return MessageID{Origin: OriginLocal, Value: uuid.Must(uuid.NewV7()).String()}
}

// ServerMessageID wraps an identifier assigned by the backend.
func ServerMessageID(v string) MessageID {
	return MessageID{Origin: OriginServer, Value: v}
}

// IsZero reports whether the id is unset.
func (id MessageID) IsZero() bool {
	return id.Value == ""
}

func (id MessageID) String() string {
	return string(id.Origin) + ":" + id.Value
}

// ServerID is an identifier issued by the backend (sessions, history
// messages). It decodes from a JSON string or number; null decodes to "".
type ServerID string

// UnmarshalJSON implements json.Unmarshaler.
func (s *ServerID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = ServerID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("server id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("server id must be a string or number: %w", err)
	}
	*s = ServerID(n.String())
	return nil
}

// MarshalJSON encodes an empty id as null.
func (s ServerID) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// Message represents one entry of a conversation log.
type Message struct {
	ID   MessageID `json:"id"`
	Role Role      `json:"role"`
	Text string    `json:"text"`

	// Steps is the reasoning trace shown above assistant replies.
	Steps []string `json:"steps,omitempty"`

	// Status is set while an assistant reply is still streaming and cleared
	// once a terminal event arrives.
	Status string `json:"status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether the message is still waiting for a terminal event.
func (m Message) Pending() bool {
	return m.Status != ""
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	if m.Steps != nil {
		m.Steps = append([]string(nil), m.Steps...)
	}
	return m
}
