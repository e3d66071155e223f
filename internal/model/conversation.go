// Package model defines data structures shared by the chat client.
package model

import (
	"time"
)

// ConversationSession is the server-side identity of a conversation. ID is
// empty until the backend assigns one.
type ConversationSession struct {
	ID           ServerID  `json:"id"`
	Title        string    `json:"title"`
	LastActivity time.Time `json:"last_activity"`
}

// Bound reports whether the backend has assigned an id.
func (s ConversationSession) Bound() bool {
	return s.ID != ""
}

// SessionSummary is one row of GET /chat/sessions.
type SessionSummary struct {
	ID        ServerID  `json:"id"`
	Title     string    `json:"title"`
	Date      string    `json:"date"`
	Timestamp Timestamp `json:"timestamp"`
}

// HistoryMessage is a message as returned by GET /chat/sessions/{id}.
type HistoryMessage struct {
	ID        ServerID  `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp Timestamp `json:"timestamp"`
	Steps     Steps     `json:"steps"`
}

// Message converts a history entry into a log message addressed by a server
// id. Entries without an id get a local one.
func (h HistoryMessage) Message() Message {
	id := ServerMessageID(string(h.ID))
	if h.ID == "" {
		id = NewLocalID()
	}
	return Message{
		ID:        id,
		Role:      ParseRole(h.Sender),
		Text:      h.Text,
		Steps:     []string(h.Steps),
		CreatedAt: h.Timestamp.Time,
	}
}

// SessionHistory is the response of GET /chat/sessions/{id}.
type SessionHistory struct {
	ID       ServerID         `json:"id"`
	Title    string           `json:"title"`
	Messages []HistoryMessage `json:"messages"`
}

// ChatRequest is the body of POST /chat. An empty SessionID is sent as null
// and asks the backend to start a new conversation.
type ChatRequest struct {
	Query     string   `json:"query"`
	SessionID ServerID `json:"session_id"`
}
