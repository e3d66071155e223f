// Package chat implements streaming chat ingestion: sending a query,
// folding the NDJSON event stream into a message log and binding the
// conversation to its server session.
package chat

import (
	"github.com/google/uuid"

	"github.com/vaultmind/chat-client/internal/model"
)

// Conversation is the client-side state of one chat: its log and its
// server identity. A conversation object is never reused for another
// session; "new chat" creates a new one.
type Conversation struct {
	key     string
	log     *MessageLog
	session *SessionReconciler
}

// NewConversation creates a conversation with no server identity.
func NewConversation() *Conversation {
	return &Conversation{
		key:     uuid.Must(uuid.NewV7()).String(),
		log:     NewMessageLog(),
		session: NewSessionReconciler(),
	}
}

// RestoreConversation builds a bound conversation from server history.
func RestoreConversation(history *model.SessionHistory) *Conversation {
	c := &Conversation{
		key:     uuid.Must(uuid.NewV7()).String(),
		log:     NewMessageLog(),
		session: NewBoundReconciler(history.ID, history.Title),
	}
	for _, hm := range history.Messages {
		c.log.Append(hm.Message())
	}
	return c
}

// Key identifies the conversation object locally, bound or not.
func (c *Conversation) Key() string { return c.key }

// Log returns the message log.
func (c *Conversation) Log() *MessageLog { return c.log }

// Session returns the session reconciler.
func (c *Conversation) Session() *SessionReconciler { return c.session }
