package handler

import (
	"context"

	"github.com/vaultmind/chat-client/internal/chat"
	"github.com/vaultmind/chat-client/internal/model"
)

// Workspace is the chat state the bridge exposes. *chat.Workspace
// implements it.
type Workspace interface {
	Active() *chat.Conversation
	NewChat() *chat.Conversation
	Open(ctx context.Context, id model.ServerID) (*chat.Conversation, error)
	Begin(ctx context.Context) (*chat.Reservation, error)
	Busy() bool
	Sessions() []model.SessionSummary
	Refresh(ctx context.Context) error
	Subscribe() (<-chan chat.Update, func())
}
