package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vaultmind/chat-client/internal/chat"
	"github.com/vaultmind/chat-client/internal/middleware"
	"github.com/vaultmind/chat-client/pkg/logger"
)

// SendMessageRequest is the body of POST /api/v1/chat/messages.
type SendMessageRequest struct {
	Query string `json:"query"`
}

// SendMessageResponse acknowledges an accepted query.
type SendMessageResponse struct {
	ConversationKey string `json:"conversation_key"`
	Status          string `json:"status"`
}

// MessageHandler handles chat endpoints of the active conversation.
type MessageHandler struct {
	workspace Workspace
	logger    *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(ws Workspace, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		workspace: ws,
		logger:    log,
	}
}

// List handles GET /api/v1/chat/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(h.workspace.Active(), h.workspace.Busy()))
}

// Send handles POST /api/v1/chat/messages. The exchange runs in the
// background; its progress is delivered on the SSE stream.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateQuery(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.workspace.Begin(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, chat.ErrExchangeInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to reserve exchange", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	conv := res.Conversation()
	correlationID := middleware.GetCorrelationID(r.Context())

	go func() {
		ex, err := res.Run(req.Query)
		if err != nil {
			h.logger.Error("exchange failed", zap.Error(err), zap.String("correlation_id", correlationID))
			return
		}
		h.logger.Info("exchange finished",
			zap.String("conversation", conv.Key()),
			zap.String("outcome", string(ex.Outcome)),
			zap.String("correlation_id", correlationID),
		)
	}()

	writeJSON(w, http.StatusAccepted, &SendMessageResponse{
		ConversationKey: conv.Key(),
		Status:          "accepted",
	})
}

// NewChat handles POST /api/v1/chat/new
func (h *MessageHandler) NewChat(w http.ResponseWriter, r *http.Request) {
	conv := h.workspace.NewChat()
	writeJSON(w, http.StatusCreated, viewOf(conv, false))
}
