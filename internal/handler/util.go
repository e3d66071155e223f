package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vaultmind/chat-client/internal/chat"
	"github.com/vaultmind/chat-client/internal/model"
	"github.com/vaultmind/chat-client/internal/transport"
)

// conversationView is the JSON form of the active conversation.
type conversationView struct {
	ConversationKey string          `json:"conversation_key"`
	SessionID       model.ServerID  `json:"session_id"`
	Title           string          `json:"title,omitempty"`
	Busy            bool            `json:"busy"`
	Messages        []model.Message `json:"messages"`
}

func viewOf(conv *chat.Conversation, busy bool) *conversationView {
	session := conv.Session().Session()
	return &conversationView{
		ConversationKey: conv.Key(),
		SessionID:       session.ID,
		Title:           session.Title,
		Busy:            busy,
		Messages:        conv.Log().Snapshot(),
	}
}

// upstreamStatus maps a backend error to the status the bridge replies with.
func upstreamStatus(err error) int {
	if errors.Is(err, transport.ErrUnauthorized) || errors.Is(err, transport.ErrTokenExpired) {
		return http.StatusUnauthorized
	}
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
