package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vaultmind/chat-client/internal/chat"
	"github.com/vaultmind/chat-client/internal/model"
	"github.com/vaultmind/chat-client/pkg/logger"
	"github.com/vaultmind/chat-client/pkg/metrics"
)

const heartbeatInterval = 30 * time.Second

// MessageEvent is the payload of the SSE "message" event.
type MessageEvent struct {
	ConversationKey string        `json:"conversation_key"`
	Message         model.Message `json:"message"`
}

// HeartbeatEvent is the payload of the SSE "heartbeat" event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// StreamHandler handles the SSE endpoint.
type StreamHandler struct {
	workspace Workspace
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(ws Workspace, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		workspace: ws,
		logger:    log,
		heartbeat: heartbeatInterval,
	}
}

// Stream handles GET /api/v1/chat/stream. It sends a snapshot of the active
// conversation, then every change to it. Updates of conversations that are
// no longer active are not forwarded.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	updates, unsubscribe := h.workspace.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	if err := sendSSEEvent(w, flusher, "snapshot", viewOf(h.workspace.Active(), h.workspace.Busy())); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected")
			return

		case <-heartbeat.C:
			err = sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{Timestamp: time.Now()})

		case u, ok := <-updates:
			if !ok {
				return
			}
			err = h.forward(w, flusher, u)
		}
		if err != nil {
			h.logger.Debug("SSE write failed", zap.Error(err))
			return
		}
	}
}

func (h *StreamHandler) forward(w http.ResponseWriter, flusher http.Flusher, u chat.Update) error {
	active := h.workspace.Active()

	switch u.Kind {
	case chat.UpdateMessage:
		if u.ConversationKey != active.Key() {
			return nil
		}
		return sendSSEEvent(w, flusher, "message", &MessageEvent{
			ConversationKey: u.ConversationKey,
			Message:         u.Message,
		})
	case chat.UpdateSwitched:
		return sendSSEEvent(w, flusher, "snapshot", viewOf(active, h.workspace.Busy()))
	case chat.UpdateSessions:
		return sendSSEEvent(w, flusher, "sessions", &SessionListResponse{Sessions: h.workspace.Sessions()})
	}
	return nil
}
