package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vaultmind/chat-client/internal/middleware"
	"github.com/vaultmind/chat-client/internal/model"
	"github.com/vaultmind/chat-client/pkg/logger"
)

// SessionListResponse is the JSON form of the cached session list.
type SessionListResponse struct {
	Sessions []model.SessionSummary `json:"sessions"`
}

// SessionHandler handles session list endpoints.
type SessionHandler struct {
	workspace Workspace
	logger    *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(ws Workspace, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		workspace: ws,
		logger:    log,
	}
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &SessionListResponse{Sessions: h.workspace.Sessions()})
}

// Refresh handles POST /api/v1/sessions/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.workspace.Refresh(r.Context()); err != nil {
		h.logger.Warn("failed to refresh sessions", zap.Error(err))
		writeError(w, upstreamStatus(err), "failed to refresh sessions")
		return
	}
	writeJSON(w, http.StatusOK, &SessionListResponse{Sessions: h.workspace.Sessions()})
}

// Open handles POST /api/v1/sessions/{id}/open
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.workspace.Open(r.Context(), model.ServerID(id))
	if err != nil {
		h.logger.Warn("failed to open session", zap.String("session_id", id), zap.Error(err))
		writeError(w, upstreamStatus(err), "failed to open session")
		return
	}

	writeJSON(w, http.StatusOK, viewOf(conv, false))
}
