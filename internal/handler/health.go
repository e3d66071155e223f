package handler

import (
	"net/http"
	"sort"
)

// ReadyCheck reports whether one dependency of the bridge can serve.
type ReadyCheck func() error

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	workspace Workspace
	checks    map[string]ReadyCheck
}

// NewHealthHandler creates a health handler running checks on /ready.
func NewHealthHandler(ws Workspace, checks map[string]ReadyCheck) *HealthHandler {
	return &HealthHandler{workspace: ws, checks: checks}
}

type healthResponse struct {
	Status string            `json:"status"`
	Busy   bool              `json:"busy"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		Busy:   h.workspace.Busy(),
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := h.checks[name](); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status: "not ready",
			Busy:   h.workspace.Busy(),
			Failed: failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ready",
		Busy:   h.workspace.Busy(),
	})
}
