package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultmind/chat-client/internal/chat"
	"github.com/vaultmind/chat-client/internal/model"
	"github.com/vaultmind/chat-client/internal/transport"
)

type mockBackend struct {
	ChatFunc       func(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error)
	Sessions       []model.SessionSummary
	ListErr        error
	GetSessionFunc func(ctx context.Context, id model.ServerID) (*model.SessionHistory, error)
}

func (m *mockBackend) Chat(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return io.NopCloser(strings.NewReader(
		`{"type":"status","content":"Buscando"}` + "\n" +
			`{"type":"answer","response":"Tu saldo es 420","session_id":"s1"}` + "\n",
	)), nil
}

func (m *mockBackend) ListSessions(ctx context.Context) ([]model.SessionSummary, error) {
	return m.Sessions, m.ListErr
}

func (m *mockBackend) GetSession(ctx context.Context, id model.ServerID) (*model.SessionHistory, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, id)
	}
	return nil, &transport.StatusError{Method: http.MethodGet, Path: "/chat/sessions/" + string(id), StatusCode: http.StatusNotFound}
}

func newTestRouter(b *mockBackend) (http.Handler, *chat.Workspace) {
	return newTestRouterWithChecks(b, nil)
}

func newTestRouterWithChecks(b *mockBackend, checks map[string]ReadyCheck) (http.Handler, *chat.Workspace) {
	ws := chat.NewWorkspace(b, chat.Config{}, nil)
	return NewRouter(RouterConfig{
		Workspace:          ws,
		ReadyChecks:        checks,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
	}), ws
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	h, _ := newTestRouter(&mockBackend{})

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy","busy":false}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestReady_ReportsFailedChecks(t *testing.T) {
	h, _ := newTestRouterWithChecks(&mockBackend{}, map[string]ReadyCheck{
		"nats":    func() error { return errors.New("not connected") },
		"backend": func() error { return nil },
	})

	rec := do(t, h, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"not ready","busy":false,"failed":{"nats":"not connected"}}`, rec.Body.String())
}

func TestSendMessage_ConflictWhileReserved(t *testing.T) {
	h, ws := newTestRouter(&mockBackend{})

	res, err := ws.Begin(context.Background())
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/api/v1/chat/messages", `{"query":"otra"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Zero(t, ws.Active().Log().Len())

	res.Release()

	rec = do(t, h, http.MethodPost, "/api/v1/chat/messages", `{"query":"otra"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return !ws.Busy() }, 2*time.Second, 10*time.Millisecond)
}

func TestSendMessage_RunsExchangeInBackground(t *testing.T) {
	h, ws := newTestRouter(&mockBackend{
		Sessions: []model.SessionSummary{{ID: "s1", Title: "Saldo"}},
	})

	rec := do(t, h, http.MethodPost, "/api/v1/chat/messages", `{"query":"¿Cuál es mi saldo?"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ack SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	require.Equal(t, ws.Active().Key(), ack.ConversationKey)

	require.Eventually(t, func() bool {
		return ws.Active().Session().SessionID() == "s1" && !ws.Busy()
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, h, http.MethodGet, "/api/v1/chat/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view conversationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, model.ServerID("s1"), view.SessionID)
	require.Len(t, view.Messages, 2)
	require.Equal(t, "Tu saldo es 420", view.Messages[1].Text)
	require.Equal(t, []string{"Buscando"}, view.Messages[1].Steps)

	require.Eventually(t, func() bool { return len(ws.Sessions()) == 1 }, time.Second, 10*time.Millisecond)
	rec = do(t, h, http.MethodGet, "/api/v1/sessions", "")
	require.JSONEq(t, `{"sessions":[{"id":"s1","title":"Saldo","date":"","timestamp":null}]}`, rec.Body.String())
}

func TestSendMessage_Validation(t *testing.T) {
	h, _ := newTestRouter(&mockBackend{})

	rec := do(t, h, http.MethodPost, "/api/v1/chat/messages", `{"query":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/chat/messages", `{"query":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"query cannot be empty"}`, rec.Body.String())
}

func TestNewChat(t *testing.T) {
	h, ws := newTestRouter(&mockBackend{})
	before := ws.Active().Key()

	rec := do(t, h, http.MethodPost, "/api/v1/chat/new", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var view conversationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.NotEqual(t, before, view.ConversationKey)
	require.Equal(t, ws.Active().Key(), view.ConversationKey)
	require.Empty(t, view.Messages)
}

func TestOpenSession(t *testing.T) {
	h, ws := newTestRouter(&mockBackend{
		GetSessionFunc: func(ctx context.Context, id model.ServerID) (*model.SessionHistory, error) {
			return &model.SessionHistory{ID: id, Title: "Tarjetas", Messages: []model.HistoryMessage{
				{ID: "1", Text: "Bloquear tarjeta", Sender: "user"},
			}}, nil
		},
	})

	rec := do(t, h, http.MethodPost, "/api/v1/sessions/4/open", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.ServerID("4"), ws.Active().Session().SessionID())

	rec = do(t, h, http.MethodPost, "/api/v1/sessions/bad%20id/open", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenSession_NotFound(t *testing.T) {
	h, _ := newTestRouter(&mockBackend{})

	rec := do(t, h, http.MethodPost, "/api/v1/sessions/99/open", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshSessions_Unauthorized(t *testing.T) {
	h, _ := newTestRouter(&mockBackend{ListErr: &transport.StatusError{StatusCode: http.StatusUnauthorized}})

	rec := do(t, h, http.MethodPost, "/api/v1/sessions/refresh", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStream_SnapshotThenMessages(t *testing.T) {
	h, ws := newTestRouter(&mockBackend{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/chat/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(resp.Body)

	first := <-events
	require.Equal(t, "snapshot", first.name)

	go ws.Submit(context.Background(), "hola")

	var names []string
	deadline := time.After(2 * time.Second)
	for len(names) < 5 {
		select {
		case ev := <-events:
			names = append(names, ev.name)
		case <-deadline:
			t.Fatalf("timed out, got %v", names)
		}
	}
	require.Equal(t, []string{"message", "message", "message", "message", "message"}, names)
}

type sseEvent struct {
	name string
	data string
}

func readSSE(r io.Reader) <-chan sseEvent {
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		var ev sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.name != "":
				out <- ev
				ev = sseEvent{}
			}
		}
	}()
	return out
}
