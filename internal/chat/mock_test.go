package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/vaultmind/chat-client/internal/model"
)

type mockBackend struct {
	mu       sync.Mutex
	requests []model.ChatRequest

	ChatFunc         func(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error)
	ListSessionsFunc func(ctx context.Context) ([]model.SessionSummary, error)
	GetSessionFunc   func(ctx context.Context, id model.ServerID) (*model.SessionHistory, error)
}

func (m *mockBackend) Chat(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return io.NopCloser(strings.NewReader(`{"type":"answer","response":"ok"}` + "\n")), nil
}

func (m *mockBackend) ListSessions(ctx context.Context) ([]model.SessionSummary, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []model.SessionSummary{}, nil
}

func (m *mockBackend) GetSession(ctx context.Context, id model.ServerID) (*model.SessionHistory, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, id)
	}
	return nil, errors.New("not found")
}

func (m *mockBackend) Requests() []model.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ChatRequest(nil), m.requests...)
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingRefresher) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// ndjson joins records into a newline-terminated stream body.
func ndjson(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

// blockingBody returns a body that yields the given lines and then blocks
// until ctx is done.
func blockingBody(ctx context.Context, lines ...string) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		for _, l := range lines {
			if _, err := pw.Write([]byte(l + "\n")); err != nil {
				return
			}
		}
		<-ctx.Done()
		pw.CloseWithError(ctx.Err())
	}()
	return pr
}
