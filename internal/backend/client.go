// Package backend calls the assistant backend endpoints.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/vaultmind/chat-client/internal/model"
	"github.com/vaultmind/chat-client/internal/transport"
)

const (
	chatPath     = "/chat"
	sessionsPath = "/chat/sessions"
	loginPath    = "/auth/token"
)

// Client is the backend endpoint client.
type Client struct {
	http *transport.Client
}

// New creates a backend client on top of transport.
func New(t *transport.Client) *Client {
	return &Client{http: t}
}

// Transport returns the underlying transport client.
func (c *Client) Transport() *transport.Client {
	return c.http
}

// Chat issues POST /chat and returns the NDJSON reply body.
func (c *Client) Chat(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error) {
	return c.http.Stream(ctx, chatPath, req)
}

// ListSessions returns the past conversations of the user, newest first as
// the backend orders them.
func (c *Client) ListSessions(ctx context.Context) ([]model.SessionSummary, error) {
	var sessions []model.SessionSummary
	if err := c.http.GetJSON(ctx, sessionsPath, &sessions); err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []model.SessionSummary{}
	}
	return sessions, nil
}

// GetSession loads the full history of one session.
func (c *Client) GetSession(ctx context.Context, id model.ServerID) (*model.SessionHistory, error) {
	var history model.SessionHistory
	if err := c.http.GetJSON(ctx, sessionsPath+"/"+url.PathEscape(string(id)), &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// LoginResult is the reply of the password login. The session cookie is
// kept by the transport cookie jar.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login authenticates with the password form endpoint. A returned access
// token becomes the bearer token of later requests. Wrong credentials leave
// the current login in place.
func (c *Client) Login(ctx context.Context, email, password string) error {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var res LoginResult
	if err := c.http.Authenticate(ctx, loginPath, form, &res); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if res.AccessToken != "" {
		c.http.SetToken(res.AccessToken)
	}
	return nil
}
