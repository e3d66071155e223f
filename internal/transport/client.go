// Package transport is the HTTP layer shared by all backend calls. It encodes
// bodies, attaches credentials and turns 401 replies into logout broadcasts.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vaultmind/chat-client/pkg/logger"
	"github.com/vaultmind/chat-client/pkg/metrics"
)

// LogoutReason says why the credentials were dropped.
type LogoutReason string

const (
	LogoutUnauthorized LogoutReason = "unauthorized"
	LogoutTokenExpired LogoutReason = "token_expired"
)

// LogoutEvent is delivered to every observer registered with OnLogout.
type LogoutEvent struct {
	Reason LogoutReason
	At     time.Time
}

// Config holds transport settings.
type Config struct {
	BaseURL string
	Token   string
	// HeaderTimeout bounds the wait for response headers. Bodies are not
	// bounded so long streams are never cut.
	HeaderTimeout time.Duration
}

// Client sends requests to the backend.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *logger.Logger
	now    func() time.Time

	mu        sync.RWMutex
	token     string
	observers []func(LogoutEvent)
}

// New creates a transport client.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	rt := http.DefaultTransport.(*http.Transport).Clone()
	rt.ResponseHeaderTimeout = cfg.HeaderTimeout

	return &Client{
		base:   base,
		http:   &http.Client{Transport: rt, Jar: jar},
		logger: log.Named("transport"),
		now:    time.Now,
		token:  cfg.Token,
	}, nil
}

// OnLogout registers fn to be called whenever the credentials are dropped.
func (c *Client) OnLogout(fn func(LogoutEvent)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// SetToken replaces the bearer token. An empty token sends none.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Do sends a request and returns the response of a 2xx reply, which the
// caller must close. body may be nil, url.Values (form encoded), an
// io.Reader (sent as is) or any value encoded as JSON. Non-2xx replies are
// returned as *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	return c.do(ctx, method, path, body, requestOptions{accept: "application/json"})
}

// GetJSON decodes the JSON reply of a GET into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// PostJSON sends in as JSON and decodes the reply into out, which may be nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	resp, err := c.Do(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// PostForm sends values form encoded and decodes the reply into out, which
// may be nil.
func (c *Client) PostForm(ctx context.Context, path string, values url.Values, out any) error {
	resp, err := c.Do(ctx, http.MethodPost, path, values)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// Authenticate posts credentials form encoded and decodes the reply into
// out. No bearer token is sent, and a rejected login is returned as
// *StatusError without dropping the current credentials.
func (c *Client) Authenticate(ctx context.Context, path string, values url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodPost, path, values, requestOptions{
		accept:    "application/json",
		anonymous: true,
	})
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// Stream posts in as JSON and returns the reply body unread.
func (c *Client) Stream(ctx context.Context, path string, in any) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodPost, path, in, requestOptions{accept: "application/x-ndjson, application/json"})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// requestOptions vary how do treats credentials.
type requestOptions struct {
	accept string
	// anonymous requests carry no bearer token and never trigger a logout.
	anonymous bool
}

func (c *Client) do(ctx context.Context, method, path string, body any, opts requestOptions) (*http.Response, error) {
	var token string
	if !opts.anonymous {
		token = c.Token()
		if tokenExpired(token, c.now()) {
			c.logout(LogoutTokenExpired)
			return nil, ErrTokenExpired
		}
	}

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", opts.accept)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	metrics.BackendRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Detail:     errorDetail(raw),
	}

	c.logger.Warn("backend request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("detail", statusErr.Detail),
	)

	if resp.StatusCode == http.StatusUnauthorized && !opts.anonymous {
		c.logout(LogoutUnauthorized)
	}
	return nil, statusErr
}

func (c *Client) resolve(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base.String() + path
}

// logout drops the bearer token and notifies observers after the lock is
// released, so observers may call back into the client.
func (c *Client) logout(reason LogoutReason) {
	c.mu.Lock()
	c.token = ""
	observers := make([]func(LogoutEvent), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	metrics.LogoutsTotal.WithLabelValues(string(reason)).Inc()
	c.logger.Info("credentials dropped", zap.String("reason", string(reason)))

	ev := LogoutEvent{Reason: reason, At: c.now()}
	for _, fn := range observers {
		fn(ev)
	}
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	case io.Reader:
		return b, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
