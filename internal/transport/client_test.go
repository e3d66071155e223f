package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, token string) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Token: token, HeaderTimeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	return c, srv
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ana@example.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestPostJSON_EncodesBodyAndToken(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/echo", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}, token)

	var out map[string]string
	require.NoError(t, c.PostJSON(context.Background(), "echo", map[string]string{"msg": "hola"}, &out))
	require.Equal(t, "hola", out["echo"])
}

func TestPostForm_EncodesValues(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "ana@example.com", r.PostForm.Get("username"))
		require.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}, "")

	form := url.Values{"username": {"ana@example.com"}, "password": {"secret"}}
	require.NoError(t, c.PostForm(context.Background(), "/auth/token", form, nil))
}

func TestUnauthorized_NotifiesEveryObserver(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Not authenticated"}`))
	}, "opaque-token")

	var first, second []LogoutEvent
	c.OnLogout(func(ev LogoutEvent) { first = append(first, ev) })
	c.OnLogout(func(ev LogoutEvent) { second = append(second, ev) })

	err := c.GetJSON(context.Background(), "/chat/sessions", &[]any{})
	require.ErrorIs(t, err, ErrUnauthorized)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "Not authenticated", statusErr.Detail)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	require.Equal(t, LogoutUnauthorized, first[0].Reason)
	require.Empty(t, c.Token())
}

func TestExpiredToken_SendsNoRequest(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}, signedToken(t, time.Now().Add(-time.Minute)))

	var reasons []LogoutReason
	c.OnLogout(func(ev LogoutEvent) { reasons = append(reasons, ev.Reason) })

	_, err := c.Stream(context.Background(), "/chat", map[string]any{"query": "q"})
	require.ErrorIs(t, err, ErrTokenExpired)
	require.Zero(t, hits.Load())
	require.Equal(t, []LogoutReason{LogoutTokenExpired}, reasons)
}

func TestStatusError_Detail(t *testing.T) {
	tests := []struct {
		body   string
		detail string
	}{
		{`{"detail":"Session not found"}`, "Session not found"},
		{`{"detail":[{"loc":["body","query"],"msg":"field required"}]}`, `[{"loc":["body","query"],"msg":"field required"}]`},
		{`Internal Server Error`, "Internal Server Error"},
		{``, ""},
	}
	for _, tt := range tests {
		body := tt.body
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(body))
		}, "")

		_, err := c.Do(context.Background(), http.MethodGet, "/x", nil)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr, body)
		require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
		require.Equal(t, tt.detail, statusErr.Detail)
		require.False(t, errors.Is(err, ErrUnauthorized))
	}
}

func TestStream_ReturnsBodyUnread(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("Accept"), "application/x-ndjson")
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"type":"status","content":"a"}` + "\n"))
		w.(http.Flusher).Flush()
		w.Write([]byte(`{"type":"answer","response":"b"}` + "\n"))
	}, "")

	body, err := c.Stream(context.Background(), "/chat", map[string]string{"query": "q"})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, `{"type":"status","content":"a"}`+"\n"+`{"type":"answer","response":"b"}`+"\n", string(data))
}

func TestCookieJar_KeepsSessionCookie(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "cookie-token", Path: "/"})
			w.WriteHeader(http.StatusOK)
		default:
			cookie, err := r.Cookie("access_token")
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"cookie": cookie.Value})
		}
	}, "")

	require.NoError(t, c.PostForm(context.Background(), "/auth/token", url.Values{}, nil))

	var out map[string]string
	require.NoError(t, c.GetJSON(context.Background(), "/me", &out))
	require.Equal(t, "cookie-token", out["cookie"])
}

func TestAuthenticate_RejectedLoginKeepsCredentials(t *testing.T) {
	expired := signedToken(t, time.Now().Add(-time.Minute))
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Incorrect username or password"}`))
	}, expired)

	var logouts int
	c.OnLogout(func(LogoutEvent) { logouts++ })

	err := c.Authenticate(context.Background(), "/auth/token", url.Values{"username": {"ana@example.com"}}, nil)
	require.ErrorIs(t, err, ErrUnauthorized)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "Incorrect username or password", statusErr.Detail)
	require.Zero(t, logouts)
	require.Equal(t, expired, c.Token())
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "localhost:8000"}, nil)
	require.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	require.False(t, tokenExpired("", now))
	require.False(t, tokenExpired("not-a-jwt", now))
	require.False(t, tokenExpired(signedToken(t, now.Add(time.Hour)), now))
	require.True(t, tokenExpired(signedToken(t, now.Add(-time.Second)), now))

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	require.False(t, tokenExpired(noExp, now))
}
