package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

type rateLimitBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// RateLimit allows requestLimit requests per window for each client address
// and path. Run it after chi's RealIP so proxied clients are told apart.
func RateLimit(requestLimit int, window time.Duration) func(http.Handler) http.Handler {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	body, _ := json.Marshal(rateLimitBody{Error: "rate limit exceeded", RetryAfter: seconds})

	return httprate.Limit(
		requestLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write(body)
		}),
	)
}
