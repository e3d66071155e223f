package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"BACKEND_URL", "BACKEND_HEADER_TIMEOUT", "LOCALE", "MAX_LINE_BYTES", "PORT",
		"SERVER_WRITE_TIMEOUT", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW",
		"NATS_URL", "NATS_SUBJECT_PREFIX", "TRACING_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	require.Equal(t, "http://localhost:8000", cfg.BackendURL)
	require.Equal(t, 30*time.Second, cfg.BackendHeaderTimeout)
	require.Equal(t, "es", cfg.Locale)
	require.Equal(t, 4<<20, cfg.MaxLineBytes)
	require.Equal(t, "8090", cfg.ServerPort)
	require.Zero(t, cfg.ServerWriteTimeout)
	require.Equal(t, 120, cfg.RateLimitRequests)
	require.Equal(t, time.Minute, cfg.RateLimitWindow)
	require.Empty(t, cfg.NATSURL)
	require.Equal(t, "vaultchat", cfg.NATSSubjectPrefix)
	require.False(t, cfg.TracingEnabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://bank.example.com")
	t.Setenv("BACKEND_TOKEN", "tok")
	t.Setenv("BACKEND_HEADER_TIMEOUT", "5s")
	t.Setenv("LOCALE", "en")
	t.Setenv("MAX_LINE_BYTES", "1024")
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173, https://app.example.com ,")
	t.Setenv("RATE_LIMIT_REQUESTS", "10")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()

	require.Equal(t, "https://bank.example.com", cfg.BackendURL)
	require.Equal(t, "tok", cfg.BackendToken)
	require.Equal(t, 5*time.Second, cfg.BackendHeaderTimeout)
	require.Equal(t, "en", cfg.Locale)
	require.Equal(t, 1024, cfg.MaxLineBytes)
	require.Equal(t, "9000", cfg.ServerPort)
	require.Equal(t, []string{"http://localhost:5173", "https://app.example.com"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 10, cfg.RateLimitRequests)
	require.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	require.True(t, cfg.TracingEnabled)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_LINE_BYTES", "lots")
	t.Setenv("BACKEND_HEADER_TIMEOUT", "soon")
	t.Setenv("TRACING_ENABLED", "maybe")

	cfg := Load()

	require.Equal(t, 4<<20, cfg.MaxLineBytes)
	require.Equal(t, 30*time.Second, cfg.BackendHeaderTimeout)
	require.False(t, cfg.TracingEnabled)
}
