package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vaultmind/chat-client/internal/backend"
	"github.com/vaultmind/chat-client/internal/chat"
	"github.com/vaultmind/chat-client/internal/config"
	"github.com/vaultmind/chat-client/internal/handler"
	natsclient "github.com/vaultmind/chat-client/internal/nats"
	"github.com/vaultmind/chat-client/internal/transport"
	"github.com/vaultmind/chat-client/pkg/logger"
	"github.com/vaultmind/chat-client/pkg/tracing"
)

// app holds the components shared by both hosts.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	backend   *backend.Client
	workspace *chat.Workspace
	nats      *natsclient.Client
	closers   []func()
}

func newApp(ctx context.Context, host string, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "vaultchat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			a.closers = append(a.closers, func() { tracing.Shutdown(context.Background(), tp) })
		}
	}

	t, err := transport.New(transport.Config{
		BaseURL:       cfg.BackendURL,
		Token:         cfg.BackendToken,
		HeaderTimeout: cfg.BackendHeaderTimeout,
	}, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	a.backend = backend.New(t)

	a.workspace = chat.NewWorkspace(a.backend, chat.Config{
		Locale:       chat.LocaleFor(cfg.Locale),
		MaxLineBytes: cfg.MaxLineBytes,
	}, log)

	var publisher *natsclient.Publisher
	if cfg.NATSURL != "" {
		nc, err := natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     "vaultchat-" + host,
		}, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.nats = nc
		a.closers = append(a.closers, nc.Close)

		publisher = natsclient.NewPublisher(nc.Conn(), cfg.NATSSubjectPrefix, log)
		a.workspace.AddSink(publisher.PublishUpdate)
		log.Info("publishing chat updates to NATS", zap.String("subject_prefix", cfg.NATSSubjectPrefix))
	}

	resetOnLogout(t, a.workspace, publisher, log)

	if cfg.BackendEmail != "" {
		if err := a.backend.Login(ctx, cfg.BackendEmail, cfg.BackendPassword); err != nil {
			a.close()
			return nil, err
		}
		log.Info("logged in", zap.String("email", cfg.BackendEmail))
	}

	return a, nil
}

// resetOnLogout starts a new chat and announces the logout whenever the
// transport drops the credentials. publisher may be nil.
func resetOnLogout(t *transport.Client, ws *chat.Workspace, publisher *natsclient.Publisher, log *logger.Logger) {
	t.OnLogout(func(ev transport.LogoutEvent) {
		log.Warn("logged out", zap.String("reason", string(ev.Reason)))
		ws.Reset()
		if publisher != nil {
			publisher.PublishLogout(ev)
		}
	})
}

// readyChecks lists the dependencies /ready reports on.
func (a *app) readyChecks() map[string]handler.ReadyCheck {
	checks := map[string]handler.ReadyCheck{}
	if a.nats != nil {
		checks["nats"] = a.nats.Check
	}
	return checks
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
