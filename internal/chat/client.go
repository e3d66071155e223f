package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vaultmind/chat-client/internal/model"
	"github.com/vaultmind/chat-client/internal/stream"
	"github.com/vaultmind/chat-client/pkg/logger"
	"github.com/vaultmind/chat-client/pkg/metrics"
)

// ErrEmptyQuery is returned by Send for a query that is empty after trimming.
var ErrEmptyQuery = errors.New("query is empty")

const refreshTimeout = 10 * time.Second

// Outcome is how an exchange ended.
type Outcome string

const (
	OutcomeAnswered        Outcome = "answered"
	OutcomeFailed          Outcome = "failed"
	OutcomeConnectionError Outcome = "connection_error"
	OutcomeIncomplete      Outcome = "incomplete"
	OutcomeCancelled       Outcome = "cancelled"
)

// Streamer opens the chat stream for one request. The returned body yields
// newline-delimited JSON events and must be closed by the caller.
type Streamer interface {
	Chat(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error)
}

// SessionRefresher reloads the session list.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// Config tunes a Client.
type Config struct {
	Locale       Locale
	MaxLineBytes int
}

// Exchange describes one completed Send.
type Exchange struct {
	UserID           model.MessageID
	PendingID        model.MessageID
	RequestedSession model.ServerID
	Outcome          Outcome
	Bound            bool
	MalformedLines   int
}

// Client sends queries and folds the streamed reply into a conversation.
type Client struct {
	streamer  Streamer
	refresher SessionRefresher
	locale    Locale
	maxLine   int
	logger    *logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewClient creates a chat client. refresher may be nil.
func NewClient(streamer Streamer, refresher SessionRefresher, cfg Config, log *logger.Logger) *Client {
	if cfg.Locale == (Locale{}) {
		cfg.Locale = Spanish
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		streamer:  streamer,
		refresher: refresher,
		locale:    cfg.Locale,
		maxLine:   cfg.MaxLineBytes,
		logger:    log.Named("chat"),
		tracer:    otel.Tracer("github.com/vaultmind/chat-client/internal/chat"),
		now:       time.Now,
	}
}

// Send runs one exchange in conv. The user message is in the log when the
// request is issued. Every failure after that point is reported through the
// log and the returned Exchange; the only error is ErrEmptyQuery.
func (c *Client) Send(ctx context.Context, conv *Conversation, query string) (*Exchange, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	start := c.now()
	requested := conv.Session().SessionID()
	ex := &Exchange{RequestedSession: requested}

	ctx, span := c.tracer.Start(ctx, "chat.exchange", trace.WithAttributes(
		attribute.String("chat.conversation", conv.Key()),
		attribute.String("chat.session_id", string(requested)),
	))
	defer span.End()

	user := model.Message{
		ID:        model.NewLocalID(),
		Role:      model.RoleUser,
		Text:      query,
		Steps:     []string{},
		CreatedAt: start,
	}
	conv.Log().Append(user)
	ex.UserID = user.ID

	log := c.logger.WithExchange(conv.Key(), "", string(requested))

	body, err := c.streamer.Chat(ctx, model.ChatRequest{Query: query, SessionID: requested})
	if err != nil {
		if ctx.Err() != nil {
			ex.Outcome = OutcomeCancelled
		} else {
			log.Warn("chat request failed", zap.Error(err))
			c.appendNotice(conv, c.locale.ConnectionFailed)
			ex.Outcome = OutcomeConnectionError
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat request failed")
		}
		c.record(span, ex, start)
		return ex, nil
	}
	defer body.Close()

	pending := model.Message{
		ID:        model.NewLocalID(),
		Role:      model.RoleAssistant,
		Steps:     []string{},
		Status:    c.locale.Starting,
		CreatedAt: c.now(),
	}
	conv.Log().Append(pending)
	ex.PendingID = pending.ID
	log = c.logger.WithExchange(conv.Key(), pending.ID.String(), string(requested))

	apply := &exchangeApplier{
		conv:      conv,
		pendingID: pending.ID,
		requested: requested,
		locale:    c.locale,
		logger:    log,
	}

	dec := stream.NewDecoder(body, c.maxLine)
	var streamErr error
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var malformed *stream.MalformedLineError
		if errors.As(err, &malformed) {
			log.Warn("skipping malformed stream line", zap.Int("line", malformed.Line), zap.Error(malformed.Err))
			metrics.MalformedLinesTotal.Inc()
			ex.MalformedLines++
			continue
		}
		if err != nil {
			streamErr = err
			break
		}
		metrics.StreamEventsTotal.WithLabelValues(string(ev.Type())).Inc()
		ev.Accept(apply)
	}

	conv.Log().Update(pending.ID, func(m *model.Message) { m.Status = "" })
	ex.Bound = apply.bound

	switch {
	case streamErr != nil && ctx.Err() != nil:
		ex.Outcome = OutcomeCancelled
		if apply.terminal {
			ex.Outcome = apply.outcome
		}
	case streamErr != nil && !apply.terminal:
		log.Warn("chat stream interrupted", zap.Error(streamErr))
		c.appendNotice(conv, c.locale.ConnectionFailed)
		ex.Outcome = OutcomeConnectionError
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "chat stream interrupted")
	case streamErr != nil:
		log.Debug("chat stream ended with error after terminal event", zap.Error(streamErr))
		ex.Outcome = apply.outcome
	case apply.terminal:
		ex.Outcome = apply.outcome
	default:
		log.Warn("chat stream ended without a terminal event")
		ex.Outcome = OutcomeIncomplete
	}

	if apply.answered && c.refresher != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		if err := c.refresher.Refresh(rctx); err != nil {
			log.Warn("session refresh failed", zap.Error(err))
		}
		cancel()
	}

	c.record(span, ex, start)
	return ex, nil
}

func (c *Client) appendNotice(conv *Conversation, text string) {
	conv.Log().Append(model.Message{
		ID:        model.NewLocalID(),
		Role:      model.RoleAssistant,
		Text:      text,
		Steps:     []string{},
		CreatedAt: c.now(),
	})
}

func (c *Client) record(span trace.Span, ex *Exchange, start time.Time) {
	span.SetAttributes(
		attribute.String("chat.outcome", string(ex.Outcome)),
		attribute.Bool("chat.bound", ex.Bound),
		attribute.Int("chat.malformed_lines", ex.MalformedLines),
	)
	metrics.RecordExchange(string(ex.Outcome), c.now().Sub(start).Seconds())
	c.logger.Debug("exchange finished",
		zap.String("outcome", string(ex.Outcome)),
		zap.Bool("bound", ex.Bound),
		zap.String("pending_id", ex.PendingID.String()),
	)
}

// exchangeApplier folds events into the pending message of one exchange.
// It only ever touches the conversation it was created for.
type exchangeApplier struct {
	conv      *Conversation
	pendingID model.MessageID
	requested model.ServerID
	locale    Locale
	logger    *logger.Logger

	terminal bool
	answered bool
	bound    bool
	outcome  Outcome
}

func (a *exchangeApplier) VisitStatus(ev model.StatusEvent) {
	if a.terminal {
		a.logger.Debug("ignoring status after terminal event", zap.String("content", ev.Content))
		return
	}
	a.conv.Log().Update(a.pendingID, func(m *model.Message) {
		m.Steps = append(m.Steps, ev.Content)
		if ev.Content != "" {
			m.Status = ev.Content
		}
	})
}

func (a *exchangeApplier) VisitAnswer(ev model.AnswerEvent) {
	a.conv.Log().Update(a.pendingID, func(m *model.Message) {
		m.Text = ev.Response
		m.Status = ""
		if len(ev.Steps) > 0 {
			m.Steps = append([]string(nil), ev.Steps...)
		}
	})
	a.terminal = true
	a.answered = true
	a.outcome = OutcomeAnswered

	bound, err := a.conv.Session().Reconcile(a.requested, ev.SessionID)
	if err != nil {
		a.logger.Error("failed to bind session", zap.Error(err))
		return
	}
	if bound {
		a.bound = true
		a.logger.Info("conversation bound to session", zap.String("bound_session_id", string(ev.SessionID)))
	}
}

func (a *exchangeApplier) VisitError(ev model.ErrorEvent) {
	a.logger.Warn("backend reported an error", zap.String("detail", ev.Detail))
	a.conv.Log().Update(a.pendingID, func(m *model.Message) {
		m.Text = a.locale.ExchangeFailed
		m.Status = ""
	})
	a.terminal = true
	a.answered = false
	a.outcome = OutcomeFailed
}
