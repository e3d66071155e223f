package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vaultmind/chat-client/internal/model"
	"github.com/vaultmind/chat-client/pkg/logger"
)

// ErrExchangeInFlight is returned by Submit while the active conversation is
// still waiting for a reply.
var ErrExchangeInFlight = errors.New("an exchange is already in flight")

const subscriberBuffer = 64

// SessionsAPI lists and loads server sessions.
type SessionsAPI interface {
	ListSessions(ctx context.Context) ([]model.SessionSummary, error)
	GetSession(ctx context.Context, id model.ServerID) (*model.SessionHistory, error)
}

// Backend is everything the workspace needs from the assistant backend.
type Backend interface {
	Streamer
	SessionsAPI
}

// UpdateKind classifies workspace updates.
type UpdateKind string

const (
	// UpdateMessage carries an appended or changed message.
	UpdateMessage UpdateKind = "message"
	// UpdateSwitched reports a new active conversation.
	UpdateSwitched UpdateKind = "switched"
	// UpdateSessions reports a reloaded session list.
	UpdateSessions UpdateKind = "sessions"
)

// Update is one change fanned out to subscribers. ConversationKey names the
// conversation object it belongs to, which need not be the active one.
type Update struct {
	Kind            UpdateKind
	ConversationKey string
	Message         model.Message
}

// Workspace holds the host-side chat state: the active conversation, the
// cached session list and the exchange currently in flight.
type Workspace struct {
	mu       sync.RWMutex
	backend  SessionsAPI
	client   *Client
	active   *Conversation
	inflight *inflight
	sessions []model.SessionSummary

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int
	sinks   []func(Update)

	logger *logger.Logger
}

type inflight struct {
	conv   *Conversation
	cancel context.CancelFunc
}

// NewWorkspace creates a workspace with a fresh conversation. The chat client
// it builds refreshes the workspace session list after every answer.
func NewWorkspace(backend Backend, cfg Config, log *logger.Logger) *Workspace {
	if log == nil {
		log = logger.Nop()
	}
	w := &Workspace{
		backend: backend,
		subs:    make(map[int]chan Update),
		logger:  log.Named("workspace"),
	}
	w.client = NewClient(backend, w, cfg, log)
	w.active = w.track(NewConversation())
	return w
}

// Active returns the active conversation.
func (w *Workspace) Active() *Conversation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active
}

// NewChat makes a fresh unbound conversation active and cancels any exchange
// in flight.
func (w *Workspace) NewChat() *Conversation {
	conv := w.track(NewConversation())
	w.activate(conv)
	w.logger.Info("started new chat", zap.String("conversation", conv.Key()))
	return conv
}

// Open loads a past session and makes it the active conversation.
func (w *Workspace) Open(ctx context.Context, id model.ServerID) (*Conversation, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}
	history, err := w.backend.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if history.ID == "" {
		history.ID = id
	}

	conv := RestoreConversation(history)
	w.mu.RLock()
	for _, s := range w.sessions {
		if s.ID == history.ID {
			conv.Session().Touch(s.Title, s.Timestamp.Time)
		}
	}
	w.mu.RUnlock()

	w.track(conv)
	w.activate(conv)
	w.logger.Info("opened session",
		zap.String("conversation", conv.Key()),
		zap.String("session_id", string(history.ID)),
		zap.Int("messages", conv.Log().Len()),
	)
	return conv, nil
}

// Submit sends query in the active conversation and blocks until the
// exchange ends. The exchange is cancelled if another conversation becomes
// active first.
func (w *Workspace) Submit(ctx context.Context, query string) (*Exchange, error) {
	res, err := w.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return res.Run(query)
}

// Reservation holds the in-flight slot of the active conversation between
// Begin and Run.
type Reservation struct {
	w    *Workspace
	ctx  context.Context
	run  *inflight
	once sync.Once
}

// Begin reserves the active conversation for one exchange, or returns
// ErrExchangeInFlight. The caller must call Run or Release exactly once.
func (w *Workspace) Begin(ctx context.Context) (*Reservation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight != nil && w.inflight.conv == w.active {
		return nil, ErrExchangeInFlight
	}
	ctx, cancel := context.WithCancel(ctx)
	run := &inflight{conv: w.active, cancel: cancel}
	w.inflight = run
	return &Reservation{w: w, ctx: ctx, run: run}, nil
}

// Conversation returns the conversation the reservation was taken on.
func (r *Reservation) Conversation() *Conversation {
	return r.run.conv
}

// Run sends query and blocks until the exchange ends, then releases the slot.
func (r *Reservation) Run(query string) (*Exchange, error) {
	defer r.Release()
	return r.w.client.Send(r.ctx, r.run.conv, query)
}

// Release frees the slot without sending. It is a no-op after the first call.
func (r *Reservation) Release() {
	r.once.Do(func() {
		r.run.cancel()
		r.w.mu.Lock()
		if r.w.inflight == r.run {
			r.w.inflight = nil
		}
		r.w.mu.Unlock()
	})
}

// Busy reports whether the active conversation has an exchange in flight.
func (w *Workspace) Busy() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.inflight != nil && w.inflight.conv == w.active
}

// Sessions returns the cached session list.
func (w *Workspace) Sessions() []model.SessionSummary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]model.SessionSummary, len(w.sessions))
	copy(out, w.sessions)
	return out
}

// Refresh reloads the session list from the backend.
func (w *Workspace) Refresh(ctx context.Context) error {
	sessions, err := w.backend.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	w.mu.Lock()
	w.sessions = sessions
	active := w.active
	w.mu.Unlock()

	if id := active.Session().SessionID(); id != "" {
		for _, s := range sessions {
			if s.ID == id {
				active.Session().Touch(s.Title, s.Timestamp.Time)
			}
		}
	}

	w.logger.Debug("session list refreshed", zap.Int("sessions", len(sessions)))
	w.broadcast(Update{Kind: UpdateSessions, ConversationKey: active.Key()})
	return nil
}

// Reset drops the cached sessions and starts a new chat. Hosts call it when
// the credentials are gone.
func (w *Workspace) Reset() {
	w.mu.Lock()
	w.sessions = nil
	w.mu.Unlock()
	w.NewChat()
}

// Subscribe returns a channel receiving every update and a function that
// stops the subscription. Slow subscribers miss updates rather than block
// the exchange.
func (w *Workspace) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	w.subMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch
	w.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.subMu.Lock()
			delete(w.subs, id)
			w.subMu.Unlock()
			close(ch)
		})
	}
}

// AddSink registers fn to be called synchronously with every update.
func (w *Workspace) AddSink(fn func(Update)) {
	w.subMu.Lock()
	w.sinks = append(w.sinks, fn)
	w.subMu.Unlock()
}

func (w *Workspace) track(conv *Conversation) *Conversation {
	key := conv.Key()
	conv.Log().Subscribe(func(m model.Message) {
		w.broadcast(Update{Kind: UpdateMessage, ConversationKey: key, Message: m})
	})
	return conv
}

func (w *Workspace) activate(conv *Conversation) {
	w.mu.Lock()
	w.active = conv
	run := w.inflight
	w.mu.Unlock()

	if run != nil && run.conv != conv {
		run.cancel()
	}
	w.broadcast(Update{Kind: UpdateSwitched, ConversationKey: conv.Key()})
}

func (w *Workspace) broadcast(u Update) {
	w.subMu.Lock()
	defer w.subMu.Unlock()

	for _, fn := range w.sinks {
		fn(u)
	}
	for _, ch := range w.subs {
		select {
		case ch <- u:
		default:
			w.logger.Warn("dropping update for slow subscriber", zap.String("kind", string(u.Kind)))
		}
	}
}
