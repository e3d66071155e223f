package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/vaultmind/chat-client/internal/model"
)

// SessionState is the binding state of a conversation.
type SessionState string

const (
	StateNew   SessionState = "New"
	StateBound SessionState = "Bound"
)

// Session triggers.
type sessionTrigger string

const (
	triggerBind sessionTrigger = "Bind"
)

// SessionReconciler owns the server identity of one conversation. It moves
// from New to Bound the first time an answer to a new-conversation request
// carries a session id. Bound has no transition that changes the id.
type SessionReconciler struct {
	mu      sync.Mutex
	fsm     *stateless.StateMachine
	session model.ConversationSession
}

// NewSessionReconciler starts a conversation without a server identity.
func NewSessionReconciler() *SessionReconciler {
	r := &SessionReconciler{}
	r.configure(StateNew)
	return r
}

// NewBoundReconciler starts a conversation that already has a server id, as
// when it is reopened from history.
func NewBoundReconciler(id model.ServerID, title string) *SessionReconciler {
	r := &SessionReconciler{session: model.ConversationSession{ID: id, Title: title}}
	r.configure(StateBound)
	return r
}

func (r *SessionReconciler) configure(initial SessionState) {
	fsm := stateless.NewStateMachine(initial)

	fsm.Configure(StateNew).
		Permit(triggerBind, StateBound)

	fsm.Configure(StateBound).
		OnEntryFrom(triggerBind, func(_ context.Context, args ...any) error {
			id, ok := args[0].(model.ServerID)
			if !ok || id == "" {
				return fmt.Errorf("bind requires a session id, got %v", args[0])
			}
			r.session.ID = id
			r.session.LastActivity = time.Now()
			return nil
		}).
		Ignore(triggerBind)

	r.fsm = fsm
}

// Reconcile applies the result of a completed exchange. requested is the id
// the request was issued with, answered the id carried by the answer. The id
// is bound only when requested is empty, answered is not, and no id was bound
// before. It reports whether the id changed.
func (r *SessionReconciler) Reconcile(requested, answered model.ServerID) (bool, error) {
	if requested != "" || answered == "" {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fsm.MustState() == StateBound {
		return false, nil
	}
	if err := r.fsm.Fire(triggerBind, answered); err != nil {
		return false, fmt.Errorf("bind session: %w", err)
	}
	return true, nil
}

// State returns the current state.
func (r *SessionReconciler) State() SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fsm.MustState().(SessionState)
}

// SessionID returns the bound id, or "" while New.
func (r *SessionReconciler) SessionID() model.ServerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.ID
}

// Session returns a snapshot of the conversation identity.
func (r *SessionReconciler) Session() model.ConversationSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Touch records the title and last activity reported by the session list.
// It never changes the id.
func (r *SessionReconciler) Touch(title string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if title != "" {
		r.session.Title = title
	}
	if at.After(r.session.LastActivity) {
		r.session.LastActivity = at
	}
}
