package chat

import (
	"sync"

	"github.com/vaultmind/chat-client/internal/model"
)

// MessageLog is the ordered, append-only message list of one conversation.
// Messages are mutated in place but never removed.
type MessageLog struct {
	mu        sync.RWMutex
	messages  []model.Message
	index     map[model.MessageID]int
	observers []func(model.Message)
}

// NewMessageLog creates an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{index: make(map[model.MessageID]int)}
}

// Subscribe registers fn to receive a copy of every appended or updated
// message. Callbacks run synchronously after the log lock is released.
func (l *MessageLog) Subscribe(fn func(model.Message)) {
	l.mu.Lock()
	l.observers = append(l.observers, fn)
	l.mu.Unlock()
}

// Append adds a message at the end of the log. A message whose id is already
// present is ignored and false is returned.
func (l *MessageLog) Append(msg model.Message) bool {
	l.mu.Lock()
	if _, exists := l.index[msg.ID]; exists {
		l.mu.Unlock()
		return false
	}
	msg = msg.Clone()
	l.index[msg.ID] = len(l.messages)
	l.messages = append(l.messages, msg)
	observers := l.observers
	l.mu.Unlock()

	notify(observers, msg)
	return true
}

// Update applies fn to the message with the given id. It reports false when
// no such message exists. fn must not change the message id.
func (l *MessageLog) Update(id model.MessageID, fn func(*model.Message)) bool {
	l.mu.Lock()
	i, ok := l.index[id]
	if !ok {
		l.mu.Unlock()
		return false
	}
	msg := l.messages[i].Clone()
	fn(&msg)
	msg.ID = id
	l.messages[i] = msg
	observers := l.observers
	l.mu.Unlock()

	notify(observers, msg)
	return true
}

// Get returns a copy of the message with the given id.
func (l *MessageLog) Get(id model.MessageID) (model.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return model.Message{}, false
	}
	return l.messages[i].Clone(), true
}

// Snapshot returns a copy of all messages in order.
func (l *MessageLog) Snapshot() []model.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Message, len(l.messages))
	for i, m := range l.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

func notify(observers []func(model.Message), msg model.Message) {
	for _, fn := range observers {
		fn(msg.Clone())
	}
}
