package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vaultmind/chat-client/internal/chat"
	"github.com/vaultmind/chat-client/internal/model"
	"github.com/vaultmind/chat-client/internal/transport"
	"github.com/vaultmind/chat-client/pkg/logger"
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// MessageEvent is published on <prefix>.conv.<conversation key>.message.
type MessageEvent struct {
	ConversationKey string        `json:"conversation_key"`
	Kind            string        `json:"kind"`
	Message         model.Message `json:"message"`
}

// LogoutEvent is published on <prefix>.auth.logout.
type LogoutEvent struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Publisher forwards workspace updates and logout broadcasts.
type Publisher struct {
	conn   Conn
	prefix string
	logger *logger.Logger
}

// NewPublisher creates a publisher writing under prefix.
func NewPublisher(conn Conn, prefix string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{conn: conn, prefix: prefix, logger: log.Named("nats")}
}

// MessageSubject returns the subject for messages of one conversation.
func (p *Publisher) MessageSubject(conversationKey string) string {
	return fmt.Sprintf("%s.conv.%s.message", p.prefix, conversationKey)
}

// LogoutSubject returns the subject for logout events.
func (p *Publisher) LogoutSubject() string {
	return p.prefix + ".auth.logout"
}

// PublishUpdate publishes message updates. Other kinds are not forwarded.
func (p *Publisher) PublishUpdate(u chat.Update) {
	if u.Kind != chat.UpdateMessage {
		return
	}
	p.publish(p.MessageSubject(u.ConversationKey), &MessageEvent{
		ConversationKey: u.ConversationKey,
		Kind:            string(u.Kind),
		Message:         u.Message,
	})
}

// PublishLogout publishes a logout broadcast.
func (p *Publisher) PublishLogout(ev transport.LogoutEvent) {
	p.publish(p.LogoutSubject(), &LogoutEvent{Reason: string(ev.Reason), At: ev.At})
}

func (p *Publisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
