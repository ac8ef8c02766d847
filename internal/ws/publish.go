package ws

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"rtchat-service/internal/models"
	"rtchat-service/internal/observability"
	"rtchat-service/internal/repositories"
)

// MaxMessageLen is the longest accepted message body, in runes.
const MaxMessageLen = 1000

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

// Publisher is the single path from an accepted message to its
// broadcast: validate, persist, then fan out. A per-room mutex is held
// across persist and fanout so every subscriber observes messages in
// commit order. The hub's registry lock is separate, so joins, leaves
// and chat-list reads never wait on storage.
type Publisher struct {
	broker   Broker
	messages repositories.MessageRepository

	mu        sync.Mutex
	roomLocks map[RoomKey]*sync.Mutex
}

// NewPublisher constructs a Publisher.
func NewPublisher(broker Broker, messages repositories.MessageRepository) *Publisher {
	return &Publisher{
		broker:    broker,
		messages:  messages,
		roomLocks: make(map[RoomKey]*sync.Mutex),
	}
}

func (p *Publisher) lockFor(key RoomKey) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.roomLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		p.roomLocks[key] = lock
	}
	return lock
}

// Publish trims and validates the body, commits the message, and fans
// it out. Persistence failure means no broadcast; the error goes back
// to the caller only.
func (p *Publisher) Publish(ctx context.Context, ref models.RoomRef, sender models.User, body string, replyTo *int) (models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxMessageLen {
		return models.Message{}, ErrMessageTooLong
	}

	key := KeyFor(ref)
	lock := p.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	msg, err := p.messages.CreateMessage(ctx, ref, sender.ID, body, replyTo)
	if err != nil {
		return models.Message{}, err
	}
	observability.IncMessagePersisted(string(ref.Kind))

	p.broker.Fanout(key, models.ChatEvent{
		Type:            models.EventChatMessage,
		Message:         msg.Body,
		SenderID:        sender.ID,
		SenderUsername:  sender.Username,
		SenderFirstName: sender.FirstName,
		Timestamp:       msg.CreatedAt.Format(time.RFC3339),
		RoomType:        ref.Kind,
		MessageID:       msg.ID,
	})
	return msg, nil
}

// PublishDeletion notifies the room that a message was soft-deleted.
func (p *Publisher) PublishDeletion(ref models.RoomRef, messageID int) {
	p.broker.Fanout(KeyFor(ref), models.ChatEvent{
		Type:      models.EventMessageDeleted,
		RoomType:  ref.Kind,
		MessageID: messageID,
	})
}
