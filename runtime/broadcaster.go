package runtime

import (
	"context"
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/errors"
	"educonnect/repositories"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var _ contract.IBroadcaster = (*Broadcaster)(nil)

// roomSequencer serialises persist-then-deliver for one room.
// last is the timestamp of the latest message persisted in that room.
type roomSequencer struct {
	mu   sync.Mutex
	last time.Time
}

// Broadcaster validates, persists then delivers a message to the current members of its room.
// Within a room, members receive messages in the order they were persisted.
type Broadcaster struct {
	log            *slog.Logger
	registry       contract.IRegistry
	resolver       contract.IRoomResolver
	messages       repositories.IMessageRepository
	moderator      contract.IModerator
	policy         domain.PostingPolicy
	published      chan<- event.DomainEvent
	maxMessageSize int
	persistTimeout time.Duration
	now            func() time.Time

	mu    sync.Mutex
	rooms map[domain.RoomID]*roomSequencer
}

func NewBroadcaster(
	log *slog.Logger,
	registry contract.IRegistry,
	resolver contract.IRoomResolver,
	messages repositories.IMessageRepository,
	moderator contract.IModerator,
	policy domain.PostingPolicy,
	published chan<- event.DomainEvent,
	maxMessageSize int,
	persistTimeout time.Duration) *Broadcaster {
	return &Broadcaster{
		log:            log,
		registry:       registry,
		resolver:       resolver,
		messages:       messages,
		moderator:      moderator,
		policy:         policy,
		published:      published,
		maxMessageSize: maxMessageSize,
		persistTimeout: persistTimeout,
		now:            func() time.Time { return time.Now().UTC() },
		rooms:          make(map[domain.RoomID]*roomSequencer),
	}
}

// Post runs the whole pipeline for one message:
// identity, room resolution, posting policy, validation, moderation,
// persistence and finally delivery to the members of the room.
// A persistence failure returns ErrDeliveryFailed and nothing is delivered.
func (b *Broadcaster) Post(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	if cmd.Identity == nil || cmd.Identity.UserID == "" {
		return domain.Message{}, errors.ErrUnauthenticated
	}
	identity := *cmd.Identity

	room, err := b.resolver.Resolve(ctx, cmd.Room)
	if err != nil {
		return domain.Message{}, err
	}
	if !b.policy.CanPost(identity, room) {
		b.log.Debug("Post refused by policy", "room_id", room.ID, "user_id", identity.UserID, "role", identity.Role)
		return domain.Message{}, fmt.Errorf("%w: %s can't post to %s", errors.ErrForbidden, identity.Role, room.Name)
	}

	content, err := b.validate(cmd.Content)
	if err != nil {
		return domain.Message{}, err
	}
	if b.moderator != nil {
		var words []string
		if content, words = b.moderator.Censor(content); len(words) > 0 {
			b.log.Info("Message censored", "room_id", room.ID, "user_id", identity.UserID, "words", len(words))
		}
	}

	message := domain.Message{
		ID:         uuid.New(),
		Room:       room.ID,
		SenderID:   identity.UserID,
		SenderName: identity.Username,
		SenderRole: identity.Role,
		Content:    content,
	}

	posted, err := b.persistAndDeliver(ctx, message)
	if err != nil {
		return domain.Message{}, err
	}

	select {
	case b.published <- posted:
	default:
		b.log.Warn("Published event channel full, permanent sinks will miss a message", "room_id", room.ID)
	}
	return posted.Message(), nil
}

// persistAndDeliver holds the room sequencer across persistence and delivery,
// so the order members observe is the order of the store.
func (b *Broadcaster) persistAndDeliver(ctx context.Context, message domain.Message) (event.MessagePosted, error) {
	seq := b.sequencer(message.Room)
	seq.mu.Lock()
	defer seq.mu.Unlock()

	message.CreatedAt = b.nextTimestamp(seq)

	persistCtx, cancel := context.WithTimeout(ctx, b.persistTimeout)
	defer cancel()
	if err := b.messages.StoreMessage(persistCtx, message); err != nil {
		b.log.Error("Unable to persist message", "room_id", message.Room, "user_id", message.SenderID, "error", err)
		return event.MessagePosted{}, fmt.Errorf("%w: %v", errors.ErrDeliveryFailed, err)
	}
	seq.last = message.CreatedAt

	posted := event.NewMessagePosted(message)
	members := b.registry.MembersOf(message.Room)
	for _, member := range members {
		if err := member.Consume(ctx, posted); err != nil {
			b.log.Debug("Member not reachable", "room_id", message.Room, "error", err)
		}
	}
	b.log.Debug(fmt.Sprintf("Message delivered to %d members", len(members)), "room_id", message.Room)
	return posted, nil
}

// nextTimestamp is strictly increasing within a room, even if the clock is not.
func (b *Broadcaster) nextTimestamp(seq *roomSequencer) time.Time {
	at := b.now().Round(0)
	if !at.After(seq.last) {
		at = seq.last.Add(time.Nanosecond)
	}
	return at
}

func (b *Broadcaster) sequencer(roomID domain.RoomID) *roomSequencer {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq, ok := b.rooms[roomID]
	if !ok {
		seq = &roomSequencer{}
		b.rooms[roomID] = seq
	}
	return seq
}

func (b *Broadcaster) validate(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.ErrEmptyMessage
	}
	if b.maxMessageSize > 0 && utf8.RuneCountInString(content) > b.maxMessageSize {
		return "", fmt.Errorf("%w: %d characters max", errors.ErrMessageTooLong, b.maxMessageSize)
	}
	return content, nil
}
