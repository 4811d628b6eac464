//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"educonnect/auth"
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/errors"
	"educonnect/repositories"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChatService interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
	CreateRoom(ctx context.Context, identity domain.Identity, req auth.RoomRequest) (domain.Room, error)
	History(ctx context.Context, identity domain.Identity, ref string, cursor *string, limit int) (domain.HistoryPage, error)
	Post(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
	Search(ctx context.Context, identity domain.Identity, ref, query string, limit int) ([]domain.Message, error)
	OpenConversation(ctx context.Context, identity domain.Identity, receiverID string) (domain.Room, bool, error)
	DeleteMessage(ctx context.Context, identity domain.Identity, id uuid.UUID) error
}

// ChatService is the REST side of the chat. Posts go through the same
// broadcaster as the WebSocket ones so live members see them too.
type ChatService struct {
	log         *slog.Logger
	rooms       repositories.IRoomRepository
	messages    repositories.IMessageRepository
	users       repositories.IUserRepository
	index       repositories.IMessageIndex
	resolver    contract.IRoomResolver
	broadcaster contract.IBroadcaster
	publisher   contract.IPublisher
	policy      domain.PostingPolicy
	maxLimit    int
}

func NewChatService(
	log *slog.Logger,
	rooms repositories.IRoomRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	index repositories.IMessageIndex,
	resolver contract.IRoomResolver,
	broadcaster contract.IBroadcaster,
	publisher contract.IPublisher,
	policy domain.PostingPolicy,
	maxLimit int) *ChatService {
	if maxLimit <= 0 {
		maxLimit = 50
	}
	return &ChatService{
		log:         log,
		rooms:       rooms,
		messages:    messages,
		users:       users,
		index:       index,
		resolver:    resolver,
		broadcaster: broadcaster,
		publisher:   publisher,
		policy:      policy,
		maxLimit:    maxLimit,
	}
}

func (s *ChatService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	return s.rooms.ListGroupRooms(ctx)
}

func (s *ChatService) CreateRoom(ctx context.Context, identity domain.Identity, req auth.RoomRequest) (domain.Room, error) {
	if err := auth.Validate(req); err != nil {
		return domain.Room{}, err
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(req.Name)), "dm:") {
		return domain.Room{}, fmt.Errorf("%w: reserved room name", errors.ErrInvalidPayload)
	}

	participants := lo.Uniq(append([]string{identity.UserID}, req.Participants...))
	room := domain.NewGroupRoom(req.Name, req.Description, participants)
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return domain.Room{}, err
	}
	s.log.Info("Room created", "room_id", room.ID, "name", room.Name, "user_id", identity.UserID)
	return room, nil
}

// History pages through a room, oldest first within a page.
// The limit is clamped to 1..maxLimit.
func (s *ChatService) History(ctx context.Context, identity domain.Identity, ref string, cursor *string, limit int) (domain.HistoryPage, error) {
	room, err := s.accessibleRoom(ctx, identity, ref)
	if err != nil {
		return domain.HistoryPage{}, err
	}
	messages, next, err := s.messages.GetMessages(ctx, room.ID, cursor, s.clamp(limit))
	if err != nil {
		return domain.HistoryPage{}, err
	}
	return domain.HistoryPage{Room: room, Messages: messages, NextCursor: next}, nil
}

func (s *ChatService) Post(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	return s.broadcaster.Post(ctx, cmd)
}

func (s *ChatService) Search(ctx context.Context, identity domain.Identity, ref, query string, limit int) ([]domain.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", errors.ErrInvalidPayload)
	}
	room, err := s.accessibleRoom(ctx, identity, ref)
	if err != nil {
		return nil, err
	}
	return s.index.Search(ctx, room.ID, query, s.clamp(limit))
}

// OpenConversation finds or creates the direct room between the caller and receiverID.
func (s *ChatService) OpenConversation(ctx context.Context, identity domain.Identity, receiverID string) (domain.Room, bool, error) {
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" || receiverID == identity.UserID {
		return domain.Room{}, false, fmt.Errorf("%w: invalid receiver", errors.ErrInvalidPayload)
	}
	if _, err := s.users.GetUserByID(ctx, receiverID); err != nil {
		return domain.Room{}, false, err
	}
	return s.rooms.FindOrCreateDM(ctx, identity.UserID, receiverID)
}

// DeleteMessage is reserved to admins.
func (s *ChatService) DeleteMessage(ctx context.Context, identity domain.Identity, id uuid.UUID) error {
	if !identity.IsAdmin() {
		return fmt.Errorf("%w: admin only", errors.ErrForbidden)
	}
	if err := s.messages.DeleteMessage(ctx, id); err != nil {
		return err
	}
	s.publisher.Publish(event.MessagesDeleted{IDs: []uuid.UUID{id}})
	s.log.Info("Message deleted", "message_id", id, "user_id", identity.UserID)
	return nil
}

func (s *ChatService) accessibleRoom(ctx context.Context, identity domain.Identity, ref string) (domain.Room, error) {
	room, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		return domain.Room{}, err
	}
	if !s.policy.CanAccess(identity, room) {
		return domain.Room{}, fmt.Errorf("%w: %s is a private conversation", errors.ErrForbidden, room.Name)
	}
	return room, nil
}

func (s *ChatService) clamp(limit int) int {
	if limit <= 0 || limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}
