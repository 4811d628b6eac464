package services

import (
	"context"
	"educonnect/auth"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/errors"
	"educonnect/mocks"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chatFixture struct {
	rooms       *mocks.MockIRoomRepository
	messages    *mocks.MockIMessageRepository
	users       *mocks.MockIUserRepository
	index       *mocks.MockIMessageIndex
	resolver    *mocks.MockIRoomResolver
	broadcaster *mocks.MockIBroadcaster
	publisher   *mocks.MockIPublisher
	svc         *ChatService
}

func newChatFixture(t *testing.T) chatFixture {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	f := chatFixture{
		rooms:       mocks.NewMockIRoomRepository(ctrl),
		messages:    mocks.NewMockIMessageRepository(ctrl),
		users:       mocks.NewMockIUserRepository(ctrl),
		index:       mocks.NewMockIMessageIndex(ctrl),
		resolver:    mocks.NewMockIRoomResolver(ctrl),
		broadcaster: mocks.NewMockIBroadcaster(ctrl),
		publisher:   mocks.NewMockIPublisher(ctrl),
	}
	f.svc = NewChatService(logs.GetLoggerFromLevel(slog.LevelDebug), f.rooms, f.messages, f.users, f.index,
		f.resolver, f.broadcaster, f.publisher, domain.PostingPolicy{PrivilegedRoom: "announcements"}, 50)
	return f
}

var (
	alice = domain.Identity{UserID: "u-alice", Username: "alice", Role: domain.RoleStudent}
	admin = domain.Identity{UserID: "u-admin", Username: "root", Role: domain.RoleAdmin}
)

func TestChatService_History(t *testing.T) {
	ctx := context.Background()
	general := domain.NewGroupRoom("general", "", nil)

	t.Run("Limit is clamped", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		next := "cursor"
		messages := []domain.Message{{ID: uuid.New(), Room: general.ID, Content: "hi"}}

		f.resolver.EXPECT().Resolve(gomock.Any(), "general").Return(general, nil).Times(2)
		f.messages.EXPECT().GetMessages(gomock.Any(), general.ID, nil, 50).Return(messages, &next, nil).Times(1)
		f.messages.EXPECT().GetMessages(gomock.Any(), general.ID, &next, 10).Return(nil, nil, nil).Times(1)

		page, err := f.svc.History(ctx, alice, "general", nil, 500)
		req.NoError(err)
		req.Equal(general, page.Room)
		req.Equal(messages, page.Messages)
		req.Equal(&next, page.NextCursor)

		page, err = f.svc.History(ctx, alice, "general", &next, 10)
		req.NoError(err)
		req.Nil(page.NextCursor)
	})

	t.Run("Direct rooms are private", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		dm := domain.NewDirectRoom("u-bob", "u-carol")
		f.resolver.EXPECT().Resolve(gomock.Any(), dm.ID.String()).Return(dm, nil)
		f.messages.EXPECT().GetMessages(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := f.svc.History(ctx, alice, dm.ID.String(), nil, 10)

		req.ErrorIs(err, errors.ErrForbidden)
	})
}

func TestChatService_CreateRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newChatFixture(t)

	f.rooms.EXPECT().CreateRoom(gomock.Any(), gomock.Cond(func(r domain.Room) bool {
		return r.Name == "physics" && r.Type == domain.RoomTypeGroup && lo.Contains(r.Participants, alice.UserID)
	})).Return(nil)

	room, err := f.svc.CreateRoom(ctx, alice, auth.RoomRequest{Name: " physics ", Participants: []string{alice.UserID, "u-bob"}})
	req.NoError(err)
	req.Equal([]string{alice.UserID, "u-bob"}, room.Participants)

	_, err = f.svc.CreateRoom(ctx, alice, auth.RoomRequest{Name: "dm:x:y"})
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestChatService_OpenConversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newChatFixture(t)
	dm := domain.NewDirectRoom(alice.UserID, "u-bob")

	f.users.EXPECT().GetUserByID(gomock.Any(), "u-bob").Return(domain.User{ID: "u-bob"}, nil)
	f.rooms.EXPECT().FindOrCreateDM(gomock.Any(), alice.UserID, "u-bob").Return(dm, true, nil)

	room, created, err := f.svc.OpenConversation(ctx, alice, "u-bob")
	req.NoError(err)
	req.True(created)
	req.Equal(dm, room)

	_, _, err = f.svc.OpenConversation(ctx, alice, alice.UserID)
	req.ErrorIs(err, errors.ErrInvalidPayload)

	f.users.EXPECT().GetUserByID(gomock.Any(), "u-ghost").Return(domain.User{}, errors.ErrUserNotFound)
	_, _, err = f.svc.OpenConversation(ctx, alice, "u-ghost")
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func TestChatService_Search(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newChatFixture(t)
	general := domain.NewGroupRoom("general", "", nil)
	found := []domain.Message{{ID: uuid.New(), Room: general.ID, Content: "exam tomorrow"}}

	f.resolver.EXPECT().Resolve(gomock.Any(), "general").Return(general, nil)
	f.index.EXPECT().Search(gomock.Any(), general.ID, "exam", 20).Return(found, nil)

	got, err := f.svc.Search(ctx, alice, "general", " exam ", 20)
	req.NoError(err)
	req.Equal(found, got)

	_, err = f.svc.Search(ctx, alice, "general", "  ", 20)
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestChatService_DeleteMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newChatFixture(t)
	id := uuid.New()

	// Students can't delete
	f.messages.EXPECT().DeleteMessage(gomock.Any(), gomock.Any()).Times(0)
	req.ErrorIs(f.svc.DeleteMessage(ctx, alice, id), errors.ErrForbidden)

	// Admins can, the index is told about it
	f.messages.EXPECT().DeleteMessage(gomock.Any(), id).Return(nil)
	f.publisher.EXPECT().Publish(event.MessagesDeleted{IDs: []uuid.UUID{id}})
	req.NoError(f.svc.DeleteMessage(ctx, admin, id))
}

func TestChatService_Post_Goes_Through_The_Broadcaster(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newChatFixture(t)
	cmd := domain.PostMessageCommand{Room: "general", Identity: &alice, Content: "hello"}
	posted := domain.Message{ID: uuid.New(), SenderID: alice.UserID, Content: "hello"}

	f.broadcaster.EXPECT().Post(gomock.Any(), cmd).Return(posted, nil)

	got, err := f.svc.Post(ctx, cmd)
	req.NoError(err)
	req.Equal(posted, got)
}
