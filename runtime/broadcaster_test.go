package runtime

import (
	"context"
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/errors"
	"educonnect/mocks"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBroadcaster_Post_Only_Reaches_The_Room_Members(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c := newChat(t, "general", "science")
	alice := domain.Identity{UserID: "u-alice", Username: "alice", Role: domain.RoleStudent}
	bob := domain.Identity{UserID: "u-bob", Username: "bob", Role: domain.RoleStudent}

	// Given C1 in general and C2 in science
	c1, sink1 := c.connect(t, &alice)
	c2, sink2 := c.connect(t, &bob)
	_, err := c1.Join(ctx, domain.JoinRoomCommand{Room: "general"})
	req.NoError(err)
	_, err = c2.Join(ctx, domain.JoinRoomCommand{Room: "science"})
	req.NoError(err)

	// When C1 posts hello
	message, err := c1.Post(ctx, domain.PostMessageCommand{Room: "general", Content: "hello"})
	req.NoError(err)

	// Then only C1 receives it
	req.Equal([]string{"hello"}, postedContents(received(sink1)))
	req.Empty(received(sink2))
	req.Equal("u-alice", message.SenderID)
	req.Equal(c.room(t, "general").ID, message.Room)

	// And the permanent sinks are told about it
	published := <-c.published
	req.Equal(message, published.(event.MessagePosted).Message())
}

func TestBroadcaster_Post_Privileged_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c := newChat(t, "announcements")
	announcements := c.room(t, "announcements")

	f, facultySink := c.connect(t, &faculty)
	s, studentSink := c.connect(t, &student)
	_, err := f.Join(ctx, domain.JoinRoomCommand{Room: "announcements"})
	req.NoError(err)
	_, err = s.Join(ctx, domain.JoinRoomCommand{Room: announcements.ID.String()})
	req.NoError(err)

	t.Run("Faculty posts are persisted and broadcast", func(t *testing.T) {
		req := require.New(t)
		// When the faculty member posts
		_, err := f.Post(ctx, domain.PostMessageCommand{Room: "announcements", Content: "Exam on Monday"})
		req.NoError(err)

		// Then every member receives it
		req.Equal([]string{"Exam on Monday"}, postedContents(received(facultySink)))
		req.Equal([]string{"Exam on Monday"}, postedContents(received(studentSink)))
		stored, err := c.messages.GetLatest(ctx, announcements.ID, 20)
		req.NoError(err)
		req.Len(stored, 1)
		<-c.published
	})

	t.Run("Student posts are forbidden, nothing is persisted", func(t *testing.T) {
		req := require.New(t)
		// When the student posts, whatever case the room name uses
		_, err := s.Post(ctx, domain.PostMessageCommand{Room: "Announcements", Content: "Is it cancelled?"})

		// Then the post is refused
		req.ErrorIs(err, errors.ErrForbidden)
		req.Empty(received(facultySink))
		req.Empty(received(studentSink))
		stored, err := c.messages.GetLatest(ctx, announcements.ID, 20)
		req.NoError(err)
		req.Len(stored, 1)
		req.Empty(c.published)
	})
}

func TestBroadcaster_Post_Validation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c := newChat(t, "general")

	tests := []struct {
		name    string
		cmd     domain.PostMessageCommand
		wantErr error
	}{
		{"No identity", domain.PostMessageCommand{Room: "general", Content: "hi"}, errors.ErrUnauthenticated},
		{"Blank content", domain.PostMessageCommand{Room: "general", Identity: &student, Content: "   "}, errors.ErrEmptyMessage},
		{"Unknown room", domain.PostMessageCommand{Room: "nowhere", Identity: &student, Content: "hi"}, errors.ErrRoomNotFound},
		{"Too long", domain.PostMessageCommand{Room: "general", Identity: &student, Content: string(make([]rune, 201))}, errors.ErrMessageTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, err := c.broadcaster.Post(ctx, tt.cmd)
			req.ErrorIs(err, tt.wantErr)
		})
	}

	// An empty room reference goes to the default room
	message, err := c.broadcaster.Post(ctx, domain.PostMessageCommand{Identity: &student, Content: "  trimmed  "})
	req.NoError(err)
	req.Equal(c.room(t, "general").ID, message.Room)
	req.Equal("trimmed", message.Content)
}

func TestBroadcaster_Post_Persistence_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mockResolver := mocks.NewMockIRoomResolver(ctrl)
	mockMessages := mocks.NewMockIMessageRepository(ctrl)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	room := domain.NewGroupRoom("general", "", nil)
	published := make(chan event.DomainEvent, 1)
	b := NewBroadcaster(log, mockRegistry, mockResolver, mockMessages, nil, domain.PostingPolicy{}, published, 0, time.Second)

	// Given a store that refuses writes
	mockResolver.EXPECT().Resolve(gomock.Any(), "general").Return(room, nil).Times(1)
	mockMessages.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).Return(fmt.Errorf("disk full")).Times(1)
	mockRegistry.EXPECT().MembersOf(gomock.Any()).Times(0)

	// When posting
	_, err := b.Post(ctx, domain.PostMessageCommand{Room: "general", Identity: &student, Content: "hello"})

	// Then the failure surfaces and nothing is broadcast
	req.ErrorIs(err, errors.ErrDeliveryFailed)
	req.Empty(published)
}

func TestBroadcaster_Post_Censors_Before_Persisting(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mockResolver := mocks.NewMockIRoomResolver(ctrl)
	mockMessages := mocks.NewMockIMessageRepository(ctrl)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockModerator := mocks.NewMockIModerator(ctrl)
	mockSink := mocks.NewMockEventSink(ctrl)
	room := domain.NewGroupRoom("general", "", nil)
	b := NewBroadcaster(log, mockRegistry, mockResolver, mockMessages, mockModerator, domain.PostingPolicy{}, make(chan event.DomainEvent, 1), 0, time.Second)

	mockResolver.EXPECT().Resolve(gomock.Any(), "").Return(room, nil)
	mockModerator.EXPECT().Censor("what the heck").Return("what the ****", []string{"heck"})
	gomock.InOrder(
		mockMessages.EXPECT().StoreMessage(gomock.Any(), gomock.Cond(func(m domain.Message) bool {
			return m.Content == "what the ****" && m.Room == room.ID
		})).Return(nil),
		mockRegistry.EXPECT().MembersOf(room.ID).Return([]contract.EventSink{mockSink}),
		mockSink.EXPECT().Consume(gomock.Any(), gomock.AssignableToTypeOf(event.MessagePosted{})).Return(nil),
	)

	message, err := b.Post(ctx, domain.PostMessageCommand{Identity: &student, Content: "what the heck"})
	req.NoError(err)
	req.Equal("what the ****", message.Content)
}

func TestBroadcaster_Concurrent_Posts_Keep_Store_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c := newChat(t, "general")
	general := c.room(t, "general")
	observer, observerSink := c.connect(t, &student)
	_, err := observer.Join(ctx, domain.JoinRoomCommand{Room: "general"})
	req.NoError(err)
	// Frozen clock, order must still be strict
	frozen := time.Now().UTC()
	c.broadcaster.now = func() time.Time { return frozen }

	// When many posters write at once
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.broadcaster.Post(ctx, domain.PostMessageCommand{Room: "general", Identity: &faculty, Content: fmt.Sprintf("msg-%d", i)})
			req.NoError(err)
		}(i)
	}
	wg.Wait()

	// Then the member sees the exact order of the store
	stored, err := c.messages.GetLatest(ctx, general.ID, 20)
	req.NoError(err)
	req.Len(stored, 10)
	var storedContents []string
	for i, m := range stored {
		storedContents = append(storedContents, m.Content)
		if i > 0 {
			req.True(m.CreatedAt.After(stored[i-1].CreatedAt))
		}
	}
	req.Equal(storedContents, postedContents(received(observerSink)))
}
