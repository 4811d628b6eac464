package workers

import (
	"context"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/mocks"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHistoryLoader_Load(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctx := context.Background()
	room := domain.RoomID("general")
	history := []domain.Message{
		{ID: uuid.New(), Room: room, Content: "first", CreatedAt: time.Now().Add(-time.Minute)},
		{ID: uuid.New(), Room: room, Content: "second", CreatedAt: time.Now()},
	}

	t.Run("History goes to the requesting connection", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockMessages := mocks.NewMockIMessageRepository(ctrl)
		mockRegistry := mocks.NewMockIRegistry(ctrl)
		mockSink := mocks.NewMockEventSink(ctrl)
		loader := NewHistoryLoader(log, nil, mockMessages, mockRegistry, 20, time.Second)

		// Given the connection is still in the room
		mockMessages.EXPECT().GetLatest(gomock.Any(), room, 20).Return(history, nil).Times(1)
		mockRegistry.EXPECT().CurrentRoomOf(domain.ConnectionID("c1")).Return(room, true).Times(1)
		mockSink.EXPECT().Consume(gomock.Any(), event.RoomHistory{Room: room, Messages: history}).Return(nil).Times(1)

		// When the history is loaded
		loader.Load(ctx, HistoryRequest{ConnID: "c1", Room: room, Sink: mockSink})
		ctrl.Finish()
	})

	t.Run("Nothing is sent once the connection moved", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockMessages := mocks.NewMockIMessageRepository(ctrl)
		mockRegistry := mocks.NewMockIRegistry(ctrl)
		mockSink := mocks.NewMockEventSink(ctrl)
		loader := NewHistoryLoader(log, nil, mockMessages, mockRegistry, 20, time.Second)

		mockMessages.EXPECT().GetLatest(gomock.Any(), room, 20).Return(history, nil).Times(1)
		mockRegistry.EXPECT().CurrentRoomOf(domain.ConnectionID("c1")).Return(domain.RoomID("science"), true).Times(1)
		mockSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Times(0)

		loader.Load(ctx, HistoryRequest{ConnID: "c1", Room: room, Sink: mockSink})
		ctrl.Finish()
	})

	t.Run("A store failure is reported to the connection", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockMessages := mocks.NewMockIMessageRepository(ctrl)
		mockRegistry := mocks.NewMockIRegistry(ctrl)
		mockSink := mocks.NewMockEventSink(ctrl)
		loader := NewHistoryLoader(log, nil, mockMessages, mockRegistry, 20, time.Second)

		mockMessages.EXPECT().GetLatest(gomock.Any(), room, 20).Return(nil, fmt.Errorf("boom")).Times(1)
		mockSink.EXPECT().Consume(gomock.Any(), gomock.Cond(func(e event.DomainEvent) bool {
			raised, ok := e.(event.ErrorRaised)
			return ok && raised.Reason == "failed to load messages"
		})).Return(nil).Times(1)

		loader.Load(ctx, HistoryRequest{ConnID: "c1", Room: room, Sink: mockSink})
		ctrl.Finish()
	})
}

func TestHistoryLoader_Run_Stops_With_Context(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	requests := make(chan HistoryRequest)
	loader := NewHistoryLoader(log, requests, nil, nil, 20, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loader.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("history loader did not stop")
	}
}
