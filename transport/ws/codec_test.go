package ws

import (
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/errors"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Inbound
		wantErr error
	}{
		{"Join by name", `{"event":"join-room","data":"general"}`, JoinRoom{Room: "general"}, nil},
		{"Leave by id", `{"event":"leave-room","data":"3f1c"}`, LeaveRoom{Room: "3f1c"}, nil},
		{"Bare string goes to the default room", `{"event":"message","data":"hello"}`, PostMessage{Content: "hello"}, nil},
		{"Conversation payload", `{"event":"message","data":{"conversationId":"c-1","message":"hi"}}`, PostMessage{Room: "c-1", Content: "hi"}, nil},
		{"Legacy room payload", `{"event":"message","data":{"room":"science","message":"hi"}}`, PostMessage{Room: "science", Content: "hi"}, nil},
		{"Conversation wins over room", `{"event":"message","data":{"conversationId":"c-1","room":"science","message":"hi"}}`, PostMessage{Room: "c-1", Content: "hi"}, nil},
		{"Object without message", `{"event":"message","data":{"room":"science","text":"hi"}}`, nil, errors.ErrInvalidPayload},
		{"Number as message", `{"event":"message","data":42}`, nil, errors.ErrInvalidPayload},
		{"Room as object", `{"event":"join-room","data":{"room":"general"}}`, nil, errors.ErrInvalidPayload},
		{"Unknown event", `{"event":"typing","data":"general"}`, nil, errors.ErrInvalidPayload},
		{"Not JSON", `hello`, nil, errors.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)

			got, err := Decode([]byte(tt.raw))

			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, got)
		})
	}
}

func TestEncode(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	message := domain.Message{
		ID:         uuid.MustParse("0b8e4e1e-8a8c-4d3e-9a43-1a2b3c4d5e6f"),
		Room:       "room-1",
		SenderID:   "u-1",
		SenderName: "alice",
		SenderRole: domain.RoleStudent,
		Content:    "hello",
		CreatedAt:  at,
	}

	t.Run("message", func(t *testing.T) {
		req := require.New(t)
		raw, err := Encode(event.NewMessagePosted(message))
		req.NoError(err)
		req.JSONEq(`{"event":"message","data":{
			"id":"0b8e4e1e-8a8c-4d3e-9a43-1a2b3c4d5e6f",
			"conversationId":"room-1",
			"sender":{"id":"u-1","username":"alice","role":"student"},
			"message":"hello",
			"timestamp":"2026-03-01T10:00:00Z"}}`, string(raw))
	})

	t.Run("room-messages", func(t *testing.T) {
		req := require.New(t)
		raw, err := Encode(event.RoomHistory{Room: "room-1"})
		req.NoError(err)
		req.JSONEq(`{"event":"room-messages","data":{"room":"room-1","messages":[]}}`, string(raw))
	})

	t.Run("error hides storage details", func(t *testing.T) {
		req := require.New(t)
		raw, err := Encode(NewErrorEvent("room-1", fmt.Errorf("%w: disk full", errors.ErrDeliveryFailed)))
		req.NoError(err)

		var frame Frame
		req.NoError(json.Unmarshal(raw, &frame))
		req.Equal(EventError, frame.Event)
		req.JSONEq(`{"message":"failed to save message","code":"delivery_failed"}`, string(frame.Data))
	})

	t.Run("other events have no frame", func(t *testing.T) {
		req := require.New(t)
		_, err := Encode(event.MessagesDeleted{})
		req.Error(err)
	})
}
