package ws

import (
	"bytes"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"
)

const (
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventMessage      = "message"
	EventRoomMessages = "room-messages"
	EventError        = "error"
)

// Frame is the envelope of every WebSocket text frame, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound is one of JoinRoom, LeaveRoom or PostMessage.
type Inbound interface {
	inbound()
}

type JoinRoom struct{ Room string }

type LeaveRoom struct{ Room string }

// PostMessage is the single normalized form of the three accepted message payloads.
type PostMessage struct {
	Room    string
	Content string
}

func (JoinRoom) inbound()    {}
func (LeaveRoom) inbound()   {}
func (PostMessage) inbound() {}

type messagePayload struct {
	ConversationID *string `json:"conversationId"`
	Room           *string `json:"room"`
	Message        *string `json:"message"`
}

// Decode parses a client frame. Anything it can't map is ErrInvalidPayload.
func Decode(raw []byte) (Inbound, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: not a frame", errors.ErrInvalidPayload)
	}

	switch frame.Event {
	case EventJoinRoom:
		room, err := decodeRoom(frame.Data)
		return JoinRoom{Room: room}, err
	case EventLeaveRoom:
		room, err := decodeRoom(frame.Data)
		return LeaveRoom{Room: room}, err
	case EventMessage:
		return decodeMessage(frame.Data)
	}
	return nil, fmt.Errorf("%w: unknown event %q", errors.ErrInvalidPayload, frame.Event)
}

func decodeRoom(data json.RawMessage) (string, error) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil {
		return "", fmt.Errorf("%w: room must be a string", errors.ErrInvalidPayload)
	}
	return room, nil
}

// decodeMessage accepts a bare string for the default room,
// {"conversationId","message"} and the older {"room","message"}.
func decodeMessage(data json.RawMessage) (Inbound, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var content string
		if err := json.Unmarshal(data, &content); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		return PostMessage{Content: content}, nil
	}

	var payload messagePayload
	if len(data) == 0 || data[0] != '{' || json.Unmarshal(data, &payload) != nil || payload.Message == nil {
		return nil, fmt.Errorf("%w: expected a string or {conversationId, message}", errors.ErrInvalidPayload)
	}
	room := lo.FromPtr(payload.ConversationID)
	if room == "" {
		room = lo.FromPtr(payload.Room)
	}
	return PostMessage{Room: room, Content: *payload.Message}, nil
}

type SenderView struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// MessageView is the one outbound message shape, shared with the REST history.
type MessageView struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	Sender         SenderView `json:"sender"`
	Message        string     `json:"message"`
	Timestamp      time.Time  `json:"timestamp"`
}

type RoomMessagesView struct {
	Room     string        `json:"room"`
	Messages []MessageView `json:"messages"`
}

type ErrorView struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func NewMessageView(m domain.Message) MessageView {
	return MessageView{
		ID:             m.ID.String(),
		ConversationID: m.Room.String(),
		Sender:         SenderView{ID: m.SenderID, Username: m.SenderName, Role: m.SenderRole},
		Message:        m.Content,
		Timestamp:      m.CreatedAt,
	}
}

func NewMessageViews(messages []domain.Message) []MessageView {
	return lo.Map(messages, func(m domain.Message, _ int) MessageView {
		return NewMessageView(m)
	})
}

// Encode turns an event meant for a connection into a frame.
func Encode(e event.DomainEvent) ([]byte, error) {
	var name string
	var data any
	switch evt := e.(type) {
	case event.MessagePosted:
		name, data = EventMessage, NewMessageView(evt.Message())
	case event.RoomHistory:
		name, data = EventRoomMessages, RoomMessagesView{Room: evt.Room.String(), Messages: NewMessageViews(evt.Messages)}
	case event.ErrorRaised:
		name, data = EventError, ErrorView{Message: evt.Reason, Code: evt.Code}
	default:
		return nil, fmt.Errorf("no frame for %T", e)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: name, Data: raw})
}

// NewErrorEvent maps a failure to what the client is told.
// Storage details never leave the server.
func NewErrorEvent(room domain.RoomID, err error) event.ErrorRaised {
	reason := err.Error()
	switch errors.Code(err) {
	case "delivery_failed":
		reason = errors.ErrDeliveryFailed.Error()
	case "internal":
		reason = "internal error"
	}
	return event.ErrorRaised{Room: room, Code: errors.Code(err), Reason: reason}
}
