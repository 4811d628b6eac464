package event

import (
	"educonnect/domain"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is anything pushed towards connections or permanent sinks.
type DomainEvent interface {
	RoomID() domain.RoomID
}

// MessagePosted is emitted once a message has been persisted.
type MessagePosted struct {
	ID         uuid.UUID
	Room       domain.RoomID
	AuthorID   string
	Author     string
	AuthorRole domain.Role
	Content    string
	At         time.Time
}

func (m MessagePosted) RoomID() domain.RoomID {
	return m.Room
}

func (m MessagePosted) Message() domain.Message {
	return domain.Message{
		ID:         m.ID,
		Room:       m.Room,
		SenderID:   m.AuthorID,
		SenderName: m.Author,
		SenderRole: m.AuthorRole,
		Content:    m.Content,
		CreatedAt:  m.At,
	}
}

func NewMessagePosted(m domain.Message) MessagePosted {
	return MessagePosted{
		ID:         m.ID,
		Room:       m.Room,
		AuthorID:   m.SenderID,
		Author:     m.SenderName,
		AuthorRole: m.SenderRole,
		Content:    m.Content,
		At:         m.CreatedAt,
	}
}

// RoomHistory is the one-off batch of recent messages sent to a joining connection.
type RoomHistory struct {
	Room     domain.RoomID
	Messages []domain.Message
}

func (h RoomHistory) RoomID() domain.RoomID {
	return h.Room
}

// ErrorRaised reports a failure back to the originating connection only.
type ErrorRaised struct {
	Room   domain.RoomID
	Code   string
	Reason string
}

func (e ErrorRaised) RoomID() domain.RoomID {
	return e.Room
}

// MessagesDeleted is emitted after an admin deletion or a user cascade.
// Room is empty when the deleted messages span several rooms.
type MessagesDeleted struct {
	Room domain.RoomID
	IDs  []uuid.UUID
}

func (m MessagesDeleted) RoomID() domain.RoomID {
	return m.Room
}
