// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Messages are append-only: never updated, only deleted by an admin or a user cascade.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat message once persisted.
type Message struct {
	ID         uuid.UUID
	Room       RoomID
	SenderID   string
	SenderName string
	SenderRole Role
	Content    string
	CreatedAt  time.Time
}

func (m Message) RoomID() RoomID {
	return m.Room
}

// HistoryPage is one page of a room history. Room is the resolved room, whatever reference was asked for.
type HistoryPage struct {
	Room       Room
	Messages   []Message
	NextCursor *string
}
