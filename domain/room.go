package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RoomID string

func (id RoomID) String() string { return string(id) }

type RoomType string

const (
	RoomTypeGroup RoomType = "group"
	RoomTypeDM    RoomType = "dm"
)

// Room is a named channel messages are scoped to.
// Its name never changes once created; participants only matter for direct rooms.
type Room struct {
	ID           RoomID
	Name         string
	Type         RoomType
	Description  string
	Participants []string
	CreatedAt    time.Time
}

func NewGroupRoom(name, description string, participants []string) Room {
	return Room{
		ID:           RoomID(uuid.NewString()),
		Name:         strings.TrimSpace(name),
		Type:         RoomTypeGroup,
		Description:  description,
		Participants: participants,
		CreatedAt:    time.Now().UTC(),
	}
}

// NewDirectRoom builds the two-party room between a and b.
// The name is derived from the sorted pair so both directions map to the same room.
func NewDirectRoom(a, b string) Room {
	pair := DirectPair(a, b)
	return Room{
		ID:           RoomID(uuid.NewString()),
		Name:         "dm:" + pair[0] + ":" + pair[1],
		Type:         RoomTypeDM,
		Participants: pair[:],
		CreatedAt:    time.Now().UTC(),
	}
}

func (r Room) IsDirect() bool { return r.Type == RoomTypeDM }

// DirectPair returns the two participants in a stable order.
func DirectPair(a, b string) [2]string {
	pair := []string{a, b}
	sort.Strings(pair)
	return [2]string{pair[0], pair[1]}
}

// PostingPolicy restricts one designated room to privileged identities.
// Every other room accepts posts from any authenticated identity.
type PostingPolicy struct {
	PrivilegedRoom string
}

func (p PostingPolicy) IsRestricted(room Room) bool {
	return p.PrivilegedRoom != "" && strings.EqualFold(room.Name, p.PrivilegedRoom)
}

func (p PostingPolicy) CanPost(identity Identity, room Room) bool {
	if !p.CanAccess(identity, room) {
		return false
	}
	if !p.IsRestricted(room) {
		return true
	}
	return identity.IsPrivileged()
}

// CanAccess reports whether the identity may join or read the room.
// Direct rooms are reserved to their two participants.
func (p PostingPolicy) CanAccess(identity Identity, room Room) bool {
	if !room.IsDirect() {
		return true
	}
	for _, participant := range room.Participants {
		if participant == identity.UserID {
			return true
		}
	}
	return false
}
