package runtime

import (
	"context"
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/errors"
	"educonnect/runtime/workers"
	"fmt"
	"log/slog"
	"sync"
)

type SessionState int

const (
	StateConnected SessionState = iota
	StateAuthenticated
	StateInRoom
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// HistoryRequester hands a history load over to the loader pool without waiting for it.
type HistoryRequester interface {
	RequestHistory(ctx context.Context, req workers.HistoryRequest)
}

// Session binds one live connection to its identity and to at most one room.
// The identity is resolved once before the session exists and never changes.
// A session without identity stays Connected and can't join or post.
type Session struct {
	// posting is held shared by in-flight posts, close takes it exclusively.
	posting sync.RWMutex

	mu       sync.Mutex
	connID   domain.ConnectionID
	identity *domain.Identity
	state    SessionState
	room     domain.Room

	sink        contract.EventSink
	registry    contract.IRegistry
	resolver    contract.IRoomResolver
	broadcaster contract.IBroadcaster
	history     HistoryRequester
	policy      domain.PostingPolicy
	log         *slog.Logger
}

func (s *Session) ConnectionID() domain.ConnectionID { return s.connID }

// Identity returns nil for an anonymous connection.
func (s *Session) Identity() *domain.Identity {
	if s.identity == nil {
		return nil
	}
	identity := *s.identity
	return &identity
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentRoom returns the occupied room, if any.
func (s *Session) CurrentRoom() (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room, s.state == StateInRoom
}

// Join moves the session into the room, leaving the previous one.
// History is requested asynchronously and arrives as a separate event.
// On failure the session keeps its previous state.
func (s *Session) Join(ctx context.Context, cmd domain.JoinRoomCommand) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return domain.Room{}, errors.ErrConnectionClosed
	case StateConnected:
		return domain.Room{}, errors.ErrUnauthenticated
	}

	room, err := s.resolver.Resolve(ctx, cmd.Room)
	if err != nil {
		return domain.Room{}, err
	}
	if !s.policy.CanAccess(*s.identity, room) {
		return domain.Room{}, fmt.Errorf("%w: %s is a private conversation", errors.ErrForbidden, room.Name)
	}

	previous, err := s.registry.Join(s.connID, room.ID)
	if err != nil {
		return domain.Room{}, err
	}
	if previous != "" {
		s.log.Debug("Left room implicitly", "conn_id", s.connID, "room_id", previous)
	}
	s.room = room
	s.state = StateInRoom
	s.log.Debug("Joined room", "conn_id", s.connID, "room_id", room.ID, "user_id", s.identity.UserID)

	s.history.RequestHistory(ctx, workers.HistoryRequest{ConnID: s.connID, Room: room.ID, Sink: s.sink})
	return room, nil
}

// Leave is advisory: leaving a room the session isn't in, or an unknown room, is a no-op.
func (s *Session) Leave(ctx context.Context, cmd domain.LeaveRoomCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return errors.ErrConnectionClosed
	}
	if s.state != StateInRoom {
		return nil
	}

	room, err := s.resolver.Resolve(ctx, cmd.Room)
	if err != nil {
		s.log.Debug("Leave ignored", "conn_id", s.connID, "room", cmd.Room, "error", err)
		return nil
	}
	if room.ID != s.room.ID {
		return nil
	}
	s.registry.Leave(s.connID, room.ID)
	s.room = domain.Room{}
	s.state = StateAuthenticated
	s.log.Debug("Left room", "conn_id", s.connID, "room_id", room.ID)
	return nil
}

// Post sends a message as the session identity, whatever identity the command carries.
// A post accepted before close is persisted before close returns.
func (s *Session) Post(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	s.posting.RLock()
	defer s.posting.RUnlock()

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateClosed:
		return domain.Message{}, errors.ErrConnectionClosed
	case StateConnected:
		return domain.Message{}, errors.ErrUnauthenticated
	}
	cmd.Identity = s.Identity()
	return s.broadcaster.Post(ctx, cmd)
}

// close is terminal. It reports the room the session occupied.
func (s *Session) close() (domain.RoomID, bool) {
	s.posting.Lock()
	defer s.posting.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return "", false
	}
	roomID, inRoom := s.room.ID, s.state == StateInRoom
	s.state = StateClosed
	s.room = domain.Room{}
	return roomID, inRoom
}
