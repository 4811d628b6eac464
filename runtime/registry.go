package runtime

import (
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/errors"
	"sync"
)

type Set map[domain.ConnectionID]struct{}

// Registry tracks which live connection listens to which room.
// A single lock serialises every mutation, so moving a connection between
// two rooms is atomic and a connection is never found in two rooms at once.
type Registry struct {
	mu          sync.RWMutex
	sinks       map[domain.ConnectionID]contract.EventSink // connection -> sink
	roomMembers map[domain.RoomID]Set                      // room -> connections
	current     map[domain.ConnectionID]domain.RoomID      // connection -> room
}

var _ contract.IRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		sinks:       make(map[domain.ConnectionID]contract.EventSink),
		roomMembers: make(map[domain.RoomID]Set),
		current:     make(map[domain.ConnectionID]domain.RoomID),
	}
}

// Register makes a connection known to the registry without placing it in a room.
func (r *Registry) Register(connID domain.ConnectionID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[connID] = sink
}

// Unregister forgets the connection and removes it from the room it occupied.
// It returns that room, if any.
func (r *Registry) Unregister(connID domain.ConnectionID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, inRoom := r.current[connID]
	if inRoom {
		r.removeLocked(connID, roomID)
	}
	delete(r.sinks, connID)
	return roomID, inRoom
}

// Join places the connection in roomID, leaving its previous room first.
// Joining the room it already occupies is a no-op.
// It returns the room that was left, empty when there was none.
func (r *Registry) Join(connID domain.ConnectionID, roomID domain.RoomID) (domain.RoomID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sinks[connID]; !ok {
		return "", errors.ErrConnectionClosed
	}

	previous, inRoom := r.current[connID]
	if inRoom && previous == roomID {
		return "", nil
	}
	if inRoom {
		r.removeLocked(connID, previous)
	}

	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][connID] = struct{}{}
	r.current[connID] = roomID
	return previous, nil
}

// Leave removes the connection from roomID.
// Leaving a room the connection never joined is tolerated and reports false.
func (r *Registry) Leave(connID domain.ConnectionID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.current[connID]; !ok || current != roomID {
		return false
	}
	r.removeLocked(connID, roomID)
	return true
}

// removeLocked must be called with the write lock held.
// Empty rooms are dropped so the map doesn't grow with abandoned rooms.
func (r *Registry) removeLocked(connID domain.ConnectionID, roomID domain.RoomID) {
	delete(r.current, connID)
	members, ok := r.roomMembers[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.roomMembers, roomID)
	}
}

// MembersOf returns a snapshot of the sinks subscribed to the room at call time.
// Callers must tolerate members joining or leaving right after the snapshot.
// Returns nil if the room has no members.
func (r *Registry) MembersOf(roomID domain.RoomID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	activeSinks := make([]contract.EventSink, 0, len(members))
	for connID := range members {
		if sink, exists := r.sinks[connID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// MemberIDsOf is MembersOf keyed by connection, mostly useful to assert membership.
func (r *Registry) MemberIDsOf(roomID domain.RoomID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ConnectionID, 0, len(r.roomMembers[roomID]))
	for connID := range r.roomMembers[roomID] {
		ids = append(ids, connID)
	}
	return ids
}

func (r *Registry) CurrentRoomOf(connID domain.ConnectionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.current[connID]
	return roomID, ok
}

func (r *Registry) Stats() contract.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return contract.RegistryStats{
		Connections: len(r.sinks),
		Rooms:       len(r.roomMembers),
		Members:     len(r.current),
	}
}
